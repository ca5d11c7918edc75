// Package pyast lowers tree-sitter Python syntax trees into a small typed
// statement/expression tree. Every node keeps the byte span it was lowered
// from so that callers can rewrite a module by splicing the original source
// instead of regenerating it.
package pyast

// Span is a half-open byte range [Start, End) into the module source.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Module is a parsed Python file.
type Module struct {
	Path   string
	Source []byte
	Body   []Stmt
}

// Text returns the source text covered by span.
func (m *Module) Text(s Span) string {
	if s.Start < 0 || s.End > len(m.Source) || s.Start > s.End {
		return ""
	}
	return string(m.Source[s.Start:s.End])
}

// Node is implemented by every statement and expression.
type Node interface {
	Pos() Span
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

type node struct {
	span Span
}

func (n node) Pos() Span { return n.span }

// Block is an indented suite of statements.
type Block struct {
	Span Span
	Body []Stmt
}

// Alias is one entry of an import list.
type Alias struct {
	// Name is the dotted imported name, or "*" for a wildcard.
	Name   string
	AsName string
	// Span covers the whole entry including "as alias".
	Span Span
	// NameSpan covers only the dotted name.
	NameSpan Span
}

// BoundName is the local name the alias binds as written: the alias when
// present, otherwise the dotted name.
func (a Alias) BoundName() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

// IsWildcard reports whether the alias is "*".
func (a Alias) IsWildcard() bool { return a.Name == "*" }

// Import is "import a.b as c, d".
type Import struct {
	node
	Names []Alias
}

// ImportFrom is "from .mod import a as b" or a wildcard import.
type ImportFrom struct {
	node
	// Module is the dotted module without leading dots, "" for "from . import x".
	Module string
	// ModuleSpan covers the dotted module (zero when Module is empty).
	ModuleSpan Span
	// PrefixSpan covers the module reference including relative dots.
	PrefixSpan Span
	Level      int
	Names      []Alias
	// Future marks "from __future__ import ...".
	Future bool
}

// HasWildcard reports whether the statement imports "*".
func (s *ImportFrom) HasWildcard() bool {
	for _, a := range s.Names {
		if a.IsWildcard() {
			return true
		}
	}
	return false
}

// Assign is "a = b = value". Targets holds every target left to right.
type Assign struct {
	node
	Targets []Expr
	Value   Expr
}

// AnnAssign is "target: annotation [= value]".
type AnnAssign struct {
	node
	Target     Expr
	Annotation Expr
	Value      Expr
}

// AugAssign is "target op= value".
type AugAssign struct {
	node
	Target Expr
	Op     string
	Value  Expr
}

// Param is a function or lambda parameter.
type Param struct {
	Name       string
	Annotation Expr
	Default    Expr
}

// Keyword is a "name=value" argument. Name is empty for "**value".
type Keyword struct {
	Name  string
	Value Expr
}

// FunctionDef is a (possibly async, possibly decorated) function definition.
// Its span includes decorators.
type FunctionDef struct {
	node
	Name       string
	Async      bool
	Decorators []Expr
	TypeParams []Expr
	Params     []Param
	Returns    Expr
	Body       Block
}

// ClassDef is a (possibly decorated) class definition.
type ClassDef struct {
	node
	Name       string
	Decorators []Expr
	TypeParams []Expr
	Bases      []Expr
	Keywords   []Keyword
	Body       Block
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	node
	Value Expr
}

// Clause is an elif/else/except/finally/case clause of a compound statement.
type Clause struct {
	Span Span
	// Kind is the clause keyword: elif, else, except, finally, case.
	Kind string
	// Test holds the elif condition, the except types or the case pattern.
	Test []Expr
	Body Block
}

// If is an if statement with its elif and else clauses.
type If struct {
	node
	Test    Expr
	Body    Block
	Clauses []Clause
}

// For is a (possibly async) for loop.
type For struct {
	node
	Async   bool
	Target  Expr
	Iter    Expr
	Body    Block
	Clauses []Clause
}

// While is a while loop.
type While struct {
	node
	Test    Expr
	Body    Block
	Clauses []Clause
}

// With is a (possibly async) with statement.
type With struct {
	node
	Async bool
	Items []Expr
	Body  Block
}

// Try is a try statement; handlers, else and finally are Clauses.
type Try struct {
	node
	Body    Block
	Clauses []Clause
}

// Global is "global a, b".
type Global struct {
	node
	Names []string
}

// Nonlocal is "nonlocal a, b".
type Nonlocal struct {
	node
	Names []string
}

// TypeAlias is "type Name[T] = value".
type TypeAlias struct {
	node
	Name       string
	TypeParams []Expr
	Value      Expr
}

// SimpleStmt covers return, raise, del, assert, pass, break, continue and
// the legacy print/exec statements.
type SimpleStmt struct {
	node
	Kind  string
	Exprs []Expr
}

// Match is a match statement; each case is a Clause whose Test is the pattern.
type Match struct {
	node
	Subject []Expr
	Clauses []Clause
}

func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Assign) stmtNode()      {}
func (*AnnAssign) stmtNode()   {}
func (*AugAssign) stmtNode()   {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*ExprStmt) stmtNode()    {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*With) stmtNode()        {}
func (*Try) stmtNode()         {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*TypeAlias) stmtNode()   {}
func (*SimpleStmt) stmtNode()  {}
func (*Match) stmtNode()       {}

// Name is an identifier reference.
type Name struct {
	node
	ID string
}

// Attribute is "value.attr".
type Attribute struct {
	node
	Value Expr
	Attr  string
}

// Call is "func(args, key=value)".
type Call struct {
	node
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Subscript is "value[index]".
type Subscript struct {
	node
	Value Expr
	Index []Expr
}

// NamedExpr is the walrus "target := value".
type NamedExpr struct {
	node
	Target *Name
	Value  Expr
}

// Tuple is a tuple, list or bare comma-separated sequence.
type Tuple struct {
	node
	Elts []Expr
}

// Starred is "*value" or "**value".
type Starred struct {
	node
	Value Expr
}

// StringLit is a string literal. Value holds the text between the quotes
// without escape processing; Interpolations holds f-string expressions.
type StringLit struct {
	node
	Value          string
	Interpolations []Expr
}

// Compare is a comparison chain "left op right op right2".
type Compare struct {
	node
	Left        Expr
	Ops         []string
	Comparators []Expr
}

// Lambda is "lambda params: body".
type Lambda struct {
	node
	Params []Param
	Body   Expr
}

// Other is any expression without dedicated handling. Children holds its
// lowered sub-expressions in source order.
type Other struct {
	node
	Kind     string
	Children []Expr
}

func (*Name) exprNode()      {}
func (*Attribute) exprNode() {}
func (*Call) exprNode()      {}
func (*Subscript) exprNode() {}
func (*NamedExpr) exprNode() {}
func (*Tuple) exprNode()     {}
func (*Starred) exprNode()   {}
func (*StringLit) exprNode() {}
func (*Compare) exprNode()   {}
func (*Lambda) exprNode()    {}
func (*Other) exprNode()     {}
