package pyast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/pyshake/pkg/parser"
)

// ErrSyntax is returned when the source does not parse cleanly.
var ErrSyntax = errors.New("syntax error")

// Build lowers a tree-sitter parse result into a Module.
func Build(res *parser.ParseResult) (*Module, error) {
	root := res.Tree.RootNode()
	if bad := parser.FirstError(root); bad != nil {
		p := bad.StartPoint()
		return nil, fmt.Errorf("%s:%d:%d: %w", res.Path, p.Row+1, p.Column+1, ErrSyntax)
	}
	b := &builder{src: res.Source}
	return &Module{
		Path:   res.Path,
		Source: res.Source,
		Body:   b.statements(root),
	}, nil
}

// Parse parses source with a fresh parser and lowers it.
func Parse(ctx context.Context, path string, source []byte) (*Module, error) {
	p := parser.New()
	defer p.Close()
	res, err := p.ParseCtx(ctx, source, path)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return Build(res)
}

// ParseFile reads and parses a file.
func ParseFile(ctx context.Context, path string) (*Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(ctx, path, source)
}

type builder struct {
	src []byte
}

func spanOf(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (b *builder) text(n *sitter.Node) string {
	return parser.GetNodeText(n, b.src)
}

// namedChildren returns the named, non-comment children of n.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := range count {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasToken(n *sitter.Node, token string) bool {
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == token {
			return true
		}
	}
	return false
}

func (b *builder) statements(n *sitter.Node) []Stmt {
	var out []Stmt
	for _, c := range namedChildren(n) {
		if s := b.statement(c); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (b *builder) block(n *sitter.Node) Block {
	if n == nil {
		return Block{}
	}
	return Block{Span: spanOf(n), Body: b.statements(n)}
}

func (b *builder) statement(n *sitter.Node) Stmt {
	sp := node{span: spanOf(n)}
	switch n.Type() {
	case "import_statement":
		return &Import{node: sp, Names: b.aliases(namedChildren(n))}
	case "import_from_statement":
		return b.importFrom(n)
	case "future_import_statement":
		return &ImportFrom{
			node:   sp,
			Module: "__future__",
			Names:  b.aliases(namedChildren(n)),
			Future: true,
		}
	case "expression_statement":
		return b.expressionStatement(n)
	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		var decorators []Expr
		for _, c := range namedChildren(n) {
			if c.Type() == "decorator" {
				if inner := namedChildren(c); len(inner) > 0 {
					decorators = append(decorators, b.expr(inner[0]))
				}
			}
		}
		switch def.Type() {
		case "function_definition":
			fn := b.functionDef(def)
			fn.span = spanOf(n)
			fn.Decorators = decorators
			return fn
		case "class_definition":
			cls := b.classDef(def)
			cls.span = spanOf(n)
			cls.Decorators = decorators
			return cls
		}
		return nil
	case "function_definition":
		return b.functionDef(n)
	case "class_definition":
		return b.classDef(n)
	case "if_statement":
		s := &If{
			node: sp,
			Test: b.expr(n.ChildByFieldName("condition")),
			Body: b.block(n.ChildByFieldName("consequence")),
		}
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "elif_clause":
				s.Clauses = append(s.Clauses, Clause{
					Span: spanOf(c),
					Kind: "elif",
					Test: b.exprs(c.ChildByFieldName("condition")),
					Body: b.block(c.ChildByFieldName("consequence")),
				})
			case "else_clause":
				s.Clauses = append(s.Clauses, b.elseClause(c))
			}
		}
		return s
	case "for_statement":
		s := &For{
			node:   sp,
			Async:  hasToken(n, "async"),
			Target: b.expr(n.ChildByFieldName("left")),
			Iter:   b.expr(n.ChildByFieldName("right")),
			Body:   b.block(n.ChildByFieldName("body")),
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			s.Clauses = append(s.Clauses, b.elseClause(alt))
		}
		return s
	case "while_statement":
		s := &While{
			node: sp,
			Test: b.expr(n.ChildByFieldName("condition")),
			Body: b.block(n.ChildByFieldName("body")),
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			s.Clauses = append(s.Clauses, b.elseClause(alt))
		}
		return s
	case "with_statement":
		s := &With{
			node:  sp,
			Async: hasToken(n, "async"),
			Body:  b.block(n.ChildByFieldName("body")),
		}
		for _, c := range namedChildren(n) {
			if c.Type() == "with_clause" {
				s.Items = append(s.Items, b.childExprs(c)...)
			}
		}
		return s
	case "try_statement":
		s := &Try{node: sp, Body: b.block(n.ChildByFieldName("body"))}
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "except_clause", "except_group_clause":
				s.Clauses = append(s.Clauses, b.handlerClause(c, "except"))
			case "else_clause":
				s.Clauses = append(s.Clauses, b.elseClause(c))
			case "finally_clause":
				s.Clauses = append(s.Clauses, b.handlerClause(c, "finally"))
			}
		}
		return s
	case "match_statement":
		s := &Match{node: sp}
		for _, c := range namedChildren(n) {
			if c.Type() == "block" {
				for _, cc := range namedChildren(c) {
					if cc.Type() == "case_clause" {
						s.Clauses = append(s.Clauses, b.handlerClause(cc, "case"))
					}
				}
				continue
			}
			if c.Type() == "case_clause" {
				s.Clauses = append(s.Clauses, b.handlerClause(c, "case"))
				continue
			}
			if e := b.expr(c); e != nil {
				s.Subject = append(s.Subject, e)
			}
		}
		return s
	case "global_statement":
		return &Global{node: sp, Names: b.identifiers(n)}
	case "nonlocal_statement":
		return &Nonlocal{node: sp, Names: b.identifiers(n)}
	case "type_alias_statement":
		s := &TypeAlias{node: sp, Value: b.expr(n.ChildByFieldName("right"))}
		if left := n.ChildByFieldName("left"); left != nil {
			s.Name = b.firstIdentifier(left)
		}
		if tp := n.ChildByFieldName("type_parameters"); tp != nil {
			s.TypeParams = b.childExprs(tp)
		}
		return s
	case "return_statement", "raise_statement", "delete_statement", "assert_statement",
		"print_statement", "exec_statement":
		return &SimpleStmt{
			node:  sp,
			Kind:  strings.TrimSuffix(n.Type(), "_statement"),
			Exprs: b.childExprs(n),
		}
	case "pass_statement", "break_statement", "continue_statement":
		return &SimpleStmt{node: sp, Kind: strings.TrimSuffix(n.Type(), "_statement")}
	}
	return nil
}

func (b *builder) elseClause(n *sitter.Node) Clause {
	body := n.ChildByFieldName("body")
	if body == nil {
		body = lastOfType(n, "block")
	}
	return Clause{Span: spanOf(n), Kind: "else", Body: b.block(body)}
}

// handlerClause lowers except/finally/case clauses: every named child other
// than the trailing block is part of the clause test.
func (b *builder) handlerClause(n *sitter.Node, kind string) Clause {
	c := Clause{Span: spanOf(n), Kind: kind}
	body := n.ChildByFieldName("consequence")
	if body == nil {
		body = lastOfType(n, "block")
	}
	for _, child := range namedChildren(n) {
		if body != nil && child.StartByte() == body.StartByte() && child.Type() == body.Type() {
			continue
		}
		if e := b.expr(child); e != nil {
			c.Test = append(c.Test, e)
		}
	}
	c.Body = b.block(body)
	return c
}

func lastOfType(n *sitter.Node, typ string) *sitter.Node {
	var found *sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() == typ {
			found = c
		}
	}
	return found
}

func (b *builder) identifiers(n *sitter.Node) []string {
	var names []string
	for _, c := range namedChildren(n) {
		if c.Type() == "identifier" {
			names = append(names, b.text(c))
		}
	}
	return names
}

func (b *builder) firstIdentifier(n *sitter.Node) string {
	if n.Type() == "identifier" {
		return b.text(n)
	}
	for _, c := range namedChildren(n) {
		if id := b.firstIdentifier(c); id != "" {
			return id
		}
	}
	return ""
}

// dotted joins the identifiers of a dotted_name, dropping whitespace.
func (b *builder) dotted(n *sitter.Node) string {
	if n.Type() != "dotted_name" {
		return strings.TrimSpace(b.text(n))
	}
	var parts []string
	for _, c := range namedChildren(n) {
		parts = append(parts, b.text(c))
	}
	return strings.Join(parts, ".")
}

func (b *builder) aliases(nodes []*sitter.Node) []Alias {
	var out []Alias
	for _, c := range nodes {
		switch c.Type() {
		case "dotted_name":
			out = append(out, Alias{Name: b.dotted(c), Span: spanOf(c), NameSpan: spanOf(c)})
		case "aliased_import":
			name := c.ChildByFieldName("name")
			alias := c.ChildByFieldName("alias")
			if name == nil {
				continue
			}
			out = append(out, Alias{
				Name:     b.dotted(name),
				AsName:   b.text(alias),
				Span:     spanOf(c),
				NameSpan: spanOf(name),
			})
		case "wildcard_import":
			out = append(out, Alias{Name: "*", Span: spanOf(c), NameSpan: spanOf(c)})
		}
	}
	return out
}

func (b *builder) importFrom(n *sitter.Node) *ImportFrom {
	s := &ImportFrom{node: node{span: spanOf(n)}}
	mod := n.ChildByFieldName("module_name")
	var names []*sitter.Node
	for _, c := range namedChildren(n) {
		if mod != nil && c.StartByte() == mod.StartByte() && c.EndByte() == mod.EndByte() {
			continue
		}
		names = append(names, c)
	}
	if mod != nil {
		s.PrefixSpan = spanOf(mod)
		switch mod.Type() {
		case "relative_import":
			for _, c := range namedChildren(mod) {
				switch c.Type() {
				case "import_prefix":
					s.Level = strings.Count(b.text(c), ".")
				case "dotted_name":
					s.Module = b.dotted(c)
					s.ModuleSpan = spanOf(c)
				}
			}
		default:
			s.Module = b.dotted(mod)
			s.ModuleSpan = spanOf(mod)
		}
	}
	s.Names = b.aliases(names)
	s.Future = s.Level == 0 && s.Module == "__future__"
	return s
}

func (b *builder) expressionStatement(n *sitter.Node) Stmt {
	sp := node{span: spanOf(n)}
	children := namedChildren(n)
	if len(children) == 1 {
		c := children[0]
		switch c.Type() {
		case "assignment":
			return b.assignment(c, sp)
		case "augmented_assignment":
			op := ""
			if o := c.ChildByFieldName("operator"); o != nil {
				op = b.text(o)
			}
			return &AugAssign{
				node:   sp,
				Target: b.expr(c.ChildByFieldName("left")),
				Op:     op,
				Value:  b.expr(c.ChildByFieldName("right")),
			}
		}
		return &ExprStmt{node: sp, Value: b.expr(c)}
	}
	return &ExprStmt{node: sp, Value: &Tuple{node: sp, Elts: b.exprList(children)}}
}

func (b *builder) assignment(n *sitter.Node, sp node) Stmt {
	if typ := n.ChildByFieldName("type"); typ != nil {
		return &AnnAssign{
			node:       sp,
			Target:     b.expr(n.ChildByFieldName("left")),
			Annotation: b.expr(typ),
			Value:      b.expr(n.ChildByFieldName("right")),
		}
	}
	s := &Assign{node: sp}
	cur := n
	for {
		s.Targets = append(s.Targets, b.expr(cur.ChildByFieldName("left")))
		right := cur.ChildByFieldName("right")
		if right != nil && right.Type() == "assignment" && right.ChildByFieldName("type") == nil {
			cur = right
			continue
		}
		s.Value = b.expr(right)
		return s
	}
}

func (b *builder) functionDef(n *sitter.Node) *FunctionDef {
	fn := &FunctionDef{
		node:    node{span: spanOf(n)},
		Async:   hasToken(n, "async"),
		Returns: b.expr(n.ChildByFieldName("return_type")),
		Body:    b.block(n.ChildByFieldName("body")),
	}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = b.text(name)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Params = b.params(params)
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		fn.TypeParams = b.childExprs(tp)
	}
	return fn
}

func (b *builder) classDef(n *sitter.Node) *ClassDef {
	cls := &ClassDef{
		node: node{span: spanOf(n)},
		Body: b.block(n.ChildByFieldName("body")),
	}
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = b.text(name)
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		cls.Bases, cls.Keywords = b.arguments(supers)
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		cls.TypeParams = b.childExprs(tp)
	}
	return cls
}

func (b *builder) params(n *sitter.Node) []Param {
	var out []Param
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "identifier":
			out = append(out, Param{Name: b.text(c)})
		case "typed_parameter":
			p := Param{Annotation: b.expr(c.ChildByFieldName("type"))}
			for _, cc := range namedChildren(c) {
				if cc.Type() != "type" {
					p.Name = b.firstIdentifier(cc)
					break
				}
			}
			out = append(out, p)
		case "default_parameter", "typed_default_parameter":
			p := Param{
				Annotation: b.expr(c.ChildByFieldName("type")),
				Default:    b.expr(c.ChildByFieldName("value")),
			}
			if name := c.ChildByFieldName("name"); name != nil {
				p.Name = b.firstIdentifier(name)
			}
			out = append(out, p)
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, Param{Name: b.firstIdentifier(c)})
		}
	}
	return out
}

func (b *builder) arguments(n *sitter.Node) ([]Expr, []Keyword) {
	var args []Expr
	var keywords []Keyword
	if n.Type() != "argument_list" {
		if e := b.expr(n); e != nil {
			args = append(args, e)
		}
		return args, nil
	}
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "keyword_argument":
			name := ""
			if nn := c.ChildByFieldName("name"); nn != nil {
				name = b.text(nn)
			}
			keywords = append(keywords, Keyword{Name: name, Value: b.expr(c.ChildByFieldName("value"))})
		case "dictionary_splat":
			keywords = append(keywords, Keyword{Value: b.starred(c)})
		default:
			if e := b.expr(c); e != nil {
				args = append(args, e)
			}
		}
	}
	return args, keywords
}

func (b *builder) exprs(n *sitter.Node) []Expr {
	if e := b.expr(n); e != nil {
		return []Expr{e}
	}
	return nil
}

func (b *builder) exprList(nodes []*sitter.Node) []Expr {
	out := make([]Expr, 0, len(nodes))
	for _, c := range nodes {
		if e := b.expr(c); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (b *builder) childExprs(n *sitter.Node) []Expr {
	return b.exprList(namedChildren(n))
}

func (b *builder) starred(n *sitter.Node) Expr {
	var value Expr
	if inner := namedChildren(n); len(inner) > 0 {
		value = b.expr(inner[0])
	}
	return &Starred{node: node{span: spanOf(n)}, Value: value}
}

func (b *builder) expr(n *sitter.Node) Expr {
	if n == nil {
		return nil
	}
	sp := node{span: spanOf(n)}
	switch n.Type() {
	case "comment":
		return nil
	case "identifier":
		return &Name{node: sp, ID: b.text(n)}
	case "attribute":
		attr := ""
		if a := n.ChildByFieldName("attribute"); a != nil {
			attr = b.text(a)
		}
		return &Attribute{node: sp, Value: b.expr(n.ChildByFieldName("object")), Attr: attr}
	case "dotted_name":
		var cur Expr
		for _, c := range namedChildren(n) {
			if cur == nil {
				cur = &Name{node: node{span: spanOf(c)}, ID: b.text(c)}
				continue
			}
			cur = &Attribute{
				node:  node{span: Span{Start: cur.Pos().Start, End: int(c.EndByte())}},
				Value: cur,
				Attr:  b.text(c),
			}
		}
		return cur
	case "call":
		c := &Call{node: sp, Func: b.expr(n.ChildByFieldName("function"))}
		if args := n.ChildByFieldName("arguments"); args != nil {
			c.Args, c.Keywords = b.arguments(args)
		}
		return c
	case "subscript":
		value := n.ChildByFieldName("value")
		s := &Subscript{node: sp, Value: b.expr(value)}
		for _, c := range namedChildren(n) {
			if value != nil && c.StartByte() == value.StartByte() && c.EndByte() == value.EndByte() {
				continue
			}
			if e := b.expr(c); e != nil {
				s.Index = append(s.Index, e)
			}
		}
		return s
	case "named_expression":
		ne := &NamedExpr{node: sp, Value: b.expr(n.ChildByFieldName("value"))}
		if name := n.ChildByFieldName("name"); name != nil {
			ne.Target = &Name{node: node{span: spanOf(name)}, ID: b.text(name)}
		}
		return ne
	case "tuple", "list", "pattern_list", "expression_list", "tuple_pattern", "list_pattern":
		return &Tuple{node: sp, Elts: b.childExprs(n)}
	case "list_splat", "list_splat_pattern", "dictionary_splat", "dictionary_splat_pattern":
		return b.starred(n)
	case "parenthesized_expression", "type":
		inner := namedChildren(n)
		if len(inner) == 1 {
			return b.expr(inner[0])
		}
		return &Other{node: sp, Kind: n.Type(), Children: b.exprList(inner)}
	case "string":
		return b.stringLit(n)
	case "comparison_operator":
		cmp := &Compare{node: sp}
		for i := range int(n.ChildCount()) {
			c := n.Child(i)
			if c.IsNamed() {
				if c.Type() == "comment" {
					continue
				}
				e := b.expr(c)
				if cmp.Left == nil {
					cmp.Left = e
				} else {
					cmp.Comparators = append(cmp.Comparators, e)
				}
				continue
			}
			op := c.Type()
			// "not in" and "is not" are two anonymous tokens
			if len(cmp.Ops) > len(cmp.Comparators) {
				cmp.Ops[len(cmp.Ops)-1] += " " + op
				continue
			}
			cmp.Ops = append(cmp.Ops, op)
		}
		return cmp
	case "lambda":
		l := &Lambda{node: sp, Body: b.expr(n.ChildByFieldName("body"))}
		if params := n.ChildByFieldName("parameters"); params != nil {
			l.Params = b.params(params)
		}
		return l
	case "keyword_argument":
		return &Other{node: sp, Kind: n.Type(), Children: b.exprs(n.ChildByFieldName("value"))}
	}
	return &Other{node: sp, Kind: n.Type(), Children: b.childExprs(n)}
}

func (b *builder) stringLit(n *sitter.Node) *StringLit {
	s := &StringLit{node: node{span: spanOf(n)}}
	for _, c := range namedChildren(n) {
		if c.Type() == "interpolation" {
			s.Interpolations = append(s.Interpolations, b.childExprs(c)...)
		}
	}
	s.Value = unquote(b.text(n))
	return s
}

// unquote strips the prefix letters and quotes of a string literal.
func unquote(raw string) string {
	s := strings.TrimLeft(raw, "rRbBuUfFtT")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
