package pyast

// Blocks returns pointers to every suite directly owned by s, including
// clause bodies, in source order.
func Blocks(s Stmt) []*Block {
	switch s := s.(type) {
	case *FunctionDef:
		return []*Block{&s.Body}
	case *ClassDef:
		return []*Block{&s.Body}
	case *If:
		return withClauses(&s.Body, s.Clauses)
	case *For:
		return withClauses(&s.Body, s.Clauses)
	case *While:
		return withClauses(&s.Body, s.Clauses)
	case *With:
		return []*Block{&s.Body}
	case *Try:
		return withClauses(&s.Body, s.Clauses)
	case *Match:
		return withClauses(nil, s.Clauses)
	}
	return nil
}

func withClauses(first *Block, clauses []Clause) []*Block {
	out := make([]*Block, 0, len(clauses)+1)
	if first != nil {
		out = append(out, first)
	}
	for i := range clauses {
		out = append(out, &clauses[i].Body)
	}
	return out
}

// StmtExprs returns the expressions directly owned by s (not those of
// nested statements), in evaluation-relevant order.
func StmtExprs(s Stmt) []Expr {
	var out []Expr
	add := func(es ...Expr) {
		for _, e := range es {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	switch s := s.(type) {
	case *Assign:
		add(s.Value)
		add(s.Targets...)
	case *AnnAssign:
		add(s.Annotation, s.Value, s.Target)
	case *AugAssign:
		add(s.Value, s.Target)
	case *FunctionDef:
		add(s.Decorators...)
		add(s.TypeParams...)
		for _, p := range s.Params {
			add(p.Annotation, p.Default)
		}
		add(s.Returns)
	case *ClassDef:
		add(s.Decorators...)
		add(s.TypeParams...)
		add(s.Bases...)
		for _, k := range s.Keywords {
			add(k.Value)
		}
	case *ExprStmt:
		add(s.Value)
	case *If:
		add(s.Test)
		for _, c := range s.Clauses {
			add(c.Test...)
		}
	case *For:
		add(s.Iter, s.Target)
	case *While:
		add(s.Test)
	case *With:
		add(s.Items...)
	case *Try:
		for _, c := range s.Clauses {
			add(c.Test...)
		}
	case *Match:
		add(s.Subject...)
		for _, c := range s.Clauses {
			add(c.Test...)
		}
	case *TypeAlias:
		add(s.TypeParams...)
		add(s.Value)
	case *SimpleStmt:
		add(s.Exprs...)
	}
	return out
}

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	var out []Expr
	add := func(es ...Expr) {
		for _, c := range es {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch e := e.(type) {
	case *Attribute:
		add(e.Value)
	case *Call:
		add(e.Func)
		add(e.Args...)
		for _, k := range e.Keywords {
			add(k.Value)
		}
	case *Subscript:
		add(e.Value)
		add(e.Index...)
	case *NamedExpr:
		if e.Target != nil {
			add(e.Target)
		}
		add(e.Value)
	case *Tuple:
		add(e.Elts...)
	case *Starred:
		add(e.Value)
	case *StringLit:
		add(e.Interpolations...)
	case *Compare:
		add(e.Left)
		add(e.Comparators...)
	case *Lambda:
		for _, p := range e.Params {
			add(p.Annotation, p.Default)
		}
		add(e.Body)
	case *Other:
		add(e.Children...)
	}
	return out
}

// WalkExpr calls fn for e and, while fn returns true, its descendants.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		WalkExpr(c, fn)
	}
}

// WalkStmts calls fn for every statement in body, depth-first. Returning
// false from fn skips the statement's nested suites.
func WalkStmts(body []Stmt, fn func(Stmt) bool) {
	for _, s := range body {
		if !fn(s) {
			continue
		}
		for _, b := range Blocks(s) {
			WalkStmts(b.Body, fn)
		}
	}
}

// DottedName returns "a.b.c" for a pure Name/Attribute chain and false for
// anything else.
func DottedName(e Expr) (string, bool) {
	switch e := e.(type) {
	case *Name:
		return e.ID, true
	case *Attribute:
		base, ok := DottedName(e.Value)
		if !ok {
			return "", false
		}
		return base + "." + e.Attr, true
	}
	return "", false
}

// ChainRoot returns the innermost value of an Attribute/Subscript/Call chain.
func ChainRoot(e Expr) Expr {
	for {
		switch v := e.(type) {
		case *Attribute:
			e = v.Value
		case *Subscript:
			e = v.Value
		case *Call:
			e = v.Func
		default:
			return e
		}
	}
}

// IsMainGuard reports whether test is `__name__ == "__main__"` in either
// operand order.
func IsMainGuard(test Expr) bool {
	cmp, ok := test.(*Compare)
	if !ok || len(cmp.Ops) != 1 || cmp.Ops[0] != "==" || len(cmp.Comparators) != 1 {
		return false
	}
	return isMainPair(cmp.Left, cmp.Comparators[0]) || isMainPair(cmp.Comparators[0], cmp.Left)
}

func isMainPair(name, lit Expr) bool {
	n, ok := name.(*Name)
	if !ok || n.ID != "__name__" {
		return false
	}
	s, ok := lit.(*StringLit)
	return ok && len(s.Interpolations) == 0 && s.Value == "__main__"
}
