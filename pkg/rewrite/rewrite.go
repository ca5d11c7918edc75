// Package rewrite moves third-party imports of a module under a vendored
// namespace inside the first-party package, rerouting every later use of
// the moved names.
package rewrite

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/panbanda/pyshake/pkg/modspec"
	"github.com/panbanda/pyshake/pkg/pyast"
)

var dottedRef = regexp.MustCompile(`[A-Za-z_]\w*(?:\.[A-Za-z_]\w*)*`)

// Rewriter rewrites imports that leave the top-level package.
type Rewriter struct {
	top        string
	prefix     string
	classifier *modspec.Classifier
}

// New creates a rewriter vendoring into top.vendor. classifier decides
// which modules belong to the standard library; nil uses the default
// Python version.
func New(top, vendor string, classifier *modspec.Classifier) *Rewriter {
	if classifier == nil {
		classifier = modspec.NewClassifier(modspec.DefaultVersion)
	}
	return &Rewriter{
		top:        top,
		prefix:     top + "." + vendor + ".",
		classifier: classifier,
	}
}

// Vendored reports whether an absolute import of spec gets rewritten.
func (r *Rewriter) Vendored(spec string) bool {
	return spec != "" && !modspec.HasPrefix(spec, r.top) && !r.classifier.IsStdLib(spec)
}

// Rewrite returns src with its imports vendored. Bytes outside the inserted
// prefixes are unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, path string, src []byte) ([]byte, error) {
	mod, err := pyast.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	t := &transformer{
		r:        r,
		src:      src,
		affected: make(map[string]struct{}),
	}
	pyast.WalkStmts(mod.Body, func(s pyast.Stmt) bool {
		t.stmt(s)
		return true
	})
	out, err := t.edits.Apply(src)
	if err != nil {
		return nil, fmt.Errorf("rewriting %s: %w", path, err)
	}
	return out, nil
}

// RewriteImports vendors the imports of source into top.vendor.
func RewriteImports(source, top, vendor string) (string, error) {
	out, err := New(top, vendor, nil).Rewrite(context.Background(), "<string>", []byte(source))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type transformer struct {
	r   *Rewriter
	src []byte
	// affected holds dotted names bound by rewritten plain imports.
	affected map[string]struct{}
	edits    pyast.Edits
}

func (t *transformer) stmt(s pyast.Stmt) {
	switch s := s.(type) {
	case *pyast.Import:
		for _, a := range s.Names {
			if !t.r.Vendored(a.Name) {
				continue
			}
			t.edits.Insert(a.NameSpan.Start, t.r.prefix)
			if a.AsName == "" {
				// "import a.b" binds a as well
				t.affected[a.Name] = struct{}{}
				t.affected[modspec.TopLevelPackage(a.Name)] = struct{}{}
			}
		}
		return
	case *pyast.ImportFrom:
		if s.Level == 0 && t.r.Vendored(s.Module) {
			t.edits.Insert(s.ModuleSpan.Start, t.r.prefix)
		}
		return
	case *pyast.FunctionDef:
		for _, p := range s.Params {
			t.annotation(p.Annotation)
		}
		t.annotation(s.Returns)
	case *pyast.AnnAssign:
		t.annotation(s.Annotation)
	}
	for _, e := range pyast.StmtExprs(s) {
		t.expr(e)
	}
}

// longestAffected returns the longest affected name that dotted equals or
// starts with.
func (t *transformer) longestAffected(dotted string) (string, bool) {
	for name := dotted; ; {
		if _, ok := t.affected[name]; ok {
			return name, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return "", false
		}
		name = name[:i]
	}
}

func (t *transformer) expr(e pyast.Expr) {
	pyast.WalkExpr(e, func(e pyast.Expr) bool {
		switch e.(type) {
		case *pyast.Name, *pyast.Attribute:
		default:
			return true
		}
		dotted, ok := pyast.DottedName(e)
		if !ok {
			return true
		}
		if _, ok := t.longestAffected(dotted); ok {
			t.edits.Insert(pyast.ChainRoot(e).Pos().Start, t.r.prefix)
		}
		return false
	})
}

// annotation reroutes dotted names spelled inside string annotations.
func (t *transformer) annotation(e pyast.Expr) {
	if e == nil || len(t.affected) == 0 {
		return
	}
	pyast.WalkExpr(e, func(e pyast.Expr) bool {
		lit, ok := e.(*pyast.StringLit)
		if !ok || len(lit.Interpolations) > 0 || lit.Value == "" {
			return true
		}
		span := lit.Pos()
		raw := string(t.src[span.Start:span.End])
		offset := strings.Index(raw, lit.Value)
		if offset < 0 {
			return true
		}
		for _, loc := range dottedRef.FindAllStringIndex(lit.Value, -1) {
			// a match right after a dot continues a non-name, as in "1.x"
			if loc[0] > 0 && lit.Value[loc[0]-1] == '.' {
				continue
			}
			if _, ok := t.longestAffected(lit.Value[loc[0]:loc[1]]); ok {
				t.edits.Insert(span.Start+offset+loc[0], t.r.prefix)
			}
		}
		return true
	})
}
