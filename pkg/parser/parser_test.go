package parser

import (
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.parser == nil {
		t.Error("parser field is nil")
	}
	p.Close()
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		path string
		want FileKind
	}{
		{"pkg/module.py", KindSource},
		{"script.pyw", KindSource},
		{"types.pyi", KindStub},
		{"_speedups.cpython-312-x86_64-linux-gnu.so", KindExtension},
		{"_speedups.cp312-win_amd64.pyd", KindExtension},
		{"README.md", KindUnknown},
		{"py.typed", KindUnknown},
		{"MODULE.PY", KindSource},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectKind(tt.path); got != tt.want {
				t.Errorf("DetectKind(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsSource(t *testing.T) {
	if !IsSource("a/b.py") || !IsSource("a/b.pyi") {
		t.Error("expected .py and .pyi to be sources")
	}
	if IsSource("a/b.so") || IsSource("a/b.txt") {
		t.Error("expected .so and .txt not to be sources")
	}
}

func TestParse(t *testing.T) {
	p := New()
	defer p.Close()

	result, err := p.Parse([]byte("def hello():\n    print('hello')\n"), "hello.py")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer result.Close()

	root := result.Tree.RootNode()
	if root.Type() != "module" {
		t.Errorf("root type = %q, want module", root.Type())
	}
	if root.HasError() {
		t.Error("unexpected syntax error")
	}
	if result.Path != "hello.py" {
		t.Errorf("Path = %q", result.Path)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	if err := os.WriteFile(path, []byte("import os\nx = os.sep\n"), 0644); err != nil {
		t.Fatal(err)
	}

	p := New()
	defer p.Close()

	result, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	defer result.Close()

	if got := result.Tree.RootNode().NamedChildCount(); got != 2 {
		t.Errorf("NamedChildCount = %d, want 2", got)
	}

	if _, err := p.ParseFile(filepath.Join(dir, "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWalkAndGetNodeText(t *testing.T) {
	p := New()
	defer p.Close()

	source := []byte("import a.b as c\n")
	result, err := p.Parse(source, "x.py")
	if err != nil {
		t.Fatal(err)
	}
	defer result.Close()

	var dotted []string
	Walk(result.Tree.RootNode(), source, func(n *sitter.Node, src []byte) bool {
		if n.Type() == "dotted_name" {
			dotted = append(dotted, GetNodeText(n, src))
			return false
		}
		return true
	})

	if len(dotted) != 1 || dotted[0] != "a.b" {
		t.Errorf("dotted names = %v, want [a.b]", dotted)
	}
	if GetNodeText(nil, source) != "" {
		t.Error("GetNodeText(nil) should be empty")
	}
}

func TestFirstError(t *testing.T) {
	p := New()
	defer p.Close()

	ok, err := p.Parse([]byte("x = 1\n"), "ok.py")
	if err != nil {
		t.Fatal(err)
	}
	defer ok.Close()
	if FirstError(ok.Tree.RootNode()) != nil {
		t.Error("expected no error node")
	}

	bad, err := p.Parse([]byte("def broken(:\n    pass\n"), "bad.py")
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Close()
	if FirstError(bad.Tree.RootNode()) == nil {
		t.Error("expected an error node")
	}
}
