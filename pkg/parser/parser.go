package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// FileKind classifies a file found on a module search path.
type FileKind int

const (
	KindUnknown FileKind = iota
	// KindSource is a Python source module (.py, .pyw).
	KindSource
	// KindStub is a typing stub (.pyi). Stubs are parsed like sources.
	KindStub
	// KindExtension is a compiled extension module (.so, .pyd). Never parsed.
	KindExtension
)

// SourceExtensions are the extensions parsed as Python code.
var SourceExtensions = []string{".py", ".pyw", ".pyi"}

// ExtensionSuffixes are the extensions of compiled extension modules.
var ExtensionSuffixes = []string{".so", ".pyd"}

// Parser wraps tree-sitter configured with the Python grammar.
// A Parser is not safe for concurrent use; create one per goroutine.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the parsed tree and its source.
type ParseResult struct {
	Tree   *sitter.Tree
	Source []byte
	Path   string
}

// New creates a new parser instance.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// ParseFile reads and parses a Python file.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(source, path)
}

// Parse parses Python source code.
func (p *Parser) Parse(source []byte, path string) (*ParseResult, error) {
	return p.ParseCtx(context.Background(), source, path)
}

// ParseCtx parses Python source code, aborting when ctx is cancelled.
func (p *Parser) ParseCtx(ctx context.Context, source []byte, path string) (*ParseResult, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &ParseResult{
		Tree:   tree,
		Source: source,
		Path:   path,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// Close releases the tree.
func (r *ParseResult) Close() {
	if r.Tree != nil {
		r.Tree.Close()
	}
}

// DetectKind determines the kind of a file from its path.
func DetectKind(path string) FileKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".py", ".pyw":
		return KindSource
	case ".pyi":
		return KindStub
	case ".so", ".pyd":
		return KindExtension
	}
	return KindUnknown
}

// IsSource reports whether path holds parseable Python code.
func IsSource(path string) bool {
	k := DetectKind(path)
	return k == KindSource || k == KindStub
}

// Walk traverses the tree depth-first, calling visitor for each node.
// Returning false from visitor skips that node's children.
func Walk(node *sitter.Node, source []byte, visitor func(*sitter.Node, []byte) bool) {
	if node == nil {
		return
	}
	if !visitor(node, source) {
		return
	}

	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		Walk(child, source, visitor)
	}
}

// GetNodeText returns the source text for a node.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start >= uint32(len(source)) || end > uint32(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}

// FirstError returns the first ERROR or missing node in the tree, or nil.
func FirstError(root *sitter.Node) *sitter.Node {
	if root == nil || !root.HasError() {
		return nil
	}
	var found *sitter.Node
	Walk(root, nil, func(n *sitter.Node, _ []byte) bool {
		if found != nil {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return false
		}
		return n.HasError()
	})
	return found
}
