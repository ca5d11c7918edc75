package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/pyshake/internal/output"
	"github.com/panbanda/pyshake/internal/testutil"
	"github.com/panbanda/pyshake/pkg/config"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("tool content is not TextContent: %T", result.Content[0])
	}
	return text.Text
}

func TestServerCreation(t *testing.T) {
	server := NewServer("1.0.0-test", nil)
	if server == nil || server.server == nil {
		t.Fatal("NewServer() returned an incomplete server")
	}
	if server.config == nil {
		t.Error("NewServer(nil config) should fall back to defaults")
	}
}

func TestToolDescriptions(t *testing.T) {
	descriptions := map[string]func() string{
		"collect":   describeCollectModules,
		"rewrite":   describeRewriteImports,
		"treeshake": describeTreeshakePreview,
	}
	for name, fn := range descriptions {
		t.Run(name, func(t *testing.T) {
			desc := fn()
			for _, section := range []string{"USE WHEN:", "INTERPRETING RESULTS:", "METRICS RETURNED:"} {
				if !strings.Contains(desc, section) {
					t.Errorf("%s description missing %s section", name, section)
				}
			}
		})
	}
}

func TestGetFormat(t *testing.T) {
	tests := []struct {
		format   string
		expected output.Format
	}{
		{"", output.FormatTOON},
		{"toon", output.FormatTOON},
		{"json", output.FormatJSON},
		{"JSON", output.FormatJSON},
		{"markdown", output.FormatMarkdown},
		{"md", output.FormatMarkdown},
		{"xml", output.FormatTOON},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			if got := getFormat(tt.format); got != tt.expected {
				t.Errorf("getFormat(%q) = %v, want %v", tt.format, got, tt.expected)
			}
		})
	}
}

func TestToolError(t *testing.T) {
	result, _, err := toolError("test error message")
	if err != nil {
		t.Fatalf("toolError returned unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("toolError result.IsError should be true")
	}
	if got := resultText(t, result); got != "Error: test error message" {
		t.Errorf("toolError text = %q", got)
	}
}

func TestToolResultJSON(t *testing.T) {
	result, _, err := toolResult(rewriteOutput{Source: "x = 1\n"}, output.FormatJSON)
	if err != nil {
		t.Fatalf("toolResult returned error: %v", err)
	}
	var decoded rewriteOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("JSON tool result does not decode: %v", err)
	}
	if decoded.Source != "x = 1\n" {
		t.Errorf("decoded source = %q", decoded.Source)
	}
}

func newTestServer(searchPaths ...string) *Server {
	cfg := config.DefaultConfig()
	cfg.Python.SearchPaths = searchPaths
	return NewServer("test", cfg)
}

func TestHandleCollectModules(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"app/__init__.py": "",
		"app/cli.py":      "import json\nimport app.core\nimport vendored_dep\n",
		"app/core.py":     "import app.cli\n",
		"vendored_dep.py": "",
	})

	s := newTestServer(root)
	result, _, err := s.handleCollectModules(context.Background(), nil, CollectInput{Module: "app.cli", Format: "json"})
	if err != nil {
		t.Fatalf("handleCollectModules() error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleCollectModules() failed: %s", resultText(t, result))
	}

	var out collectOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	modules := map[string]bool{}
	for _, f := range out.Files {
		modules[f.Module] = true
	}
	for _, want := range []string{"app", "app.cli", "app.core", "vendored_dep"} {
		if !modules[want] {
			t.Errorf("module %s not collected: %v", want, modules)
		}
	}
	if modules["json"] {
		t.Error("standard-library modules should not be collected")
	}
	if out.Summary.Cycles != 1 {
		t.Errorf("cycles = %v, want the app.cli <-> app.core cycle", out.Cycles)
	}
}

func TestHandleCollectModulesErrors(t *testing.T) {
	s := newTestServer(t.TempDir())

	result, _, _ := s.handleCollectModules(context.Background(), nil, CollectInput{})
	if !result.IsError {
		t.Error("missing module should be an error")
	}
	result, _, _ = s.handleCollectModules(context.Background(), nil, CollectInput{Module: "nowhere"})
	if !result.IsError || !strings.Contains(resultText(t, result), "not found") {
		t.Errorf("unknown module result = %q", resultText(t, result))
	}
}

func TestHandleRewriteImports(t *testing.T) {
	s := newTestServer()
	result, _, err := s.handleRewriteImports(context.Background(), nil, RewriteInput{
		Source:          "import os\nimport requests\nrequests.get(os.sep)\n",
		TopLevelPackage: "app",
		Format:          "json",
	})
	if err != nil {
		t.Fatalf("handleRewriteImports() error: %v", err)
	}
	var out rewriteOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := "import os\nimport app._vendor.requests\napp._vendor.requests.get(os.sep)\n"
	if out.Source != want {
		t.Errorf("rewritten source = %q, want %q", out.Source, want)
	}

	result, _, _ = s.handleRewriteImports(context.Background(), nil, RewriteInput{Source: "x = 1\n", TopLevelPackage: "a.b"})
	if !result.IsError {
		t.Error("dotted top-level package should be rejected")
	}
	result, _, _ = s.handleRewriteImports(context.Background(), nil, RewriteInput{Source: "def (:\n", TopLevelPackage: "app"})
	if !result.IsError {
		t.Error("syntax errors should be reported")
	}
}

func TestHandleTreeshakePreview(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"app/__main__.py": "from app.util import used\nused()\n",
		"app/util.py":     "def used():\n    return 1\n\n\ndef unused():\n    return 2\n",
		"app/plugin.py":   "def hook():\n    return 3\n",
	}
	testutil.WriteTree(t, root, files)

	s := newTestServer()
	result, _, err := s.handleTreeshakePreview(context.Background(), nil, TreeshakeInput{
		Path:            root,
		PreserveSymbols: []string{"app.plugin.*"},
		Format:          "json",
	})
	if err != nil {
		t.Fatalf("handleTreeshakePreview() error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleTreeshakePreview() failed: %s", resultText(t, result))
	}

	var out previewOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.Modules != 3 || out.Rewritten != 1 || out.Deleted != 0 {
		t.Errorf("preview = %+v, want 3 modules and 1 rewritten", out)
	}
	if len(out.Changes) != 1 || !strings.HasSuffix(out.Changes[0].Path, "util.py") {
		t.Errorf("changes = %+v", out.Changes)
	}

	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil || string(data) != content {
			t.Errorf("%s was modified by a preview", name)
		}
	}
}

func TestHandleTreeshakePreviewEmptyDir(t *testing.T) {
	s := newTestServer()
	result, _, _ := s.handleTreeshakePreview(context.Background(), nil, TreeshakeInput{Path: t.TempDir()})
	if !result.IsError {
		t.Error("a directory without modules should be an error")
	}
}

func TestParseFrontmatter(t *testing.T) {
	content := []byte("---\ndescription: Do a thing\narguments:\n  - name: path\n    required: true\n---\nBody for {{path}}\n")
	fm, body := parseFrontmatter(content)
	if fm.Description != "Do a thing" {
		t.Errorf("description = %q", fm.Description)
	}
	if len(fm.Arguments) != 1 || fm.Arguments[0].Name != "path" || !fm.Arguments[0].Required {
		t.Errorf("arguments = %+v", fm.Arguments)
	}
	if body != "Body for {{path}}\n" {
		t.Errorf("body = %q", body)
	}

	fm, body = parseFrontmatter([]byte("no frontmatter"))
	if fm.Description != "" || body != "no frontmatter" {
		t.Errorf("plain content parsed as %+v, %q", fm, body)
	}
}

func TestPromptHandler(t *testing.T) {
	fm := promptFrontmatter{
		Description: "Shrink",
		Arguments:   []promptArgument{{Name: "path", Required: true}},
	}
	handler := makePromptHandler(fm, "Review {{path}} and {{path}}.")

	res, err := handler(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Arguments: map[string]string{"path": "src"}},
	})
	if err != nil {
		t.Fatalf("prompt handler error: %v", err)
	}
	text := res.Messages[0].Content.(*mcp.TextContent).Text
	if text != "Review src and src." {
		t.Errorf("prompt text = %q", text)
	}

	if _, err := handler(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{}}); err == nil {
		t.Error("missing required argument should fail")
	}
}

func TestEmbeddedPrompts(t *testing.T) {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		t.Fatalf("reading embedded prompts: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no prompts embedded")
	}
	for _, e := range entries {
		content, err := promptFiles.ReadFile("prompts/" + e.Name())
		if err != nil {
			t.Fatal(err)
		}
		fm, body := parseFrontmatter(content)
		if fm.Description == "" || body == "" {
			t.Errorf("%s lacks a description or body", e.Name())
		}
		for _, a := range fm.Arguments {
			if !strings.Contains(body, "{{"+a.Name+"}}") {
				t.Errorf("%s declares %s but never uses it", e.Name(), a.Name)
			}
		}
	}
}

func TestGenerateManifest(t *testing.T) {
	data, err := GenerateManifest("1.2.3")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.Name != "io.github.panbanda/pyshake" || m.Version != "1.2.3" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Packages) != 1 || m.Packages[0].Identifier != "ghcr.io/panbanda/pyshake:1.2.3" {
		t.Errorf("packages = %+v", m.Packages)
	}
	if env := m.Packages[0].EnvironmentVariables; len(env) != 2 || env[0].Name != "PYSHAKE_CONFIG" {
		t.Errorf("environment variables = %+v", env)
	}
}

func TestGenerateManifestDevVersion(t *testing.T) {
	data, err := GenerateManifest("dev")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.Version != "0.0.0" {
		t.Errorf("version = %q, want 0.0.0", m.Version)
	}
}
