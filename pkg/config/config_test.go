package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Python.Version != "3.12" {
		t.Errorf("Python.Version = %s, want 3.12", cfg.Python.Version)
	}
	if cfg.Treeshake.MaxSweeps != 100 {
		t.Errorf("Treeshake.MaxSweeps = %d, want 100", cfg.Treeshake.MaxSweeps)
	}
	if cfg.Bundle.VendorName != "_vendor" {
		t.Errorf("Bundle.VendorName = %s, want _vendor", cfg.Bundle.VendorName)
	}
	if !cfg.Exclude.Gitignore {
		t.Error("Exclude.Gitignore should be true by default")
	}
	if cfg.Cache.TTL != 24 {
		t.Errorf("Cache.TTL = %d, want 24", cfg.Cache.TTL)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %s, want text", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "pyshake.toml", `
[python]
version = "3.9"

[treeshake]
preserve_symbols = ["app.api.*", "app.main"]
entry_modules = ["app.cli"]
max_sweeps = 7

[treeshake.import_aliases]
"six.moves.urllib" = "urllib"

[bundle]
vendor_name = "_third_party"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Python.Version != "3.9" {
		t.Errorf("Python.Version = %s, want 3.9", cfg.Python.Version)
	}
	if len(cfg.Treeshake.PreserveSymbols) != 2 {
		t.Errorf("PreserveSymbols = %v, want 2 entries", cfg.Treeshake.PreserveSymbols)
	}
	if got := cfg.Treeshake.ImportAliases["six.moves.urllib"]; got != "urllib" {
		t.Errorf("ImportAliases[six.moves.urllib] = %q, want urllib", got)
	}
	if cfg.Treeshake.MaxSweeps != 7 {
		t.Errorf("MaxSweeps = %d, want 7", cfg.Treeshake.MaxSweeps)
	}
	if cfg.Bundle.VendorName != "_third_party" {
		t.Errorf("VendorName = %s, want _third_party", cfg.Bundle.VendorName)
	}
	// untouched sections keep defaults
	if cfg.Cache.TTL != 24 {
		t.Errorf("Cache.TTL = %d, want default 24", cfg.Cache.TTL)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "pyshake.yaml", `
treeshake:
  safe_decorators:
    - app.decorators.register
  workers: 2
output:
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Treeshake.SafeDecorators) != 1 || cfg.Treeshake.SafeDecorators[0] != "app.decorators.register" {
		t.Errorf("SafeDecorators = %v", cfg.Treeshake.SafeDecorators)
	}
	if cfg.Treeshake.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Treeshake.Workers)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %s, want json", cfg.Output.Format)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "pyshake.json", `{"python": {"search_paths": ["src", "lib"]}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Python.SearchPaths) != 2 {
		t.Errorf("SearchPaths = %v, want [src lib]", cfg.Python.SearchPaths)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := map[string]string{
		"unknown section": "[analysis]\ncomplexity = true\n",
		"bad version":     "[python]\nversion = \"2.7\"\n",
		"zero sweeps":     "[treeshake]\nmax_sweeps = 0\n",
		"dotted vendor":   "[bundle]\nvendor_name = \"a.b\"\n",
		"bad format":      "[output]\nformat = \"xml\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "pyshake.toml", content)
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail schema validation")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()

	res, err := LoadFrom("", dir)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if res.Source != "" {
		t.Errorf("Source = %s, want empty for defaults", res.Source)
	}

	nested := filepath.Join(dir, ".pyshake")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(nested, "pyshake.toml")
	if err := os.WriteFile(want, []byte("[cache]\nenabled = false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err = LoadFrom("", dir)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if res.Source != want {
		t.Errorf("Source = %s, want %s", res.Source, want)
	}
	if res.Config.Cache.Enabled {
		t.Error("Cache.Enabled should be false from file")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Python.Version = "three"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject a malformed version")
	}

	cfg = DefaultConfig()
	cfg.Treeshake.MaxSweeps = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject zero max sweeps")
	}
}
