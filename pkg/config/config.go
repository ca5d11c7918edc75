package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/panbanda/pyshake/pkg/modspec"
)

//go:embed schema.json
var schemaJSON []byte

// Config holds all configuration options for pyshake.
type Config struct {
	Python    PythonConfig    `koanf:"python" toml:"python" json:"python"`
	Treeshake TreeshakeConfig `koanf:"treeshake" toml:"treeshake" json:"treeshake"`
	Bundle    BundleConfig    `koanf:"bundle" toml:"bundle" json:"bundle"`
	Exclude   ExcludeConfig   `koanf:"exclude" toml:"exclude" json:"exclude"`
	Cache     CacheConfig     `koanf:"cache" toml:"cache" json:"cache"`
	Output    OutputConfig    `koanf:"output" toml:"output" json:"output"`
}

// PythonConfig describes the target interpreter.
type PythonConfig struct {
	// Version selects the standard-library module list, e.g. "3.12".
	Version string `koanf:"version" toml:"version" json:"version"`
	// SearchPaths are the roots absolute imports are resolved against.
	SearchPaths []string `koanf:"search_paths" toml:"search_paths" json:"search_paths"`
}

// TreeshakeConfig controls reference counting and pruning.
type TreeshakeConfig struct {
	// PreserveSymbols are FQNs or glob patterns kept regardless of use.
	PreserveSymbols []string `koanf:"preserve_symbols" toml:"preserve_symbols" json:"preserve_symbols"`
	// ImportAliases maps an FQN to an equivalent FQN.
	ImportAliases map[string]string `koanf:"import_aliases" toml:"import_aliases" json:"import_aliases"`
	// SafeDecorators replaces the default list when non-empty.
	SafeDecorators  []string `koanf:"safe_decorators" toml:"safe_decorators" json:"safe_decorators"`
	EntryModules    []string `koanf:"entry_modules" toml:"entry_modules" json:"entry_modules"`
	MaxSweeps       int      `koanf:"max_sweeps" toml:"max_sweeps" json:"max_sweeps"`
	Workers         int      `koanf:"workers" toml:"workers" json:"workers"`
	RequireCleanGit bool     `koanf:"require_clean_git" toml:"require_clean_git" json:"require_clean_git"`
}

// BundleConfig controls vendoring.
type BundleConfig struct {
	VendorName string `koanf:"vendor_name" toml:"vendor_name" json:"vendor_name"`
	// Gitignore writes a catch-all .gitignore into the destination.
	Gitignore bool `koanf:"gitignore" toml:"gitignore" json:"gitignore"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns" json:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs" json:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore" json:"gitignore"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled" json:"enabled"`
	Dir     string `koanf:"dir" toml:"dir" json:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl" json:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format" json:"format"` // text, json, markdown, toon, yaml
	Color   bool   `koanf:"color" toml:"color" json:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose" json:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Python: PythonConfig{
			Version:     modspec.DefaultVersion,
			SearchPaths: []string{"."},
		},
		Treeshake: TreeshakeConfig{
			ImportAliases: map[string]string{},
			MaxSweeps:     100,
		},
		Bundle: BundleConfig{
			VendorName: "_vendor",
			Gitignore:  true,
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				".git",
				".pyshake",
				".venv",
				".tox",
				".mypy_cache",
				"__pycache__",
				"node_modules",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".pyshake/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// LoadResult is a loaded configuration and the file it came from. Source is
// empty when defaults were used.
type LoadResult struct {
	Config *Config
	Source string
}

// Load loads configuration from a file. Values missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	// import alias keys are dotted names
	k := koanf.New("/")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := validate(k.Raw()); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order in every search directory.
var configNames = []string{
	"pyshake.toml",
	"pyshake.yaml",
	"pyshake.yml",
	"pyshake.json",
	".pyshake.toml",
	".pyshake.yaml",
	".pyshake.yml",
	".pyshake.json",
}

// Find returns the first config file found in dir or dir/.pyshake.
func Find(dir string) (string, bool) {
	for _, d := range []string{dir, filepath.Join(dir, ".pyshake")} {
		for _, name := range configNames {
			path := filepath.Join(d, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

// LoadFrom loads path, or the first config file found in dir when path is
// empty, falling back to defaults.
func LoadFrom(path, dir string) (*LoadResult, error) {
	if path == "" {
		found, ok := Find(dir)
		if !ok {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		path = found
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if err := checkVersion(c.Python.Version); err != nil {
		return err
	}
	if c.Treeshake.MaxSweeps < 1 {
		return fmt.Errorf("treeshake.max_sweeps must be positive, got %d", c.Treeshake.MaxSweeps)
	}
	if c.Bundle.VendorName == "" || strings.Contains(c.Bundle.VendorName, ".") {
		return fmt.Errorf("bundle.vendor_name %q is not a module name", c.Bundle.VendorName)
	}
	return nil
}

func checkVersion(v string) error {
	major, minor, ok := strings.Cut(v, ".")
	if !ok || major != "3" || minor == "" {
		return fmt.Errorf("python.version %q is not a 3.x version", v)
	}
	return nil
}

// Classifier returns the standard-library classifier for the configured
// Python version.
func (c *Config) Classifier() *modspec.Classifier {
	return modspec.NewClassifier(c.Python.Version)
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("pyshake.schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("pyshake.schema.json")
})

// validate checks a raw koanf document against the embedded schema. The
// document is round-tripped through JSON so that TOML and YAML values take
// the types the validator expects.
func validate(raw map[string]any) error {
	sch, err := schema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}
