package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: COMPAT_REPORTS__DB sets reports.db.
const EnvPrefix = "COMPAT_"

type Config struct {
	Sources   []SourceConfig    `koanf:"sources"`
	Custom    CustomConfig      `koanf:"custom"`
	Browsers  string            `koanf:"browsers"`
	Overrides string            `koanf:"overrides"`
	Mirrors   map[string]string `koanf:"mirrors"` // child browser -> parent browser
	Reports   ReportsConfig     `koanf:"reports"`
	Output    OutputConfig      `koanf:"output"`
	Workers   int               `koanf:"workers"`
	Log       LogConfig         `koanf:"log"`
	Tracing   TracingConfig     `koanf:"tracing"`
}

// SourceConfig is one directory of WebIDL files.
type SourceConfig struct {
	Name     string `koanf:"name"`
	Dir      string `koanf:"dir"`
	Priority int    `koanf:"priority"`
}

// CustomConfig is the local overlay: extra IDL plus hand-written tests.
type CustomConfig struct {
	IDL   string `koanf:"idl"`
	Tests string `koanf:"tests"`
}

type ReportsConfig struct {
	Dir           string `koanf:"dir"`
	DB            string `koanf:"db"`
	SchemaVersion string `koanf:"schema_version"` // newest report schema accepted
}

type OutputConfig struct {
	Matrix      string `koanf:"matrix"`
	Graph       string `koanf:"graph"`
	Diagnostics string `koanf:"diagnostics"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"browsers":               "configs/browsers.yaml",
	"reports.db":             "compatcollect.db",
	"reports.schema_version": "10.2",
	"output.matrix":          "out/matrix.json",
	"output.graph":           "out/graph.json",
	"output.diagnostics":     "out/diagnostics.json",
	"workers":                4,
	"log.level":              "info",
	"tracing.service_name":   "compatcollect",
}

// Load reads .env, then the YAML file at path (optional when empty), then
// COMPAT_ environment variables. Relative paths in the file are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	k := koanf.New(".")

	// 2. YAML config
	base := "."
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		base = filepath.Dir(path)
	}

	// 3. Environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolvePaths(base)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(base string) {
	for i := range c.Sources {
		c.Sources[i].Dir = resolve(base, c.Sources[i].Dir)
	}
	for _, p := range []*string{
		&c.Custom.IDL, &c.Custom.Tests, &c.Browsers, &c.Overrides,
		&c.Reports.Dir, &c.Reports.DB,
		&c.Output.Matrix, &c.Output.Graph, &c.Output.Diagnostics,
	} {
		*p = resolve(base, *p)
	}
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "." {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Browsers == "" {
		errs = append(errs, errors.New("browsers catalog path is required"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		}
		if s.Dir == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: dir is required", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// Exists reports whether an optional input path is set and present on disk.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
