// Package config loads the appshelf configuration file.
//
// Values are read from YAML with ${VAR} expansion, .env files are honoured,
// and every omitted setting receives a default before validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "appshelf.yaml"

// Config is the complete build configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Data      DataConfig      `yaml:"data"`
	Templates TemplatesConfig `yaml:"templates"`
	Output    OutputConfig    `yaml:"output"`
	Site      SiteConfig      `yaml:"site"`
	Build     BuildConfig     `yaml:"build"`
	Logging   LoggingConfig   `yaml:"logging"`

	// baseDir is the directory relative paths are resolved against.
	baseDir string
}

// DataConfig locates the input data files and their schema.
type DataConfig struct {
	Root    string   `yaml:"root"`
	Include []string `yaml:"include,omitempty"` // doublestar globs relative to root
	Exclude []string `yaml:"exclude,omitempty"`
	Schema  string   `yaml:"schema"` // defaults to <root>/schema.yaml
}

// TemplatesConfig maps page kinds to template files.
type TemplatesConfig struct {
	Dir      string            `yaml:"dir"`
	Pages    map[string]string `yaml:"pages"`              // page kind -> file under Dir
	Partials string            `yaml:"partials,omitempty"` // directory under Dir
}

// OutputConfig is the rendered site destination.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// SiteConfig is exposed to templates as .Site.
type SiteConfig struct {
	Title       string         `yaml:"title"`
	BaseURL     string         `yaml:"base_url,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Locale      string         `yaml:"locale,omitempty"`
	Params      map[string]any `yaml:"params,omitempty"`
}

// BuildConfig tunes the pipeline.
type BuildConfig struct {
	Concurrency    int  `yaml:"concurrency"`
	FailOnWarnings bool `yaml:"fail_on_warnings"`
	// Audit verifies that every entry appears exactly once in the output.
	Audit *bool `yaml:"audit,omitempty"`
}

// AuditEnabled reports whether the render audit runs (default true).
func (b BuildConfig) AuditEnabled() bool {
	return b.Audit == nil || *b.Audit
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads the configuration file at path. A missing file is only an
// error when required is true; otherwise defaults are returned.
func Load(path string, required bool) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "failed to load .env file").Build()
	}

	var cfg Config
	// #nosec G304 -- configuration path comes from the command line.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
		cfg.baseDir = "."
	case err != nil:
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "cannot read configuration file").
			WithContext("path", path).
			Build()
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return nil, foundation.WrapError(err, foundation.CategoryConfig, "failed to parse configuration file").
				WithContext("path", path).
				Build()
		}
		cfg.baseDir = filepath.Dir(path)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "invalid configuration").
			WithContext("path", path).
			Build()
	}
	return &cfg, nil
}

// Resolve returns p relative to the configuration file's directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// DataRoot is the resolved data directory.
func (c *Config) DataRoot() string { return c.Resolve(c.Data.Root) }

// SchemaPath is the resolved schema file.
func (c *Config) SchemaPath() string { return c.Resolve(c.Data.Schema) }

// TemplatesDir is the resolved template directory.
func (c *Config) TemplatesDir() string { return c.Resolve(c.Templates.Dir) }

// OutputDir is the resolved output directory.
func (c *Config) OutputDir() string { return c.Resolve(c.Output.Directory) }

// OverrideDataRoot replaces the data root with a path given on the command
// line, relative to the working directory. A schema path that was derived
// from the previous root follows it.
func (c *Config) OverrideDataRoot(root string) {
	if root == "" {
		return
	}
	root = absOrSelf(root)
	if c.Data.Schema == filepath.Join(c.Data.Root, defaultSchemaFile) {
		c.Data.Schema = filepath.Join(root, defaultSchemaFile)
	}
	c.Data.Root = root
}

// OverrideOutput replaces the output directory with a path given on the
// command line, relative to the working directory.
func (c *Config) OverrideOutput(dir string) {
	if dir != "" {
		c.Output.Directory = absOrSelf(dir)
	}
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Init writes an example configuration file to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return foundation.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	audit := true
	example := Config{
		Version: "1",
		Data: DataConfig{
			Root:    "data",
			Include: defaultIncludes(),
			Schema:  filepath.Join("data", defaultSchemaFile),
		},
		Templates: TemplatesConfig{
			Dir:      "templates",
			Pages:    defaultPages(),
			Partials: defaultPartialsDir,
		},
		Output: OutputConfig{Directory: "public"},
		Site: SiteConfig{
			Title:       "Recommended Applications",
			BaseURL:     "https://example.org/",
			Description: "A curated list of applications",
			Locale:      "en",
		},
		Build: BuildConfig{
			Concurrency: defaultConcurrency,
			Audit:       &audit,
		},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return foundation.WrapError(err, foundation.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).
			Build()
	}
	return nil
}
