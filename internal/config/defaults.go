package config

import (
	"path/filepath"
	"runtime"
)

const (
	defaultSchemaFile   = "schema.yaml"
	defaultPartialsDir  = "partials"
	defaultConcurrency  = 4
	maxConcurrency      = 64
	defaultSiteTitle    = "Applications"
	defaultIndexPage    = "index.html.tmpl"
	defaultCategoryPage = "category.html.tmpl"
)

// Page kinds with a template mapping.
const (
	PageIndex    = "index"
	PageCategory = "category"
)

func defaultIncludes() []string {
	return []string{"**/*.yaml", "**/*.yml", "**/*.json", "**/*.toml"}
}

func defaultPages() map[string]string {
	return map[string]string{
		PageIndex:    defaultIndexPage,
		PageCategory: defaultCategoryPage,
	}
}

// DefaultApplier applies defaults for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// DataDefaultApplier handles data source defaults.
type DataDefaultApplier struct{}

func (DataDefaultApplier) Domain() string { return "data" }

func (DataDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Data.Root == "" {
		cfg.Data.Root = "data"
	}
	if len(cfg.Data.Include) == 0 {
		cfg.Data.Include = defaultIncludes()
	}
	if cfg.Data.Schema == "" {
		cfg.Data.Schema = filepath.Join(cfg.Data.Root, defaultSchemaFile)
	}
	return nil
}

// TemplatesDefaultApplier handles template defaults.
type TemplatesDefaultApplier struct{}

func (TemplatesDefaultApplier) Domain() string { return "templates" }

func (TemplatesDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "templates"
	}
	if cfg.Templates.Pages == nil {
		cfg.Templates.Pages = map[string]string{}
	}
	for kind, file := range defaultPages() {
		if cfg.Templates.Pages[kind] == "" {
			cfg.Templates.Pages[kind] = file
		}
	}
	if cfg.Templates.Partials == "" {
		cfg.Templates.Partials = defaultPartialsDir
	}
	return nil
}

// OutputDefaultApplier handles output defaults.
type OutputDefaultApplier struct{}

func (OutputDefaultApplier) Domain() string { return "output" }

func (OutputDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "public"
	}
	return nil
}

// SiteDefaultApplier handles site metadata defaults.
type SiteDefaultApplier struct{}

func (SiteDefaultApplier) Domain() string { return "site" }

func (SiteDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Site.Title == "" {
		cfg.Site.Title = defaultSiteTitle
	}
	if cfg.Site.Locale == "" {
		cfg.Site.Locale = "en"
	}
	return nil
}

// BuildDefaultApplier handles pipeline defaults.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Build.Concurrency <= 0 {
		cfg.Build.Concurrency = min(defaultConcurrency, runtime.NumCPU())
	}
	if cfg.Build.Concurrency > maxConcurrency {
		cfg.Build.Concurrency = maxConcurrency
	}
	return nil
}

// LoggingDefaultApplier normalises logging settings.
type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// appliers run in order; data must precede anything derived from the root.
var appliers = []DefaultApplier{
	DataDefaultApplier{},
	TemplatesDefaultApplier{},
	OutputDefaultApplier{},
	SiteDefaultApplier{},
	BuildDefaultApplier{},
	LoggingDefaultApplier{},
}

func applyDefaults(cfg *Config) error {
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
