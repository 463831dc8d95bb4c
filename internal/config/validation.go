package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate checks a configuration that already had defaults applied.
func Validate(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateData(); err != nil {
		return err
	}
	if err := cv.validateTemplates(); err != nil {
		return err
	}
	if err := cv.validatePaths(); err != nil {
		return err
	}
	return cv.validateSite()
}

func (cv *configurationValidator) validateData() error {
	for _, group := range [][]string{cv.config.Data.Include, cv.config.Data.Exclude} {
		for _, pattern := range group {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("data: invalid glob pattern %q", pattern)
			}
		}
	}
	return nil
}

func (cv *configurationValidator) validateTemplates() error {
	for _, kind := range []string{PageIndex, PageCategory} {
		if strings.TrimSpace(cv.config.Templates.Pages[kind]) == "" {
			return fmt.Errorf("templates.pages: no template for page kind %q", kind)
		}
	}
	for kind, file := range cv.config.Templates.Pages {
		if kind != PageIndex && kind != PageCategory {
			return fmt.Errorf("templates.pages: unknown page kind %q", kind)
		}
		if filepath.IsAbs(file) || strings.HasPrefix(filepath.Clean(file), "..") {
			return fmt.Errorf("templates.pages.%s: %q must be relative to templates.dir", kind, file)
		}
	}
	return nil
}

func (cv *configurationValidator) validatePaths() error {
	out := absOrSelf(cv.config.OutputDir())
	if out == filepath.Dir(out) {
		return errors.New("output.directory must not be the filesystem root")
	}
	checks := []struct{ name, path string }{
		{"data.root", cv.config.DataRoot()},
		{"templates.dir", cv.config.TemplatesDir()},
	}
	for _, c := range checks {
		p := absOrSelf(c.path)
		if within(p, out) || within(out, p) {
			return fmt.Errorf("output.directory %q overlaps %s %q", out, c.name, p)
		}
	}
	return nil
}

func (cv *configurationValidator) validateSite() error {
	if cv.config.Site.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(cv.config.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url %q must be an absolute URL", cv.config.Site.BaseURL)
	}
	return nil
}

// within reports whether p equals dir or lies below it.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
