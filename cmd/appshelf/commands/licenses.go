package commands

import (
	"os"
	"path/filepath"

	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/license"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/output"
	"git.home.luguber.info/inful/appshelf/internal/schema"
)

// LicensesCmd implements the 'licenses' command.
type LicensesCmd struct {
	SPDX string `name:"spdx" help:"SPDX license list JSON (licenses.json); defaults to the schema's license registry"`
	Out  string `help:"Write the JSON schema to this file instead of stdout"`
}

func (l *LicensesCmd) Run(g *Global, root *CLI) error {
	registry, err := l.registry(g, root)
	if err != nil {
		return err
	}
	doc, err := license.EnumSchema(registry)
	if err != nil {
		return foundation.WrapError(err, foundation.CategoryInternal, "failed to render license schema").Build()
	}
	if l.Out == "" {
		_, err := g.stdout().Write(doc)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.Out), 0o750); err != nil {
		return foundation.WrapError(err, foundation.CategoryFileSystem, "cannot create output directory").
			WithContext("path", l.Out).
			Build()
	}
	if err := output.WriteAtomic(l.Out, doc, 0o644); err != nil {
		return foundation.WrapError(err, foundation.CategoryFileSystem, "failed to write license schema").
			WithContext("path", l.Out).
			Build()
	}
	if g != nil && g.Logger != nil {
		g.Logger.Info("License schema written", logfields.Path(l.Out), logfields.Count(registry.Len()))
	}
	return nil
}

// registry reads the SPDX list named by --spdx, or compiles the configured
// schema and uses its license registry.
func (l *LicensesCmd) registry(g *Global, root *CLI) (*license.Registry, error) {
	if l.SPDX != "" {
		list, err := license.LoadSPDX(l.SPDX)
		if err != nil {
			return nil, foundation.WrapError(err, foundation.CategoryConfig, "cannot read SPDX license list").
				WithContext("path", l.SPDX).
				Build()
		}
		return license.NewRegistry(list, nil), nil
	}
	cfg, _, err := loadConfig(g, root)
	if err != nil {
		return nil, err
	}
	s, err := schema.Load(cfg.SchemaPath())
	if err != nil {
		return nil, err
	}
	return s.Licenses, nil
}
