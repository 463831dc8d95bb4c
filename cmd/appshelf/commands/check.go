package commands

import (
	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
)

// CheckCmd implements the 'check' command.
type CheckCmd struct {
	Data   string `help:"Override data.root"`
	Format string `help:"Report format" enum:"text,json" default:"text"`
}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, c.Data, ""); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, checkErr := pipeline.New(cfg, pipeline.WithLogger(logger)).Check(ctx)
	if report == nil {
		return checkErr
	}
	if c.Format == "json" {
		err = pipeline.WriteJSON(g.stdout(), report)
	} else {
		err = diag.WriteGrouped(g.stderr(), report.Violations)
		if err == nil {
			err = pipeline.WriteSummary(g.stderr(), report)
		}
	}
	if err != nil {
		return err
	}
	if checkErr != nil {
		return checkErr
	}
	if diag.HasErrors(report.Violations) {
		return foundation.ValidationError("data files have errors").
			WithContext("errors", report.ErrorCount()).
			Build()
	}
	return warningsError(cfg, report)
}
