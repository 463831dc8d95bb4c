package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/appshelf/internal/config"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
)

// Global is shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	// Stdout receives machine-readable output, Stderr diagnostics.
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) stderr() io.Writer {
	if g == nil || g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"appshelf.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Render   RenderCmd   `cmd:"" help:"Build the site: load, validate, render and write every page"`
	Check    CheckCmd    `cmd:"" help:"Validate data files without rendering"`
	Watch    WatchCmd    `cmd:"" help:"Build, then rebuild whenever data, schema or templates change"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Licenses LicensesCmd `cmd:"" help:"Emit the accepted license ids as a JSON schema enum"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(os.Stderr, level, config.LogFormatText))
	return nil
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig reads the configuration and reconfigures logging from it. The
// default path may be absent; an explicit --config must exist.
func loadConfig(g *Global, root *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(root.Config, root.Config != config.DefaultPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logging.Level.SlogLevel()
	if root.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(g.stderr(), level, cfg.Logging.Format)
	slog.SetDefault(logger)
	if g != nil {
		g.Logger = logger
	}
	return cfg, logger, nil
}

// applyOverrides applies --data and --output and revalidates the result.
func applyOverrides(cfg *config.Config, data, output string) error {
	if data == "" && output == "" {
		return nil
	}
	cfg.OverrideDataRoot(data)
	cfg.OverrideOutput(output)
	if err := config.Validate(cfg); err != nil {
		return foundation.WrapError(err, foundation.CategoryConfig, "invalid command line override").Build()
	}
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// emitReport prints a finished report: diagnostics and summary on stderr,
// or the JSON document on stdout.
func emitReport(g *Global, report *pipeline.BuildReport, format string) error {
	if format == "json" {
		return pipeline.WriteJSON(g.stdout(), report)
	}
	return pipeline.WriteText(g.stderr(), report)
}

// warningsError turns a report with violations into a validation error
// when fail_on_warnings is set.
func warningsError(cfg *config.Config, report *pipeline.BuildReport) error {
	if !cfg.Build.FailOnWarnings || report.Outcome != pipeline.OutcomeWarning {
		return nil
	}
	return foundation.ValidationError("build reported violations and build.fail_on_warnings is set").
		WithContext("errors", report.ErrorCount()).
		WithContext("warnings", report.WarningCount()).
		Build()
}
