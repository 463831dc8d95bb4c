package commands

import (
	"context"
	"time"

	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
	"git.home.luguber.info/inful/appshelf/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Data     string        `help:"Override data.root"`
	Output   string        `short:"o" help:"Override output.directory"`
	Debounce time.Duration `help:"Quiet period before a rebuild" default:"300ms"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, w.Data, w.Output); err != nil {
		return err
	}

	builder := pipeline.New(cfg, pipeline.WithLogger(logger))
	build := func(ctx context.Context) error {
		report, err := builder.Build(ctx)
		if report != nil {
			if werr := pipeline.WriteText(g.stderr(), report); werr != nil {
				return werr
			}
		}
		return err
	}

	watcher, err := watch.New(watch.Options{
		Dirs:     []string{cfg.DataRoot(), cfg.TemplatesDir()},
		Files:    []string{cfg.SchemaPath()},
		Ignore:   []string{cfg.OutputDir()},
		Debounce: w.Debounce,
		Logger:   logger,
	}, build)
	if err != nil {
		return foundation.WrapError(err, foundation.CategoryFileSystem, "cannot watch inputs").Build()
	}

	ctx, cancel := signalContext()
	defer cancel()
	logger.Info("Watching for changes; press Ctrl-C to stop")
	return watcher.Run(ctx)
}
