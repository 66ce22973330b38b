package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/ekisa-team/modelweb/internal/config"
	"github.com/ekisa-team/modelweb/internal/conversion"
)

// RunCmd converts every job of a config file, optionally re-running on change.
type RunCmd struct {
	Config string `short:"f" long:"config" description:"Config file (default $MODELWEB_CONFIG or the per-user config.yaml)"`
	Schema string `long:"schema"           description:"JSON schema overriding the built-in one"`
	Watch  bool   `short:"w" long:"watch"  description:"Re-run conversions when the config file changes"`

	app *app
}

func (c *RunCmd) Execute(_ []string) error {
	path := config.ResolveConfigFile(c.Config)
	manager := conversion.NewManager(c.app.converter())

	if !c.Watch {
		cfg, err := config.LoadAndValidate(path, c.Schema)
		if err != nil {
			return err
		}

		err = manager.RunFromConfig(c.app.ctx, cfg)
		c.printJobs(manager.Registry())
		if err != nil {
			return err
		}

		fmt.Fprintln(c.app.stdout, completionMessage)
		return nil
	}

	watcher, err := config.NewWatcher(path, c.Schema, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}

		if err := manager.RunFromConfig(c.app.ctx, cfg); err != nil {
			slog.Error("Failed to run conversions from config", "error", err)
			return
		}
		slog.Info("Conversions re-run successfully", "config", path, "conversions", len(cfg.Conversions))
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := manager.RunFromConfig(c.app.ctx, watcher.Snapshot()); err != nil {
		slog.Error("Failed to run conversions from config", "error", err)
	}
	c.printJobs(manager.Registry())

	slog.Info("Watching config for changes", "config", path)
	<-c.app.ctx.Done()

	return nil
}

func (c *RunCmd) printJobs(registry *conversion.Registry) {
	w := tabwriter.NewWriter(c.app.stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSION\tSTATUS\tOUTPUT\tERROR")
	for _, job := range registry.List() {
		snap := job.Snapshot()
		errText := ""
		if snap.Err != nil {
			errText = snap.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", snap.ID, snap.Status, snap.Output, errText)
	}
	w.Flush()
}
