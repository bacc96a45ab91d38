package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "tui [thread]",
		Short: "Launch the terminal UI",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd, firstArg(args), metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the UI runs")
	return cmd
}

func (a *app) runTUI(cmd *cobra.Command, thread, metricsAddr string) error {
	if !hasTTY() {
		return &PreflightError{
			Message:  "the terminal UI requires an interactive terminal",
			Hint:     "use the subcommands for scripted access",
			NextStep: "parley threads",
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	rt, err := a.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if metricsAddr != "" {
		shutdown, err := serveMetrics(ctx, metricsAddr, rt)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if thread != "" {
		if err := rt.engine.Refresh(ctx); err != nil {
			return err
		}
		target, err := a.resolveThread(rt.engine, thread)
		if err != nil {
			return err
		}
		if err := rt.engine.OpenThread(ctx, target.ID); err != nil {
			return err
		}
	}

	return tui.Run(ctx, rt.engine, rt.engine, rt.publisher, tui.Config{
		SelfUserID:     models.UserID(a.cfg.Sync.SelfUserID),
		ShowTimestamps: a.cfg.TUI.ShowTimestamps,
		Theme:          a.cfg.TUI.Theme,
	})
}
