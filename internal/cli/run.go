package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/snapstate/internal/connectivity"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Listen string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine with connectivity monitoring",
		Long: `Start the snapstate engine on the configured database.

The persisted state is restored, the single-writer mutation loop starts,
and connectivity is monitored: every offline to online transition replays
the queued actions. With --listen a status API is served over HTTP.

Example:
  snapstate run --config snapstate.yaml
  snapstate run --db /tmp/state.db --listen 127.0.0.1:8089 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the status API on this address")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	// Use command's context if available (for testing)
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	probe := newProbe(app)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(app.Engine.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(connectivity.Watch(gctx, probe, app.Queue, app.Logger))
	})

	if opts.Listen != "" {
		srv := &http.Server{
			Addr:              opts.Listen,
			Handler:           NewStatusRouter(app),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			app.Logger.Info("status API listening", "addr", opts.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	app.Logger.Info("engine starting", "db", app.Config.Database, "namespace", app.Config.Namespace)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	app.Logger.Info("engine stopped gracefully")
	return nil
}

// newProbe builds the configured connectivity probe. Without an address the
// device is assumed online.
func newProbe(app *App) connectivity.Probe {
	cc := app.Config.Connectivity
	if cc.Address == "" {
		return connectivity.NewManual(true)
	}
	return connectivity.NewPollingProbe(
		connectivity.DialCheck(cc.Address, app.Config.Remote.Timeout.Std()),
		cc.Interval.Std(),
		connectivity.WithLogger(app.Logger),
	)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
