package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snapstate/internal/cache"
	"github.com/roach88/snapstate/internal/config"
	"github.com/roach88/snapstate/internal/engine"
	"github.com/roach88/snapstate/internal/offline"
	"github.com/roach88/snapstate/internal/remote"
	"github.com/roach88/snapstate/internal/store"
)

// retryBackoff is the first retry delay for remote calls.
const retryBackoff = 200 * time.Millisecond

// App is an opened database with the engine and its collaborators wired up.
type App struct {
	Config config.Config
	Store  *store.Store
	Engine *engine.Engine
	Queue  *offline.Queue
	Cache  *cache.Cache
	Logger *slog.Logger

	done chan error
}

// loadConfig reads the config file named by --config, or the defaults, and
// applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger returns a text logger on w; debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newDispatcher builds the remote side: an HTTP dispatcher behind retry and
// timeout middleware when an endpoint is configured, otherwise a router
// with no routes, so every call fails with remote.ErrNoRoute.
func newDispatcher(cfg config.Config, logger *slog.Logger) remote.Dispatcher {
	router := remote.NewRouter(remote.WithLogger(logger))
	if cfg.Remote.Endpoint == "" {
		return router
	}

	timeout := cfg.Remote.Timeout.Std()
	router.SetFallback(remote.Chain(
		remote.NewHTTPDispatcher(cfg.Remote.Endpoint, timeout),
		remote.WithRetry(cfg.Remote.Retries, retryBackoff, logger),
		remote.WithTimeout(timeout),
	))
	return router
}

// openApp opens the configured database and restores persisted state.
// The engine is not running yet; call Start.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng := engine.New(
		engine.WithPersistence(st),
		engine.WithNamespace(cfg.Namespace),
		engine.WithHistoryLimit(cfg.HistoryLimit),
		engine.WithDebounce(cfg.PersistDebounce.Std()),
		engine.WithLogger(logger),
	)
	if err := eng.Load(ctx); err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to restore state", err)
	}

	return &App{
		Config: cfg,
		Store:  st,
		Engine: eng,
		Queue:  offline.NewQueue(eng, newDispatcher(cfg, logger), offline.WithLogger(logger)),
		Cache:  cache.New(eng, cache.WithLogger(logger)),
		Logger: logger,
	}, nil
}

// Start runs the engine loop in the background until Close.
func (a *App) Start() {
	a.done = make(chan error, 1)
	go func() {
		a.done <- a.Engine.Run(context.Background())
	}()
}

// Close drains and stops the engine, flushing dirty fields, then closes the
// database.
func (a *App) Close() error {
	var runErr error
	if a.done != nil {
		a.Engine.Stop()
		runErr = <-a.done
	}
	if err := a.Store.Close(); err != nil {
		return errors.Join(runErr, fmt.Errorf("close database: %w", err))
	}
	return runErr
}

// formatter returns the OutputFormatter for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns cmd's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
