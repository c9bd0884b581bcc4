package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// InvalidateOptions holds flags for the invalidate command.
type InvalidateOptions struct {
	*RootOptions
	All   bool
	Stale bool
}

// InvalidateResult lists the removed cache keys.
type InvalidateResult struct {
	Removed []string `json:"removed" yaml:"removed"`
	Pruned  int      `json:"pruned,omitempty" yaml:"pruned,omitempty"`
}

// Text renders the result for humans.
func (r InvalidateResult) Text(w io.Writer) {
	for _, k := range r.Removed {
		fmt.Fprintf(w, "  - %s\n", k)
	}
	if r.Pruned > 0 {
		fmt.Fprintf(w, "Pruned %d stale entr(ies)\n", r.Pruned)
	}
	fmt.Fprintf(w, "Removed %d cache entr(ies)\n", len(r.Removed)+r.Pruned)
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate [pattern]",
		Short: "Drop cached results",
		Long: `Remove every cache entry whose key contains pattern. With --all the
whole cache is cleared; with --stale only entries older than the configured
default TTL are dropped.

Examples:
  snapstate invalidate videos
  snapstate invalidate --all
  snapstate invalidate --stale`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return runInvalidate(opts, pattern, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "remove every cache entry")
	cmd.Flags().BoolVar(&opts.Stale, "stale", false, "remove entries older than the default TTL")

	return cmd
}

func runInvalidate(opts *InvalidateOptions, pattern string, cmd *cobra.Command) error {
	if pattern == "" && !opts.All && !opts.Stale {
		return NewExitError(ExitCommandError, "a pattern, --all or --stale is required")
	}
	if pattern != "" && opts.All {
		return NewExitError(ExitCommandError, "--all cannot be combined with a pattern")
	}

	ctx := commandContext(cmd)
	app, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	app.Start()
	defer app.Close()

	result := InvalidateResult{Removed: []string{}}

	if opts.Stale {
		ttl := app.Config.Cache.DefaultTTL.Std()
		n, err := app.Cache.Prune(ctx, ttl)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to prune cache", err)
		}
		result.Pruned = n
		formatter(opts.RootOptions, cmd).VerboseLog("pruned entries older than %s", ttl.Round(time.Millisecond))
	}

	if pattern != "" || opts.All {
		removed, err := app.Cache.Invalidate(ctx, pattern)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to invalidate cache", err)
		}
		if removed != nil {
			result.Removed = removed
		}
	}

	return formatter(opts.RootOptions, cmd).Success(result)
}
