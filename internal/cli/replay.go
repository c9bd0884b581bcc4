package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/snapstate/internal/offline"
)

// ReplayResult is the outcome of the replay command.
type ReplayResult struct {
	Replayed  int    `json:"replayed" yaml:"replayed"`
	Remaining int    `json:"remaining" yaml:"remaining"`
	HaltedAt  string `json:"halted_at,omitempty" yaml:"halted_at,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Text renders the result for humans.
func (r ReplayResult) Text(w io.Writer) {
	if r.HaltedAt != "" {
		fmt.Fprintf(w, "✗ Replay halted at %s after %d action(s): %s\n", r.HaltedAt, r.Replayed, r.Error)
		fmt.Fprintf(w, "  %d action(s) still queued\n", r.Remaining)
		return
	}
	fmt.Fprintf(w, "✓ Replayed %d action(s)\n", r.Replayed)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Send queued offline actions now",
		Long: `Replay the queued actions against the configured remote endpoint,
in enqueue order. Replay stops at the first failed call; that action and
everything after it stay queued.

Exit codes:
  0 - Queue fully replayed
  1 - Replay halted on a failed call
  2 - Command error

Example:
  snapstate replay --config snapstate.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	app, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	app.Start()
	defer app.Close()

	out := formatter(opts, cmd)
	out.VerboseLog("replaying %d action(s)", app.Queue.Len())

	n, replayErr := app.Queue.ReplayAll(ctx)
	result := ReplayResult{Replayed: n, Remaining: app.Queue.Len()}

	var rerr *offline.ReplayError
	switch {
	case replayErr == nil:
	case errors.As(replayErr, &rerr):
		result.HaltedAt = rerr.ActionID
		result.Error = rerr.Err.Error()
	default:
		return WrapExitError(ExitFailure, "replay failed", replayErr)
	}

	if err := out.Success(result); err != nil {
		return err
	}
	if result.HaltedAt != "" {
		return NewExitError(ExitFailure, fmt.Sprintf("replay halted at %s", result.HaltedAt))
	}
	return nil
}
