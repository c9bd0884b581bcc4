package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snapstate/internal/state"
	"github.com/roach88/snapstate/internal/store"
)

// StateSummary describes the restored snapshot.
type StateSummary struct {
	Database    string            `json:"database" yaml:"database"`
	Namespace   string            `json:"namespace" yaml:"namespace"`
	Version     int64             `json:"version" yaml:"version"`
	SignedIn    bool              `json:"signed_in" yaml:"signed_in"`
	Items       int               `json:"items" yaml:"items"`
	Liked       []string          `json:"liked" yaml:"liked"`
	Saved       []string          `json:"saved" yaml:"saved"`
	Progress    int               `json:"progress" yaml:"progress"`
	Pending     int               `json:"pending" yaml:"pending"`
	CacheKeys   []string          `json:"cache_keys" yaml:"cache_keys"`
	Preferences state.Preferences `json:"preferences" yaml:"preferences"`
	Stored      []StoredKey       `json:"stored" yaml:"stored"`
}

// StoredKey is one persisted record.
type StoredKey struct {
	Key       string    `json:"key" yaml:"key"`
	Size      int       `json:"size" yaml:"size"`
	Revision  int64     `json:"revision" yaml:"revision"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Text renders the summary for humans.
func (s StateSummary) Text(w io.Writer) {
	fmt.Fprintf(w, "Database:  %s\n", s.Database)
	fmt.Fprintf(w, "Namespace: %s\n", s.Namespace)
	fmt.Fprintf(w, "Version:   %d\n", s.Version)
	fmt.Fprintf(w, "Signed in: %t\n", s.SignedIn)
	fmt.Fprintf(w, "Items:     %d\n", s.Items)
	fmt.Fprintf(w, "Liked:     %d %v\n", len(s.Liked), s.Liked)
	fmt.Fprintf(w, "Saved:     %d %v\n", len(s.Saved), s.Saved)
	fmt.Fprintf(w, "Progress:  %d\n", s.Progress)
	fmt.Fprintf(w, "Pending:   %d\n", s.Pending)
	fmt.Fprintf(w, "Cache:     %d %v\n", len(s.CacheKeys), s.CacheKeys)
	fmt.Fprintf(w, "Theme:     %s\n", s.Preferences.Theme)
	if len(s.Stored) > 0 {
		fmt.Fprintln(w, "\nStored records:")
		for _, k := range s.Stored {
			fmt.Fprintf(w, "  %-28s %6dB  rev %-4d %s\n", k.Key, k.Size, k.Revision, k.UpdatedAt.Format(time.RFC3339))
		}
	}
}

// summarize builds a StateSummary from a snapshot and the stored entries.
func summarize(database, namespace string, snap state.Snapshot, entries []store.Entry) StateSummary {
	_, signedIn := snap.User()
	stored := make([]StoredKey, len(entries))
	for i, e := range entries {
		stored[i] = StoredKey{Key: e.Key, Size: e.Size, Revision: e.Revision, UpdatedAt: e.UpdatedAt}
	}
	return StateSummary{
		Database:    database,
		Namespace:   namespace,
		Version:     snap.Version(),
		SignedIn:    signedIn,
		Items:       snap.Items().Len(),
		Liked:       snap.Liked().Members(),
		Saved:       snap.Saved().Members(),
		Progress:    snap.Progress().Len(),
		Pending:     len(snap.Pending()),
		CacheKeys:   snap.Cache().Keys(),
		Preferences: snap.Preferences(),
		Stored:      stored,
	}
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the persisted state",
		Long: `Restore the persisted state from the database and print a summary
of every field together with the stored records.

Examples:
  snapstate inspect --db ./state.db
  snapstate inspect --config snapstate.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd)
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	app, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	entries, err := app.Store.List(ctx, app.Config.Namespace)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list stored records", err)
	}

	summary := summarize(app.Config.Database, app.Config.Namespace, app.Engine.Current(), entries)
	return formatter(opts, cmd).Success(summary)
}

// PendingList is the output of the pending command.
type PendingList struct {
	Actions []state.PendingAction `json:"actions" yaml:"actions"`
}

// Text renders the queue one action per line.
func (p PendingList) Text(w io.Writer) {
	if len(p.Actions) == 0 {
		fmt.Fprintln(w, "No pending actions.")
		return
	}
	for i, a := range p.Actions {
		fmt.Fprintf(w, "%3d  %-36s  %-12s  %s\n", i+1, a.ID, a.Type, a.EnqueuedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\n%d pending\n", len(p.Actions))
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued offline actions",
		Long: `List the actions waiting for delivery, in replay order.

Example:
  snapstate pending --db ./state.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(commandContext(cmd), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return formatter(rootOpts, cmd).Success(PendingList{Actions: app.Queue.Pending()})
		},
	}
}
