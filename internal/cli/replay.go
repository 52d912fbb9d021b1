package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string
}

// TrackLine is one track in command output.
type TrackLine struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	Shape      string `json:"shape,omitempty"`
	Version    int    `json:"version"`
	Structural bool   `json:"structural"`
	Dynamic    bool   `json:"dynamic,omitempty"`
	Module     string `json:"module,omitempty"`
}

// ReplayResult summarizes a replayed event log.
type ReplayResult struct {
	Source            string      `json:"source"`
	Events            int         `json:"events"`
	LastSeq           int64       `json:"last_seq"`
	Nodes             int         `json:"nodes"`
	OpenSubscriptions int         `json:"open_subscriptions"`
	Emissions         int         `json:"emissions"`
	Digest            string      `json:"digest"`
	Deterministic     bool        `json:"deterministic"`
	Session           string      `json:"session,omitempty"`
	Tracks            []TrackLine `json:"tracks"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay an event log and verify determinism",
		Long: `Replay a JSON-lines event log into a fresh store.

The log is replayed twice and the snapshot digests compared, so a
non-deterministic reduction is reported. With --db the resulting snapshot
is exported to SQLite under a session id.

Exit codes:
  0 - Replay is deterministic
  1 - The two replays produced different snapshots
  2 - Command error (log unreadable, database error, etc.)

Examples:
  streamscope replay ./events.jsonl
  streamscope replay ./events.jsonl --db ./streamscope.db
  streamscope replay ./events.jsonl --db ./streamscope.db --session run-1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "export the snapshot to this SQLite database")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id for the export (default: new UUIDv7)")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts.RootOptions, cmd)

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	events, err := ir.DecodeEvents(f)
	f.Close()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode event log", err)
	}
	out.VerboseLog("decoded %d events from %s", len(events), path)

	snap := engine.Replay(events).Snapshot()
	again := engine.Replay(events).Snapshot()

	digest, err := ir.SnapshotDigest(snap)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest snapshot", err)
	}
	againDigest, err := ir.SnapshotDigest(again)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest snapshot", err)
	}

	result := summarizeReplay(path, len(events), snap)
	result.Digest = digest
	result.Deterministic = digest == againDigest

	database := opts.Database
	if database == "" {
		database = opts.Config().Store.Path
	}
	if database != "" {
		session := opts.Session
		if session == "" {
			session = engine.UUIDv7Generator{}.Generate()
		}
		if err := exportSnapshot(ctx, database, session, path, snap); err != nil {
			return err
		}
		result.Session = session
		out.VerboseLog("exported snapshot to %s (session %s)", database, session)
	}

	if out.JSON() {
		if !result.Deterministic {
			if err := out.Failure(result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "replay is not deterministic")
		}
		return out.Success(result)
	}

	printReplayText(out, result)
	if !result.Deterministic {
		return NewExitError(ExitFailure,
			fmt.Sprintf("replay is not deterministic: %s != %s", digest, againDigest))
	}
	return nil
}

func exportSnapshot(ctx context.Context, database, session, source string, snap ir.Snapshot) error {
	st, err := store.Open(database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.WriteSnapshot(ctx, session, source, snap); err != nil {
		return WrapExitError(ExitCommandError, "failed to export snapshot", err)
	}
	return nil
}

func summarizeReplay(source string, events int, snap ir.Snapshot) ReplayResult {
	result := ReplayResult{
		Source:    source,
		Events:    events,
		LastSeq:   snap.Seq,
		Nodes:     len(snap.Nodes),
		Emissions: len(snap.Emissions),
		Tracks:    trackLines(snap),
	}
	for _, sub := range snap.Subscriptions {
		if sub.Open() {
			result.OpenSubscriptions++
		}
	}
	return result
}

func trackLines(snap ir.Snapshot) []TrackLine {
	lines := make([]TrackLine, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		line := TrackLine{
			Key:        t.Key,
			Kind:       string(t.Kind),
			Version:    t.Version,
			Structural: t.Structural,
			Dynamic:    t.Dynamic,
			Module:     t.Module,
		}
		if n, ok := snap.Node(t.Node); ok {
			line.Shape = n.Shape
		}
		lines = append(lines, line)
	}
	return lines
}

func printReplayText(out *OutputFormatter, r ReplayResult) {
	out.Printf("Replayed %d events from %s (last seq %d)\n", r.Events, r.Source, r.LastSeq)
	out.Printf("  nodes: %d  emissions: %d  open subscriptions: %d\n", r.Nodes, r.Emissions, r.OpenSubscriptions)
	out.Printf("  digest: %s\n", r.Digest)
	if r.Deterministic {
		out.Printf("  deterministic: yes\n")
	} else {
		out.Printf("  deterministic: NO\n")
	}
	if r.Session != "" {
		out.Printf("  exported session: %s\n", r.Session)
	}
	printTracks(out, r.Tracks)
}

func printTracks(out *OutputFormatter, tracks []TrackLine) {
	if len(tracks) == 0 {
		out.Printf("No tracks.\n")
		return
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tKIND\tVERSION\tCHANGE\tSHAPE")
	for _, t := range tracks {
		change := "-"
		if t.Version > 0 {
			change = "cosmetic"
			if t.Structural {
				change = "structural"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.Key, t.Kind, t.Version, change, t.Shape)
	}
	tw.Flush()
}
