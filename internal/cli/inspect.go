package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/streamscope/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Session  string
	Track    string
	List     bool
}

// InspectTrack is one exported track with its binding history.
type InspectTrack struct {
	TrackLine
	Emissions int                  `json:"emissions"`
	History   []store.HistoryEntry `json:"history"`
}

// InspectResult describes one exported session.
type InspectResult struct {
	Session           store.Session  `json:"session"`
	Tracks            []InspectTrack `json:"tracks"`
	OpenSubscriptions int            `json:"open_subscriptions"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show an exported snapshot",
		Long: `Show the tracks of a snapshot exported by replay or serve, with the
shape each track was bound to at every version.

Examples:
  streamscope inspect --db ./streamscope.db
  streamscope inspect --db ./streamscope.db --list
  streamscope inspect --db ./streamscope.db --session 0190... --track counter`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: most recent)")
	cmd.Flags().StringVar(&opts.Track, "track", "", "only this track key")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list sessions instead")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts.RootOptions, cmd)

	database := opts.Database
	if database == "" {
		database = opts.Config().Store.Path
	}
	if database == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set store.path in the config")
	}

	st, err := store.Open(database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		if out.JSON() {
			return out.Success(sessions)
		}
		printSessions(out, sessions)
		return nil
	}

	var sess store.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return NewExitError(ExitCommandError, "no such session")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	result, err := inspectSession(ctx, st, sess, opts.Track)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	if opts.Track != "" && len(result.Tracks) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("track %q not found in session %s", opts.Track, sess.ID))
	}

	if out.JSON() {
		return out.Success(result)
	}
	printInspect(out, result)
	return nil
}

func inspectSession(ctx context.Context, st *store.Store, sess store.Session, only string) (InspectResult, error) {
	result := InspectResult{Session: sess, Tracks: []InspectTrack{}}

	tracks, err := st.ReadTracks(ctx, sess.ID)
	if err != nil {
		return result, err
	}
	counts, err := st.CountEmissions(ctx, sess.ID)
	if err != nil {
		return result, err
	}
	open, err := st.ReadOpenSubscriptions(ctx, sess.ID)
	if err != nil {
		return result, err
	}
	result.OpenSubscriptions = len(open)

	for _, t := range tracks {
		if only != "" && t.Key != only {
			continue
		}
		history, err := st.ReadTrackHistory(ctx, sess.ID, t.Key)
		if err != nil {
			return result, err
		}
		it := InspectTrack{
			TrackLine: TrackLine{
				Key:        t.Key,
				Kind:       string(t.Kind),
				Version:    t.Version,
				Structural: t.Structural,
				Dynamic:    t.Dynamic,
				Module:     t.Module,
			},
			Emissions: counts[t.Key],
			History:   history,
		}
		if n := len(history); n > 0 && history[n-1].Current {
			it.Shape = history[n-1].Shape
		}
		result.Tracks = append(result.Tracks, it)
	}
	return result, nil
}

func printSessions(out *OutputFormatter, sessions []store.Session) {
	if len(sessions) == 0 {
		out.Printf("No sessions.\n")
		return
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSOURCE\tLAST SEQ\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Source, s.LastSeq, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func printInspect(out *OutputFormatter, r InspectResult) {
	out.Printf("Session %s (%s, last seq %d)\n", r.Session.ID, r.Session.Source, r.Session.LastSeq)
	out.Printf("  open subscriptions: %d\n", r.OpenSubscriptions)

	lines := make([]TrackLine, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		lines = append(lines, t.TrackLine)
	}
	printTracks(out, lines)

	for _, t := range r.Tracks {
		if len(t.History) < 2 {
			continue
		}
		out.Printf("\n%s (%d emissions)\n", t.Key, t.Emissions)
		for _, h := range t.History {
			marker := " "
			if h.Current {
				marker = "*"
			}
			out.Printf("  %s v%d  #%d  %s\n", marker, h.Version, h.Node, h.Shape)
		}
	}
}
