package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/streamscope/internal/sourcekey"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	KeysOptions
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{KeysOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Report track keys added or dropped as files change",
		Long: `Watch a Go source tree and print the track keys each edit adds or drops.

Dropped keys are the tracks the next module reload will orphan: their
proxies complete and their open subscriptions are torn down by the sweep.
In JSON mode every change is one JSON object per line.

Examples:
  streamscope watch ./app
  streamscope watch ./app --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Calls, "call", nil, "tracked call name (repeatable; default from config)")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "watch directory not found: "+dir)
	}

	w, err := sourcekey.NewWatcher(ctx, dir, opts.extractor())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	defer w.Close()

	out.Printf("Watching %s (%d tracked call sites)\n", dir, len(w.Sites()))

	enc := json.NewEncoder(out.Writer)
	return w.Run(ctx, func(c sourcekey.Change) {
		if out.JSON() {
			if err := enc.Encode(c); err != nil {
				out.VerboseLog("failed to write change: %v", err)
			}
			return
		}
		for _, s := range c.Added {
			out.Printf("+ %s  %s:%d  %s\n", s.Key, s.File, s.Line, describeSite(s))
		}
		for _, s := range c.Dropped {
			out.Printf("- %s  %s:%d  %s (orphaned on next reload)\n", s.Key, s.File, s.Line, describeSite(s))
		}
	})
}

func describeSite(s sourcekey.CallSite) string {
	if s.Target != "" {
		return s.Func + ": " + s.Target + " := " + s.Call
	}
	return s.Func + ": " + s.Call
}
