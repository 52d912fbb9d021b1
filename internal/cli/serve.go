package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/server"
	"github.com/roach88/streamscope/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen   string
	Database string
	Replay   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest and change-notification service",
		Long: `Run the HTTP service: events are POSTed to /events, state is read from
/snapshot and /tracks, track changes stream over the /changes WebSocket and
metrics are served on /metrics.

With --db the snapshot is exported to SQLite every export_interval seconds
(see the config file) and once more on shutdown.

Examples:
  streamscope serve
  streamscope serve --listen :7070 --db ./streamscope.db
  streamscope serve --replay ./events.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "export snapshots to this SQLite database")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "seed the engine from a JSON-lines event log")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.Config()
	listen := opts.Listen
	if listen == "" {
		listen = cfg.Server.Listen
	}
	database := opts.Database
	if database == "" {
		database = cfg.Store.Path
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	acc := engine.NewAccumulator(engine.WithMetrics(metrics))
	if opts.Replay != "" {
		f, err := os.Open(opts.Replay)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open event log", err)
		}
		acc, err = engine.ReplayReader(f, engine.WithMetrics(metrics))
		f.Close()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to replay event log", err)
		}
		slog.Info("engine seeded", "log", opts.Replay, "last_seq", acc.LastSeq())
	}
	eng := engine.New(acc, engine.UUIDv7Generator{})

	var st *store.Store
	if database != "" {
		var err error
		st, err = store.Open(database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	srv := server.New(eng,
		server.WithGatherer(reg),
		server.WithNotifyBuffer(cfg.Server.NotifyBuffer))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, listen)
	})
	if st != nil {
		interval := time.Duration(cfg.Server.ExportInterval) * time.Second
		g.Go(func() error {
			return exportLoop(gctx, st, eng, interval)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	return nil
}

// exportLoop writes the engine's snapshot every interval, and once more
// when ctx ends. A zero interval exports only at the end.
func exportLoop(ctx context.Context, st *store.Store, eng *engine.Engine, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	var exported int64
	export := func(ctx context.Context) error {
		seq := eng.LastSeq()
		if seq == exported {
			return nil
		}
		if err := st.WriteSnapshot(ctx, eng.Session(), "serve", eng.Snapshot()); err != nil {
			return err
		}
		exported = seq
		slog.Debug("snapshot exported", "session", eng.Session(), "seq", seq)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return export(context.Background())
		case <-tick:
			if err := export(ctx); err != nil {
				slog.Warn("snapshot export failed", "error", err)
			}
		}
	}
}
