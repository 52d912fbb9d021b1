package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/streamscope/internal/ir"
)

// sessionTables lists the per-session entity tables in delete order.
var sessionTables = []string{
	"nodes", "operators", "builds", "steps", "subscriptions",
	"emissions", "arguments", "invocations", "tracks", "modules",
}

// WriteSnapshot replaces the stored rows of session with snap. The session
// row is created on first write and keeps its creation time afterwards.
// source describes where the events came from (a log path, or "live").
func (s *Store) WriteSnapshot(ctx context.Context, session, source string, snap ir.Snapshot) error {
	if session == "" {
		return fmt.Errorf("write snapshot: empty session id")
	}
	digest, err := ir.SnapshotDigest(snap)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, source, created_at, updated_at, last_seq, digest, tool_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			updated_at = excluded.updated_at,
			last_seq = excluded.last_seq,
			digest = excluded.digest,
			tool_version = excluded.tool_version
	`, session, source, now, now, snap.Seq, digest, ir.ToolVersion)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	for _, table := range sessionTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", session); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	w := &snapshotWriter{ctx: ctx, tx: tx, session: session}
	w.nodes(snap.Nodes)
	w.operators(snap.Operators)
	w.builds(snap.Builds)
	w.steps(snap.Steps)
	w.subscriptions(snap.Subscriptions)
	w.emissions(snap.Emissions)
	w.arguments(snap.Arguments)
	w.invocations(snap.Invocations)
	w.tracks(snap.Tracks)
	w.modules(snap.Modules)
	if w.err != nil {
		return w.err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}
	return nil
}

// snapshotWriter inserts rows inside one transaction and keeps the first
// error; later calls do nothing.
type snapshotWriter struct {
	ctx     context.Context
	tx      *sql.Tx
	session string
	err     error
}

func (w *snapshotWriter) exec(table, query string, args ...any) {
	if w.err != nil {
		return
	}
	if _, err := w.tx.ExecContext(w.ctx, query, append([]any{w.session}, args...)...); err != nil {
		w.err = fmt.Errorf("write %s: %w", table, err)
	}
}

func (w *snapshotWriter) nodes(nodes []ir.Node) {
	for _, n := range nodes {
		w.exec("node", `
			INSERT INTO nodes
			(session_id, id, name, shape, track_key, module, build_id, step_id, output_id, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.Name, n.Shape, n.TrackKey, n.Module, n.Build, n.Step, n.Output, n.CreatedAt, n.CompletedAt)
	}
}

func (w *snapshotWriter) operators(ops []ir.OperatorKind) {
	for _, op := range ops {
		w.exec("operator", `
			INSERT INTO operators (session_id, id, name, rendered, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, op.ID, op.Name, op.Rendered, op.CreatedAt, op.CompletedAt)
	}
}

func (w *snapshotWriter) builds(builds []ir.BuildScope) {
	for _, b := range builds {
		steps, err := marshalIDs(b.Steps)
		if err != nil && w.err == nil {
			w.err = err
		}
		w.exec("build", `
			INSERT INTO builds (session_id, id, origin, output, steps, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.Origin, b.Output, steps, b.CreatedAt, b.CompletedAt)
	}
}

func (w *snapshotWriter) steps(steps []ir.CompositionStep) {
	for _, st := range steps {
		w.exec("step", `
			INSERT INTO steps
			(session_id, id, build_id, idx, operator_id, source, target, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, st.ID, st.Build, st.Index, st.Operator, st.Source, st.Target, st.CreatedAt, st.CompletedAt)
	}
}

func (w *snapshotWriter) subscriptions(subs []ir.Subscription) {
	for _, sub := range subs {
		w.exec("subscription", `
			INSERT INTO subscriptions
			(session_id, id, node, parent, emission, module, created_at, completed_at, unsubscribed_at, synthesized)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sub.ID, sub.Node, sub.Parent, sub.Emission, sub.Module, sub.CreatedAt, sub.CompletedAt,
			sub.UnsubscribedAt, boolInt(sub.Synthesized))
	}
}

func (w *snapshotWriter) emissions(emissions []ir.Emission) {
	for _, e := range emissions {
		w.exec("emission", `
			INSERT INTO emissions
			(session_id, id, node, subscription, signal, value, track_key, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Node, e.Subscription, string(e.Signal), e.Value, e.TrackKey, e.CreatedAt, e.CompletedAt)
	}
}

func (w *snapshotWriter) arguments(args []ir.Argument) {
	for _, a := range args {
		w.exec("argument", `
			INSERT INTO arguments (session_id, owner, position, kind, text)
			VALUES (?, ?, ?, ?, ?)
		`, a.Owner, a.Position, string(a.Kind), a.Text)
	}
}

func (w *snapshotWriter) invocations(invs []ir.ArgumentInvocation) {
	for _, inv := range invs {
		w.exec("invocation", `
			INSERT INTO invocations
			(session_id, id, owner, position, emission, result, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, inv.ID, inv.Argument.Owner, inv.Argument.Position, inv.Emission, inv.Result, inv.CreatedAt, inv.CompletedAt)
	}
}

func (w *snapshotWriter) tracks(tracks []ir.Track) {
	for _, t := range tracks {
		history, err := marshalIDs(t.History)
		if err != nil && w.err == nil {
			w.err = err
		}
		w.exec("track", `
			INSERT INTO tracks
			(session_id, key, kind, node, history, version, structural, parent, dynamic, module, module_version, created_at, bound_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.Key, string(t.Kind), t.Node, history, t.Version, boolInt(t.Structural), t.Parent,
			boolInt(t.Dynamic), t.Module, t.ModuleVersion, t.CreatedAt, t.BoundAt)
	}
}

func (w *snapshotWriter) modules(modules []ir.Module) {
	for _, m := range modules {
		previous, err := marshalKeys(m.Previous)
		if err != nil && w.err == nil {
			w.err = err
		}
		touched, err := marshalKeys(m.Touched)
		if err != nil && w.err == nil {
			w.err = err
		}
		w.exec("module", `
			INSERT INTO modules
			(session_id, name, version, previous, touched, created_at, reloaded_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.Name, m.Version, previous, touched, m.CreatedAt, m.ReloadedAt, m.CompletedAt)
	}
}
