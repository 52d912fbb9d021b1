package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/streamscope/internal/ir"
)

// ErrSessionNotFound is returned when a session id has no stored snapshot.
var ErrSessionNotFound = errors.New("session not found")

// Session describes one stored snapshot.
type Session struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastSeq     int64     `json:"last_seq"`
	Digest      string    `json:"digest"`
	ToolVersion string    `json:"tool_version"`
}

// HistoryEntry is one binding of a track, oldest first. The last entry is
// the current binding.
type HistoryEntry struct {
	Version int    `json:"version"`
	Node    int64  `json:"node"`
	Shape   string `json:"shape"`
	Current bool   `json:"current,omitempty"`
}

// ListSessions returns every stored session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, created_at, updated_at, last_seq, digest, tool_version
		FROM sessions
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, created_at, updated_at, last_seq, digest, tool_version
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// LatestSession returns the most recently updated session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, created_at, updated_at, last_seq, digest, tool_version
		FROM sessions
		ORDER BY updated_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var created, updated string
	if err := row.Scan(&sess.ID, &sess.Source, &created, &updated, &sess.LastSeq, &sess.Digest, &sess.ToolVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	var err error
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Session{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return sess, nil
}

// ReadTracks returns the tracks of a session ordered by key.
func (s *Store) ReadTracks(ctx context.Context, session string) ([]ir.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, kind, node, history, version, structural, parent, dynamic, module, module_version, created_at, bound_at
		FROM tracks
		WHERE session_id = ?
		ORDER BY key COLLATE BINARY ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	tracks := []ir.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return tracks, nil
}

func scanTrack(row scanner) (ir.Track, error) {
	var (
		t                   ir.Track
		kind, history       string
		structural, dynamic int
	)
	err := row.Scan(&t.Key, &kind, &t.Node, &history, &t.Version, &structural, &t.Parent,
		&dynamic, &t.Module, &t.ModuleVersion, &t.CreatedAt, &t.BoundAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Track{}, err
		}
		return ir.Track{}, fmt.Errorf("scan track: %w", err)
	}
	t.Kind = ir.TrackKind(kind)
	t.Structural = structural != 0
	t.Dynamic = dynamic != 0
	if t.History, err = unmarshalIDs(history); err != nil {
		return ir.Track{}, fmt.Errorf("track %s: %w", t.Key, err)
	}
	return t, nil
}

// ReadTrackHistory returns every binding of the track key with the shape
// of each bound Node. A Node missing from the snapshot has an empty shape.
func (s *Store) ReadTrackHistory(ctx context.Context, session, key string) ([]HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, kind, node, history, version, structural, parent, dynamic, module, module_version, created_at, bound_at
		FROM tracks
		WHERE session_id = ? AND key = ?
	`, session, key)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("track %q not found in session %s", key, session)
	}
	if err != nil {
		return nil, err
	}

	ids := append(append([]int64{}, t.History...), t.Node)
	entries := make([]HistoryEntry, 0, len(ids))
	for i, id := range ids {
		if id == 0 {
			continue
		}
		shape, err := s.nodeShape(ctx, session, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			Version: i,
			Node:    id,
			Shape:   shape,
			Current: i == len(ids)-1,
		})
	}
	return entries, nil
}

func (s *Store) nodeShape(ctx context.Context, session string, id int64) (string, error) {
	var shape string
	err := s.db.QueryRowContext(ctx, `
		SELECT shape FROM nodes WHERE session_id = ? AND id = ?
	`, session, id).Scan(&shape)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query node %d: %w", id, err)
	}
	return shape, nil
}

// ReadOpenSubscriptions returns the subscriptions of a session that were
// never torn down, ordered by id.
func (s *Store) ReadOpenSubscriptions(ctx context.Context, session string) ([]ir.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node, parent, emission, module, created_at, completed_at, unsubscribed_at, synthesized
		FROM subscriptions
		WHERE session_id = ? AND unsubscribed_at = 0
		ORDER BY id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []ir.Subscription{}
	for rows.Next() {
		var sub ir.Subscription
		var synthesized int
		if err := rows.Scan(&sub.ID, &sub.Node, &sub.Parent, &sub.Emission, &sub.Module,
			&sub.CreatedAt, &sub.CompletedAt, &sub.UnsubscribedAt, &synthesized); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.Synthesized = synthesized != 0
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// CountEmissions returns the number of emissions per track key.
func (s *Store) CountEmissions(ctx context.Context, session string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_key, COUNT(*)
		FROM emissions
		WHERE session_id = ?
		GROUP BY track_key
	`, session)
	if err != nil {
		return nil, fmt.Errorf("count emissions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan emission count: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emission counts: %w", err)
	}
	return counts, nil
}
