package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/streamscope/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range append([]string{"sessions"}, sessionTables...) {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	}
	for name, want := range checks {
		got, err := s.pragma(name)
		if err != nil {
			t.Error(err)
			continue
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestWriteSnapshot_RoundTripsTracks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	snap := reloadSnapshot(t)

	if err := s.WriteSnapshot(ctx, "s1", "events.jsonl", snap); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	tracks, err := s.ReadTracks(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadTracks() failed: %v", err)
	}
	if len(tracks) != len(snap.Tracks) {
		t.Fatalf("got %d tracks, want %d", len(tracks), len(snap.Tracks))
	}
	for i, got := range tracks {
		want := snap.Tracks[i]
		want.Live = nil
		if got.Key != want.Key || got.Node != want.Node || got.Version != want.Version ||
			got.Structural != want.Structural || got.Kind != want.Kind || got.Module != want.Module ||
			len(got.History) != len(want.History) {
			t.Errorf("track %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestWriteSnapshot_ReplacesSessionRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	snap := reloadSnapshot(t)

	if err := s.WriteSnapshot(ctx, "s1", "live", snap); err != nil {
		t.Fatalf("first WriteSnapshot() failed: %v", err)
	}
	first, err := s.ReadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}

	if err := s.WriteSnapshot(ctx, "s1", "live", ir.Snapshot{Seq: snap.Seq + 1}); err != nil {
		t.Fatalf("second WriteSnapshot() failed: %v", err)
	}

	tracks, err := s.ReadTracks(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadTracks() failed: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("expected rows to be replaced, got %d tracks", len(tracks))
	}

	second, err := s.ReadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.LastSeq != snap.Seq+1 {
		t.Errorf("last_seq = %d, want %d", second.LastSeq, snap.Seq+1)
	}
}

func TestWriteSnapshot_DigestMatches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	snap := reloadSnapshot(t)

	if err := s.WriteSnapshot(ctx, "s1", "live", snap); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	sess, err := s.ReadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadSession() failed: %v", err)
	}
	want, err := ir.SnapshotDigest(snap)
	if err != nil {
		t.Fatalf("SnapshotDigest() failed: %v", err)
	}
	if sess.Digest != want {
		t.Errorf("digest = %s, want %s", sess.Digest, want)
	}
	if sess.ToolVersion != ir.ToolVersion {
		t.Errorf("tool_version = %s, want %s", sess.ToolVersion, ir.ToolVersion)
	}
}

func TestWriteSnapshot_RejectsEmptySession(t *testing.T) {
	s := createTestStore(t)
	if err := s.WriteSnapshot(context.Background(), "", "live", ir.Snapshot{}); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestReadTrackHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	if err := s.WriteSnapshot(ctx, "s1", "live", reloadSnapshot(t)); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	history, err := s.ReadTrackHistory(ctx, "s1", "t")
	if err != nil {
		t.Fatalf("ReadTrackHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2", len(history))
	}
	if history[0].Shape != "source.map(fn)" || history[0].Version != 0 || history[0].Current {
		t.Errorf("entry 0 = %+v", history[0])
	}
	if history[1].Shape != "source.map(fn).filter(fn)" || history[1].Version != 1 || !history[1].Current {
		t.Errorf("entry 1 = %+v", history[1])
	}

	if _, err := s.ReadTrackHistory(ctx, "s1", "gone"); err == nil {
		t.Error("expected error for dropped track")
	}
}

func TestReadOpenSubscriptions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	snap := reloadSnapshot(t)
	if err := s.WriteSnapshot(ctx, "s1", "live", snap); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	open, err := s.ReadOpenSubscriptions(ctx, "s1")
	if err != nil {
		t.Fatalf("ReadOpenSubscriptions() failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("got %d open subscriptions, want 1", len(open))
	}
	tr, _ := snap.Track("t")
	if open[0].Node != tr.Node {
		t.Errorf("open subscription on node %d, want %d", open[0].Node, tr.Node)
	}

	counts, err := s.CountEmissions(ctx, "s1")
	if err != nil {
		t.Fatalf("CountEmissions() failed: %v", err)
	}
	if counts["t"] != 1 {
		t.Errorf("emissions on t = %d, want 1", counts["t"])
	}
}

func TestListSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
	if _, err := s.LatestSession(ctx); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("LatestSession() error = %v, want ErrSessionNotFound", err)
	}

	for _, id := range []string{"b", "a"} {
		if err := s.WriteSnapshot(ctx, id, "live", ir.Snapshot{}); err != nil {
			t.Fatalf("WriteSnapshot(%s) failed: %v", id, err)
		}
	}

	sessions, err = s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Errorf("sessions = %+v, want b then a", sessions)
	}

	latest, err := s.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession() failed: %v", err)
	}
	if latest.ID != "a" {
		t.Errorf("latest = %s, want a", latest.ID)
	}

	if _, err := s.ReadSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ReadSession(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMarshalIDs(t *testing.T) {
	text, err := marshalIDs([]int64{3, 1, 2})
	if err != nil {
		t.Fatalf("marshalIDs() failed: %v", err)
	}
	if text != "[3,1,2]" {
		t.Errorf("marshalIDs() = %s", text)
	}
	ids, err := unmarshalIDs(text)
	if err != nil {
		t.Fatalf("unmarshalIDs() failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 3 {
		t.Errorf("unmarshalIDs() = %v", ids)
	}

	empty, _ := marshalIDs(nil)
	if empty != "[]" {
		t.Errorf("marshalIDs(nil) = %s, want []", empty)
	}
}
