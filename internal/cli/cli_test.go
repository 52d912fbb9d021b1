package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/streamscope/internal/ir"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals a JSON CLIResponse and returns its data.
func decodeData(t *testing.T, out string) (string, map[string]any) {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data
}

// boundTrackEvents binds track "t" to a Node named source.
func boundTrackEvents() []ir.Event {
	return []ir.Event{
		{Seq: 1, Kind: ir.KindTrack, Phase: ir.PhaseBegin, Key: "t"},
		{Seq: 2, Kind: ir.KindConstruct, Phase: ir.PhaseBegin, Name: "source"},
		{Seq: 3, Kind: ir.KindConstruct, Phase: ir.PhaseEnd, Scope: 2},
		{Seq: 4, Kind: ir.KindTrack, Phase: ir.PhaseEnd, Scope: 1, Node: 2},
	}
}

func writeEventLog(t *testing.T, dir string, events []ir.Event) string {
	t.Helper()
	var buf bytes.Buffer
	w := ir.NewEventWriter(&buf)
	for _, ev := range events {
		w.Apply(ev)
	}
	require.NoError(t, w.Err())

	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}
