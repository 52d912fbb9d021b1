package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/streamscope/internal/ir"
)

// Summary is the golden-file view of a scenario run: the tracks that
// survived, the changes published on the way, and the subscriptions still
// open. Ids are seqs, so the summary is stable for a given event list.
type Summary struct {
	Scenario          string         `json:"scenario"`
	Seq               int64          `json:"seq"`
	Tracks            []TrackSummary `json:"tracks"`
	Changes           []ChangeRecord `json:"changes"`
	OpenSubscriptions []int64        `json:"open_subscriptions"`
}

// TrackSummary describes one track by shape rather than by object.
type TrackSummary struct {
	Key        string   `json:"key"`
	Kind       string   `json:"kind"`
	Shape      string   `json:"shape,omitempty"`
	Version    int      `json:"version"`
	Structural bool     `json:"structural"`
	History    []string `json:"history"`
	Dynamic    bool     `json:"dynamic,omitempty"`
	Parent     string   `json:"parent,omitempty"`
	Module     string   `json:"module,omitempty"`
}

// Summarize builds the Summary of a result.
func Summarize(name string, r *Result) Summary {
	s := Summary{
		Scenario:          name,
		Seq:               r.Snapshot.Seq,
		Tracks:            []TrackSummary{},
		Changes:           r.Changes,
		OpenSubscriptions: []int64{},
	}
	shape := func(id int64) string {
		if n, ok := r.Snapshot.Node(id); ok {
			return n.Shape
		}
		return ""
	}
	for _, t := range r.Snapshot.Tracks {
		ts := TrackSummary{
			Key:        t.Key,
			Kind:       string(t.Kind),
			Shape:      shape(t.Node),
			Version:    t.Version,
			Structural: t.Structural,
			History:    []string{},
			Dynamic:    t.Dynamic,
			Parent:     t.Parent,
			Module:     t.Module,
		}
		for _, id := range t.History {
			ts.History = append(ts.History, shape(id))
		}
		s.Tracks = append(s.Tracks, ts)
	}
	for _, sub := range r.Snapshot.Subscriptions {
		if sub.Open() {
			s.OpenSubscriptions = append(s.OpenSubscriptions, sub.ID)
		}
	}
	return s
}

// SummaryJSON renders the canonical JSON Summary compared by golden files.
func SummaryJSON(name string, r *Result) ([]byte, error) {
	return ir.CanonicalJSON(Summarize(name, r))
}

// RunWithGolden executes a scenario and compares its Summary against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := SummaryJSON(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
