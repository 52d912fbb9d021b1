package harness

import (
	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
)

// ChangeRecord is a track change observed while the scenario ran.
// Applied notifications are not recorded.
type ChangeRecord struct {
	Kind       string `json:"kind"`
	Seq        int64  `json:"seq"`
	Key        string `json:"key"`
	Node       int64  `json:"node,omitempty"`
	Version    int    `json:"version"`
	Structural bool   `json:"structural,omitempty"`
}

func recordChange(c engine.Change) ChangeRecord {
	return ChangeRecord{
		Kind:       string(c.Kind),
		Seq:        c.Seq,
		Key:        c.Key,
		Node:       c.Node,
		Version:    c.Version,
		Structural: c.Structural,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Events are the resolved events, in the order they were applied.
	Events []ir.Event `json:"events"`

	// Labels maps every scenario label to the seq it was assigned.
	Labels map[string]int64 `json:"labels"`

	// Changes holds the bound, rebound and dropped notifications.
	Changes []ChangeRecord `json:"changes"`

	// Snapshot is the store after the last event.
	Snapshot ir.Snapshot `json:"snapshot"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Labels:  map[string]int64{},
		Changes: []ChangeRecord{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
