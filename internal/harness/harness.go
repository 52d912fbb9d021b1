package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/streamscope/internal/engine"
)

// Harness replays scenarios through a fresh Accumulator each.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes accumulator logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(scenario)
}

// Run applies the scenario's events in order, records the track changes
// they publish, then evaluates the assertions against the final snapshot.
// An error means the scenario itself is malformed; failed assertions are
// reported in the Result.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	events, labels, err := scenario.Resolve()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Events = events
	result.Labels = labels

	acc := engine.NewAccumulator(engine.WithLogger(h.logger))
	cancel := acc.Subscribe(func(c engine.Change) {
		if c.Kind != engine.ChangeApplied {
			result.Changes = append(result.Changes, recordChange(c))
		}
	})
	defer cancel()

	for _, ev := range events {
		acc.Apply(ev)
	}
	result.Snapshot = acc.Snapshot()

	for _, err := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(err.Error())
	}

	h.logger.Info("scenario finished",
		slog.String("scenario", scenario.Name),
		slog.Int("events", len(events)),
		slog.Bool("pass", result.Pass))
	return result, nil
}
