package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamscope/internal/ir"
)

// Scenario is a recorded event stream plus the assertions that must hold
// once every event has been applied.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Events      []Step      `yaml:"events"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one event of a scenario. Seq may be omitted, in which case it
// follows the previous step. Labels name a begin event so that later steps
// can close it or refer to the entity it created without spelling out seqs.
type Step struct {
	ir.Event `yaml:",inline"`

	// Label names this step's seq.
	Label string `yaml:"label,omitempty"`
	// End closes the labelled begin: phase, scope and kind are filled in.
	End string `yaml:"end,omitempty"`

	NodeRef         string `yaml:"node_ref,omitempty"`
	OperatorRef     string `yaml:"operator_ref,omitempty"`
	SubscriptionRef string `yaml:"subscription_ref,omitempty"`
	OwnerRef        string `yaml:"owner_ref,omitempty"`
}

// Assertion types.
const (
	AssertTrack              = "track"
	AssertTrackAbsent        = "track_absent"
	AssertSubscriptionOpen   = "subscription_open"
	AssertSubscriptionClosed = "subscription_closed"
	AssertEmissionCount      = "emission_count"
	AssertNodeShape          = "node_shape"
)

var assertionTypes = []string{
	AssertTrack,
	AssertTrackAbsent,
	AssertSubscriptionOpen,
	AssertSubscriptionClosed,
	AssertEmissionCount,
	AssertNodeShape,
}

// Assertion is a check against the final snapshot. Which fields apply
// depends on Type; nil pointers are not checked.
type Assertion struct {
	Type string `yaml:"type"`

	// Key selects a track (track, track_absent, emission_count).
	Key string `yaml:"key,omitempty"`
	// Node is the label of a construct begin (node_shape).
	Node string `yaml:"node,omitempty"`
	// Subscription is the label of a subscribe begin.
	Subscription string `yaml:"subscription,omitempty"`

	Shape       string  `yaml:"shape,omitempty"`
	Count       *int    `yaml:"count,omitempty"`
	Version     *int    `yaml:"version,omitempty"`
	Structural  *bool   `yaml:"structural,omitempty"`
	History     *int    `yaml:"history,omitempty"`
	Bound       *bool   `yaml:"bound,omitempty"`
	Dynamic     *bool   `yaml:"dynamic,omitempty"`
	Parent      *string `yaml:"parent,omitempty"`
	Synthesized *bool   `yaml:"synthesized,omitempty"`
}

// LoadScenario reads and validates a scenario from a YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var scenarios []*Scenario
	for _, e := range entries {
		if e.IsDir() || !isScenarioFile(e.Name()) {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func isScenarioFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("at least one event is required")
	}
	if _, _, err := s.Resolve(); err != nil {
		return err
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if !slices.Contains(assertionTypes, a.Type) {
		return fmt.Errorf("unknown type %q (want one of %s)", a.Type, strings.Join(assertionTypes, ", "))
	}
	switch a.Type {
	case AssertTrack, AssertTrackAbsent:
		if a.Key == "" {
			return fmt.Errorf("%s requires key", a.Type)
		}
	case AssertEmissionCount:
		if a.Key == "" || a.Count == nil {
			return fmt.Errorf("emission_count requires key and count")
		}
	case AssertSubscriptionOpen, AssertSubscriptionClosed:
		if a.Subscription == "" {
			return fmt.Errorf("%s requires subscription", a.Type)
		}
	case AssertNodeShape:
		if a.Node == "" || a.Shape == "" {
			return fmt.Errorf("node_shape requires node and shape")
		}
	}
	return nil
}

// Resolve turns the steps into events: seqs are assigned, labels are
// replaced by the seqs they name, and every event is validated.
func (s *Scenario) Resolve() ([]ir.Event, map[string]int64, error) {
	labels := map[string]int64{}
	kinds := map[string]ir.EventKind{}
	lookup := func(i int, field, label string) (int64, error) {
		if label == "" {
			return 0, nil
		}
		seq, ok := labels[label]
		if !ok {
			return 0, fmt.Errorf("event %d: %s refers to unknown label %q", i, field, label)
		}
		return seq, nil
	}

	events := make([]ir.Event, 0, len(s.Events))
	var last int64
	for i, step := range s.Events {
		ev := step.Event
		if ev.Seq == 0 {
			ev.Seq = last + 1
		}
		if ev.Seq <= last {
			return nil, nil, fmt.Errorf("event %d: seq %d does not follow %d", i, ev.Seq, last)
		}
		last = ev.Seq

		if step.End != "" {
			scope, err := lookup(i, "end", step.End)
			if err != nil {
				return nil, nil, err
			}
			ev.Phase = ir.PhaseEnd
			ev.Scope = scope
			if ev.Kind == "" {
				ev.Kind = kinds[step.End]
			}
		}
		if ev.Phase == "" {
			ev.Phase = ir.PhaseBegin
		}

		refs := []struct {
			field, label string
			dst          *int64
		}{
			{"node_ref", step.NodeRef, &ev.Node},
			{"operator_ref", step.OperatorRef, &ev.Operator},
			{"subscription_ref", step.SubscriptionRef, &ev.Subscription},
			{"owner_ref", step.OwnerRef, &ev.Owner},
		}
		for _, r := range refs {
			seq, err := lookup(i, r.field, r.label)
			if err != nil {
				return nil, nil, err
			}
			if seq != 0 {
				*r.dst = seq
			}
		}

		if err := ev.Validate(); err != nil {
			return nil, nil, fmt.Errorf("event %d: %w", i, err)
		}
		if step.Label != "" {
			if _, dup := labels[step.Label]; dup {
				return nil, nil, fmt.Errorf("event %d: duplicate label %q", i, step.Label)
			}
			labels[step.Label] = ev.Seq
			kinds[step.Label] = ev.Kind
		}
		events = append(events, ev)
	}
	return events, labels, nil
}
