package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/streamscope/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int    // Position in the scenario's assertion list
	Type     string // Assertion type for categorization
	Subject  string // Track key or label the assertion is about
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion %d failed: %s %s\n", e.Index, e.Type, e.Subject)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual:   %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result's snapshot
// and returns the failures.
func EvaluateAssertions(result *Result, assertions []Assertion) []error {
	var errs []error
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			err.Index = i
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) *AssertionError {
	switch a.Type {
	case AssertTrack:
		return assertTrack(r.Snapshot, a)
	case AssertTrackAbsent:
		if t, ok := r.Snapshot.Track(a.Key); ok {
			return fail(a, a.Key, "no track", fmt.Sprintf("track bound to node %d", t.Node))
		}
		return nil
	case AssertSubscriptionOpen, AssertSubscriptionClosed:
		return assertSubscription(r, a)
	case AssertEmissionCount:
		n := 0
		for _, e := range r.Snapshot.Emissions {
			if e.TrackKey == a.Key {
				n++
			}
		}
		if n != *a.Count {
			return fail(a, a.Key, fmt.Sprintf("%d emissions", *a.Count), fmt.Sprintf("%d emissions", n))
		}
		return nil
	case AssertNodeShape:
		id, ok := r.Labels[a.Node]
		if !ok {
			return fail(a, a.Node, "labelled node", "unknown label")
		}
		n, ok := r.Snapshot.Node(id)
		if !ok {
			return fail(a, a.Node, "shape "+a.Shape, "no node recorded")
		}
		if n.Shape != a.Shape {
			return fail(a, a.Node, "shape "+a.Shape, "shape "+n.Shape)
		}
		return nil
	default:
		return fail(a, "", "known assertion type", a.Type)
	}
}

func assertTrack(s ir.Snapshot, a Assertion) *AssertionError {
	t, ok := s.Track(a.Key)
	if !ok {
		return fail(a, a.Key, "track present", "no track")
	}

	var diffs, want []string
	check := func(name string, expected, actual any) {
		if fmt.Sprint(expected) != fmt.Sprint(actual) {
			want = append(want, fmt.Sprintf("%s=%v", name, expected))
			diffs = append(diffs, fmt.Sprintf("%s=%v", name, actual))
		}
	}
	if a.Version != nil {
		check("version", *a.Version, t.Version)
	}
	if a.Structural != nil {
		check("structural", *a.Structural, t.Structural)
	}
	if a.History != nil {
		check("history", *a.History, len(t.History))
	}
	if a.Bound != nil {
		check("bound", *a.Bound, t.Bound())
	}
	if a.Dynamic != nil {
		check("dynamic", *a.Dynamic, t.Dynamic)
	}
	if a.Parent != nil {
		check("parent", *a.Parent, t.Parent)
	}
	if a.Shape != "" {
		shape := ""
		if n, ok := s.Node(t.Node); ok {
			shape = n.Shape
		}
		check("shape", a.Shape, shape)
	}
	if len(diffs) > 0 {
		return fail(a, a.Key, strings.Join(want, " "), strings.Join(diffs, " "))
	}
	return nil
}

func assertSubscription(r *Result, a Assertion) *AssertionError {
	id, ok := r.Labels[a.Subscription]
	if !ok {
		return fail(a, a.Subscription, "labelled subscription", "unknown label")
	}
	sub, ok := r.Snapshot.Subscription(id)
	if !ok {
		return fail(a, a.Subscription, "subscription recorded", "none")
	}

	wantOpen := a.Type == AssertSubscriptionOpen
	if sub.Open() != wantOpen {
		return fail(a, a.Subscription, openText(wantOpen), openText(sub.Open()))
	}
	if a.Synthesized != nil && sub.Synthesized != *a.Synthesized {
		return fail(a, a.Subscription,
			fmt.Sprintf("synthesized=%t", *a.Synthesized),
			fmt.Sprintf("synthesized=%t at seq %d", sub.Synthesized, sub.UnsubscribedAt))
	}
	return nil
}

func openText(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func fail(a Assertion, subject, expected, actual string) *AssertionError {
	return &AssertionError{Type: a.Type, Subject: subject, Expected: expected, Actual: actual}
}
