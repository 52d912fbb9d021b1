package rx

import "slices"

// Subject is a hot stream: values pushed with Next reach every observer
// attached at that moment. A terminal signal is remembered and replayed to
// late subscribers.
type Subject struct {
	*Observable
	observers []*subjectEntry
	done      bool
	err       error
}

type subjectEntry struct {
	obs    Observer
	active bool
}

// Subject creates an instrumented Subject.
func (rt *Runtime) Subject() *Subject {
	s := &Subject{}
	s.Observable = rt.construct("subject", nil, s.attach)
	return s
}

// NamedSubject creates an instrumented Subject whose Node is rendered as
// name(args...).
func (rt *Runtime) NamedSubject(name string, args ...any) *Subject {
	s := &Subject{}
	s.Observable = rt.construct(name, args, s.attach)
	return s
}

// NewSubject returns an uninstrumented Subject.
func NewSubject() *Subject {
	s := &Subject{}
	s.Observable = New(s.attach)
	s.Observable.name = "subject"
	return s
}

func (s *Subject) attach(obs Observer) func() {
	if s.done {
		if s.err != nil {
			obs.Error(s.err)
		} else {
			obs.Complete()
		}
		return nil
	}
	e := &subjectEntry{obs: obs, active: true}
	s.observers = append(s.observers, e)
	return func() {
		e.active = false
		s.observers = slices.DeleteFunc(s.observers, func(x *subjectEntry) bool { return x == e })
	}
}

// Next delivers v to the current observers.
func (s *Subject) Next(v any) {
	if s.done {
		return
	}
	for _, e := range slices.Clone(s.observers) {
		if e.active {
			e.obs.Next(v)
		}
	}
}

// Error terminates the subject with err.
func (s *Subject) Error(err error) {
	if s.done {
		return
	}
	s.done, s.err = true, err
	for _, e := range s.drain() {
		e.obs.Error(err)
	}
}

// Complete terminates the subject.
func (s *Subject) Complete() {
	if s.done {
		return
	}
	s.done = true
	for _, e := range s.drain() {
		e.obs.Complete()
	}
}

func (s *Subject) drain() []*subjectEntry {
	obs := s.observers
	s.observers = nil
	return slices.DeleteFunc(obs, func(e *subjectEntry) bool { return !e.active })
}

// Observers returns the number of attached observers.
func (s *Subject) Observers() int {
	return len(s.observers)
}

// Done reports whether the subject has terminated.
func (s *Subject) Done() bool {
	return s.done
}
