package engine

// Stack is an ordered stack of open scopes of one event kind.
// Entries are keyed by the seq of the begin event that opened them.
type Stack[T any] struct {
	entries []stackEntry[T]
}

type stackEntry[T any] struct {
	id  int64
	val T
}

// Push opens a scope.
func (s *Stack[T]) Push(id int64, v T) {
	s.entries = append(s.entries, stackEntry[T]{id: id, val: v})
}

// Top returns the innermost open scope.
func (s *Stack[T]) Top() (int64, T, bool) {
	if len(s.entries) == 0 {
		var zero T
		return 0, zero, false
	}
	e := s.entries[len(s.entries)-1]
	return e.id, e.val, true
}

// TopID returns the id of the innermost open scope, or 0.
func (s *Stack[T]) TopID() int64 {
	id, _, _ := s.Top()
	return id
}

// PopTo closes the scope opened by id. Scopes above it were abandoned
// without their end events; they are discarded and counted in dropped.
// When id is not open the stack is left untouched and ok is false.
func (s *Stack[T]) PopTo(id int64) (v T, dropped int, ok bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id != id {
			continue
		}
		v = s.entries[i].val
		dropped = len(s.entries) - 1 - i
		clear(s.entries[i:])
		s.entries = s.entries[:i]
		return v, dropped, true
	}
	return v, 0, false
}

// Len returns the number of open scopes.
func (s *Stack[T]) Len() int {
	return len(s.entries)
}
