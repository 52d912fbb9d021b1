package rx

// Of emits each value in order, then completes.
func (rt *Runtime) Of(values ...any) *Observable {
	vals := append([]any(nil), values...)
	return rt.construct("of", vals, func(obs Observer) func() {
		for _, v := range vals {
			obs.Next(v)
		}
		obs.Complete()
		return nil
	})
}

// Empty completes immediately.
func (rt *Runtime) Empty() *Observable {
	return rt.construct("empty", nil, func(obs Observer) func() {
		obs.Complete()
		return nil
	})
}

// Create wraps a custom producer as a named source. args are rendered
// into the Node's shape.
func (rt *Runtime) Create(name string, produce Producer, args ...any) *Observable {
	return rt.construct(name, args, produce)
}
