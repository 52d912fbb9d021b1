package rx

import (
	"github.com/roach88/streamscope/internal/ir"
)

// Operator is a pipeline stage factory. It is applied to a source with
// Observable.Pipe.
type Operator struct {
	rt   *Runtime
	id   int64
	name string
	args []any
	lift func(src *Observable) Producer
}

func (rt *Runtime) operator(name string, args ...any) *Operator {
	op := &Operator{rt: rt, name: name, args: args}
	op.id = rt.begin(ir.KindOperator, ir.Event{Name: name, Args: ir.RenderArgs(args...)})
	rt.end(ir.KindOperator, op.id, ir.Event{})
	return op
}

// ID returns the operator id, or 0 when uninstrumented.
func (op *Operator) ID() int64 {
	return op.id
}

// call runs the closure argument at position.
func (op *Operator) call(position int, fn func() any) any {
	return op.rt.invoke(op.id, position, fn)
}

// forward subscribes to src, passing errors and completion straight
// through to dest.
func forward(src *Observable, dest Observer, next func(any)) func() {
	sub := src.Subscribe(ObserverFuncs{
		OnNext:     next,
		OnError:    dest.Error,
		OnComplete: dest.Complete,
	})
	return sub.Unsubscribe
}

// Map transforms each value with fn.
func (rt *Runtime) Map(fn func(any) any) *Operator {
	op := rt.operator("map", fn)
	op.lift = func(src *Observable) Producer {
		return func(dest Observer) func() {
			return forward(src, dest, func(v any) {
				dest.Next(op.call(0, func() any { return fn(v) }))
			})
		}
	}
	return op
}

// Filter passes the values pred accepts.
func (rt *Runtime) Filter(pred func(any) bool) *Operator {
	op := rt.operator("filter", pred)
	op.lift = func(src *Observable) Producer {
		return func(dest Observer) func() {
			return forward(src, dest, func(v any) {
				if ok, _ := op.call(0, func() any { return pred(v) }).(bool); ok {
					dest.Next(v)
				}
			})
		}
	}
	return op
}

// Take passes the first n values, then completes and releases the
// source.
func (rt *Runtime) Take(n int) *Operator {
	op := rt.operator("take", n)
	op.lift = func(src *Observable) Producer {
		return func(dest Observer) func() {
			if n <= 0 {
				dest.Complete()
				return nil
			}
			seen := 0
			return forward(src, dest, func(v any) {
				if seen >= n {
					return
				}
				seen++
				dest.Next(v)
				if seen == n {
					dest.Complete()
				}
			})
		}
	}
	return op
}

// Scan emits the running accumulation of fn, starting from seed.
func (rt *Runtime) Scan(fn func(acc, v any) any, seed any) *Operator {
	op := rt.operator("scan", fn, seed)
	op.lift = func(src *Observable) Producer {
		return func(dest Observer) func() {
			acc := seed
			return forward(src, dest, func(v any) {
				acc = op.call(0, func() any { return fn(acc, v) })
				dest.Next(acc)
			})
		}
	}
	return op
}

// SwitchMap maps each value to an inner stream and mirrors the most recent
// one. The output completes once the source and the current inner stream
// have both completed.
func (rt *Runtime) SwitchMap(fn func(any) *Observable) *Operator {
	op := rt.operator("switchMap", fn)
	op.lift = func(src *Observable) Producer {
		return func(dest Observer) func() {
			var (
				inner      *Subscription
				gen        int
				innerLive  bool
				sourceDone bool
			)
			outer := src.Subscribe(ObserverFuncs{
				OnNext: func(v any) {
					if inner != nil {
						inner.Unsubscribe()
						inner = nil
					}
					gen++
					g := gen
					next, _ := op.call(0, func() any { return fn(v) }).(*Observable)
					if next == nil {
						innerLive = false
						return
					}
					innerLive = true
					sub := next.Subscribe(ObserverFuncs{
						OnNext:  dest.Next,
						OnError: dest.Error,
						OnComplete: func() {
							if g != gen {
								return
							}
							innerLive = false
							if sourceDone {
								dest.Complete()
							}
						},
					})
					if g == gen {
						inner = sub
					}
				},
				OnError: dest.Error,
				OnComplete: func() {
					sourceDone = true
					if !innerLive {
						dest.Complete()
					}
				},
			})
			return func() {
				if inner != nil {
					inner.Unsubscribe()
				}
				outer.Unsubscribe()
			}
		}
	}
	return op
}
