// Package statemachine implements state-functions-as-states ("Rob Pike's
// pattern"): a state is a function that performs its work and returns the
// next state function, or nil to terminate. This is the idiomatic Go
// rendering of the "state machine as distinct types" design: instead of a
// zero-sized marker type per state with compile-time dispatch, each state
// is a typed closure and the compiler already rejects returning anything
// that isn't a valid next state.
package statemachine

import "sync"

// Event marks why a callback fired.
type Event int

const (
	Entered Event = iota
	Exited
)

// Fn is one state: given the entity and an optional observer callback, it
// performs the state's work and returns the next Fn (nil terminates).
type Fn[T any] func(entity *T, observe func(state string, event Event)) Fn[T]

// Machine drives a sequence of Fn[T] over one entity. It is safe for
// concurrent Dispatch/SetState/Current calls, though in this module every
// Machine is owned by exactly one table actor goroutine and the locking
// exists only to make that ownership cheap to assert in tests.
type Machine[T any] struct {
	mu     sync.RWMutex
	entity *T
	state  Fn[T]
}

func New[T any](entity *T, initial Fn[T]) *Machine[T] {
	return &Machine[T]{entity: entity, state: initial}
}

// Dispatch runs the current state function once and installs whatever it
// returns as the next state.
func (m *Machine[T]) Dispatch(observe func(state string, event Event)) {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()

	if current == nil {
		return
	}
	next := current(m.entity, observe)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
}

// SetState force-installs a state and immediately dispatches it once,
// without notifying an observer. Used for external transitions driven by
// events outside the state function's own return value (e.g. a betting
// round finishing asynchronously from player input).
func (m *Machine[T]) SetState(fn Fn[T]) {
	m.mu.Lock()
	m.state = fn
	m.mu.Unlock()
	m.Dispatch(nil)
}

// Current returns the active state function.
func (m *Machine[T]) Current() Fn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Done reports whether the machine has terminated (nil state).
func (m *Machine[T]) Done() bool {
	return m.Current() == nil
}
