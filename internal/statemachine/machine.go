// Package statemachine is a small declarative finite-state-machine builder
// with an interpreter that runs a machine and reports its transitions.
package statemachine

// Guard decides whether a transition may fire for the given context
type Guard[C any] func(ctx C) bool

// Action produces an updated context
type Action[C any] func(ctx C) C

// Transition describes what happens when an event arrives in a state.
// An empty Target makes it a pure context update.
type Transition[C any] struct {
	Target  string
	Guard   Guard[C]
	Actions []Action[C]
}

// StateNode maps event names to transitions
type StateNode[C any] struct {
	On map[string]Transition[C]
}

// Machine is a declarative state machine definition together with its
// mutable context.
type Machine[C any] struct {
	ID      string
	Initial string
	Context C
	States  map[string]StateNode[C]
}

// Goto is the shorthand for a transition that only changes state
func Goto[C any](target string) Transition[C] {
	return Transition[C]{Target: target}
}

// Assign wraps a context update as an action
func Assign[C any](fn func(ctx C) C) Action[C] {
	return Action[C](fn)
}

// New returns a machine with the given definition
func New[C any](id, initial string, context C, states map[string]StateNode[C]) *Machine[C] {
	return &Machine[C]{
		ID:      id,
		Initial: initial,
		Context: context,
		States:  states,
	}
}

// Transition computes the state reached from state on event. Unknown states,
// unmatched events and failing guards leave the state unchanged and do not
// touch the context.
func (m *Machine[C]) Transition(state, event string) string {
	node, ok := m.States[state]
	if !ok || node.On == nil {
		return state
	}

	t, ok := node.On[event]
	if !ok {
		return state
	}

	if t.Guard != nil && !t.Guard(m.Context) {
		return state
	}

	for _, action := range t.Actions {
		if action != nil {
			m.Context = action(m.Context)
		}
	}

	if t.Target == "" {
		return state
	}
	return t.Target
}

// Can reports whether event has a transition defined in state, ignoring guards
func (m *Machine[C]) Can(state, event string) bool {
	node, ok := m.States[state]
	if !ok {
		return false
	}
	_, ok = node.On[event]
	return ok
}
