package statemachine

// Snapshot is what listeners receive on every transition
type Snapshot[C any] struct {
	Value   string
	Context C
}

// Listener observes committed transitions
type Listener[C any] func(snapshot Snapshot[C])

// Service runs a machine: it tracks the current state and notifies
// listeners whenever an event moves the machine to a different state.
//
// A Service is not safe for concurrent use; callers serialize access.
type Service[C any] struct {
	machine   *Machine[C]
	current   string
	listeners []Listener[C]
}

// Interpret wraps machine in a running service positioned at its initial state
func Interpret[C any](machine *Machine[C]) *Service[C] {
	return &Service[C]{
		machine: machine,
		current: machine.Initial,
	}
}

// Send delivers event to the machine. Listeners are notified only when the
// state actually changes.
func (s *Service[C]) Send(event string) *Service[C] {
	next := s.machine.Transition(s.current, event)
	if next != s.current {
		s.current = next
		s.notify()
	}
	return s
}

// Start replays the current snapshot to every registered listener
func (s *Service[C]) Start() *Service[C] {
	s.notify()
	return s
}

// Stop drops all listeners
func (s *Service[C]) Stop() *Service[C] {
	s.listeners = nil
	return s
}

// OnTransition registers a listener
func (s *Service[C]) OnTransition(listener Listener[C]) *Service[C] {
	s.listeners = append(s.listeners, listener)
	return s
}

// State returns the current state name
func (s *Service[C]) State() string {
	return s.current
}

// Context returns the machine's current context
func (s *Service[C]) Context() C {
	return s.machine.Context
}

// Snapshot returns the current state and context
func (s *Service[C]) Snapshot() Snapshot[C] {
	return Snapshot[C]{Value: s.current, Context: s.machine.Context}
}

func (s *Service[C]) notify() {
	snap := s.Snapshot()
	for _, listener := range s.listeners {
		listener(snap)
	}
}
