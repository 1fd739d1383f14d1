package speech

import "github.com/yegors/co-hud/internal/statemachine"

// Session phases. Listening in State means listening or paused; Paused
// means paused.
const (
	PhaseUninitialized = "uninitialized"
	PhaseIdle          = "idle"
	PhaseListening     = "listening"
	PhasePaused        = "paused"
)

// Lifecycle events
const (
	eventInitialized   = "INITIALIZED"
	eventStart         = "START"
	eventHostStarted   = "HOST_STARTED"
	eventRestarted     = "RESTARTED"
	eventPause         = "PAUSE"
	eventStop          = "STOP"
	eventDenied        = "DENIED"
	eventRestartFailed = "RESTART_FAILED"
	eventTeardown      = "TEARDOWN"
)

type lifecycleContext struct {
	Restarts int
}

func countRestart(ctx lifecycleContext) lifecycleContext {
	ctx.Restarts++
	return ctx
}

type (
	lcTransition = statemachine.Transition[lifecycleContext]
	lcNode       = statemachine.StateNode[lifecycleContext]
)

func newLifecycle() *statemachine.Service[lifecycleContext] {
	machine := statemachine.New("speech-session", PhaseUninitialized, lifecycleContext{}, map[string]lcNode{
		PhaseUninitialized: {On: map[string]lcTransition{
			eventInitialized: statemachine.Goto[lifecycleContext](PhaseIdle),
		}},
		PhaseIdle: {On: map[string]lcTransition{
			eventStart:    statemachine.Goto[lifecycleContext](PhaseListening),
			eventTeardown: statemachine.Goto[lifecycleContext](PhaseUninitialized),
		}},
		PhaseListening: {On: map[string]lcTransition{
			eventHostStarted: {},
			eventRestarted: {Actions: []statemachine.Action[lifecycleContext]{
				statemachine.Assign(countRestart),
			}},
			eventPause:         statemachine.Goto[lifecycleContext](PhasePaused),
			eventStop:          statemachine.Goto[lifecycleContext](PhaseIdle),
			eventDenied:        statemachine.Goto[lifecycleContext](PhaseIdle),
			eventRestartFailed: statemachine.Goto[lifecycleContext](PhaseIdle),
			eventTeardown:      statemachine.Goto[lifecycleContext](PhaseUninitialized),
		}},
		PhasePaused: {On: map[string]lcTransition{
			eventStart:    statemachine.Goto[lifecycleContext](PhaseListening),
			eventStop:     statemachine.Goto[lifecycleContext](PhaseIdle),
			eventDenied:   statemachine.Goto[lifecycleContext](PhaseIdle),
			eventTeardown: statemachine.Goto[lifecycleContext](PhaseUninitialized),
		}},
	})
	return statemachine.Interpret(machine)
}
