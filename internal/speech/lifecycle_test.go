package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecyclePhases(t *testing.T) {
	svc := newLifecycle()
	assert.Equal(t, PhaseUninitialized, svc.State())

	// nothing but initialization leaves the uninitialized phase
	svc.Send(eventStart).Send(eventPause)
	assert.Equal(t, PhaseUninitialized, svc.State())

	svc.Send(eventInitialized).Send(eventStart)
	assert.Equal(t, PhaseListening, svc.State())

	svc.Send(eventRestarted).Send(eventRestarted)
	assert.Equal(t, PhaseListening, svc.State())
	assert.Equal(t, 2, svc.Context().Restarts)

	svc.Send(eventPause)
	assert.Equal(t, PhasePaused, svc.State())

	// a paused session cannot be paused or restart-fail again
	svc.Send(eventPause).Send(eventRestartFailed).Send(eventRestarted)
	assert.Equal(t, PhasePaused, svc.State())
	assert.Equal(t, 2, svc.Context().Restarts)

	svc.Send(eventStop)
	assert.Equal(t, PhaseIdle, svc.State())

	svc.Send(eventTeardown)
	assert.Equal(t, PhaseUninitialized, svc.State())
}

func TestLifecycleDenialEndsListening(t *testing.T) {
	svc := newLifecycle().Send(eventInitialized).Send(eventStart)

	svc.Send(eventDenied)
	assert.Equal(t, PhaseIdle, svc.State())

	// idle ignores recognizer bookkeeping events
	svc.Send(eventRestarted).Send(eventHostStarted)
	assert.Equal(t, PhaseIdle, svc.State())
	assert.Zero(t, svc.Context().Restarts)
}
