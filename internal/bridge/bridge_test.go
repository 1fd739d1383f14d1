package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/settings"
	"github.com/yegors/co-hud/internal/speech"
	"github.com/yegors/co-hud/internal/websocket"
	"github.com/yegors/co-hud/pkg/logger"
)

var _ recognition.Host = (*Bridge)(nil)

type fakePeer struct {
	mu       sync.Mutex
	id       string
	full     bool
	messages []*websocket.Message
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) SendMessage(message *websocket.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.messages = append(p.messages, message)
	return true
}

func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Type)
	}
	return out
}

func (p *fakePeer) last() *websocket.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[len(p.messages)-1]
}

type eventLog struct {
	events []recognition.Event
}

func (l *eventLog) HandleEvent(event recognition.Event) {
	l.events = append(l.events, event)
}

func setup(t *testing.T) (*Bridge, *websocket.Mux) {
	t.Helper()
	mux := websocket.NewMux(logger.NewNop())
	b := New(logger.NewNop())
	b.Register(mux)
	return b, mux
}

func hello(t *testing.T, mux *websocket.Mux, peer websocket.Peer, supported bool, langs ...string) {
	t.Helper()
	data := map[string]any{"supported": supported, "languages": toAny(langs)}
	if len(langs) > 0 {
		data["language"] = langs[0]
	}
	require.NoError(t, mux.HandleMessage(peer, websocket.MessageTypeRecognizerHello, data))
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sendEvent(t *testing.T, mux *websocket.Mux, peer websocket.Peer, instanceID string, event map[string]any) {
	t.Helper()
	require.NoError(t, mux.HandleMessage(peer, websocket.MessageTypeRecognizerEvent, map[string]any{
		"instance_id": instanceID,
		"event":       event,
	}))
}

func TestNoClientMeansUnsupported(t *testing.T) {
	b, _ := setup(t)

	assert.False(t, b.Supported())
	assert.Empty(t, b.DefaultLocale())
	_, err := b.New(recognition.Options{Language: "en-US"}, &eventLog{})
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestHelloWithoutRecognizer(t *testing.T) {
	b, mux := setup(t)
	hello(t, mux, &fakePeer{id: "page"}, false, "en-US")

	assert.False(t, b.Supported())
	_, err := b.New(recognition.Options{Language: "en-US"}, &eventLog{})
	assert.ErrorIs(t, err, recognition.ErrUnsupported)
}

func TestHelloRecordsLocalesAndRunsHook(t *testing.T) {
	b, mux := setup(t)
	ready := 0
	b.OnReady(func() { ready++ })

	hello(t, mux, &fakePeer{id: "page"}, true, "de-DE", "en-GB")

	assert.True(t, b.Supported())
	assert.Equal(t, []string{"de-DE", "en-GB"}, b.Locales())
	assert.Equal(t, "de-DE", b.DefaultLocale())
	assert.Equal(t, 1, ready)
}

func TestCommandsAndEvents(t *testing.T) {
	b, mux := setup(t)
	peer := &fakePeer{id: "page"}
	hello(t, mux, peer, true, "en-US")

	sink := &eventLog{}
	rec, err := b.New(recognition.Options{Language: "fr-FR", Continuous: true, InterimResults: true}, sink)
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", rec.Language())

	create := peer.last()
	assert.Equal(t, websocket.MessageTypeRecognizerCreate, create.Type)
	assert.Equal(t, "fr-FR", create.Data["language"])
	assert.Equal(t, true, create.Data["continuous"])
	id, _ := create.Data["instance_id"].(string)
	require.NotEmpty(t, id)

	require.NoError(t, rec.Start())
	require.NoError(t, rec.Stop())
	assert.Equal(t, []string{
		websocket.MessageTypeRecognizerCreate,
		websocket.MessageTypeRecognizerStart,
		websocket.MessageTypeRecognizerStop,
	}, peer.types())

	sendEvent(t, mux, peer, id, map[string]any{
		"type": "result",
		"results": []any{
			map[string]any{"final": true, "alternatives": []any{map[string]any{"transcript": "bonjour", "confidence": 0.8}}},
		},
	})
	sendEvent(t, mux, peer, id, map[string]any{"type": "error", "reason": "no-speech"})

	require.Len(t, sink.events, 2)
	assert.Equal(t, "bonjour", sink.events[0].Transcript())
	assert.Equal(t, recognition.ReasonNoSpeech, sink.events[1].Reason)
}

func TestUnknownEventsAreRejectedOrDropped(t *testing.T) {
	b, mux := setup(t)
	peer := &fakePeer{id: "page"}
	hello(t, mux, peer, true, "en-US")
	sink := &eventLog{}
	_, err := b.New(recognition.Options{Language: "en-US"}, sink)
	require.NoError(t, err)
	id := peer.last().Data["instance_id"].(string)

	err = mux.HandleMessage(peer, websocket.MessageTypeRecognizerEvent, map[string]any{
		"instance_id": id,
		"event":       map[string]any{"type": "speechstart"},
	})
	assert.Error(t, err)

	sendEvent(t, mux, peer, "someone-else", map[string]any{"type": "end"})
	sendEvent(t, mux, &fakePeer{id: "other-page"}, id, map[string]any{"type": "end"})
	assert.Empty(t, sink.events)
}

func TestAbortReleasesInstance(t *testing.T) {
	b, mux := setup(t)
	peer := &fakePeer{id: "page"}
	hello(t, mux, peer, true, "en-US")
	sink := &eventLog{}
	rec, err := b.New(recognition.Options{Language: "en-US"}, sink)
	require.NoError(t, err)
	id := peer.last().Data["instance_id"].(string)

	require.NoError(t, rec.Abort())
	assert.Equal(t, websocket.MessageTypeRecognizerAbort, peer.last().Type)

	assert.ErrorIs(t, rec.Start(), ErrNoClient)
	sendEvent(t, mux, peer, id, map[string]any{"type": "end"})
	assert.Empty(t, sink.events)
}

func TestFullBufferFailsCommands(t *testing.T) {
	b, mux := setup(t)
	peer := &fakePeer{id: "page"}
	hello(t, mux, peer, true, "en-US")
	rec, err := b.New(recognition.Options{Language: "en-US"}, &eventLog{})
	require.NoError(t, err)

	peer.full = true
	assert.Error(t, rec.Start())
	_, err = b.New(recognition.Options{Language: "en-US"}, &eventLog{})
	assert.Error(t, err)
}

func TestDisconnectEndsLiveInstances(t *testing.T) {
	b, mux := setup(t)
	peer := &fakePeer{id: "page"}
	hello(t, mux, peer, true, "en-US")
	sink := &eventLog{}
	rec, err := b.New(recognition.Options{Language: "en-US"}, sink)
	require.NoError(t, err)

	mux.HandleDisconnect(peer)

	require.Len(t, sink.events, 2)
	assert.Equal(t, recognition.EventError, sink.events[0].Type)
	assert.Equal(t, recognition.ReasonNetwork, sink.events[0].Reason)
	assert.Equal(t, recognition.EventEnd, sink.events[1].Type)
	assert.False(t, b.Supported())
	assert.ErrorIs(t, rec.Start(), ErrNoClient)
}

func TestDisplayOnlyDisconnectKeepsRecognizer(t *testing.T) {
	b, mux := setup(t)
	page := &fakePeer{id: "page"}
	hello(t, mux, page, true, "en-US")
	sink := &eventLog{}
	_, err := b.New(recognition.Options{Language: "en-US"}, sink)
	require.NoError(t, err)

	mux.HandleDisconnect(&fakePeer{id: "viewer"})

	assert.True(t, b.Supported())
	assert.Empty(t, sink.events)
}

func TestNewPageReplacesOld(t *testing.T) {
	b, mux := setup(t)
	old := &fakePeer{id: "old"}
	hello(t, mux, old, true, "en-US")
	sink := &eventLog{}
	_, err := b.New(recognition.Options{Language: "en-US"}, sink)
	require.NoError(t, err)

	hello(t, mux, &fakePeer{id: "new"}, true, "en-US")

	require.Len(t, sink.events, 2)
	assert.Equal(t, recognition.EventEnd, sink.events[1].Type)
}

func TestSessionRunsOverBridge(t *testing.T) {
	b, mux := setup(t)
	store := settings.NewStore(settings.NewMemoryBackend(), nil, logger.NewNop())
	manager := speech.NewManager(b, store, speech.DefaultConfig(), nil, logger.NewNop())
	b.OnReady(manager.Resume)

	page := &fakePeer{id: "page"}
	hello(t, mux, page, true, "fr-FR", "en-US")

	state := manager.State()
	require.True(t, state.Initialized)
	assert.True(t, state.Listening)
	assert.Equal(t, "fr-FR", state.CurrentLanguage)
	assert.Equal(t, []string{
		websocket.MessageTypeRecognizerCreate,
		websocket.MessageTypeRecognizerStart,
	}, page.types())
	id := page.messages[0].Data["instance_id"].(string)

	sendEvent(t, mux, page, id, map[string]any{"type": "start"})
	sendEvent(t, mux, page, id, map[string]any{"type": "end"})
	assert.Equal(t, websocket.MessageTypeRecognizerStart, page.last().Type)
	assert.Equal(t, 1, manager.State().Restarts)

	// the page reloads: the old recognizer fails, the new page resumes
	mux.HandleDisconnect(page)
	assert.False(t, manager.State().Listening)

	reloaded := &fakePeer{id: "reloaded"}
	hello(t, mux, reloaded, true, "fr-FR", "en-US")
	assert.True(t, manager.State().Listening)
	assert.Equal(t, []string{
		websocket.MessageTypeRecognizerCreate,
		websocket.MessageTypeRecognizerStart,
	}, reloaded.types())
}

func TestPageStartFailureEndsSession(t *testing.T) {
	b, mux := setup(t)
	store := settings.NewStore(settings.NewMemoryBackend(), nil, logger.NewNop())
	manager := speech.NewManager(b, store, speech.DefaultConfig(), nil, logger.NewNop())
	b.OnReady(manager.Resume)

	page := &fakePeer{id: "page"}
	hello(t, mux, page, true, "en-US")
	id := page.messages[0].Data["instance_id"].(string)
	sendEvent(t, mux, page, id, map[string]any{"type": "start"})

	// the host cut off; the restart command is queued but the page cannot run it
	sendEvent(t, mux, page, id, map[string]any{"type": "end"})
	assert.Equal(t, websocket.MessageTypeRecognizerStart, page.last().Type)
	sendEvent(t, mux, page, id, map[string]any{
		"type":    "error",
		"reason":  string(recognition.ReasonStartFailed),
		"message": "InvalidStateError",
	})

	state := manager.State()
	assert.False(t, state.Listening)
	assert.False(t, state.Processing)
	assert.Equal(t, "Failed to restart speech recognition", state.Error)
}
