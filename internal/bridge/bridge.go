// Package bridge exposes the recognizer of a connected HUD page as a
// recognition.Host. Commands go out as recognizer.* websocket messages and
// the page reports recognizer events back.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/websocket"
	"github.com/yegors/co-hud/pkg/logger"
)

// ErrNoClient is returned while no page has announced a recognizer
var ErrNoClient = errors.New("no recognizer client connected")

// Hello is what a page reports about its recognizer when it connects
type Hello struct {
	Supported bool     `json:"supported"`
	Languages []string `json:"languages"`
	Language  string   `json:"language"`
}

type eventEnvelope struct {
	InstanceID string            `json:"instance_id"`
	Event      recognition.Event `json:"event"`
}

// Bridge implements recognition.Host on top of the websocket hub
type Bridge struct {
	logger *logger.Logger

	mu            sync.Mutex
	peer          websocket.Peer
	supported     bool
	locales       []string
	defaultLocale string
	instances     map[string]*instance
	onReady       func()
}

// New returns a bridge with no client attached
func New(log *logger.Logger) *Bridge {
	return &Bridge{
		logger:    log.Named("bridge"),
		instances: make(map[string]*instance),
	}
}

// OnReady sets the hook run after every recognizer hello
func (b *Bridge) OnReady(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReady = fn
}

// Register wires the bridge into mux
func (b *Bridge) Register(mux *websocket.Mux) {
	mux.HandleFunc(websocket.MessageTypeRecognizerHello, b.handleHello)
	mux.HandleFunc(websocket.MessageTypeRecognizerEvent, b.handleEvent)
	mux.OnDisconnect(b.handleDisconnect)
}

// Supported reports whether a connected page has a recognizer
func (b *Bridge) Supported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil && b.supported
}

// Locales returns the page's language preferences
func (b *Bridge) Locales() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.locales...)
}

// DefaultLocale returns the page's primary language, or "" when unknown
func (b *Bridge) DefaultLocale() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defaultLocale
}

// New asks the page to construct a recognizer
func (b *Bridge) New(opts recognition.Options, sink recognition.Sink) (recognition.Recognizer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.peer == nil {
		return nil, ErrNoClient
	}
	if !b.supported {
		return nil, recognition.ErrUnsupported
	}

	inst := &instance{
		id:     uuid.NewString(),
		bridge: b,
		peer:   b.peer,
		opts:   opts,
		sink:   sink,
	}
	sent := inst.peer.SendMessage(&websocket.Message{
		Type: websocket.MessageTypeRecognizerCreate,
		Data: map[string]any{
			"instance_id":     inst.id,
			"language":        opts.Language,
			"continuous":      opts.Continuous,
			"interim_results": opts.InterimResults,
		},
	})
	if !sent {
		return nil, fmt.Errorf("failed to send %s: client buffer full or closed", websocket.MessageTypeRecognizerCreate)
	}

	b.instances[inst.id] = inst
	b.logger.Debug("Recognizer created",
		logger.String("instance_id", inst.id),
		logger.String("language", opts.Language))
	return inst, nil
}

func (b *Bridge) handleHello(client websocket.Peer, _ string, data map[string]any) error {
	var hello Hello
	if err := websocket.DecodeData(data, &hello); err != nil {
		return err
	}

	b.mu.Lock()
	previous := b.peer
	var orphans []*instance
	if previous != nil && previous.ID() != client.ID() {
		orphans = b.detachLocked(previous)
	}
	b.peer = client
	b.supported = hello.Supported
	b.locales = append([]string(nil), hello.Languages...)
	b.defaultLocale = hello.Language
	onReady := b.onReady
	b.mu.Unlock()

	b.logger.Info("Recognizer client ready",
		logger.String("client_id", client.ID()),
		logger.Bool("supported", hello.Supported),
		logger.String("language", hello.Language),
		logger.Int("languages", len(hello.Languages)))

	endAll(orphans, "recognizer client replaced")
	if onReady != nil {
		onReady()
	}
	return nil
}

func (b *Bridge) handleEvent(client websocket.Peer, _ string, data map[string]any) error {
	var envelope eventEnvelope
	if err := websocket.DecodeData(data, &envelope); err != nil {
		return err
	}
	if !envelope.Event.Type.Valid() {
		return fmt.Errorf("unknown recognizer event type %q", envelope.Event.Type)
	}

	b.mu.Lock()
	inst, ok := b.instances[envelope.InstanceID]
	b.mu.Unlock()

	if !ok || inst.peer.ID() != client.ID() {
		b.logger.Debug("Dropping event for unknown recognizer",
			logger.String("instance_id", envelope.InstanceID),
			logger.String("type", string(envelope.Event.Type)))
		return nil
	}

	inst.sink.HandleEvent(envelope.Event)
	return nil
}

func (b *Bridge) handleDisconnect(client websocket.Peer) {
	b.mu.Lock()
	orphans := b.detachLocked(client)
	if b.peer != nil && b.peer.ID() == client.ID() {
		b.peer = nil
		b.supported = false
	}
	b.mu.Unlock()

	if len(orphans) > 0 {
		b.logger.Warn("Recognizer client disconnected with live recognizers",
			logger.String("client_id", client.ID()),
			logger.Int("recognizers", len(orphans)))
	}
	endAll(orphans, "recognizer client disconnected")
}

// detachLocked forgets every instance living on client
func (b *Bridge) detachLocked(client websocket.Peer) []*instance {
	var out []*instance
	for id, inst := range b.instances {
		if inst.peer.ID() == client.ID() {
			out = append(out, inst)
			delete(b.instances, id)
		}
	}
	return out
}

// endAll reports a network failure followed by the end of each instance,
// the same sequence a page reports when its recognizer loses the service
func endAll(instances []*instance, message string) {
	for _, inst := range instances {
		inst.sink.HandleEvent(recognition.Event{
			Type:    recognition.EventError,
			Reason:  recognition.ReasonNetwork,
			Message: message,
		})
		inst.sink.HandleEvent(recognition.Event{Type: recognition.EventEnd})
	}
}
