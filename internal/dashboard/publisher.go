// Package dashboard connects HUD pages to the speech session: it pushes
// session snapshots and settings changes out and routes page commands in.
package dashboard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/settings"
	"github.com/yegors/co-hud/internal/speech"
	"github.com/yegors/co-hud/internal/websocket"
	"github.com/yegors/co-hud/pkg/logger"
)

// Control is everything display code may do to the session
type Control interface {
	Subscribe(listener speech.Listener) func()
	SetLanguage(code string)
	ToggleListening()
}

// SettingsFeed delivers settings changes
type SettingsFeed interface {
	Subscribe(listener settings.Listener) func()
}

// Broadcaster sends a message to every connected page
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// Publisher mirrors session state and settings onto the websocket hub
type Publisher struct {
	control Control
	feed    SettingsFeed
	hub     Broadcaster
	logger  *logger.Logger

	mu           sync.Mutex
	latest       speech.State
	hasState     bool
	unsubscribes []func()
}

// NewPublisher creates a publisher; call Start to begin mirroring
func NewPublisher(control Control, feed SettingsFeed, hub Broadcaster, log *logger.Logger) *Publisher {
	return &Publisher{
		control: control,
		feed:    feed,
		hub:     hub,
		logger:  log.Named("dashboard"),
	}
}

// Start subscribes to the session and the settings feed
func (p *Publisher) Start() {
	stopState := p.control.Subscribe(p.publishState)
	stopSettings := p.feed.Subscribe(p.publishSetting)

	p.mu.Lock()
	p.unsubscribes = append(p.unsubscribes, stopState, stopSettings)
	p.mu.Unlock()
}

// Stop drops both subscriptions
func (p *Publisher) Stop() {
	p.mu.Lock()
	unsubscribes := p.unsubscribes
	p.unsubscribes = nil
	p.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}

// Register routes page commands and greets new pages with the latest state
func (p *Publisher) Register(mux *websocket.Mux) {
	mux.HandleFunc(websocket.MessageTypeSpeechToggle, p.handleToggle)
	mux.HandleFunc(websocket.MessageTypeSpeechSetLanguage, p.handleSetLanguage)
	mux.OnConnect(p.greet)
}

// Latest returns the newest state seen, and whether any was seen
func (p *Publisher) Latest() (speech.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest.Clone(), p.hasState
}

// publishState broadcasts while holding mu so the hub receives snapshots in
// version order; the hub never calls back into the publisher
func (p *Publisher) publishState(state speech.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasState && state.Version < p.latest.Version {
		p.logger.Debug("Dropping stale session state",
			logger.Uint64("version", state.Version),
			logger.Uint64("latest", p.latest.Version))
		return
	}
	p.latest = state.Clone()
	p.hasState = true

	p.hub.Broadcast(stateMessage(state))
}

func (p *Publisher) publishSetting(key, value string) {
	p.hub.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSettingChanged,
		Data: map[string]any{"key": key, "value": value},
	})
}

func (p *Publisher) greet(client websocket.Peer) {
	state, ok := p.Latest()
	if !ok {
		return
	}
	if !client.SendMessage(stateMessage(state)) {
		p.logger.Warn("Failed to send session state to new client",
			logger.String("client_id", client.ID()))
	}
}

func (p *Publisher) handleToggle(client websocket.Peer, _ string, _ map[string]any) error {
	p.logger.Debug("Toggle requested", logger.String("client_id", client.ID()))
	p.control.ToggleListening()
	return nil
}

func (p *Publisher) handleSetLanguage(client websocket.Peer, _ string, data map[string]any) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := websocket.DecodeData(data, &req); err != nil {
		return err
	}
	code := strings.TrimSpace(req.Code)
	if err := recognition.ValidateLanguage(code); err != nil {
		return fmt.Errorf("failed to set language: %w", err)
	}

	p.logger.Debug("Language change requested",
		logger.String("client_id", client.ID()),
		logger.String("language", code))
	p.control.SetLanguage(code)
	return nil
}

func stateMessage(state speech.State) *websocket.Message {
	return &websocket.Message{
		Type: websocket.MessageTypeSpeechState,
		Data: map[string]any{"state": state},
	}
}
