package websocket

import (
	"sync"

	"github.com/yegors/co-hud/pkg/logger"
)

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(client Peer, messageType string, data map[string]any) error

// HandleMessage calls f
func (f HandlerFunc) HandleMessage(client Peer, messageType string, data map[string]any) error {
	return f(client, messageType, data)
}

// Mux routes incoming messages by type and fans connection events out to
// every registered hook.
type Mux struct {
	mu           sync.RWMutex
	handlers     map[string]MessageHandler
	onConnect    []func(Peer)
	onDisconnect []func(Peer)
	logger       *logger.Logger
}

// NewMux returns an empty router
func NewMux(log *logger.Logger) *Mux {
	return &Mux{
		handlers: make(map[string]MessageHandler),
		logger:   log.Named("ws-mux"),
	}
}

// Handle registers handler for messageType, replacing any previous one
func (m *Mux) Handle(messageType string, handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[messageType] = handler
}

// HandleFunc registers fn for messageType
func (m *Mux) HandleFunc(messageType string, fn func(client Peer, messageType string, data map[string]any) error) {
	m.Handle(messageType, HandlerFunc(fn))
}

// OnConnect adds a hook run for every new client
func (m *Mux) OnConnect(fn func(client Peer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

// OnDisconnect adds a hook run when a client goes away
func (m *Mux) OnDisconnect(fn func(client Peer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = append(m.onDisconnect, fn)
}

// HandleMessage dispatches to the handler registered for messageType.
// Unknown types are logged and ignored.
func (m *Mux) HandleMessage(client Peer, messageType string, data map[string]any) error {
	m.mu.RLock()
	handler, ok := m.handlers[messageType]
	m.mu.RUnlock()

	if !ok {
		m.logger.Debug("Unhandled message type", logger.String("type", messageType))
		return nil
	}
	return handler.HandleMessage(client, messageType, data)
}

// HandleConnect runs the connect hooks in registration order
func (m *Mux) HandleConnect(client Peer) {
	m.mu.RLock()
	hooks := append([]func(Peer){}, m.onConnect...)
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(client)
	}
}

// HandleDisconnect runs the disconnect hooks in registration order
func (m *Mux) HandleDisconnect(client Peer) {
	m.mu.RLock()
	hooks := append([]func(Peer){}, m.onDisconnect...)
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook(client)
	}
}
