package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yegors/co-hud/internal/observability"
	"github.com/yegors/co-hud/pkg/logger"
)

// Message types pushed to the HUD page
const (
	MessageTypeSpeechState    = "speech_state"
	MessageTypeSettingChanged = "setting_changed"
	MessageTypeError          = "error"
)

// Message types sent by the HUD page
const (
	MessageTypeSpeechToggle      = "speech.toggle"
	MessageTypeSpeechSetLanguage = "speech.set_language"
)

// Recognizer bridge message types
const (
	MessageTypeRecognizerHello  = "recognizer.hello"  // page -> server: capability and locales
	MessageTypeRecognizerCreate = "recognizer.create" // server -> page
	MessageTypeRecognizerStart  = "recognizer.start"  // server -> page
	MessageTypeRecognizerStop   = "recognizer.stop"   // server -> page
	MessageTypeRecognizerAbort  = "recognizer.abort"  // server -> page
	MessageTypeRecognizerEvent  = "recognizer.event"  // page -> server
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Peer is one connected page as seen by message handlers
type Peer interface {
	ID() string
	SendMessage(message *Message) bool
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client Peer, messageType string, data map[string]any) error
}

// ConnectHandler is implemented by handlers that want to greet new clients
type ConnectHandler interface {
	HandleConnect(client Peer)
}

// DisconnectHandler is implemented by handlers that track clients
type DisconnectHandler interface {
	HandleDisconnect(client Peer)
}

// Client represents a WebSocket client
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server represents a WebSocket server
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	done           chan struct{}
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	metrics        *observability.Metrics
	mu             sync.RWMutex
	messageHandler MessageHandler // Handler for incoming messages
}

// NewServer creates a new WebSocket server. An empty allowedOrigins list
// accepts every origin. metrics may be nil.
func NewServer(allowedOrigins []string, metrics *observability.Metrics, log *logger.Logger) *Server {
	s := &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message),
		done:       make(chan struct{}),
		logger:     log.Named("web-socket"),
		metrics:    metrics,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || set[origin]
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

func (s *Server) handler() MessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageHandler
}

// Run serves the hub until ctx is cancelled, then closes every client
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.Close()
			}
			s.mu.Unlock()
			s.metrics.SetWSClients(0)
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.metrics.SetWSClients(clientCount)
			s.logger.Debug("Client registered",
				String("client_id", client.id),
				Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				// Mark client as closed first to prevent new messages
				client.mu.Lock()
				if !client.closed {
					client.closed = true
					close(client.send)
				}
				client.mu.Unlock()
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.metrics.SetWSClients(clientCount)
			s.logger.Debug("Client unregistered",
				String("client_id", client.id),
				Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				client.mu.Lock()
				if client.closed {
					clientsToRemove = append(clientsToRemove, client)
					client.mu.Unlock()
					continue
				}
				select {
				case client.send <- message:
				default:
					// Channel is full, mark for removal
					clientsToRemove = append(clientsToRemove, client)
				}
				client.mu.Unlock()
			}
			s.mu.RUnlock()

			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.mu.Lock()
						if !client.closed {
							client.closed = true
							close(client.send)
						}
						client.mu.Unlock()
					}
				}
				clientCount := len(s.clients)
				s.mu.Unlock()
				s.metrics.SetWSClients(clientCount)
			}
		}
	}
}

// HandleConnection upgrades the request and starts the client pumps
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan *Message, sendBufferSize),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()

	if h, ok := s.handler().(ConnectHandler); ok {
		h.HandleConnect(client)
	}
}

// Broadcast sends a message to all connected clients. It returns at once
// when the hub has stopped.
func (s *Server) Broadcast(message *Message) {
	s.logger.Debug("Broadcasting message to all clients",
		String("message_type", message.Type),
		Int("client_count", s.ClientCount()))

	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}

// ClientCount returns the number of registered clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ID returns the client's connection id
func (c *Client) ID() string {
	return c.id
}

// readPump pumps messages from the WebSocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		if h, ok := c.server.handler().(DisconnectHandler); ok {
			h.HandleDisconnect(c)
		}
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			return
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", Error(err))
			continue
		}
		c.server.metrics.WSMessage("in", message.Type)

		c.server.logger.Debug("Received WebSocket message",
			String("type", message.Type),
			String("client_id", c.id))

		if handler := c.server.handler(); handler != nil {
			if err := handler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					Error(err),
					String("type", message.Type))
				c.SendMessage(&Message{
					Type: MessageTypeError,
					Data: map[string]any{"type": message.Type, "error": err.Error()},
				})
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Debug("Failed to write message", Error(err), String("client_id", c.id))
				return
			}
			c.server.metrics.WSMessage("out", message.Type)

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closeChan:
		return
	default:
	}

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage queues a message for this client only. It reports false when
// the client is gone or its buffer is full.
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// DecodeData converts a message payload into v
func DecodeData(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode message data: %w", err)
	}
	return nil
}

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)
