// Package settings is the key-value store behind user preferences: durable
// string values plus synchronous change notification.
package settings

import (
	"sort"
	"sync"

	"github.com/yegors/co-hud/internal/observability"
	"github.com/yegors/co-hud/pkg/logger"
)

// Reserved keys
const (
	LanguageKey  = "speech-recognition-language"
	ListeningKey = "speech-recognition-listening"
)

// Backend is the durable medium under the store
type Backend interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	All() (map[string]string, error)
	Close() error
}

// Listener is called with every successfully written key and value
type Listener func(key, value string)

// Store wraps a Backend with best-effort semantics and change notification
type Store struct {
	backend Backend
	logger  *logger.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// NewStore creates a store over backend. metrics may be nil.
func NewStore(backend Backend, metrics *observability.Metrics, log *logger.Logger) *Store {
	return &Store{
		backend:   backend,
		logger:    log.Named("settings"),
		metrics:   metrics,
		listeners: make(map[uint64]Listener),
	}
}

// Get returns the stored value. Backend failures are logged and reported as
// not found.
func (s *Store) Get(key string) (string, bool) {
	value, ok, err := s.backend.Get(key)
	if err != nil {
		s.logger.Error("Failed to read setting", logger.String("key", key), logger.Error(err))
		s.metrics.SettingsOperation("get", "error")
		return "", false
	}
	s.metrics.SettingsOperation("get", "ok")
	return value, ok
}

// All returns every stored setting
func (s *Store) All() (map[string]string, error) {
	values, err := s.backend.All()
	if err != nil {
		s.logger.Error("Failed to list settings", logger.Error(err))
		s.metrics.SettingsOperation("list", "error")
		return nil, err
	}
	s.metrics.SettingsOperation("list", "ok")
	return values, nil
}

// Set writes value durably and then notifies every current subscriber before
// returning. When the write fails the error is logged and nobody is notified.
func (s *Store) Set(key, value string) {
	if err := s.backend.Put(key, value); err != nil {
		s.logger.Error("Failed to write setting", logger.String("key", key), logger.Error(err))
		s.metrics.SettingsOperation("set", "error")
		return
	}
	s.metrics.SettingsOperation("set", "ok")

	s.logger.Debug("Setting changed", logger.String("key", key), logger.String("value", value))
	for _, listener := range s.snapshotListeners() {
		listener(key, value)
	}
}

// Subscribe registers listener and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// snapshotListeners copies listeners in registration order so they can be
// called without holding the lock; a listener may subscribe or write.
func (s *Store) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
