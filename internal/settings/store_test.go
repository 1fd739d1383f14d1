package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-hud/pkg/logger"
)

type failingBackend struct {
	*MemoryBackend
	failGet bool
	failPut bool
}

func (b *failingBackend) All() (map[string]string, error) {
	if b.failGet {
		return nil, errors.New("disk on fire")
	}
	return b.MemoryBackend.All()
}

func (b *failingBackend) Get(key string) (string, bool, error) {
	if b.failGet {
		return "", false, errors.New("disk on fire")
	}
	return b.MemoryBackend.Get(key)
}

func (b *failingBackend) Put(key, value string) error {
	if b.failPut {
		return errors.New("disk full")
	}
	return b.MemoryBackend.Put(key, value)
}

type change struct{ key, value string }

func TestStoreGetMissingKey(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	v, ok := s.Get(LanguageKey)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestStoreSetNotifiesBeforeReturning(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	var got []change
	s.Subscribe(func(key, value string) {
		// the durable write is visible to listeners
		stored, ok := s.Get(key)
		require.True(t, ok)
		assert.Equal(t, value, stored)
		got = append(got, change{key, value})
	})

	s.Set(LanguageKey, "fr-FR")
	s.Set(ListeningKey, "false")

	assert.Equal(t, []change{{LanguageKey, "fr-FR"}, {ListeningKey, "false"}}, got)
}

func TestStoreLastWriteWins(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	s.Set(LanguageKey, "en-US")
	s.Set(LanguageKey, "de-DE")

	v, ok := s.Get(LanguageKey)
	require.True(t, ok)
	assert.Equal(t, "de-DE", v)
}

func TestStoreUnsubscribe(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	calls := 0
	unsubscribe := s.Subscribe(func(string, string) { calls++ })
	s.Set("a", "1")
	unsubscribe()
	unsubscribe()
	s.Set("a", "2")

	assert.Equal(t, 1, calls)
}

func TestStoreListenersRunInRegistrationOrder(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		s.Subscribe(func(string, string) { order = append(order, i) })
	}
	s.Set("k", "v")

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestStoreListenerMayWrite(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil, logger.NewNop())

	s.Subscribe(func(key, value string) {
		if key == "source" {
			s.Set("mirror", value)
		}
	})
	s.Set("source", "x")

	v, ok := s.Get("mirror")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestStoreSwallowsBackendFailures(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend, nil, logger.NewNop())

	s.Set(LanguageKey, "en-US")

	backend.failGet = true
	v, ok := s.Get(LanguageKey)
	assert.False(t, ok)
	assert.Empty(t, v)

	backend.failGet = false
	backend.failPut = true
	notified := false
	s.Subscribe(func(string, string) { notified = true })
	s.Set(LanguageKey, "fr-FR")

	assert.False(t, notified, "failed writes are not announced")
	v, _ = s.Get(LanguageKey)
	assert.Equal(t, "en-US", v)
}

func TestStoreAll(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend, nil, logger.NewNop())
	s.Set(LanguageKey, "en-US")
	s.Set(ListeningKey, "true")

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{LanguageKey: "en-US", ListeningKey: "true"}, all)

	// the copy is detached from the backend
	all[LanguageKey] = "xx"
	v, _ := s.Get(LanguageKey)
	assert.Equal(t, "en-US", v)

	backend.failGet = true
	_, err = s.All()
	assert.Error(t, err)
}
