// Package speech runs the speech-recognition session: it owns the single
// live recognizer, keeps it running across host cutoffs, follows language
// changes made through the settings store and broadcasts every state change.
package speech

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yegors/co-hud/internal/observability"
	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/settings"
	"github.com/yegors/co-hud/internal/statemachine"
	"github.com/yegors/co-hud/pkg/logger"
)

// User-facing error texts
const (
	errMicrophoneDenied = "Microphone access denied"
	errRestartFailed    = "Failed to restart speech recognition"
)

// Config holds the recognizer options and startup defaults
type Config struct {
	// DefaultLocale is used when the host reports no default locale
	DefaultLocale string
	// FallbackLocales fill the language list when the host reports none
	FallbackLocales  []string
	Continuous       bool
	InterimResults   bool
	DefaultListening bool
}

// DefaultConfig returns continuous interim recognition that starts listening
// unless told otherwise
func DefaultConfig() Config {
	return Config{
		DefaultLocale:    recognition.FallbackLocale,
		Continuous:       true,
		InterimResults:   true,
		DefaultListening: true,
	}
}

// Listener receives a copy of the session state
type Listener func(state State)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Manager is the recognition session manager. All methods are safe for
// concurrent use and never return errors: failures end up in State.Error.
type Manager struct {
	host    recognition.Host
	store   *settings.Store
	config  Config
	logger  *logger.Logger
	metrics *observability.Metrics

	mu           sync.Mutex
	state        State
	lifecycle    *statemachine.Service[lifecycleContext]
	rec          recognition.Recognizer
	recLanguage  string
	generation   uint64
	initializing bool
	unsubscribe  func()
	listeners    []listenerEntry
	nextListener uint64
}

// NewManager creates an uninitialized manager subscribed to store changes.
// metrics may be nil.
func NewManager(host recognition.Host, store *settings.Store, cfg Config, metrics *observability.Metrics, log *logger.Logger) *Manager {
	m := &Manager{
		host:    host,
		store:   store,
		config:  cfg,
		logger:  log.Named("speech"),
		metrics: metrics,
		state: State{
			Permission: PermissionUnknown,
		},
		lifecycle: newLifecycle(),
	}
	m.state.CurrentLanguage = m.defaultLanguage()

	m.lifecycle.OnTransition(func(snap statemachine.Snapshot[lifecycleContext]) {
		m.logger.Debug("Session phase changed", logger.String("phase", snap.Value))
		m.metrics.SessionTransition(snap.Value)
		m.metrics.SetListening(snap.Value == PhaseListening || snap.Value == PhasePaused)
	})

	m.unsubscribe = store.Subscribe(m.handleSettingChange)
	return m
}

// State returns the current session state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Subscribe registers listener, calls it at once with the current state and
// returns a function that removes it.
func (m *Manager) Subscribe(listener Listener) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: listener})
	current := m.state.Clone()
	m.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, entry := range m.listeners {
				if entry.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Initialize checks the host, builds the first recognizer and resumes
// listening when the persisted intent says so. Calls made while already
// initialized or initializing do nothing.
func (m *Manager) Initialize() {
	m.mu.Lock()
	if m.initializing || m.lifecycle.State() != PhaseUninitialized {
		m.mu.Unlock()
		return
	}
	m.initializing = true
	if m.unsubscribe == nil {
		m.unsubscribe = m.store.Subscribe(m.handleSettingChange)
	}
	m.state.Processing = true
	m.unlockAndPublish()

	if !m.host.Supported() {
		m.failInitialize(recognition.ErrUnsupported)
		return
	}

	languages := recognition.AvailableLanguages(m.hostLocales(), m.defaultLanguage())
	if saved, ok := m.store.Get(settings.LanguageKey); !ok || recognition.ValidateLanguage(saved) != nil {
		lang := m.defaultLanguage()
		m.logger.Info("No saved language, using default", logger.String("language", lang))
		m.store.Set(settings.LanguageKey, lang)
	}

	m.mu.Lock()
	m.state.AvailableLanguages = languages
	if err := m.newInstanceLocked(); err != nil {
		m.mu.Unlock()
		m.failInitialize(err)
		return
	}
	shouldListen := m.listeningIntent()
	m.lifecycle.Send(eventInitialized)
	m.initializing = false
	m.state.Processing = false
	m.unlockAndPublish()

	m.logger.Info("Speech recognition initialized",
		logger.String("language", m.State().CurrentLanguage),
		logger.Bool("resume_listening", shouldListen))

	if shouldListen {
		m.StartListening()
	}
}

// Resume is run whenever the host capability (re)appears. It initializes a
// fresh manager; an idle one drops its recognizer, which belonged to the
// previous host, and starts again when the persisted intent is on.
func (m *Manager) Resume() {
	m.mu.Lock()
	phase := m.lifecycle.State()
	if phase == PhaseUninitialized {
		m.mu.Unlock()
		m.Initialize()
		return
	}
	if phase != PhaseIdle {
		m.mu.Unlock()
		return
	}
	m.discardLocked()
	if languages := m.hostLocales(); len(languages) > 0 {
		m.state.AvailableLanguages = recognition.AvailableLanguages(languages, m.defaultLanguage())
	}
	shouldListen := m.listeningIntent()
	m.unlockAndPublish()

	if shouldListen {
		m.StartListening()
	}
}

func (m *Manager) failInitialize(err error) {
	m.logger.Error("Failed to initialize speech recognition", logger.Error(err))

	m.mu.Lock()
	m.initializing = false
	m.state.Error = fmt.Sprintf("Initialization failed: %v", err)
	m.state.Processing = false
	m.unlockAndPublish()
}

// SetLanguage persists code as the recognition language. The change reaches
// the session through the store notification, before SetLanguage returns.
func (m *Manager) SetLanguage(code string) {
	code = strings.TrimSpace(code)
	if err := recognition.ValidateLanguage(code); err != nil {
		m.logger.Warn("Ignoring invalid language", logger.String("language", code), logger.Error(err))
		return
	}
	m.store.Set(settings.LanguageKey, code)
}

// StartListening starts a fresh session or resumes a paused one
func (m *Manager) StartListening() {
	m.mu.Lock()
	switch m.lifecycle.State() {
	case PhaseUninitialized:
		m.mu.Unlock()
		m.logger.Warn("Cannot start listening: speech recognition not initialized")
		return

	case PhaseListening:
		m.mu.Unlock()
		return

	case PhasePaused:
		// the instance is always rebuilt on resume so it picks up the
		// current language
		m.discardLocked()
		if err := m.newInstanceLocked(); err != nil {
			m.startFailedLocked(err)
			m.unlockAndPublish()
			return
		}
		if err := m.rec.Start(); err != nil {
			m.startFailedLocked(err)
			m.unlockAndPublish()
			return
		}
		m.lifecycle.Send(eventStart)
		m.state.Processing = true

	default:
		// an instance kept across a stop may predate a language change
		if m.rec == nil || m.recLanguage != m.state.CurrentLanguage {
			m.discardLocked()
			if err := m.newInstanceLocked(); err != nil {
				m.startFailedLocked(err)
				m.unlockAndPublish()
				return
			}
		}
		if err := m.rec.Start(); err != nil {
			m.startFailedLocked(err)
			m.unlockAndPublish()
			return
		}
		m.lifecycle.Send(eventStart)
		m.state.Error = ""
	}
	m.unlockAndPublish()

	m.store.Set(settings.ListeningKey, "true")
}

func (m *Manager) startFailedLocked(err error) {
	m.logger.Error("Failed to start speech recognition", logger.Error(err))
	m.state.Error = fmt.Sprintf("Failed to start speech recognition: %v", err)
}

// Pause suspends a running session; the next StartListening resumes it
// with a new recognizer.
func (m *Manager) Pause() {
	m.mu.Lock()
	if m.lifecycle.State() != PhaseListening || m.rec == nil {
		m.mu.Unlock()
		return
	}
	if err := m.rec.Stop(); err != nil {
		m.mu.Unlock()
		m.logger.Error("Error pausing speech recognition", logger.Error(err))
		return
	}
	m.lifecycle.Send(eventPause)
	m.state.Processing = false
	m.discardLocked()
	m.unlockAndPublish()
}

// Stop ends a running or paused session and persists the intent as off
func (m *Manager) Stop() {
	m.mu.Lock()
	phase := m.lifecycle.State()
	if phase != PhaseListening && phase != PhasePaused {
		m.mu.Unlock()
		return
	}
	if m.rec != nil {
		if err := m.rec.Stop(); err != nil {
			m.mu.Unlock()
			m.logger.Error("Error stopping speech recognition", logger.Error(err))
			return
		}
	}
	m.lifecycle.Send(eventStop)
	m.state.Processing = false
	m.unlockAndPublish()

	m.store.Set(settings.ListeningKey, "false")
}

// ToggleListening pauses a running session, otherwise starts or resumes
func (m *Manager) ToggleListening() {
	m.mu.Lock()
	phase := m.lifecycle.State()
	m.mu.Unlock()

	if phase == PhaseListening {
		m.Pause()
		return
	}
	m.StartListening()
}

// Cleanup stops the session, drops the recognizer and the store
// subscription. Only Initialize brings the manager back.
func (m *Manager) Cleanup() {
	m.Stop()

	m.mu.Lock()
	m.discardLocked()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.lifecycle.Send(eventTeardown)
	m.unlockAndPublish()
}

func (m *Manager) handleSettingChange(key, value string) {
	if key != settings.LanguageKey || strings.TrimSpace(value) == "" {
		return
	}

	m.mu.Lock()
	m.state.CurrentLanguage = value
	switch m.lifecycle.State() {
	case PhaseListening:
		// the end event rebuilds the recognizer for the new language
		if m.rec != nil {
			if err := m.rec.Stop(); err != nil {
				m.logger.Error("Error stopping speech recognition for language change", logger.Error(err))
			}
		}
	case PhasePaused:
		m.discardLocked()
	default:
		if m.rec != nil && m.recLanguage != value {
			m.discardLocked()
		}
	}
	m.unlockAndPublish()

	m.logger.Info("Recognition language changed", logger.String("language", value))
}

func (m *Manager) handleEvent(generation uint64, event recognition.Event) {
	m.metrics.RecognizerEvent(string(event.Type))

	m.mu.Lock()
	if generation != m.generation {
		if event.Type != recognition.EventEnd || m.lifecycle.State() == PhaseListening {
			m.mu.Unlock()
			m.logger.Debug("Dropping event from discarded recognizer",
				logger.String("type", string(event.Type)))
			return
		}
		// a discarded recognizer finished; it never restarts
		m.state.Processing = false
		m.unlockAndPublish()
		return
	}

	switch event.Type {
	case recognition.EventStart:
		m.lifecycle.Send(eventHostStarted)
		m.state.Permission = PermissionGranted
		if m.lifecycle.State() == PhaseListening {
			m.state.Processing = true
		}

	case recognition.EventResult:
		m.state.Error = ""
		if transcript := event.Transcript(); transcript != "" {
			m.state.Transcript = transcript
		}
		m.state.Processing = false

	case recognition.EventError:
		m.handleErrorLocked(event)

	case recognition.EventEnd:
		m.handleEndLocked()

	case recognition.EventAudioStart:
		m.state.Permission = PermissionGranted

	default:
		m.mu.Unlock()
		m.logger.Warn("Unknown recognizer event", logger.String("type", string(event.Type)))
		return
	}
	m.unlockAndPublish()
}

func (m *Manager) handleErrorLocked(event recognition.Event) {
	m.metrics.RecognizerError(string(event.Reason))

	switch event.Reason {
	case recognition.ReasonNotAllowed:
		m.logger.Warn("Microphone access denied")
		m.state.Permission = PermissionDenied
		m.state.Error = errMicrophoneDenied
		m.lifecycle.Send(eventDenied)
		m.state.Processing = false

	case recognition.ReasonNoSpeech, recognition.ReasonAborted:
		m.state.Processing = false

	case recognition.ReasonStartFailed:
		// the host accepted the start command but could not run it; no end
		// event follows
		m.logger.Error("Speech recognition failed to start", logger.String("message", event.Message))
		if m.lifecycle.State() == PhaseListening {
			m.restartFailedLocked()
			return
		}
		m.state.Processing = false

	default:
		m.logger.Error("Speech recognition error",
			logger.String("reason", string(event.Reason)),
			logger.String("message", event.Message))
		m.state.Error = fmt.Sprintf("Speech recognition error: %s", event.Reason)
		m.state.Processing = false
	}
}

func (m *Manager) handleEndLocked() {
	if m.lifecycle.State() != PhaseListening {
		m.state.Processing = false
		return
	}

	rebuilt, err := m.restartLocked()
	if err != nil {
		m.logger.Error("Error restarting speech recognition", logger.Error(err))
		m.metrics.Restart(false)
		m.restartFailedLocked()
		return
	}
	m.metrics.Restart(true)
	if !rebuilt {
		m.lifecycle.Send(eventRestarted)
	}
}

func (m *Manager) restartFailedLocked() {
	m.lifecycle.Send(eventRestartFailed)
	m.state.Processing = false
	m.state.Error = errRestartFailed
}

// restartLocked starts the current recognizer again, or a new one when the
// language moved on since it was built. rebuilt reports the latter.
func (m *Manager) restartLocked() (rebuilt bool, err error) {
	if m.rec == nil || m.recLanguage != m.state.CurrentLanguage {
		rebuilt = true
		m.discardLocked()
		if err = m.newInstanceLocked(); err != nil {
			return rebuilt, err
		}
	}
	return rebuilt, m.rec.Start()
}

// newInstanceLocked builds a recognizer for the stored language. Events of
// the new recognizer carry its generation so later ones can be told apart
// from those of discarded instances.
func (m *Manager) newInstanceLocked() error {
	lang := m.storedLanguage()

	m.generation++
	generation := m.generation
	sink := recognition.SinkFunc(func(event recognition.Event) {
		m.handleEvent(generation, event)
	})

	rec, err := m.host.New(recognition.Options{
		Language:       lang,
		Continuous:     m.config.Continuous,
		InterimResults: m.config.InterimResults,
	}, sink)
	if err != nil {
		return fmt.Errorf("failed to create speech recognition instance: %w", err)
	}

	m.rec = rec
	m.recLanguage = lang
	m.state.CurrentLanguage = lang
	m.metrics.InstanceCreated()
	m.logger.Debug("Recognition instance created", logger.String("language", lang))
	return nil
}

func (m *Manager) discardLocked() {
	m.generation++
	if m.rec == nil {
		return
	}
	if err := m.rec.Abort(); err != nil {
		m.logger.Debug("Error releasing recognition instance", logger.Error(err))
	}
	m.rec = nil
	m.recLanguage = ""
}

// storedLanguage re-reads the language setting on every call so writes by
// other producers are honoured
func (m *Manager) storedLanguage() string {
	if lang, ok := m.store.Get(settings.LanguageKey); ok && recognition.ValidateLanguage(lang) == nil {
		return lang
	}
	if m.state.CurrentLanguage != "" {
		return m.state.CurrentLanguage
	}
	return m.defaultLanguage()
}

func (m *Manager) listeningIntent() bool {
	value, ok := m.store.Get(settings.ListeningKey)
	if !ok {
		return m.config.DefaultListening
	}
	return value != "false"
}

func (m *Manager) defaultLanguage() string {
	if lang := m.host.DefaultLocale(); recognition.ValidateLanguage(lang) == nil {
		return lang
	}
	if recognition.ValidateLanguage(m.config.DefaultLocale) == nil {
		return m.config.DefaultLocale
	}
	return recognition.FallbackLocale
}

func (m *Manager) hostLocales() []string {
	if locales := m.host.Locales(); len(locales) > 0 {
		return locales
	}
	return m.config.FallbackLocales
}

// unlockAndPublish projects the lifecycle phase into the state, releases
// the lock and delivers the new snapshot. Listeners run without the lock
// held and may call back into the manager.
func (m *Manager) unlockAndPublish() {
	phase := m.lifecycle.State()
	m.state.Initialized = phase != PhaseUninitialized
	m.state.Listening = phase == PhaseListening || phase == PhasePaused
	m.state.Paused = phase == PhasePaused
	m.state.Restarts = m.lifecycle.Context().Restarts
	m.state.Version++

	snapshot := m.state.Clone()
	listeners := make([]Listener, len(m.listeners))
	for i, entry := range m.listeners {
		listeners[i] = entry.fn
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot.Clone())
	}
}
