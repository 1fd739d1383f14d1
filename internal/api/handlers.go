package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/co-hud/internal/config"
	"github.com/yegors/co-hud/internal/recognition"
	"github.com/yegors/co-hud/internal/settings"
	"github.com/yegors/co-hud/internal/speech"
	"github.com/yegors/co-hud/internal/storage/sqlite"
	"github.com/yegors/co-hud/pkg/logger"
)

// SpeechControl is the session surface exposed over HTTP
type SpeechControl interface {
	State() speech.State
	Initialize()
	StartListening()
	Pause()
	Stop()
	ToggleListening()
	SetLanguage(code string)
}

// SettingsStore is the key-value surface exposed over HTTP
type SettingsStore interface {
	All() (map[string]string, error)
	Get(key string) (string, bool)
	Set(key, value string)
}

// TrackStore keeps the music player's recent tracks
type TrackStore interface {
	SaveTrack(track *sqlite.TrackRecord) (int64, error)
	CurrentTrack() (*sqlite.TrackRecord, error)
	LastPlayedTracks(limit int) ([]*sqlite.TrackRecord, error)
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

const maxBodyBytes = 64 << 10

// Handler contains the API handlers
type Handler struct {
	speech   SpeechControl
	settings SettingsStore
	tracks   TrackStore
	clients  ClientCounter
	config   *config.Config
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(speechControl SpeechControl, settingsStore SettingsStore, tracks TrackStore, clients ClientCounter, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		speech:   speechControl,
		settings: settingsStore,
		tracks:   tracks,
		clients:  clients,
		config:   cfg,
		logger:   log.Named("api-handler"),
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	state := h.speech.State()

	response := map[string]any{
		"status": "ok",
		"speech": map[string]any{
			"initialized": state.Initialized,
			"listening":   state.Listening,
			"paused":      state.Paused,
		},
		"ws_clients": h.clients.ClientCount(),
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	publicConfig := map[string]any{
		"speech": map[string]any{
			"default_locale":    h.config.Speech.DefaultLocale,
			"fallback_locales":  h.config.Speech.FallbackLocales,
			"continuous":        h.config.Speech.ContinuousEnabled(),
			"interim_results":   h.config.Speech.InterimResultsEnabled(),
			"default_listening": h.config.Speech.ListeningByDefault(),
		},
		"storage": map[string]any{
			"settings_backend":    h.config.Storage.SettingsBackend,
			"recent_tracks_limit": h.config.Storage.RecentTracksLimit,
		},
		"metrics": map[string]any{
			"enabled": h.config.Metrics.Enabled,
			"path":    h.config.Metrics.Path,
		},
	}

	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetSpeechState returns the current session state
func (h *Handler) GetSpeechState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.speech.State())
}

// speechAction runs a session operation and answers with the resulting state
func (h *Handler) speechAction(name string, action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("Speech action requested", logger.String("action", name))
		action()
		WriteJSON(w, http.StatusOK, h.speech.State())
	}
}

// InitializeSpeech initializes the session
func (h *Handler) InitializeSpeech(w http.ResponseWriter, r *http.Request) {
	h.speechAction("initialize", h.speech.Initialize)(w, r)
}

// StartSpeech starts or resumes listening
func (h *Handler) StartSpeech(w http.ResponseWriter, r *http.Request) {
	h.speechAction("start", h.speech.StartListening)(w, r)
}

// PauseSpeech pauses listening
func (h *Handler) PauseSpeech(w http.ResponseWriter, r *http.Request) {
	h.speechAction("pause", h.speech.Pause)(w, r)
}

// StopSpeech stops listening
func (h *Handler) StopSpeech(w http.ResponseWriter, r *http.Request) {
	h.speechAction("stop", h.speech.Stop)(w, r)
}

// ToggleSpeech toggles listening
func (h *Handler) ToggleSpeech(w http.ResponseWriter, r *http.Request) {
	h.speechAction("toggle", h.speech.ToggleListening)(w, r)
}

// SetSpeechLanguage changes the recognition language
func (h *Handler) SetSpeechLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.TrimSpace(req.Code)
	if err := recognition.ValidateLanguage(code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.speech.SetLanguage(code)
	WriteJSON(w, http.StatusOK, h.speech.State())
}

// ListSettings returns every stored setting
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	values, err := h.settings.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list settings")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"settings": values,
		"count":    len(values),
	})
}

// GetSetting returns a single setting
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, ok := h.settings.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("setting %s not found", key))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// PutSetting writes a single setting
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req struct {
		Value *string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := validateSetting(key, *req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.settings.Set(key, *req.Value)
	h.logger.Debug("Setting written over HTTP", logger.String("key", key))
	WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": *req.Value})
}

func validateSetting(key, value string) error {
	switch key {
	case settings.LanguageKey:
		return recognition.ValidateLanguage(value)
	case settings.ListeningKey:
		if value != "true" && value != "false" {
			return fmt.Errorf("%s must be \"true\" or \"false\"", key)
		}
	}
	return nil
}

// GetRecentTracks returns the most recently played tracks
func (h *Handler) GetRecentTracks(w http.ResponseWriter, r *http.Request) {
	limit := h.config.Storage.RecentTracksLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	tracks, err := h.tracks.LastPlayedTracks(limit)
	if err != nil {
		h.logger.Error("Failed to load recent tracks", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load recent tracks")
		return
	}
	if tracks == nil {
		tracks = []*sqlite.TrackRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"tracks": tracks,
		"count":  len(tracks),
	})
}

// GetCurrentTrack returns the current track
func (h *Handler) GetCurrentTrack(w http.ResponseWriter, r *http.Request) {
	track, err := h.tracks.CurrentTrack()
	if err != nil {
		h.logger.Error("Failed to load current track", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load current track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "no current track")
		return
	}

	WriteJSON(w, http.StatusOK, track)
}

// SaveTrack records a played track
func (h *Handler) SaveTrack(w http.ResponseWriter, r *http.Request) {
	var track sqlite.TrackRecord
	if err := decodeJSON(r, &track); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	track.Name = strings.TrimSpace(track.Name)
	if track.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if _, err := h.tracks.SaveTrack(&track); err != nil {
		h.logger.Error("Failed to save track", logger.Error(err), logger.String("name", track.Name))
		writeError(w, http.StatusInternalServerError, "failed to save track")
		return
	}

	WriteJSON(w, http.StatusCreated, track)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
