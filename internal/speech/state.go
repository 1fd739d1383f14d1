package speech

import "github.com/yegors/co-hud/internal/recognition"

// Permission is the tri-state microphone permission
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// State is the session snapshot delivered to subscribers
type State struct {
	Initialized        bool                   `json:"initialized"`
	Listening          bool                   `json:"listening"`
	Paused             bool                   `json:"paused"`
	Permission         Permission             `json:"has_permission"`
	Processing         bool                   `json:"processing"`
	Error              string                 `json:"error,omitempty"`
	Transcript         string                 `json:"transcript"`
	CurrentLanguage    string                 `json:"current_language"`
	AvailableLanguages []recognition.Language `json:"available_languages"`
	Restarts           int                    `json:"restarts"`
	Version            uint64                 `json:"version"`
}

// Clone returns a copy that shares nothing mutable with s
func (s State) Clone() State {
	if s.AvailableLanguages != nil {
		langs := make([]recognition.Language, len(s.AvailableLanguages))
		copy(langs, s.AvailableLanguages)
		s.AvailableLanguages = langs
	}
	return s
}

// HasPermission reports whether microphone permission is known to be granted
func (s State) HasPermission() bool {
	return s.Permission == PermissionGranted
}
