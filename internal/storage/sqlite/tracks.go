package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/co-hud/pkg/logger"
)

// DefaultRecentTracks is the page size used when the caller passes none
const DefaultRecentTracks = 10

// TrackRecord is a music player track remembered across restarts
type TrackRecord struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	LastPlayed     time.Time `json:"last_played"`
	IsCurrentTrack bool      `json:"is_current_track"`
}

// TrackStorage handles storage of recently played tracks
type TrackStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTrackStorage creates the music_tracks table if needed
func NewTrackStorage(db *sql.DB, log *logger.Logger) (*TrackStorage, error) {
	storage := &TrackStorage{
		db:     db,
		logger: log.Named("sqlite-tracks"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *TrackStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS music_tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			last_played TIMESTAMP NOT NULL,
			is_current_track BOOLEAN NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create music_tracks table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tracks_name ON music_tracks(name)`)
	if err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_tracks_last_played ON music_tracks(last_played)`)
	if err != nil {
		return fmt.Errorf("failed to create last_played index: %w", err)
	}

	return nil
}

// SaveTrack records a play of track. A track with the same name is updated
// in place, otherwise a new record is appended. When the track is current,
// every other track stops being current.
func (s *TrackStorage) SaveTrack(track *TrackRecord) (int64, error) {
	if track.Name == "" {
		return 0, fmt.Errorf("track name is required")
	}
	if track.LastPlayed.IsZero() {
		track.LastPlayed = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if track.IsCurrentTrack {
		if _, err := tx.Exec(`UPDATE music_tracks SET is_current_track = 0 WHERE is_current_track = 1`); err != nil {
			return 0, fmt.Errorf("failed to clear current track: %w", err)
		}
	}

	lastPlayed := track.LastPlayed.UTC().Format(timeLayout)

	var id int64
	err = tx.QueryRow(`SELECT id FROM music_tracks WHERE name = ? ORDER BY id LIMIT 1`, track.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.Exec(
			`INSERT INTO music_tracks (name, url, last_played, is_current_track) VALUES (?, ?, ?, ?)`,
			track.Name, track.URL, lastPlayed, track.IsCurrentTrack,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert track: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get last insert ID: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up track: %w", err)
	default:
		_, err = tx.Exec(
			`UPDATE music_tracks SET last_played = ?, is_current_track = ? WHERE id = ?`,
			lastPlayed, track.IsCurrentTrack, id,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit track: %w", err)
	}

	track.ID = id
	s.logger.Debug("Track saved",
		logger.Int64("id", id),
		logger.String("name", track.Name),
		logger.Bool("current", track.IsCurrentTrack))
	return id, nil
}

// CurrentTrack returns the current track, or nil when there is none
func (s *TrackStorage) CurrentTrack() (*TrackRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, url, last_played, is_current_track
		FROM music_tracks
		WHERE is_current_track = 1
		ORDER BY last_played DESC
		LIMIT 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query current track: %w", err)
	}
	defer rows.Close()

	tracks, err := scanTracks(rows)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return tracks[0], nil
}

// LastPlayedTracks returns up to limit tracks, most recently played first
func (s *TrackStorage) LastPlayedTracks(limit int) ([]*TrackRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentTracks
	}

	rows, err := s.db.Query(
		`SELECT id, name, url, last_played, is_current_track
		FROM music_tracks
		ORDER BY last_played DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	return scanTracks(rows)
}

func scanTracks(rows *sql.Rows) ([]*TrackRecord, error) {
	var tracks []*TrackRecord
	for rows.Next() {
		var record TrackRecord
		var lastPlayed string

		if err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.URL,
			&lastPlayed,
			&record.IsCurrentTrack,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, lastPlayed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_played: %w", err)
		}
		record.LastPlayed = parsed

		tracks = append(tracks, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}
	return tracks, nil
}
