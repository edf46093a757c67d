package repositories

import (
	"database/sql"
	"fmt"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
)

// PlayRepository persists listening-history rows and derives the enrichment
// worklist from them.
type PlayRepository struct {
	db *sql.DB
}

// NewPlayRepository creates a new PlayRepository with the given database connection
func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db}
}

// InsertPlays bulk-inserts cleaned listening-history rows in one transaction.
// IDs are generated for rows that do not carry one.
func (r *PlayRepository) InsertPlays(plays []models.Play) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO plays (id, time_ended, ms_played, track_name, artist_name, album_name,
			spotify_track_uri, spotify_artist_id, spotify_album_id,
			reason_started, reason_ended, shuffle, skipped, incognito)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, play := range plays {
		id := play.ID
		if id == "" {
			id = shared.GenerateID()
		}
		if _, err := stmt.Exec(
			id,
			play.TimeEnded,
			play.MSPlayed,
			play.TrackName,
			play.ArtistName,
			play.AlbumName,
			play.SpotifyTrackURI,
			play.SpotifyArtistID,
			play.SpotifyAlbumID,
			play.ReasonStarted,
			play.ReasonEnded,
			play.Shuffle,
			play.Skipped,
			play.Incognito,
		); err != nil {
			return fmt.Errorf("failed to insert play: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plays: %w", err)
	}
	return nil
}

// Count returns the number of listening-history rows.
func (r *PlayRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM plays").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}

// Worklist returns the distinct track URIs of the listening history as an
// ordered lookup worklist. The ordering is by URI so positions are stable
// across runs; a resumed run therefore covers exactly the untouched tail.
func (r *PlayRepository) Worklist() ([]models.LookupKey, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT spotify_track_uri
		FROM plays
		WHERE spotify_track_uri != ''
		ORDER BY spotify_track_uri ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query worklist: %w", err)
	}
	defer rows.Close()

	var keys []models.LookupKey
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan worklist row: %w", err)
		}
		keys = append(keys, models.LookupKey{Index: len(keys), TrackURI: uri})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return keys, nil
}

// EnrichPlayReferences fills the artist and album identifier columns of the
// listening history from the staged tracks table. The export files do not
// carry these IDs, so they only exist after enrichment.
func (r *PlayRepository) EnrichPlayReferences() (int64, error) {
	result, err := r.db.Exec(`
		UPDATE plays SET
			spotify_artist_id = (
				SELECT t.spotify_artist_id FROM tracks t
				WHERE t.spotify_track_uri = plays.spotify_track_uri
			),
			spotify_album_id = (
				SELECT t.spotify_album_id FROM tracks t
				WHERE t.spotify_track_uri = plays.spotify_track_uri
			)
		WHERE EXISTS (
			SELECT 1 FROM tracks t
			WHERE t.spotify_track_uri = plays.spotify_track_uri
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to enrich plays: %w", err)
	}
	return result.RowsAffected()
}

// ApplyTrackMapping rewrites the listening history's track URIs to their
// canonical equivalents using the track_mapping table. This is the
// downstream foreign-key rewrite; the reconciliation engine itself never
// touches dependent tables.
func (r *PlayRepository) ApplyTrackMapping() (int64, error) {
	result, err := r.db.Exec(`
		UPDATE plays SET spotify_track_uri = (
			SELECT c.spotify_track_uri
			FROM tracks o
			JOIN track_mapping m ON m.old_track_id = o.spotify_track_id
			JOIN tracks_consolidated c ON c.spotify_track_id = m.new_track_id
			WHERE o.spotify_track_uri = plays.spotify_track_uri
		)
		WHERE EXISTS (
			SELECT 1 FROM tracks o
			JOIN track_mapping m ON m.old_track_id = o.spotify_track_id
			WHERE o.spotify_track_uri = plays.spotify_track_uri
			  AND m.old_track_id != m.new_track_id
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to apply track mapping: %w", err)
	}
	return result.RowsAffected()
}
