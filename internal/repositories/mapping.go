package repositories

import (
	"database/sql"
	"fmt"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

// MappingRepository owns the reconciliation outputs: the identifier-rewrite
// table and the consolidated (deduplicated) track table.
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a new MappingRepository with the given database connection
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// ReplaceMapping rebuilds the track_mapping table from a reconciliation run.
func (r *MappingRepository) ReplaceMapping(mapping []models.TrackMapping) error {
	return replaceAll(r.db, "track_mapping", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO track_mapping (old_track_id, new_track_id) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare mapping insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range mapping {
			if _, err := stmt.Exec(m.OldTrackID, m.NewTrackID); err != nil {
				return fmt.Errorf("failed to insert mapping %s: %w", m.OldTrackID, err)
			}
		}
		return nil
	})
}

// ReplaceConsolidated rebuilds the tracks_consolidated table from the
// canonical rows of a reconciliation run.
func (r *MappingRepository) ReplaceConsolidated(tracks []*models.TrackAttributes) error {
	return replaceAll(r.db, "tracks_consolidated", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO tracks_consolidated (spotify_track_id, spotify_track_uri, name,
				duration_ms, popularity, explicit, spotify_album_id, spotify_artist_id,
				album_type, release_date, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare consolidated insert: %w", err)
		}
		defer stmt.Close()

		for _, track := range tracks {
			if _, err := stmt.Exec(
				track.SpotifyTrackID,
				track.SpotifyTrackURI,
				track.Name,
				track.DurationMS,
				track.Popularity,
				track.Explicit,
				track.SpotifyAlbumID,
				track.SpotifyArtistID,
				track.AlbumType,
				track.ReleaseDate,
				track.FetchedAt,
			); err != nil {
				return fmt.Errorf("failed to insert consolidated track %s: %w", track.SpotifyTrackID, err)
			}
		}
		return nil
	})
}

// Mapping reads the identifier-rewrite table keyed by old identifier.
func (r *MappingRepository) Mapping() ([]models.TrackMapping, error) {
	rows, err := r.db.Query("SELECT old_track_id, new_track_id FROM track_mapping ORDER BY old_track_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	defer rows.Close()

	var mapping []models.TrackMapping
	for rows.Next() {
		var m models.TrackMapping
		if err := rows.Scan(&m.OldTrackID, &m.NewTrackID); err != nil {
			return nil, fmt.Errorf("failed to scan mapping row: %w", err)
		}
		mapping = append(mapping, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return mapping, nil
}
