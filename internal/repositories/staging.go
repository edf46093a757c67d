package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

// StagingRepository owns the fetched catalog rows (tracks, artists, albums,
// artist genres) and the per-worklist resume checkpoint.
//
// Attribute rows are append-only: committed rows are never updated, and
// re-commits of an already staged key are ignored so a resumed run that
// overlaps its predecessor stays idempotent.
type StagingRepository struct {
	db *sql.DB
}

// NewStagingRepository creates a new StagingRepository with the given database connection
func NewStagingRepository(db *sql.DB) *StagingRepository {
	return &StagingRepository{db: db}
}

// Checkpoint returns the stored resume index for the worklist identity.
// The second return is false when no checkpoint has been written yet.
func (r *StagingRepository) Checkpoint(worklist string) (int, bool, error) {
	var index int
	err := r.db.QueryRow(
		"SELECT last_index FROM fetch_checkpoints WHERE worklist = ?", worklist,
	).Scan(&index)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return index, true, nil
}

// CommitBatch persists a batch's rows and advances the checkpoint in a
// single transaction: the checkpoint can never run ahead of durably
// written rows, and a crash mid-commit leaves both untouched.
func (r *StagingRepository) CommitBatch(
	worklist string,
	nextIndex int,
	tracks []*models.TrackAttributes,
	artists []*models.Artist,
	albums []*models.Album,
) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, track := range tracks {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO tracks (spotify_track_id, spotify_track_uri, name,
				duration_ms, popularity, explicit, spotify_album_id, spotify_artist_id,
				album_type, release_date, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
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
			return fmt.Errorf("failed to insert track %s: %w", track.SpotifyTrackID, err)
		}
	}

	for _, artist := range artists {
		if err := insertArtistTx(tx, artist); err != nil {
			return err
		}
	}

	for _, album := range albums {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO albums (spotify_album_id, spotify_artist_id, name,
				album_type, release_date, total_tracks, image_url, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			album.SpotifyAlbumID,
			album.SpotifyArtistID,
			album.Name,
			album.AlbumType,
			album.ReleaseDate,
			album.TotalTracks,
			album.ImageURL,
			album.FetchedAt,
		); err != nil {
			return fmt.Errorf("failed to insert album %s: %w", album.SpotifyAlbumID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO fetch_checkpoints (worklist, last_index, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(worklist) DO UPDATE SET last_index = excluded.last_index, updated_at = excluded.updated_at
	`, worklist, nextIndex, time.Now()); err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func insertArtistTx(tx *sql.Tx, artist *models.Artist) error {
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO artists (spotify_artist_id, name, followers, popularity,
			genres, image_url, fetched_at)
		VALUES (?, ?, ?, ?, '', ?, ?)
	`,
		artist.SpotifyArtistID,
		artist.Name,
		artist.Followers,
		artist.Popularity,
		artist.ImageURL,
		artist.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artist %s: %w", artist.SpotifyArtistID, err)
	}

	// Genre rows only accompany a first insert; an ignored duplicate
	// already has them.
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}

	for i, genre := range artist.Genres {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO artist_genres (spotify_artist_id, genre, position)
			VALUES (?, ?, ?)
		`, artist.SpotifyArtistID, genre, i); err != nil {
			return fmt.Errorf("failed to insert genre for artist %s: %w", artist.SpotifyArtistID, err)
		}
	}
	return nil
}

// HasArtist reports whether the artist has already been staged.
func (r *StagingRepository) HasArtist(id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM artists WHERE spotify_artist_id = ?)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check artist: %w", err)
	}
	return exists, nil
}

// HasAlbum reports whether the album has already been staged.
func (r *StagingRepository) HasAlbum(id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM albums WHERE spotify_album_id = ?)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check album: %w", err)
	}
	return exists, nil
}

// AllTracks reads every staged attribute row, ordered by identifier, as
// reconciliation input.
func (r *StagingRepository) AllTracks() ([]*models.TrackAttributes, error) {
	rows, err := r.db.Query(`
		SELECT spotify_track_id, spotify_track_uri, name, duration_ms, popularity,
			explicit, spotify_album_id, spotify_artist_id, album_type, release_date, fetched_at
		FROM tracks
		ORDER BY spotify_track_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.TrackAttributes
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

func scanTrack(rows *sql.Rows) (*models.TrackAttributes, error) {
	var (
		track     models.TrackAttributes
		albumID   sql.NullString
		artistID  sql.NullString
		albumType sql.NullString
		released  sql.NullString
	)

	err := rows.Scan(
		&track.SpotifyTrackID,
		&track.SpotifyTrackURI,
		&track.Name,
		&track.DurationMS,
		&track.Popularity,
		&track.Explicit,
		&albumID,
		&artistID,
		&albumType,
		&released,
		&track.FetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track.SpotifyAlbumID = albumID.String
	track.SpotifyArtistID = artistID.String
	track.AlbumType = albumType.String
	track.ReleaseDate = released.String
	return &track, nil
}

// Artists reads every staged artist with its genre tags in tag order.
func (r *StagingRepository) Artists() ([]*models.Artist, error) {
	rows, err := r.db.Query(`
		SELECT spotify_artist_id, name, followers, popularity, image_url, fetched_at
		FROM artists
		ORDER BY spotify_artist_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		var (
			artist models.Artist
			image  sql.NullString
		)
		if err := rows.Scan(
			&artist.SpotifyArtistID,
			&artist.Name,
			&artist.Followers,
			&artist.Popularity,
			&image,
			&artist.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artist.ImageURL = image.String
		artists = append(artists, &artist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	genres, err := r.ArtistGenres()
	if err != nil {
		return nil, err
	}
	for _, artist := range artists {
		artist.Genres = genres[artist.SpotifyArtistID]
	}

	return artists, nil
}

// Albums reads every staged album.
func (r *StagingRepository) Albums() ([]*models.Album, error) {
	rows, err := r.db.Query(`
		SELECT spotify_album_id, spotify_artist_id, name, album_type, release_date,
			total_tracks, image_url, fetched_at
		FROM albums
		ORDER BY spotify_album_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		var (
			album     models.Album
			artistID  sql.NullString
			albumType sql.NullString
			released  sql.NullString
			image     sql.NullString
		)
		if err := rows.Scan(
			&album.SpotifyAlbumID,
			&artistID,
			&album.Name,
			&albumType,
			&released,
			&album.TotalTracks,
			&image,
			&album.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		album.SpotifyArtistID = artistID.String
		album.AlbumType = albumType.String
		album.ReleaseDate = released.String
		album.ImageURL = image.String
		albums = append(albums, &album)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}

// ArtistGenres reads the one-to-many genre tag rows keyed by artist, in
// their staged order.
func (r *StagingRepository) ArtistGenres() (map[string][]string, error) {
	rows, err := r.db.Query(`
		SELECT spotify_artist_id, genre
		FROM artist_genres
		ORDER BY spotify_artist_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist genres: %w", err)
	}
	defer rows.Close()

	genres := make(map[string][]string)
	for rows.Next() {
		var artistID, genre string
		if err := rows.Scan(&artistID, &genre); err != nil {
			return nil, fmt.Errorf("failed to scan genre row: %w", err)
		}
		genres[artistID] = append(genres[artistID], genre)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return genres, nil
}

// UpdateArtistGenreSummaries writes the aggregated genre field per artist.
func (r *StagingRepository) UpdateArtistGenreSummaries(summaries map[string]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for artistID, summary := range summaries {
		if _, err := tx.Exec(
			"UPDATE artists SET genres = ? WHERE spotify_artist_id = ?", summary, artistID,
		); err != nil {
			return fmt.Errorf("failed to update genres for artist %s: %w", artistID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit genre summaries: %w", err)
	}
	return nil
}

// RenameArtists applies the duplicate-name disambiguation output.
func (r *StagingRepository) RenameArtists(names map[string]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for artistID, name := range names {
		if _, err := tx.Exec(
			"UPDATE artists SET name = ? WHERE spotify_artist_id = ?", name, artistID,
		); err != nil {
			return fmt.Errorf("failed to rename artist %s: %w", artistID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit artist renames: %w", err)
	}
	return nil
}
