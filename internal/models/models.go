// package models defines the data model for the listening history database
package models

import (
	"fmt"
	"strings"
	"time"
)

// Play represents a single listening-history row from the Spotify export.
type Play struct {
	ID              string
	TimeEnded       time.Time
	MSPlayed        int
	TrackName       string
	ArtistName      string
	AlbumName       string
	SpotifyTrackURI string
	SpotifyArtistID string
	SpotifyAlbumID  string
	ReasonStarted   string
	ReasonEnded     string
	Shuffle         bool
	Skipped         bool
	Incognito       bool
}

// LookupKey is one entry of the batch-fetch worklist: a catalog identifier
// plus its stable position. Positions are assigned once from the ordered
// worklist query and never change across resumed runs.
type LookupKey struct {
	Index    int
	TrackURI string
}

// TrackID extracts the bare catalog identifier from a spotify:track: URI.
// Bare identifiers pass through unchanged.
func (k LookupKey) TrackID() string {
	if idx := strings.LastIndex(k.TrackURI, ":"); idx >= 0 {
		return k.TrackURI[idx+1:]
	}
	return k.TrackURI
}

// TrackAttributes is the result of one successful catalog lookup: the
// attribute row staged for reconciliation. Rows are never mutated after
// insertion; corrections are new rows.
type TrackAttributes struct {
	SpotifyTrackID  string
	SpotifyTrackURI string
	Name            string
	DurationMS      int
	Popularity      int
	Explicit        bool
	SpotifyAlbumID  string
	SpotifyArtistID string
	AlbumType       string
	ReleaseDate     string
	FetchedAt       time.Time
}

// Validate checks that the fields reconciliation groups and ranks on are present.
func (t *TrackAttributes) Validate() error {
	if t.SpotifyTrackID == "" {
		return fmt.Errorf("track missing identifier")
	}
	if t.SpotifyArtistID == "" {
		return fmt.Errorf("track %s missing artist identifier", t.SpotifyTrackID)
	}
	if t.Name == "" {
		return fmt.Errorf("track %s missing name", t.SpotifyTrackID)
	}
	return nil
}

// Artist represents a catalog artist with its genre tags.
type Artist struct {
	SpotifyArtistID string
	Name            string
	Followers       int
	Popularity      int
	Genres          []string
	ImageURL        string
	FetchedAt       time.Time
}

// Album represents a catalog album.
type Album struct {
	SpotifyAlbumID  string
	SpotifyArtistID string
	Name            string
	AlbumType       string
	ReleaseDate     string
	TotalTracks     int
	ImageURL        string
	FetchedAt       time.Time
}

// TrackMapping is one row of the identifier-rewrite table. Canonical rows
// map to themselves so every staged identifier appears exactly once.
type TrackMapping struct {
	OldTrackID string
	NewTrackID string
}
