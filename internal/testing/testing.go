// package testing contains shared testing utilities
package testing

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

// MockCatalog is a scripted test double for [services.Catalog].
//
// Each method delegates to its Func field when set and records the call.
// Unscripted lookups return a minimal attribute row per id so controller
// tests do not have to script the happy path.
type MockCatalog struct {
	LookupFunc func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error)
	ArtistFunc func(ctx context.Context, id string) (*models.Artist, error)
	AlbumFunc  func(ctx context.Context, id string) (*models.Album, error)

	mu      sync.Mutex
	Lookups [][]string
	Artists []string
	Albums  []string
}

func (m *MockCatalog) Name() string { return "mock" }

func (m *MockCatalog) LookupTracks(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
	m.mu.Lock()
	recorded := make([]string, len(ids))
	copy(recorded, ids)
	m.Lookups = append(m.Lookups, recorded)
	m.mu.Unlock()

	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, ids)
	}

	rows := make([]*models.TrackAttributes, len(ids))
	for i, id := range ids {
		rows[i] = &models.TrackAttributes{
			SpotifyTrackID:  id,
			SpotifyTrackURI: "spotify:track:" + id,
			Name:            "Track " + id,
			DurationMS:      200000,
			SpotifyArtistID: "artist-" + id,
			SpotifyAlbumID:  "album-" + id,
			AlbumType:       "album",
			FetchedAt:       time.Unix(0, 0),
		}
	}
	return rows, nil
}

func (m *MockCatalog) Artist(ctx context.Context, id string) (*models.Artist, error) {
	m.mu.Lock()
	m.Artists = append(m.Artists, id)
	m.mu.Unlock()

	if m.ArtistFunc != nil {
		return m.ArtistFunc(ctx, id)
	}
	return &models.Artist{SpotifyArtistID: id, Name: "Artist " + id, FetchedAt: time.Unix(0, 0)}, nil
}

func (m *MockCatalog) Album(ctx context.Context, id string) (*models.Album, error) {
	m.mu.Lock()
	m.Albums = append(m.Albums, id)
	m.mu.Unlock()

	if m.AlbumFunc != nil {
		return m.AlbumFunc(ctx, id)
	}
	return &models.Album{SpotifyAlbumID: id, Name: "Album " + id, FetchedAt: time.Unix(0, 0)}, nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	RoundTripFunc func(*http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}

// SleepRecorder captures backoff waits without sleeping.
type SleepRecorder struct {
	mu    sync.Mutex
	Waits []time.Duration
}

// Sleep records the requested delay and returns immediately (or the context
// error if already cancelled).
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Waits = append(s.Waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
