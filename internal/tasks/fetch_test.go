package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/services"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
	tu "github.com/christophercarney2/Spotify-Listening-History-Database/internal/testing"
)

// memStore is an in-memory StagingStore that records commits.
type memStore struct {
	checkpoints map[string]int
	tracks      map[string]*models.TrackAttributes
	artists     map[string]*models.Artist
	albums      map[string]*models.Album
	commits     int
	commitErr   error
}

func newMemStore() *memStore {
	return &memStore{
		checkpoints: make(map[string]int),
		tracks:      make(map[string]*models.TrackAttributes),
		artists:     make(map[string]*models.Artist),
		albums:      make(map[string]*models.Album),
	}
}

func (s *memStore) Checkpoint(worklist string) (int, bool, error) {
	index, found := s.checkpoints[worklist]
	return index, found, nil
}

func (s *memStore) HasArtist(id string) (bool, error) {
	_, found := s.artists[id]
	return found, nil
}

func (s *memStore) HasAlbum(id string) (bool, error) {
	_, found := s.albums[id]
	return found, nil
}

func (s *memStore) CommitBatch(worklist string, nextIndex int, tracks []*models.TrackAttributes, artists []*models.Artist, albums []*models.Album) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	for _, track := range tracks {
		s.tracks[track.SpotifyTrackID] = track
	}
	for _, artist := range artists {
		s.artists[artist.SpotifyArtistID] = artist
	}
	for _, album := range albums {
		s.albums[album.SpotifyAlbumID] = album
	}
	s.checkpoints[worklist] = nextIndex
	s.commits++
	return nil
}

func makeWorklist(n int) []models.LookupKey {
	keys := make([]models.LookupKey, n)
	for i := range keys {
		keys[i] = models.LookupKey{Index: i, TrackURI: fmt.Sprintf("spotify:track:t%02d", i)}
	}
	return keys
}

func testController(catalog services.Catalog, store StagingStore, sleeper *tu.SleepRecorder) *FetchController {
	return NewFetchController(FetchControllerOpts{
		Catalog: catalog,
		Store:   store,
		Backoff: BackoffPolicy{BaseDelay: 10 * time.Millisecond, Multiplier: 2.0, MaxAttempts: 3},
		Sleep:   sleeper.Sleep,
	})
}

func TestFetchController(t *testing.T) {
	ctx := context.Background()

	t.Run("Completes Worklist In Order", func(t *testing.T) {
		catalog := &tu.MockCatalog{}
		store := newMemStore()
		controller := testController(catalog, store, &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", makeWorklist(10), 0, 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Reason != Completed {
			t.Errorf("expected Completed, got %s", result.Reason)
		}
		if result.Processed != 10 {
			t.Errorf("expected 10 processed, got %d", result.Processed)
		}
		if result.NextIndex != 10 {
			t.Errorf("expected next index 10, got %d", result.NextIndex)
		}
		if len(catalog.Lookups) != 4 {
			t.Fatalf("expected 4 batches, got %d", len(catalog.Lookups))
		}
		if got := catalog.Lookups[0]; len(got) != 3 || got[0] != "t00" {
			t.Errorf("unexpected first batch: %v", got)
		}
		if got := catalog.Lookups[3]; len(got) != 1 || got[0] != "t09" {
			t.Errorf("unexpected final batch: %v", got)
		}
		if store.checkpoints["tracks"] != 10 {
			t.Errorf("expected checkpoint 10, got %d", store.checkpoints["tracks"])
		}
		if len(store.tracks) != 10 {
			t.Errorf("expected 10 staged tracks, got %d", len(store.tracks))
		}
	})

	t.Run("Halts On Rate Limit And Resumes Without Gaps", func(t *testing.T) {
		worklist := makeWorklist(10)
		store := newMemStore()

		throttled := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				if ids[0] == "t03" {
					return nil, &services.RateLimitError{}
				}
				return (&tu.MockCatalog{}).LookupTracks(ctx, ids)
			},
		}
		controller := testController(throttled, store, &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", worklist, 0, 3)
		if err != nil {
			t.Fatalf("rate-limit halt should not return an error, got %v", err)
		}
		if result.Reason != RateLimited {
			t.Errorf("expected RateLimited, got %s", result.Reason)
		}
		if result.Processed != 3 {
			t.Errorf("expected 3 processed before the halt, got %d", result.Processed)
		}
		if result.NextIndex != 3 {
			t.Fatalf("expected resume index 3, got %d", result.NextIndex)
		}
		if store.checkpoints["tracks"] != 3 {
			t.Errorf("checkpoint should stay at the last committed batch, got %d", store.checkpoints["tracks"])
		}

		// Second run from the reported index covers the rest exactly once.
		controller = testController(&tu.MockCatalog{}, store, &tu.SleepRecorder{})
		result, err = controller.Run(ctx, "tracks", worklist, result.NextIndex, 3)
		if err != nil {
			t.Fatalf("expected no error on resume, got %v", err)
		}
		if result.Reason != Completed {
			t.Errorf("expected Completed, got %s", result.Reason)
		}
		if result.Processed != 7 {
			t.Errorf("expected 7 processed on resume, got %d", result.Processed)
		}
		if len(store.tracks) != 10 {
			t.Errorf("expected all 10 tracks staged after resume, got %d", len(store.tracks))
		}
	})

	t.Run("Records Missing Tracks And Continues", func(t *testing.T) {
		catalog := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				rows, _ := (&tu.MockCatalog{}).LookupTracks(ctx, ids)
				for i, id := range ids {
					if id == "t01" {
						rows[i] = nil
					}
				}
				return rows, nil
			},
		}
		store := newMemStore()
		controller := testController(catalog, store, &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", makeWorklist(4), 0, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Reason != Completed {
			t.Errorf("expected Completed, got %s", result.Reason)
		}
		if len(result.NotFound) != 1 || result.NotFound[0] != "spotify:track:t01" {
			t.Errorf("expected t01 recorded as absent, got %v", result.NotFound)
		}
		if result.Processed != 4 {
			t.Errorf("a missing track still counts as processed, got %d", result.Processed)
		}
		if _, staged := store.tracks["t01"]; staged {
			t.Error("missing track should not be staged")
		}
	})

	t.Run("Retries With Growing Backoff", func(t *testing.T) {
		attempts := 0
		catalog := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				attempts++
				if attempts < 3 {
					return nil, fmt.Errorf("%w: gateway timeout", services.ErrTransient)
				}
				return (&tu.MockCatalog{}).LookupTracks(ctx, ids)
			},
		}
		sleeper := &tu.SleepRecorder{}
		controller := testController(catalog, newMemStore(), sleeper)

		result, err := controller.Run(ctx, "tracks", makeWorklist(2), 0, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Reason != Completed {
			t.Errorf("expected Completed after retries, got %s", result.Reason)
		}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
		if len(sleeper.Waits) != len(want) {
			t.Fatalf("expected %d waits, got %v", len(want), sleeper.Waits)
		}
		for i, wait := range want {
			if sleeper.Waits[i] != wait {
				t.Errorf("wait %d: expected %v, got %v", i, wait, sleeper.Waits[i])
			}
		}
	})

	t.Run("Honors Server-Suggested Wait", func(t *testing.T) {
		attempts := 0
		catalog := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				attempts++
				if attempts == 1 {
					return nil, &services.RateLimitError{RetryAfter: 5 * time.Second}
				}
				return (&tu.MockCatalog{}).LookupTracks(ctx, ids)
			},
		}
		sleeper := &tu.SleepRecorder{}
		controller := testController(catalog, newMemStore(), sleeper)

		if _, err := controller.Run(ctx, "tracks", makeWorklist(1), 0, 1); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(sleeper.Waits) != 1 || sleeper.Waits[0] != 5*time.Second {
			t.Errorf("expected the Retry-After wait to win, got %v", sleeper.Waits)
		}
	})

	t.Run("Halts On Exhausted Retries", func(t *testing.T) {
		catalog := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				return nil, &services.RateLimitError{}
			},
		}
		sleeper := &tu.SleepRecorder{}
		store := newMemStore()
		controller := testController(catalog, store, sleeper)

		result, err := controller.Run(ctx, "tracks", makeWorklist(5), 0, 5)
		if err != nil {
			t.Fatalf("rate-limit halt should not return an error, got %v", err)
		}
		if result.Reason != RateLimited {
			t.Errorf("expected RateLimited, got %s", result.Reason)
		}
		if result.NextIndex != 0 {
			t.Errorf("expected resume index 0, got %d", result.NextIndex)
		}
		if len(sleeper.Waits) != 2 {
			t.Errorf("expected 2 waits for 3 attempts, got %v", sleeper.Waits)
		}
		if store.commits != 0 {
			t.Errorf("nothing should be committed, got %d commits", store.commits)
		}
	})

	t.Run("Halts With Error On Permanent Failure", func(t *testing.T) {
		catalog := &tu.MockCatalog{
			LookupFunc: func(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
				return nil, fmt.Errorf("%w: bad request", services.ErrPermanent)
			},
		}
		sleeper := &tu.SleepRecorder{}
		controller := testController(catalog, newMemStore(), sleeper)

		result, err := controller.Run(ctx, "tracks", makeWorklist(3), 0, 3)
		if err == nil {
			t.Fatal("expected an error for a permanent failure")
		}
		if !errors.Is(err, services.ErrPermanent) {
			t.Errorf("expected wrapped permanent error, got %v", err)
		}
		if result.Reason != Errored {
			t.Errorf("expected Errored, got %s", result.Reason)
		}
		if result.NextIndex != 0 {
			t.Errorf("expected resume index 0, got %d", result.NextIndex)
		}
		if len(sleeper.Waits) != 0 {
			t.Errorf("permanent failures should not be retried, got waits %v", sleeper.Waits)
		}
	})

	t.Run("Halts With Error When Commit Fails", func(t *testing.T) {
		store := newMemStore()
		store.commitErr = errors.New("disk full")
		controller := testController(&tu.MockCatalog{}, store, &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", makeWorklist(3), 0, 3)
		if err == nil {
			t.Fatal("expected an error when the commit fails")
		}
		if result.Reason != Errored {
			t.Errorf("expected Errored, got %s", result.Reason)
		}
		if result.NextIndex != 0 {
			t.Errorf("expected resume index 0, got %d", result.NextIndex)
		}
	})

	t.Run("Treats Cancellation As a Rate-Limit Halt", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		controller := testController(&tu.MockCatalog{}, newMemStore(), &tu.SleepRecorder{})

		result, err := controller.Run(cancelled, "tracks", makeWorklist(3), 0, 3)
		if err != nil {
			t.Fatalf("an operator stop should not return an error, got %v", err)
		}
		if result.Reason != RateLimited {
			t.Errorf("expected RateLimited, got %s", result.Reason)
		}
		if result.NextIndex != 0 {
			t.Errorf("expected resume index 0, got %d", result.NextIndex)
		}
	})

	t.Run("Skips Already Staged Parents", func(t *testing.T) {
		catalog := &tu.MockCatalog{}
		store := newMemStore()
		store.artists["artist-t00"] = &models.Artist{SpotifyArtistID: "artist-t00"}
		controller := testController(catalog, store, &tu.SleepRecorder{})

		if _, err := controller.Run(ctx, "tracks", makeWorklist(2), 0, 2); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, id := range catalog.Artists {
			if id == "artist-t00" {
				t.Error("staged artist should not be re-fetched")
			}
		}
		if len(catalog.Albums) != 2 {
			t.Errorf("expected 2 album fetches, got %d", len(catalog.Albums))
		}
	})

	t.Run("Skips Parents Missing From The Catalog", func(t *testing.T) {
		catalog := &tu.MockCatalog{
			ArtistFunc: func(ctx context.Context, id string) (*models.Artist, error) {
				return nil, fmt.Errorf("artist %s: %w", id, shared.ErrArtistNotFound)
			},
		}
		store := newMemStore()
		controller := testController(catalog, store, &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", makeWorklist(1), 0, 1)
		if err != nil {
			t.Fatalf("a missing parent should not halt the run, got %v", err)
		}
		if result.Reason != Completed {
			t.Errorf("expected Completed, got %s", result.Reason)
		}
		if len(store.artists) != 0 {
			t.Errorf("expected no staged artists, got %d", len(store.artists))
		}
		if len(store.tracks) != 1 {
			t.Errorf("the track itself should still be staged, got %d", len(store.tracks))
		}
	})

	t.Run("Rejects Invalid Arguments", func(t *testing.T) {
		controller := testController(&tu.MockCatalog{}, newMemStore(), &tu.SleepRecorder{})
		worklist := makeWorklist(5)

		cases := []struct {
			name       string
			startIndex int
			batchSize  int
		}{
			{"Negative Start Index", -1, 3},
			{"Start Index Past End", 6, 3},
			{"Zero Batch Size", 0, 0},
			{"Batch Size Over API Maximum", 0, services.MaxBatchSize + 1},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := controller.Run(ctx, "tracks", worklist, tc.startIndex, tc.batchSize); err == nil {
					t.Error("expected an error")
				}
			})
		}
	})

	t.Run("Start Index At End Is a No-Op Completion", func(t *testing.T) {
		controller := testController(&tu.MockCatalog{}, newMemStore(), &tu.SleepRecorder{})

		result, err := controller.Run(ctx, "tracks", makeWorklist(4), 4, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Reason != Completed || result.Processed != 0 || result.NextIndex != 4 {
			t.Errorf("unexpected result: %+v", result)
		}
	})
}
