package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/services"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
)

// TerminationReason explains why a fetch run stopped.
type TerminationReason int

const (
	Completed TerminationReason = iota // Worklist tail fully processed
	RateLimited                        // Retries exhausted on throttling, or operator stop
	Errored                            // Permanent API failure or persistence failure
)

func (r TerminationReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case RateLimited:
		return "rate_limited"
	case Errored:
		return "error"
	default:
		return ""
	}
}

// BackoffPolicy is the capped exponential retry policy applied to rate-limit
// and transient failures.
type BackoffPolicy struct {
	BaseDelay   time.Duration // Delay before the first retry
	Multiplier  float64       // Growth factor per retry
	MaxAttempts int           // Total attempts before the controller halts
}

// DefaultBackoff mirrors the catalog API's observed recovery times.
var DefaultBackoff = BackoffPolicy{
	BaseDelay:   10 * time.Second,
	Multiplier:  2.0,
	MaxAttempts: 3,
}

// delay returns the wait before retry number attempt (zero-based).
func (p BackoffPolicy) delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
}

// StagingStore is the persistence boundary the controller writes through.
//
// CommitBatch must persist the batch's rows and the advanced checkpoint
// atomically (write-then-checkpoint): the checkpoint is the sole resumption
// contract, so it may never run ahead of durable rows.
type StagingStore interface {
	Checkpoint(worklist string) (int, bool, error)
	HasArtist(id string) (bool, error)
	HasAlbum(id string) (bool, error)
	CommitBatch(worklist string, nextIndex int, tracks []*models.TrackAttributes, artists []*models.Artist, albums []*models.Album) error
}

// FetchResult reports a fetch run's outcome.
type FetchResult struct {
	Processed int               // Worklist keys covered by committed batches
	NextIndex int               // First index not durably processed; pass as start index to resume
	Reason    TerminationReason // Why the run stopped
	NotFound  []string          // Keys the catalog does not know, recorded as absent
}

// FetchController walks an ordered worklist of catalog lookups in batches,
// persisting each batch before advancing the checkpoint, so a halted run can
// resume exactly where it left off.
//
// Exactly one controller runs per worklist at a time; that is enforced
// operationally, not here.
type FetchController struct {
	catalog services.Catalog
	store   StagingStore
	backoff BackoffPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Logger
}

// FetchControllerOpts contains dependencies for creating a FetchController.
type FetchControllerOpts struct {
	Catalog services.Catalog
	Store   StagingStore
	Backoff BackoffPolicy
	Sleep   func(ctx context.Context, d time.Duration) error // Injectable for tests
	Logger  *log.Logger
}

// NewFetchController creates a FetchController with the provided dependencies.
func NewFetchController(opts FetchControllerOpts) *FetchController {
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &FetchController{
		catalog: opts.Catalog,
		store:   opts.Store,
		backoff: opts.Backoff,
		sleep:   opts.Sleep,
		logger:  opts.Logger,
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run walks worklist from startIndex in batches of batchSize.
//
// Each batch is fetched through the catalog, persisted, and checkpointed
// before the next batch starts; batches run strictly in worklist order with
// no pipelining. On sustained throttling or a permanent failure the run
// halts with NextIndex at the start of the failing batch, never
// partially-attributed, so resuming there reprocesses nothing committed and
// skips nothing pending. An operator stop (context cancellation) halts the
// same way a rate limit does.
func (c *FetchController) Run(ctx context.Context, worklistID string, worklist []models.LookupKey, startIndex, batchSize int) (*FetchResult, error) {
	if c.catalog == nil || c.store == nil {
		return nil, fmt.Errorf("%w: fetch controller not initialized", shared.ErrServiceUnavailable)
	}
	if startIndex < 0 || startIndex > len(worklist) {
		return nil, fmt.Errorf("%w: start index %d out of range [0, %d]", shared.ErrInvalidArgument, startIndex, len(worklist))
	}
	if batchSize <= 0 || batchSize > services.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d out of range [1, %d]", shared.ErrInvalidArgument, batchSize, services.MaxBatchSize)
	}

	result := &FetchResult{NextIndex: startIndex}
	logger := shared.WithLogger(c.logger, "worklist", worklistID, "catalog", c.catalog.Name())

	// Albums and artists already staged (or staged earlier in this run)
	// are not re-fetched.
	seenArtists := make(map[string]bool)
	seenAlbums := make(map[string]bool)

	for start := startIndex; start < len(worklist); start += batchSize {
		end := start + batchSize
		if end > len(worklist) {
			end = len(worklist)
		}
		keys := worklist[start:end]

		ids := make([]string, len(keys))
		for i, key := range keys {
			ids[i] = key.TrackID()
		}

		logger.Info("fetching batch", "start", start, "size", len(keys))

		var rows []*models.TrackAttributes
		err := c.withRetry(ctx, logger, func() error {
			var lookupErr error
			rows, lookupErr = c.catalog.LookupTracks(ctx, ids)
			return lookupErr
		})
		if err != nil {
			return c.halt(logger, result, start, err)
		}

		tracks := make([]*models.TrackAttributes, 0, len(rows))
		var artists []*models.Artist
		var albums []*models.Album

		for i, row := range rows {
			if row == nil {
				result.NotFound = append(result.NotFound, keys[i].TrackURI)
				logger.Warn("track not in catalog, recorded as absent", "uri", keys[i].TrackURI)
				continue
			}
			tracks = append(tracks, row)

			parents, err := c.fetchParents(ctx, logger, row, seenArtists, seenAlbums)
			if err != nil {
				return c.halt(logger, result, start, err)
			}
			artists = append(artists, parents.artists...)
			albums = append(albums, parents.albums...)
		}

		if err := c.store.CommitBatch(worklistID, end, tracks, artists, albums); err != nil {
			return c.halt(logger, result, start, err)
		}

		result.Processed += len(keys)
		result.NextIndex = end
	}

	result.Reason = Completed
	logger.Info("fetch run terminated", "last_index", result.NextIndex, "reason", result.Reason.String())
	return result, nil
}

type parentRows struct {
	artists []*models.Artist
	albums  []*models.Album
}

// fetchParents fetches the album and artist referenced by a track row when
// they have not been staged yet. A parent the catalog does not know is
// logged and skipped; the batch continues.
func (c *FetchController) fetchParents(ctx context.Context, logger *log.Logger, row *models.TrackAttributes, seenArtists, seenAlbums map[string]bool) (parentRows, error) {
	var parents parentRows

	if id := row.SpotifyArtistID; id != "" && !seenArtists[id] {
		seenArtists[id] = true
		staged, err := c.store.HasArtist(id)
		if err != nil {
			return parents, err
		}
		if !staged {
			var artist *models.Artist
			err := c.withRetry(ctx, logger, func() error {
				var fetchErr error
				artist, fetchErr = c.catalog.Artist(ctx, id)
				return fetchErr
			})
			switch {
			case errors.Is(err, shared.ErrArtistNotFound):
				logger.Warn("artist not in catalog, skipped", "artist", id)
			case err != nil:
				return parents, err
			default:
				parents.artists = append(parents.artists, artist)
			}
		}
	}

	if id := row.SpotifyAlbumID; id != "" && !seenAlbums[id] {
		seenAlbums[id] = true
		staged, err := c.store.HasAlbum(id)
		if err != nil {
			return parents, err
		}
		if !staged {
			var album *models.Album
			err := c.withRetry(ctx, logger, func() error {
				var fetchErr error
				album, fetchErr = c.catalog.Album(ctx, id)
				return fetchErr
			})
			switch {
			case errors.Is(err, shared.ErrAlbumNotFound):
				logger.Warn("album not in catalog, skipped", "album", id)
			case err != nil:
				return parents, err
			default:
				parents.albums = append(parents.albums, album)
			}
		}
	}

	return parents, nil
}

// withRetry runs fn under the backoff policy, retrying rate-limit and
// transient failures and honoring a server-suggested wait when it exceeds
// the policy's next delay. Permanent failures and not-found pass through.
func (c *FetchController) withRetry(ctx context.Context, logger *log.Logger, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.backoff.MaxAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return &services.RateLimitError{}
		}

		err = fn()
		if err == nil || !services.IsRetryable(err) {
			return err
		}

		if attempt+1 >= c.backoff.MaxAttempts {
			break
		}

		wait := c.backoff.delay(attempt)
		if suggested := services.SuggestedWait(err); suggested > wait {
			wait = suggested
		}
		logger.Warn("catalog call failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)

		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return &services.RateLimitError{}
		}
	}
	return err
}

// halt records a run termination at the start of the failing batch and
// writes the operator-visible log line with the resumption point.
func (c *FetchController) halt(logger *log.Logger, result *FetchResult, batchStart int, err error) (*FetchResult, error) {
	result.NextIndex = batchStart

	var rl *services.RateLimitError
	if errors.As(err, &rl) || errors.Is(err, services.ErrTransient) {
		result.Reason = RateLimited
		logger.Error("fetch run terminated", "last_index", result.NextIndex, "reason", result.Reason.String(), "error", err)
		return result, nil
	}

	result.Reason = Errored
	logger.Error("fetch run terminated", "last_index", result.NextIndex, "reason", result.Reason.String(), "error", err)
	return result, fmt.Errorf("fetch halted at index %d: %w", batchStart, err)
}
