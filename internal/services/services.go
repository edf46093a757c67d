// package services defines the Catalog interface for the external catalog API
// together with the error taxonomy its callers branch on.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

var (
	// ErrTransient marks network-level and server-side failures that a
	// retry with backoff may recover from.
	ErrTransient = fmt.Errorf("transient catalog failure")

	// ErrPermanent marks malformed or unauthorized requests. Retrying
	// cannot succeed, so callers abort immediately.
	ErrPermanent = fmt.Errorf("permanent catalog failure")
)

// RateLimitError signals that the catalog API throttled the request.
// RetryAfter carries the server's suggested wait when one was provided,
// otherwise zero.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// IsRetryable reports whether err is a rate limit or transient failure,
// i.e. worth retrying under the backoff policy.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl) || errors.Is(err, ErrTransient)
}

// SuggestedWait extracts the server-suggested retry delay from err, or zero.
func SuggestedWait(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// Catalog defines lookup operations against the external music catalog.
//
// Implementations surface rate limiting as *RateLimitError, network and
// server failures wrapped in ErrTransient, and malformed requests wrapped
// in ErrPermanent, so callers can retry or abort correctly.
type Catalog interface {
	// LookupTracks fetches attribute rows for up to MaxBatchSize track IDs
	// in a single call. The result is positional: ids the catalog does not
	// know yield a nil entry rather than an error, so one bad key never
	// fails its batch.
	LookupTracks(ctx context.Context, ids []string) ([]*models.TrackAttributes, error)

	// Artist fetches a single artist with its genre tags and follower count.
	Artist(ctx context.Context, id string) (*models.Artist, error)

	// Album fetches a single album with its type and release date.
	Album(ctx context.Context, id string) (*models.Album, error)

	// Name returns the catalog's name for logging.
	Name() string
}

// MaxBatchSize is the catalog API's per-call ceiling for batched track lookups.
const MaxBatchSize = 50
