// Spotify API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Followers  followers      `json:"followers"`
	Popularity int            `json:"popularity"`
	Genres     []string       `json:"genres"`
	Images     []SpotifyImage `json:"images"`
	URI        string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AlbumType   string          `json:"album_type"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyCatalog implements the Catalog interface against the Spotify Web API.
//
// Authentication uses the [clientcredentials] flow; no user consent is needed
// for track, album, or artist lookups. A [rate.Limiter] paces every call so
// normal operation stays under Spotify's opaque ceiling, with reactive 429
// handling left to the caller's backoff policy.
type SpotifyCatalog struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// SpotifyCatalogOpts contains configuration for creating a SpotifyCatalog.
type SpotifyCatalogOpts struct {
	ClientID          string
	ClientSecret      string
	RequestsPerSecond float64      // Defaults to 0.2 (one call per 5s), matching courteous batch use
	HTTPClient        *http.Client // Overrides the oauth2 client, used in tests
}

// NewSpotifyCatalog creates a SpotifyCatalog with the given app credentials.
func NewSpotifyCatalog(opts SpotifyCatalogOpts) (*SpotifyCatalog, error) {
	if opts.HTTPClient == nil {
		if opts.ClientID == "" || opts.ClientSecret == "" {
			return nil, fmt.Errorf("%w: spotify client_id and client_secret required", shared.ErrMissingCredentials)
		}
		conf := &clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     spotifyTokenURL,
		}
		opts.HTTPClient = conf.Client(context.Background())
	}

	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 0.2
	}

	return &SpotifyCatalog{
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		now:        time.Now,
	}, nil
}

func (s *SpotifyCatalog) Name() string {
	return "Spotify"
}

// doRequest performs a GET against the Spotify API and decodes the JSON
// response into result, classifying failures per the catalog error taxonomy.
func (s *SpotifyCatalog) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyBaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrTrackNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: spotify API status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify API status %d", ErrPermanent, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrTransient, err)
		}
	}

	return nil
}

// parseRetryAfter reads a Retry-After header value in seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// LookupTracks fetches attribute rows for up to [MaxBatchSize] track IDs.
//
// The returned slice is positional with the input; unknown ids are nil.
func (s *SpotifyCatalog) LookupTracks(ctx context.Context, ids []string) ([]*models.TrackAttributes, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", ErrPermanent)
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", ErrPermanent, MaxBatchSize)
	}

	endpoint := fmt.Sprintf("/tracks?ids=%s", url.QueryEscape(strings.Join(ids, ",")))

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	rows := make([]*models.TrackAttributes, len(ids))
	for i, track := range response.Tracks {
		if i >= len(rows) {
			break
		}
		if track == nil || track.ID == "" {
			continue
		}
		rows[i] = s.toAttributes(track)
	}

	return rows, nil
}

// toAttributes flattens a Spotify track object into a staging row.
func (s *SpotifyCatalog) toAttributes(track *SpotifyTrack) *models.TrackAttributes {
	row := &models.TrackAttributes{
		SpotifyTrackID:  track.ID,
		SpotifyTrackURI: track.URI,
		Name:            track.Name,
		DurationMS:      track.DurationMS,
		Popularity:      track.Popularity,
		Explicit:        track.Explicit,
		SpotifyAlbumID:  track.Album.ID,
		AlbumType:       track.Album.AlbumType,
		ReleaseDate:     track.Album.ReleaseDate,
		FetchedAt:       s.now(),
	}
	if len(track.Artists) > 0 {
		row.SpotifyArtistID = track.Artists[0].ID
	}
	return row
}

// Artist retrieves a single artist by ID.
func (s *SpotifyCatalog) Artist(ctx context.Context, id string) (*models.Artist, error) {
	var artist SpotifyArtist
	if err := s.doRequest(ctx, fmt.Sprintf("/artists/%s", id), &artist); err != nil {
		if err == shared.ErrTrackNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, id)
		}
		return nil, err
	}

	result := &models.Artist{
		SpotifyArtistID: artist.ID,
		Name:            artist.Name,
		Followers:       artist.Followers.Total,
		Popularity:      artist.Popularity,
		Genres:          artist.Genres,
		FetchedAt:       s.now(),
	}
	if len(artist.Images) > 0 {
		result.ImageURL = artist.Images[0].URL
	}
	return result, nil
}

// Album retrieves a single album by ID.
func (s *SpotifyCatalog) Album(ctx context.Context, id string) (*models.Album, error) {
	var album SpotifyAlbum
	if err := s.doRequest(ctx, fmt.Sprintf("/albums/%s", id), &album); err != nil {
		if err == shared.ErrTrackNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
		}
		return nil, err
	}

	result := &models.Album{
		SpotifyAlbumID: album.ID,
		Name:           album.Name,
		AlbumType:      album.AlbumType,
		ReleaseDate:    album.ReleaseDate,
		TotalTracks:    album.TotalTracks,
		FetchedAt:      s.now(),
	}
	if len(album.Artists) > 0 {
		result.SpotifyArtistID = album.Artists[0].ID
	}
	if len(album.Images) > 0 {
		result.ImageURL = album.Images[0].URL
	}
	return result, nil
}
