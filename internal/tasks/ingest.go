package tasks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

// exportRecord mirrors one entry of a Spotify extended streaming history
// file (endsong_N.json).
type exportRecord struct {
	Ts                string `json:"ts"`
	MsPlayed          int    `json:"ms_played"`
	TrackName         string `json:"master_metadata_track_name"`
	ArtistName        string `json:"master_metadata_album_artist_name"`
	AlbumName         string `json:"master_metadata_album_album_name"`
	SpotifyTrackURI   string `json:"spotify_track_uri"`
	EpisodeName       string `json:"episode_name"`
	ShowName          string `json:"episode_show_name"`
	SpotifyEpisodeURI string `json:"spotify_episode_uri"`
	ReasonStart       string `json:"reason_start"`
	ReasonEnd         string `json:"reason_end"`
	Shuffle           bool   `json:"shuffle"`
	Skipped           bool   `json:"skipped"`
	IncognitoMode     bool   `json:"incognito_mode"`
}

// IngestResult reports what an export ingestion kept and dropped.
type IngestResult struct {
	Plays      []models.Play
	Files      []string // Export files read, in order
	Episodes   int      // Podcast episode rows dropped
	Duplicates int      // Exact duplicate rows dropped
}

// ParseExport decodes one streaming-history file into cleaned play rows.
// Podcast episode rows and rows without a track URI are dropped.
func ParseExport(r io.Reader) ([]models.Play, int, error) {
	var records []exportRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode export file: %w", err)
	}

	var plays []models.Play
	episodes := 0
	for _, record := range records {
		if record.SpotifyEpisodeURI != "" || record.SpotifyTrackURI == "" {
			episodes++
			continue
		}

		timeEnded, err := time.Parse(time.RFC3339, record.Ts)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse timestamp %q: %w", record.Ts, err)
		}

		plays = append(plays, models.Play{
			TimeEnded:       timeEnded,
			MSPlayed:        record.MsPlayed,
			TrackName:       record.TrackName,
			ArtistName:      record.ArtistName,
			AlbumName:       record.AlbumName,
			SpotifyTrackURI: record.SpotifyTrackURI,
			ReasonStarted:   record.ReasonStart,
			ReasonEnded:     record.ReasonEnd,
			Shuffle:         record.Shuffle,
			Skipped:         record.Skipped,
			Incognito:       record.IncognitoMode,
		})
	}

	return plays, episodes, nil
}

// IngestExportDir reads every endsong_*.json file under dir, combines the
// cleaned rows, and drops exact duplicate plays across files.
func IngestExportDir(dir string) (*IngestResult, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "endsong_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list export files: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no endsong_*.json files found in %s", dir)
	}
	sort.Strings(matches)

	result := &IngestResult{Files: matches}
	seen := make(map[string]bool)

	for _, path := range matches {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open export file: %w", err)
		}

		plays, episodes, err := ParseExport(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		result.Episodes += episodes

		for _, play := range plays {
			key := dedupeKey(play)
			if seen[key] {
				result.Duplicates++
				continue
			}
			seen[key] = true
			result.Plays = append(result.Plays, play)
		}
	}

	return result, nil
}

// dedupeKey identifies an exact duplicate play across export files.
func dedupeKey(play models.Play) string {
	return strings.Join([]string{
		play.TimeEnded.UTC().Format(time.RFC3339),
		fmt.Sprint(play.MSPlayed),
		play.SpotifyTrackURI,
		play.ReasonStarted,
		play.ReasonEnded,
		fmt.Sprint(play.Shuffle),
		fmt.Sprint(play.Skipped),
		fmt.Sprint(play.Incognito),
	}, "|")
}
