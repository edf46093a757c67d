package tasks

import (
	"fmt"
	"sort"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

// GenreSeparator joins genre tags in the aggregated summary field.
const GenreSeparator = ", "

// AggregateGenres folds one-to-many genre tag rows into a single delimited
// string per artist. Tags keep their given order and multiplicity; repeats
// reflect real upstream duplication. Artists with no tags are absent from
// the output rather than mapped to an error.
func AggregateGenres(tags map[string][]string) map[string]string {
	summaries := make(map[string]string, len(tags))
	for artistID, genres := range tags {
		if len(genres) == 0 {
			continue
		}
		summary := genres[0]
		for _, genre := range genres[1:] {
			summary += GenreSeparator + genre
		}
		summaries[artistID] = summary
	}
	return summaries
}

// DisambiguateArtists resolves artists that share a display name. The
// artist with the most followers keeps the bare name; the rest get a
// numeric suffix, ordered by followers descending then identifier so the
// outcome is deterministic. Returns renames keyed by artist identifier.
func DisambiguateArtists(artists []*models.Artist) map[string]string {
	byName := make(map[string][]*models.Artist)
	for _, artist := range artists {
		byName[artist.Name] = append(byName[artist.Name], artist)
	}

	renames := make(map[string]string)
	for name, group := range byName {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].Followers != group[j].Followers {
				return group[i].Followers > group[j].Followers
			}
			return group[i].SpotifyArtistID < group[j].SpotifyArtistID
		})
		for i, artist := range group[1:] {
			renames[artist.SpotifyArtistID] = fmt.Sprintf("%s (%d)", name, i+2)
		}
	}

	return renames
}
