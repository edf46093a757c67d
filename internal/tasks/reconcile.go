package tasks

import (
	"sort"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
)

// DurationToleranceMS is the window within which two durations are treated
// as the same recording.
const DurationToleranceMS = 3000

// ReconcileResult contains a reconciliation run's outputs.
type ReconcileResult struct {
	Canonical []*models.TrackAttributes // Deduplicated track table, one row per group
	Mapping   []models.TrackMapping     // One entry per input row, keyed by old identifier
	Malformed []string                  // Identifiers of rows excluded for missing grouping fields
}

// Reconcile merges attribute rows that represent the same musical work under
// different identifiers.
//
// Rows group by (artist identifier, normalized title), then split into
// duration clusters: connected components of the pairwise ±3000 ms graph,
// computed as a single-linkage walk over rows sorted by duration (an
// adjacent gap within tolerance joins the cluster). A chain A-B-C where A-B
// and B-C are each in window therefore forms one group even when A-C is not.
// Comparisons always use each row's original duration, never a cluster
// average, so clusters cannot drift.
//
// Within a cluster the canonical row is the first under: album type
// (album < single < compilation < other, unknown last), popularity
// descending, release date ascending, identifier ascending. Every input row
// receives a mapping entry; canonical rows map to themselves.
//
// Rows missing an identifier, artist identifier, or title cannot be grouped
// safely; they are reported in Malformed rather than merged arbitrarily.
// The result is independent of input order.
func Reconcile(rows []*models.TrackAttributes) ReconcileResult {
	var result ReconcileResult

	type groupKey struct {
		artistID string
		title    string
	}
	groups := make(map[groupKey][]*models.TrackAttributes)

	for _, row := range rows {
		if err := row.Validate(); err != nil {
			result.Malformed = append(result.Malformed, row.SpotifyTrackID)
			continue
		}
		key := groupKey{artistID: row.SpotifyArtistID, title: shared.NormalizeTitle(row.Name)}
		groups[key] = append(groups[key], row)
	}
	sort.Strings(result.Malformed)

	for _, members := range groups {
		for _, cluster := range durationClusters(members) {
			canonical := rankCanonical(cluster)
			result.Canonical = append(result.Canonical, canonical)
			for _, row := range cluster {
				result.Mapping = append(result.Mapping, models.TrackMapping{
					OldTrackID: row.SpotifyTrackID,
					NewTrackID: canonical.SpotifyTrackID,
				})
			}
		}
	}

	sort.Slice(result.Canonical, func(i, j int) bool {
		return result.Canonical[i].SpotifyTrackID < result.Canonical[j].SpotifyTrackID
	})
	sort.Slice(result.Mapping, func(i, j int) bool {
		return result.Mapping[i].OldTrackID < result.Mapping[j].OldTrackID
	})

	return result
}

// durationClusters splits a title group into duration clusters. Sorting by
// duration (identifier as tie-break) makes the single-linkage walk
// deterministic: a row joins the current cluster iff it is within tolerance
// of the previous row's original duration.
func durationClusters(members []*models.TrackAttributes) [][]*models.TrackAttributes {
	sorted := make([]*models.TrackAttributes, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DurationMS != sorted[j].DurationMS {
			return sorted[i].DurationMS < sorted[j].DurationMS
		}
		return sorted[i].SpotifyTrackID < sorted[j].SpotifyTrackID
	})

	var clusters [][]*models.TrackAttributes
	for i, row := range sorted {
		if i > 0 && row.DurationMS-sorted[i-1].DurationMS <= DurationToleranceMS {
			clusters[len(clusters)-1] = append(clusters[len(clusters)-1], row)
			continue
		}
		clusters = append(clusters, []*models.TrackAttributes{row})
	}

	return clusters
}

// albumTypeRank orders parent album types for canonical selection. The
// album version of a song outranks its single, which outranks compilation
// appearances; unknown types sort after everything known.
func albumTypeRank(albumType string) int {
	switch albumType {
	case "album":
		return 0
	case "single":
		return 1
	case "compilation":
		return 2
	case "":
		return 4
	default:
		return 3
	}
}

// releaseDateBefore compares ISO release date strings; an absent date sorts
// after any known one.
func releaseDateBefore(a, b string) bool {
	if a == "" || b == "" {
		return a != "" && b == ""
	}
	return a < b
}

// rankCanonical returns the first row of the cluster under the total
// canonical order. The identifier tie-break guarantees a unique choice even
// for rows differing only in non-ranked attributes.
func rankCanonical(cluster []*models.TrackAttributes) *models.TrackAttributes {
	canonical := cluster[0]
	for _, row := range cluster[1:] {
		if rankLess(row, canonical) {
			canonical = row
		}
	}
	return canonical
}

func rankLess(a, b *models.TrackAttributes) bool {
	if ra, rb := albumTypeRank(a.AlbumType), albumTypeRank(b.AlbumType); ra != rb {
		return ra < rb
	}
	if a.Popularity != b.Popularity {
		return a.Popularity > b.Popularity
	}
	if a.ReleaseDate != b.ReleaseDate {
		return releaseDateBefore(a.ReleaseDate, b.ReleaseDate)
	}
	return a.SpotifyTrackID < b.SpotifyTrackID
}
