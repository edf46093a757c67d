package tasks

import (
	"reflect"
	"testing"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/models"
)

func track(id, name, artistID string, durationMS int) *models.TrackAttributes {
	return &models.TrackAttributes{
		SpotifyTrackID:  id,
		SpotifyTrackURI: "spotify:track:" + id,
		Name:            name,
		SpotifyArtistID: artistID,
		DurationMS:      durationMS,
	}
}

func mappingByOld(result ReconcileResult) map[string]string {
	byOld := make(map[string]string, len(result.Mapping))
	for _, entry := range result.Mapping {
		byOld[entry.OldTrackID] = entry.NewTrackID
	}
	return byOld
}

func canonicalIDs(result ReconcileResult) []string {
	ids := make([]string, len(result.Canonical))
	for i, row := range result.Canonical {
		ids[i] = row.SpotifyTrackID
	}
	return ids
}

func TestReconcile(t *testing.T) {
	t.Run("Merges Same Song Under Different IDs", func(t *testing.T) {
		a := track("a", "My Song", "artist1", 200000)
		a.AlbumType = "album"
		b := track("b", "My Song", "artist1", 201000)
		b.AlbumType = "single"

		result := Reconcile([]*models.TrackAttributes{a, b})

		if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"a"}) {
			t.Fatalf("expected canonical [a], got %v", got)
		}
		byOld := mappingByOld(result)
		if byOld["a"] != "a" || byOld["b"] != "a" {
			t.Errorf("expected both rows mapped to a, got %v", byOld)
		}
	})

	t.Run("Title Comparison Is Normalized", func(t *testing.T) {
		a := track("a", "My Song (Remastered)!", "artist1", 200000)
		b := track("b", "my song remastered", "artist1", 200000)

		result := Reconcile([]*models.TrackAttributes{a, b})

		if len(result.Canonical) != 1 {
			t.Errorf("expected punctuation and case differences to merge, got %d canonical rows", len(result.Canonical))
		}
	})

	t.Run("Duration Window Boundary", func(t *testing.T) {
		t.Run("Exactly 3000ms Apart Merges", func(t *testing.T) {
			result := Reconcile([]*models.TrackAttributes{
				track("a", "Song", "artist1", 200000),
				track("b", "Song", "artist1", 203000),
			})
			if len(result.Canonical) != 1 {
				t.Errorf("expected 1 canonical row, got %d", len(result.Canonical))
			}
		})

		t.Run("3001ms Apart Stays Distinct", func(t *testing.T) {
			result := Reconcile([]*models.TrackAttributes{
				track("a", "Song", "artist1", 200000),
				track("b", "Song", "artist1", 203001),
			})
			if len(result.Canonical) != 2 {
				t.Errorf("expected 2 canonical rows, got %d", len(result.Canonical))
			}
		})
	})

	t.Run("Chained Durations Form One Group", func(t *testing.T) {
		// a-b and b-c are each in window; a-c is not. Single linkage
		// still puts all three together.
		result := Reconcile([]*models.TrackAttributes{
			track("a", "Song", "artist1", 200000),
			track("b", "Song", "artist1", 202500),
			track("c", "Song", "artist1", 205000),
		})
		if len(result.Canonical) != 1 {
			t.Fatalf("expected 1 canonical row, got %d", len(result.Canonical))
		}
		byOld := mappingByOld(result)
		if byOld["a"] != byOld["b"] || byOld["b"] != byOld["c"] {
			t.Errorf("expected all three mapped together, got %v", byOld)
		}
	})

	t.Run("Different Artists Never Merge", func(t *testing.T) {
		result := Reconcile([]*models.TrackAttributes{
			track("a", "Song", "artist1", 200000),
			track("b", "Song", "artist2", 200000),
		})
		if len(result.Canonical) != 2 {
			t.Errorf("expected 2 canonical rows, got %d", len(result.Canonical))
		}
	})

	t.Run("Canonical Ranking", func(t *testing.T) {
		t.Run("Album Type Outranks Popularity", func(t *testing.T) {
			a := track("a", "Song", "artist1", 200000)
			a.AlbumType, a.Popularity, a.ReleaseDate = "album", 50, "2020-01-01"
			b := track("b", "Song", "artist1", 200000)
			b.AlbumType, b.Popularity, b.ReleaseDate = "single", 90, "2021-01-01"
			c := track("c", "Song", "artist1", 200000)
			c.AlbumType, c.Popularity, c.ReleaseDate = "album", 50, "2019-01-01"

			result := Reconcile([]*models.TrackAttributes{a, b, c})
			if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"c"}) {
				t.Errorf("expected canonical [c], got %v", got)
			}
		})

		t.Run("Popularity Breaks Album-Type Ties", func(t *testing.T) {
			a := track("a", "Song", "artist1", 200000)
			a.AlbumType, a.Popularity = "album", 40
			b := track("b", "Song", "artist1", 200000)
			b.AlbumType, b.Popularity = "album", 80

			result := Reconcile([]*models.TrackAttributes{a, b})
			if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"b"}) {
				t.Errorf("expected canonical [b], got %v", got)
			}
		})

		t.Run("Unknown Album Type Sorts Last", func(t *testing.T) {
			a := track("a", "Song", "artist1", 200000)
			a.AlbumType = ""
			b := track("b", "Song", "artist1", 200000)
			b.AlbumType = "compilation"

			result := Reconcile([]*models.TrackAttributes{a, b})
			if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"b"}) {
				t.Errorf("expected canonical [b], got %v", got)
			}
		})

		t.Run("Identifier Breaks Full Ties", func(t *testing.T) {
			a := track("b", "Song", "artist1", 200000)
			b := track("a", "Song", "artist1", 200000)

			result := Reconcile([]*models.TrackAttributes{a, b})
			if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"a"}) {
				t.Errorf("expected canonical [a], got %v", got)
			}
		})
	})

	t.Run("Result Is Independent Of Input Order", func(t *testing.T) {
		build := func() []*models.TrackAttributes {
			a := track("a", "Song", "artist1", 200000)
			a.AlbumType, a.Popularity = "single", 70
			b := track("b", "Song", "artist1", 201000)
			b.AlbumType, b.Popularity = "album", 30
			c := track("c", "Other Song", "artist1", 180000)
			c.AlbumType = "album"
			return []*models.TrackAttributes{a, b, c}
		}

		forward := Reconcile(build())
		rows := build()
		reversed := Reconcile([]*models.TrackAttributes{rows[2], rows[1], rows[0]})

		if !reflect.DeepEqual(mappingByOld(forward), mappingByOld(reversed)) {
			t.Errorf("mapping differs with input order: %v vs %v", forward.Mapping, reversed.Mapping)
		}
		if !reflect.DeepEqual(canonicalIDs(forward), canonicalIDs(reversed)) {
			t.Errorf("canonical set differs with input order")
		}
	})

	t.Run("Reconciling The Canonical Output Is a No-Op", func(t *testing.T) {
		a := track("a", "Song", "artist1", 200000)
		a.AlbumType = "album"
		b := track("b", "Song", "artist1", 201000)
		b.AlbumType = "single"

		first := Reconcile([]*models.TrackAttributes{a, b})
		second := Reconcile(first.Canonical)

		if len(second.Canonical) != len(first.Canonical) {
			t.Fatalf("second pass changed the canonical set: %d vs %d", len(second.Canonical), len(first.Canonical))
		}
		for _, entry := range second.Mapping {
			if entry.OldTrackID != entry.NewTrackID {
				t.Errorf("second pass remapped %s to %s", entry.OldTrackID, entry.NewTrackID)
			}
		}
	})

	t.Run("Every Input Row Gets a Mapping Entry", func(t *testing.T) {
		rows := []*models.TrackAttributes{
			track("a", "Song", "artist1", 200000),
			track("b", "Song", "artist1", 200500),
			track("c", "Song", "artist2", 200000),
			track("d", "Other", "artist1", 100000),
		}
		result := Reconcile(rows)

		byOld := mappingByOld(result)
		if len(byOld) != len(rows) {
			t.Fatalf("expected %d mapping entries, got %d", len(rows), len(byOld))
		}
		canonical := make(map[string]bool)
		for _, row := range result.Canonical {
			canonical[row.SpotifyTrackID] = true
		}
		for old, canon := range byOld {
			if !canonical[canon] {
				t.Errorf("%s maps to %s which is not canonical", old, canon)
			}
		}
		for _, row := range result.Canonical {
			if byOld[row.SpotifyTrackID] != row.SpotifyTrackID {
				t.Errorf("canonical row %s does not map to itself", row.SpotifyTrackID)
			}
		}
	})

	t.Run("Reports Malformed Rows Instead Of Merging Them", func(t *testing.T) {
		good := track("a", "Song", "artist1", 200000)
		noArtist := track("b", "Song", "", 200000)
		noName := track("c", "", "artist1", 200000)

		result := Reconcile([]*models.TrackAttributes{good, noArtist, noName})

		if !reflect.DeepEqual(result.Malformed, []string{"b", "c"}) {
			t.Errorf("expected malformed [b c], got %v", result.Malformed)
		}
		if got := canonicalIDs(result); !reflect.DeepEqual(got, []string{"a"}) {
			t.Errorf("expected canonical [a], got %v", got)
		}
		byOld := mappingByOld(result)
		if _, mapped := byOld["b"]; mapped {
			t.Error("malformed row should not receive a mapping entry")
		}
	})

	t.Run("Empty Input", func(t *testing.T) {
		result := Reconcile(nil)
		if len(result.Canonical) != 0 || len(result.Mapping) != 0 || len(result.Malformed) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})
}
