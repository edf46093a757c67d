package main

import (
	"context"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/repositories"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Consolidate merges duplicate tracks into canonical rows, rewrites play
// references through the resulting mapping, and tidies artist metadata
// (genre summaries, duplicate-name suffixes). The whole pass is
// recomputed from the staged rows, so rerunning it is safe.
func (r *Runner) Consolidate(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	staging := repositories.NewStagingRepository(db)
	mapping := repositories.NewMappingRepository(db)
	plays := repositories.NewPlayRepository(db)

	rows, err := staging.AllTracks()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		r.writePlain("Nothing to consolidate: no tracks staged. Run enrich first.\n")
		return nil
	}

	result := tasks.Reconcile(rows)
	r.logger.Info("reconciled tracks",
		"staged", len(rows),
		"canonical", len(result.Canonical),
		"merged", len(result.Mapping)-len(result.Canonical),
	)
	for _, id := range result.Malformed {
		r.logger.Warn("track row missing required attributes, excluded", "track", id)
	}

	if err := mapping.ReplaceMapping(result.Mapping); err != nil {
		return err
	}
	if err := mapping.ReplaceConsolidated(result.Canonical); err != nil {
		return err
	}

	enriched, err := plays.EnrichPlayReferences()
	if err != nil {
		return err
	}
	rewritten, err := plays.ApplyTrackMapping()
	if err != nil {
		return err
	}
	r.logger.Info("updated play history", "enriched", enriched, "rewritten", rewritten)

	tags, err := staging.ArtistGenres()
	if err != nil {
		return err
	}
	if err := staging.UpdateArtistGenreSummaries(tasks.AggregateGenres(tags)); err != nil {
		return err
	}

	artists, err := staging.Artists()
	if err != nil {
		return err
	}
	renames := tasks.DisambiguateArtists(artists)
	if len(renames) > 0 {
		if err := staging.RenameArtists(renames); err != nil {
			return err
		}
		r.logger.Info("renamed duplicate artist names", "count", len(renames))
	}

	r.writePlain("Consolidated %d staged tracks into %d canonical tracks (%d malformed rows excluded)\n",
		len(rows), len(result.Canonical), len(result.Malformed))
	return nil
}
