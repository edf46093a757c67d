package main

import (
	"context"
	"time"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/repositories"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/services"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/tasks"
	"github.com/urfave/cli/v3"
)

// worklistName identifies the track-enrichment worklist in the checkpoint
// table. There is a single worklist per database.
const worklistName = "track_enrichment"

// Enrich walks the distinct tracks of the listening history through the
// catalog API in resumable batches. The checkpoint stored per worklist is
// the sole resumption contract; --start-index overrides it.
func (r *Runner) Enrich(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	catalog, err := r.buildCatalog(config)
	if err != nil {
		return err
	}

	plays := repositories.NewPlayRepository(db)
	staging := repositories.NewStagingRepository(db)

	worklist, err := plays.Worklist()
	if err != nil {
		return err
	}
	if len(worklist) == 0 {
		r.writePlain("Nothing to enrich: the plays table is empty. Run ingest first.\n")
		return nil
	}

	startIndex := cmd.Int("start-index")
	if startIndex < 0 {
		stored, found, err := staging.Checkpoint(worklistName)
		if err != nil {
			return err
		}
		startIndex = 0
		if found {
			startIndex = stored
			r.logger.Info("resuming from stored checkpoint", "index", stored)
		}
	}

	batchSize := cmd.Int("batch-size")
	if batchSize <= 0 {
		batchSize = config.Batch.Size
	}
	if batchSize <= 0 {
		batchSize = services.MaxBatchSize
	}

	controller := tasks.NewFetchController(tasks.FetchControllerOpts{
		Catalog: catalog,
		Store:   staging,
		Backoff: tasks.BackoffPolicy{
			BaseDelay:   time.Duration(config.Batch.RetryBaseDelayMS) * time.Millisecond,
			Multiplier:  config.Batch.RetryMultiplier,
			MaxAttempts: config.Batch.MaxRetries,
		},
		Logger: r.logger,
	})

	r.logger.Info("starting enrichment run",
		"worklist_size", len(worklist),
		"start_index", startIndex,
		"batch_size", batchSize,
	)

	result, runErr := controller.Run(ctx, worklistName, worklist, startIndex, batchSize)
	if result == nil {
		return runErr
	}

	r.writePlain("Processed %d of %d tracks (%d absent from catalog)\n",
		result.Processed, len(worklist)-startIndex, len(result.NotFound))

	switch result.Reason {
	case tasks.Completed:
		r.writePlain("Enrichment complete.\n")
	case tasks.RateLimited:
		r.writePlain("Halted by rate limiting. Resume with: slhd enrich --start-index %d\n", result.NextIndex)
	case tasks.Errored:
		r.writePlain("Halted by an error. Resume with: slhd enrich --start-index %d\n", result.NextIndex)
	}

	return runErr
}
