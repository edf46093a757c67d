package main

import (
	"context"
	"fmt"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/repositories"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Ingest loads the streaming-history export files into the plays table.
func (r *Runner) Ingest(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	dataDir := cmd.String("data-dir")
	if dataDir == "" {
		dataDir = config.Paths.DataDir
	}

	r.logger.Info("reading export files", "dir", dataDir)

	result, err := tasks.IngestExportDir(dataDir)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	r.logger.Info("export files cleaned",
		"files", len(result.Files),
		"plays", len(result.Plays),
		"episodes_dropped", result.Episodes,
		"duplicates_dropped", result.Duplicates,
	)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	plays := repositories.NewPlayRepository(db)
	if err := plays.InsertPlays(result.Plays); err != nil {
		return fmt.Errorf("failed to load plays: %w", err)
	}

	total, err := plays.Count()
	if err != nil {
		return err
	}

	r.logger.Info("listening history loaded", "inserted", len(result.Plays), "total", total)
	r.writePlain("Loaded %d plays from %d export files (%d total rows)\n", len(result.Plays), len(result.Files), total)
	return nil
}
