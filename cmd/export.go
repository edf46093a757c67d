package main

import (
	"context"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/formatter"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/repositories"
	"github.com/urfave/cli/v3"
)

// Export writes each database table to a CSV file under the data directory.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	dataDir := cmd.String("output")
	if dataDir == "" {
		dataDir = config.Paths.DataDir
	}

	count, err := repositories.NewPlayRepository(db).Count()
	if err != nil {
		return err
	}
	if count == 0 {
		r.logger.Warn("plays table is empty, exports will only contain headers")
	}

	files, err := formatter.WriteTableExports(db, dataDir)
	if err != nil {
		return err
	}

	for _, path := range files {
		r.logger.Info("wrote export", "path", path)
	}
	r.writePlain("Exported %d tables to %s\n", len(files), dataDir)
	return nil
}
