package main

import (
	"context"
	"path/filepath"

	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/formatter"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/repositories"
	"github.com/christophercarney2/Spotify-Listening-History-Database/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Images downloads cover art for every staged artist and album that has an
// image URL. Downloads are paced with the configured request rate since the
// art is served from the same CDN the catalog throttles.
func (r *Runner) Images(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	imagesDir := cmd.String("output")
	if imagesDir == "" {
		imagesDir = config.Paths.ImagesDir
	}

	staging := repositories.NewStagingRepository(db)
	artists, err := staging.Artists()
	if err != nil {
		return err
	}
	albums, err := staging.Albums()
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Limit(config.Batch.RequestsPerSecond), 1)
	saved, failed := 0, 0

	save := func(url, subdir, name string) {
		if url == "" {
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		path, err := formatter.SaveImage(url, filepath.Join(imagesDir, subdir), shared.SanitizeFilename(name))
		if err != nil {
			failed++
			r.logger.Warn("failed to download image", "name", name, "error", err)
			return
		}
		saved++
		r.logger.Debug("saved image", "path", path)
	}

	for _, artist := range artists {
		save(artist.ImageURL, "artists", artist.Name)
		if ctx.Err() != nil {
			break
		}
	}
	for _, album := range albums {
		save(album.ImageURL, "albums", album.Name)
		if ctx.Err() != nil {
			break
		}
	}

	r.writePlain("Saved %d images to %s (%d failed)\n", saved, imagesDir, failed)
	return ctx.Err()
}
