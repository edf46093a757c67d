// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// ingestCommand loads the raw streaming-history export into the database.
func ingestCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load endsong_*.json export files into the plays table",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory containing the export files (overrides config)",
			},
		},
		Action: r.Ingest,
	}
}

// enrichCommand runs the resumable batch fetch against the catalog API.
func enrichCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "enrich",
		Usage: "Fetch track, album, and artist details from Spotify in resumable batches",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "start-index",
				Aliases: []string{"s"},
				Usage:   "Worklist index to start at (-1 resumes from the stored checkpoint)",
				Value:   -1,
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Aliases: []string{"b"},
				Usage:   "Lookups per catalog call (overrides config)",
			},
		},
		Action: r.Enrich,
	}
}

// consolidateCommand reconciles duplicate tracks and finishes the artist table.
func consolidateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "consolidate",
		Usage:  "Merge duplicate tracks, rewrite play history, aggregate genres",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Consolidate,
	}
}

// exportCommand writes every table to CSV.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all tables to CSV files",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (overrides config data_dir)",
			},
		},
		Action: r.Export,
	}
}

// imagesCommand downloads artist and album cover art.
func imagesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "images",
		Usage: "Download artist and album cover art",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "output",
				Usage: "Image directory (overrides config images_dir)",
			},
		},
		Action: r.Images,
	}
}
