// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/melodari/internal/formatter"
	"github.com/desertthunder/melodari/internal/repositories"
	"github.com/urfave/cli/v3"
)

func providerArg() cli.Argument {
	return &cli.StringArg{Name: "provider", UsageText: "google or spotify"}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// serveCommand runs the OAuth proxy and JSON API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the OAuth proxy and JSON API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from [server] config)",
			},
		},
		Action: r.Serve,
	}
}

// authCommand handles provider links
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage provider authentication",
		Commands: []*cli.Command{
			{
				Name:      "login",
				Usage:     "Link a provider account through the browser",
				Arguments: []cli.Argument{providerArg()},
				Action:    r.AuthLogin,
			},
			{
				Name:      "status",
				Usage:     "Probe the linked accounts",
				Arguments: []cli.Argument{providerArg()},
				Flags:     outputFlags(),
				Action:    r.AuthStatus,
			},
			{
				Name:      "logout",
				Usage:     "Unlink a provider and drop its cached playlists",
				Arguments: []cli.Argument{providerArg()},
				Action:    r.AuthLogout,
			},
		},
	}
}

// playlistsCommand handles playlist browsing and export
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Browse and export playlists",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List playlists of a provider",
				Arguments: []cli.Argument{providerArg()},
				Flags: append(outputFlags(),
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Refetch from the provider",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to show",
					},
				),
				Action: r.PlaylistsList,
			},
			{
				Name:  "songs",
				Usage: "Show the songs of a playlist",
				Arguments: []cli.Argument{
					providerArg(),
					&cli.StringArg{Name: "id"},
				},
				Flags:  outputFlags(),
				Action: r.PlaylistsSongs,
			},
			{
				Name:  "find",
				Usage: "Find a playlist by title",
				Arguments: []cli.Argument{
					providerArg(),
					&cli.StringArg{Name: "title"},
				},
				Action: r.PlaylistsFind,
			},
			{
				Name:   "combined",
				Usage:  "Show playlists of every linked platform merged by title",
				Flags:  outputFlags(),
				Action: r.PlaylistsCombined,
			},
			{
				Name:      "export",
				Usage:     "Export playlists to files",
				Arguments: []cli.Argument{providerArg()},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Playlist ID to export (repeatable, default: all)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown, txt",
						Value:   formatter.JSON,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent writers",
						Value: 5,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Song fetches per second",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:  "cover",
						Usage: "Download cover images for markdown exports",
					},
				},
				Action: r.PlaylistsExport,
			},
		},
	}
}

// convertCommand copies a playlist to another platform
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "convert",
		Aliases: []string{"transfer"},
		Usage:   "Copy a playlist to the other platform",
		Arguments: []cli.Argument{
			providerArg(),
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "to",
				Usage: "Target provider (default: the other platform)",
			},
			&cli.StringFlag{
				Name:  "target-id",
				Usage: "Add to this playlist instead of matching by title",
			},
			&cli.BoolFlag{
				Name:  "fail-on-empty",
				Usage: "Report a conversion that matched nothing as a failure",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Convert,
	}
}

// historyCommand lists recent conversions
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent conversions",
		Flags: append(outputFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of conversions to show",
				Value: repositories.DefaultHistoryLimit,
			},
		),
		Action: r.History,
	}
}
