package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/melodari/internal/library"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/desertthunder/melodari/internal/tasks"
	"github.com/urfave/cli/v3"
)

func (r *Runner) library(ctx context.Context, cmd *cli.Command) (*library.Repository, error) {
	provider, err := r.provider(cmd, "provider")
	if err != nil {
		return nil, err
	}

	a, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	return a.Library(provider)
}

func (r *Runner) writePlaylists(playlists []models.Playlist) {
	for i, p := range playlists {
		r.writePlain("%d. %s %s\n", i+1, p.Title, r.palette.Help("("+p.ID+")"))
		if p.Description != "" {
			r.writePlain("   %s\n", p.Description)
		}
		if len(p.Platforms) > 1 {
			labels := make([]string, 0, len(p.Platforms))
			for _, pl := range p.Platforms {
				labels = append(labels, pl.Label())
			}
			r.writePlain("   On: %s\n", strings.Join(labels, ", "))
		}
	}
}

// PlaylistsList lists the playlists of a provider, merged with the cache.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.library(ctx, cmd)
	if err != nil {
		return err
	}

	load := repo.LoadPlaylists
	if cmd.Bool("refresh") {
		load = repo.RefreshPlaylists
	}

	playlists, err := load(ctx)
	if err != nil {
		return err
	}

	if limit := cmd.Int("limit"); limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d %s playlists:\n\n", len(playlists), repo.Provider().Label())
	r.writePlaylists(playlists)
	return nil
}

// PlaylistsSongs shows the songs of one playlist.
func (r *Runner) PlaylistsSongs(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	repo, err := r.library(ctx, cmd)
	if err != nil {
		return err
	}

	if _, ok := repo.Playlist(id); !ok {
		if _, err := repo.LoadPlaylists(ctx); err != nil {
			return err
		}
	}

	songs, err := repo.FetchSongsForPlaylist(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(songs, cmd.Bool("pretty"))
	}

	title := id
	if p, ok := repo.Playlist(id); ok {
		title = p.Title
	}
	r.writePlainHeader(title)
	for i, s := range songs {
		if s.Artist != "" {
			r.writePlain("%3d. %s - %s\n", i+1, s.Artist, s.Title)
		} else {
			r.writePlain("%3d. %s\n", i+1, s.Title)
		}
	}
	r.writePlain("\n%d songs\n", len(songs))
	return nil
}

// PlaylistsFind looks a playlist up by title.
func (r *Runner) PlaylistsFind(ctx context.Context, cmd *cli.Command) error {
	title := cmd.StringArg("title")
	if title == "" {
		return fmt.Errorf("%w: playlist title", shared.ErrMissingArgument)
	}

	repo, err := r.library(ctx, cmd)
	if err != nil {
		return err
	}

	playlist, err := repo.FindPlaylist(ctx, title)
	var ambiguous *library.AmbiguousPlaylistError
	if errors.As(err, &ambiguous) {
		r.writePlain("%s %q matches %d playlists:\n", r.palette.Warn("⚠"), title, len(ambiguous.Candidates))
		r.writePlaylists(ambiguous.Candidates)
		return err
	}
	if err != nil {
		return err
	}
	if playlist == nil {
		return fmt.Errorf("%w: no %s playlist titled %q", shared.ErrPlaylistNotFound, repo.Provider().Label(), title)
	}

	return r.writePlain("%s %s %s\n", r.palette.OK("✓"), playlist.Title, r.palette.Help("("+playlist.ID+")"))
}

// PlaylistsCombined shows every linked platform's playlists merged by title.
func (r *Runner) PlaylistsCombined(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	playlists, err := a.Combined(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists across platforms:\n\n", len(playlists))
	r.writePlaylists(playlists)
	return nil
}

// PlaylistsExport writes playlists to files with the bulk exporter.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.library(ctx, cmd)
	if err != nil {
		return err
	}

	playlists, err := repo.LoadPlaylists(ctx)
	if err != nil {
		return err
	}

	ids := cmd.StringSlice("id")
	if len(ids) == 0 {
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no playlists to export", shared.ErrPlaylistNotFound)
	}

	opts := tasks.BulkExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
		Cover:      cmd.Bool("cover"),
	}

	progress := make(chan tasks.ProgressUpdate, len(ids)*2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
		}
	}()

	result, err := r.app.Engine().BulkExport(ctx, progress, repo, ids, opts)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("%s Exported %d/%d playlists to %s", r.palette.OK("✓"), result.SuccessfulExports, result.TotalPlaylists, result.OutputDirectory)
	if result.FailedExports > 0 {
		r.writePlain("%s %d failed:\n", r.palette.Err("✗"), result.FailedExports)
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %s\n", res.PlaylistName, res.ErrorMessage)
			}
		}
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
