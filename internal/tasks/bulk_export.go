package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/melodari/internal/formatter"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// SongSource resolves cached playlists and their songs. [library.Repository] implements it.
type SongSource interface {
	Provider() models.Provider
	Playlist(id string) (models.Playlist, bool)
	FetchSongsForPlaylist(ctx context.Context, id string) ([]models.Song, error)
}

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Base output directory (default: {provider}_export_{epoch})
	NumWorkers int     // Concurrent writers (default: 5)
	RateLimit  float64 // Song fetches per second (default: 5)
	Cover      bool    // Download cover images for markdown exports
}

// PlaylistExportJob is one playlist handed to a worker.
type PlaylistExportJob struct {
	PlaylistID string
	Playlist   models.Playlist
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Error        error    `json:"-"`
	ErrorMessage string   `json:"error,omitempty"`
	Files        []string `json:"files,omitempty"`
}

// BulkExportResult summarises a bulk export and is written as the manifest.
type BulkExportResult struct {
	Provider          models.Provider        `json:"provider"`
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	OutputDirectory   string                 `json:"output_directory"`
	ManifestPath      string                 `json:"-"`
	Results           []PlaylistExportResult `json:"results"`
}

// BulkExport exports multiple playlists concurrently with rate limiting and progress tracking.
//
// A producer fetches songs for each playlist at the configured rate and a worker pool writes
// the files. Failures are recorded per playlist and a manifest summarises the run.
func (e *PlaylistEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	src SongSource,
	ids []string,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: library not initialized", shared.ErrServiceUnavailable)
	}

	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	opts.Format = format

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("%s_export_%d", src.Provider(), time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		Provider:        src.Provider(),
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan PlaylistExportJob, len(ids))
	results := make(chan PlaylistExportResult, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, playlistID := range ids {
			if ctx.Err() != nil {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			playlist, ok := src.Playlist(playlistID)
			if !ok {
				results <- failedExport(playlistID, fmt.Sprintf("Unknown (%s)", playlistID),
					fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID))
				continue
			}

			songs, err := src.FetchSongsForPlaylist(ctx, playlistID)
			if err != nil {
				results <- failedExport(playlistID, playlist.Title, fmt.Errorf("failed to fetch songs: %w", err))
				continue
			}
			playlist.Songs = songs

			e.sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), playlist.Title))
			jobs <- PlaylistExportJob{PlaylistID: playlistID, Playlist: playlist}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func failedExport(id, name string, err error) PlaylistExportResult {
	return PlaylistExportResult{
		PlaylistID:   id,
		PlaylistName: name,
		Error:        err,
		ErrorMessage: err.Error(),
	}
}

// exportWorker writes playlists from the jobs channel until it is closed.
func (e *PlaylistEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan PlaylistExportJob,
	results chan<- PlaylistExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}

		files, err := formatter.Write(ctx, job.Playlist, opts.OutputDir, formatter.Options{Format: opts.Format, Cover: opts.Cover})
		if err != nil {
			results <- failedExport(job.PlaylistID, job.Playlist.Title, fmt.Errorf("%s export failed: %w", opts.Format, err))
			continue
		}

		results <- PlaylistExportResult{
			PlaylistID:   job.PlaylistID,
			PlaylistName: job.Playlist.Title,
			Success:      true,
			Files:        files,
		}
	}
}
