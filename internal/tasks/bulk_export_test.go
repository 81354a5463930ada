package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	tu "github.com/desertthunder/melodari/internal/testing"
)

func TestBulkExport(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *PlaylistEngine {
		t.Helper()
		return newTestEngine()
	}

	t.Run("exports playlists and writes manifest", func(t *testing.T) {
		repo, client := newLibrary(t, models.Spotify)
		client.Playlists = []models.Playlist{
			{ID: "p1", Title: "One", Source: models.Spotify},
			{ID: "p2", Title: "Two", Source: models.Spotify},
		}
		client.Songs["p1"] = []models.Song{{ID: "s1", Title: "Song"}}
		if _, err := repo.LoadPlaylists(ctx); err != nil {
			t.Fatalf("LoadPlaylists failed: %v", err)
		}

		dir := t.TempDir()
		result, err := setup(t).BulkExport(ctx, nil, repo, []string{"p1", "p2", "missing"}, BulkExportOpts{
			Format:     "json",
			OutputDir:  dir,
			NumWorkers: 2,
			RateLimit:  1000,
		})
		if err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}

		if result.SuccessfulExports != 2 || result.FailedExports != 1 {
			t.Errorf("expected 2 ok / 1 failed, got %d / %d", result.SuccessfulExports, result.FailedExports)
		}
		for _, name := range []string{"p1.json", "p2.json", "export_manifest.json"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				t.Errorf("expected %s: %v", name, err)
			}
		}

		for _, res := range result.Results {
			if res.PlaylistID == "missing" && !errors.Is(res.Error, shared.ErrPlaylistNotFound) {
				t.Errorf("expected ErrPlaylistNotFound, got %v", res.Error)
			}
		}

		data, err := os.ReadFile(result.ManifestPath)
		if err != nil {
			t.Fatalf("failed to read manifest: %v", err)
		}
		var manifest BulkExportResult
		if err := json.Unmarshal(data, &manifest); err != nil {
			t.Fatalf("invalid manifest: %v", err)
		}
		if manifest.TotalPlaylists != 3 || manifest.Provider != models.Spotify {
			t.Errorf("unexpected manifest %+v", manifest)
		}

		var exported models.Playlist
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, filepath.Join(dir, "p1.json"))), &exported); err != nil {
			t.Fatalf("invalid export: %v", err)
		}
		if len(exported.Songs) != 1 {
			t.Errorf("expected songs in export, got %+v", exported)
		}
	})

	t.Run("song fetch failure is recorded", func(t *testing.T) {
		repo, client := newLibrary(t, models.Google)
		client.Playlists = []models.Playlist{{ID: "p1", Title: "One", Source: models.Google}}
		repo.LoadPlaylists(ctx)
		client.SongsErr = &shared.RequestError{Provider: "google", Op: "ListSongs", Status: 500}

		result, err := setup(t).BulkExport(ctx, nil, repo, []string{"p1"}, BulkExportOpts{Format: "csv", OutputDir: t.TempDir()})
		if err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}
		if result.FailedExports != 1 || result.Results[0].ErrorMessage == "" {
			t.Errorf("expected recorded failure, got %+v", result.Results)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		repo, _ := newLibrary(t, models.Google)
		_, err := setup(t).BulkExport(ctx, nil, repo, []string{"p1"}, BulkExportOpts{Format: "xml", OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := setup(t).BulkExport(ctx, nil, nil, nil, BulkExportOpts{})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		repo, client := newLibrary(t, models.Google)
		client.Playlists = []models.Playlist{{ID: "p1", Title: "One", Source: models.Google}}
		repo.LoadPlaylists(ctx)

		progress := make(chan ProgressUpdate, 10)
		if _, err := setup(t).BulkExport(ctx, progress, repo, []string{"p1"}, BulkExportOpts{OutputDir: t.TempDir()}); err != nil {
			t.Fatalf("BulkExport failed: %v", err)
		}
		close(progress)

		count := 0
		for update := range progress {
			if update.Phase != ExportPlaylist {
				t.Errorf("unexpected phase %v", update.Phase)
			}
			count++
		}
		if count != 2 {
			t.Errorf("expected 2 updates, got %d", count)
		}
	})
}
