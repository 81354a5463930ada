package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/auth"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
	tu "github.com/desertthunder/melodari/internal/testing"
	"github.com/urfave/cli/v3"
)

type fixture struct {
	runner  *Runner
	output  *bytes.Buffer
	app     *app.App
	google  *tu.FakeProvider
	spotify *tu.FakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	google := tu.NewFakeProvider(models.Google)
	google.Results["Song A Artist X"] = []models.Song{{ID: "vA", Title: "Song A"}}

	spotify := tu.NewFakeProvider(models.Spotify)
	spotify.Playlists = []models.Playlist{{ID: "sp-road-trip", Title: "Road Trip", Source: models.Spotify}}
	spotify.Songs["sp-road-trip"] = []models.Song{
		{ID: "t1", Title: "Song A", Artist: "Artist X"},
		{ID: "t2", Title: "Song B", Artist: "Artist Y"},
	}

	config := shared.DefaultConfig()
	config.Sync = shared.SyncConfig{Concurrency: 1}
	logger := shared.NewLogger(io.Discard)

	a, err := app.New(app.Options{
		Config:    config,
		DB:        db,
		Logger:    logger,
		Providers: []services.MusicProvider{google, spotify},
		Store:     auth.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	for _, p := range models.Providers {
		if err := a.Login(ctx, p, &models.Tokens{AccessToken: "at", RefreshToken: "rt"}); err != nil {
			t.Fatalf("login failed: %v", err)
		}
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, App: a, Logger: logger, Output: output})
	return &fixture{runner: runner, output: output, app: a, google: google, spotify: spotify}
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	root := &cli.Command{
		Name:      "melodari",
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		Commands:  f.runner.register(),
	}
	return root.Run(context.Background(), append([]string{"melodari"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			if runner := NewRunner(RunnerOpts{}); runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			if runner := NewRunner(RunnerOpts{}); runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			if runner := NewRunner(RunnerOpts{}); runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("injected app is not closed", func(t *testing.T) {
			f := newFixture(t)
			f.runner.Close()
			if f.runner.app == nil {
				t.Error("expected injected app to be kept")
			}
		})
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")})
			config, err := runner.loadConfig()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if config.Server.Port != 3000 {
				t.Errorf("expected default port, got %d", config.Server.Port)
			}
		})

		t.Run("reads existing file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			config := shared.DefaultConfig()
			config.Server.Port = 4321
			if err := shared.SaveConfig(path, config); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			loaded, err := NewRunner(RunnerOpts{ConfigPath: path}).loadConfig()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if loaded.Server.Port != 4321 {
				t.Errorf("expected port 4321, got %d", loaded.Server.Port)
			}
		})

		t.Run("invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte("[sync]\nconcurrency = 99\n"), 0644)

			if _, err := NewRunner(RunnerOpts{ConfigPath: path}).loadConfig(); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})

	t.Run("parseProvider", func(t *testing.T) {
		tests := []struct {
			value string
			want  models.Provider
			err   error
		}{
			{value: "spotify", want: models.Spotify},
			{value: "ytmusic", want: models.Google},
			{value: "", err: shared.ErrMissingArgument},
			{value: "tidal", err: shared.ErrInvalidArgument},
		}

		for _, tt := range tests {
			got, err := parseProvider("provider", tt.value)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("parseProvider(%q) error = %v, want %v", tt.value, err, tt.err)
				}
				continue
			}
			if err != nil || got != tt.want {
				t.Errorf("parseProvider(%q) = %v, %v", tt.value, got, err)
			}
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("auth status", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "auth", "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "YouTube Music", "Spotify", "authenticated", "Test User")
	})

	t.Run("playlists list", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "playlists", "list", "spotify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Found 1 Spotify playlists", "Road Trip", "sp-road-trip")
	})

	t.Run("playlists list json", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "playlists", "list", "--json", "--pretty=false", "spotify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), `"id":"sp-road-trip"`)
	})

	t.Run("playlists songs", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "playlists", "songs", "spotify", "sp-road-trip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Road Trip", "Artist X - Song A", "2 songs")
	})

	t.Run("playlists find", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "playlists", "find", "spotify", "road trip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Road Trip")

		if err := f.run(t, "playlists", "find", "spotify", "Nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("playlists export", func(t *testing.T) {
		f := newFixture(t)
		dir := filepath.Join(t.TempDir(), "out")
		if err := f.run(t, "playlists", "export", "--format", "csv", "--output", dir, "--rate", "100", "spotify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Exported 1/1")

		if _, err := os.Stat(filepath.Join(dir, "sp-road-trip.csv")); err != nil {
			t.Errorf("expected csv export: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "export_manifest.json")); err != nil {
			t.Errorf("expected manifest: %v", err)
		}
	})

	t.Run("convert and history", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "convert", "spotify", "sp-road-trip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Conversion Complete!", "Matched: 1/2", "Song B Artist Y")

		f.output.Reset()
		if err := f.run(t, "history"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Spotify → YouTube Music", "1/2", "Road Trip")
	})

	t.Run("convert rejects same platform", func(t *testing.T) {
		f := newFixture(t)
		err := f.run(t, "convert", "--to", "spotify", "spotify", "sp-road-trip")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("convert fail on empty", func(t *testing.T) {
		f := newFixture(t)
		f.google.Results = map[string][]models.Song{}
		err := f.run(t, "convert", "--fail-on-empty", "spotify", "sp-road-trip")
		if err == nil || !strings.Contains(err.Error(), "kept") {
			t.Errorf("expected no-match error, got %v", err)
		}
	})

	t.Run("auth logout", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run(t, "auth", "logout", "spotify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, f.output.String(), "Logged out of Spotify")

		f.output.Reset()
		f.run(t, "auth", "status", "spotify")
		tu.AssertContains(t, f.output.String(), "unauthenticated")
	})

	t.Run("setup database", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "melodari.db")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard), Output: output})

		root := &cli.Command{Name: "melodari", Writer: io.Discard, Commands: runner.register()}
		if err := root.Run(context.Background(), []string{"melodari", "setup", "database"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertContains(t, output.String(), "Database ready")
		if _, err := os.Stat(config.Database.Path); err != nil {
			t.Errorf("expected database file: %v", err)
		}
	})
}
