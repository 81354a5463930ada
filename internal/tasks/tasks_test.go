package tasks

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/desertthunder/melodari/internal/auth"
	"github.com/desertthunder/melodari/internal/library"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	tu "github.com/desertthunder/melodari/internal/testing"
)

func newLibrary(t *testing.T, provider models.Provider) (*library.Repository, *tu.FakeProvider) {
	t.Helper()
	client := tu.NewFakeProvider(provider)
	client.ValidToken = "token"

	tokens := auth.NewMemoryStore()
	if err := tokens.Set(context.Background(), provider, &models.Tokens{AccessToken: "token", RefreshToken: "refresh"}); err != nil {
		t.Fatalf("failed to seed tokens: %v", err)
	}

	logger := shared.NewLogger(io.Discard)
	manager := auth.NewManager(client, tokens, logger)
	return library.New(manager, tu.NewFakePlaylistStore(), logger), client
}

func newTestEngine() *PlaylistEngine {
	return NewPlaylistEngine(shared.SyncConfig{Concurrency: 1}, shared.NewLogger(io.Discard))
}

func roadTrip() models.Playlist {
	return models.Playlist{
		ID:     "sp-road-trip",
		Title:  "Road Trip",
		Source: models.Spotify,
		Songs: []models.Song{
			{ID: "t1", Title: "Song A", Artist: "Artist X"},
			{ID: "t2", Title: "Song B", Artist: "Artist Y"},
		},
	}
}

func TestConvertPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("road trip to google", func(t *testing.T) {
		source, _ := newLibrary(t, models.Spotify)
		target, client := newLibrary(t, models.Google)
		client.Results["Song A Artist X"] = []models.Song{{ID: "vA", Title: "Song A"}}
		client.Results["Song B Artist Y"] = []models.Song{{ID: "vB", Title: "Song B"}}

		ok := newTestEngine().ConvertPlaylist(ctx, source, roadTrip(), target, nil)
		if !ok {
			t.Fatal("expected conversion to succeed")
		}

		if n := client.Calls("CreatePlaylist"); n != 1 {
			t.Errorf("expected 1 CreatePlaylist call, got %d", n)
		}
		if got := client.Queries(); !reflect.DeepEqual(got, []string{"Song A Artist X", "Song B Artist Y"}) {
			t.Errorf("unexpected search order %v", got)
		}

		created := client.Playlists[0]
		if created.Title != "Road Trip" {
			t.Errorf("expected Road Trip, got %s", created.Title)
		}
		added := client.Added(created.ID)
		if len(added) != 2 || added[0].ID != "vA" || added[1].ID != "vB" {
			t.Errorf("unexpected added songs %+v", added)
		}
	})

	t.Run("creation failure returns false", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)
		client.CreateErr = &shared.RequestError{Provider: "google", Op: "CreatePlaylist", Status: 403}

		if newTestEngine().ConvertPlaylist(ctx, nil, roadTrip(), target, nil) {
			t.Error("expected failure")
		}
		if n := client.Calls("Search"); n != 0 {
			t.Errorf("expected no searches, got %d", n)
		}
	})

	t.Run("zero matches still succeeds", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)

		if !newTestEngine().ConvertPlaylist(ctx, nil, roadTrip(), target, nil) {
			t.Error("expected success independent of matches")
		}
		if n := client.Calls("AddItems"); n != 0 {
			t.Errorf("expected no AddItems call, got %d", n)
		}
	})
}

func TestConvertMatchesSubset(t *testing.T) {
	ctx := context.Background()
	songs := []models.Song{
		{ID: "1", Title: "One", Artist: "A"},
		{ID: "2", Title: "Two"},
		{ID: "3", Title: "Three", Artist: "C"},
		{ID: "4", Title: "Four", Artist: "D"},
		{ID: "5", Title: "Five", Artist: "E"},
	}
	hits := map[string]string{"One A": "h1", "Three C": "h3", "Five E": "h5"}

	for _, concurrency := range []int{0, 1, 4, 100} {
		t.Run("concurrency", func(t *testing.T) {
			target, client := newLibrary(t, models.Spotify)
			for q, id := range hits {
				client.Results[q] = []models.Song{{ID: id}}
			}

			playlist := models.Playlist{ID: "src", Title: "Mix", Source: models.Google, Songs: songs}
			result, err := newTestEngine().Convert(ctx, nil, playlist, target, ConvertOptions{Concurrency: concurrency}, nil)
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}

			if result.Matched != 3 || result.Total != 5 {
				t.Errorf("expected 3/5, got %d/%d", result.Matched, result.Total)
			}
			added := client.Added(result.Target.ID)
			var ids []string
			for _, s := range added {
				ids = append(ids, s.ID)
			}
			if !reflect.DeepEqual(ids, []string{"h1", "h3", "h5"}) {
				t.Errorf("expected source order, got %v", ids)
			}
			if missed := result.Missed(); len(missed) != 2 || missed[0].ID != "2" || missed[1].ID != "4" {
				t.Errorf("unexpected missed songs %+v", missed)
			}
			if client.Queries()[1] != "Two" && concurrency <= 1 {
				t.Errorf("expected artist-less query, got %v", client.Queries())
			}
		})
	}
}

func TestConvertTargetResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("existing playlist is reused", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)
		client.Playlists = []models.Playlist{{ID: "existing", Title: "road trip", Source: models.Google}}
		client.Results["Song A Artist X"] = []models.Song{{ID: "vA"}}

		result, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{}, nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if result.Created || result.Target.ID != "existing" {
			t.Errorf("expected existing playlist, got %+v", result.Target)
		}
		if n := client.Calls("CreatePlaylist"); n != 0 {
			t.Errorf("expected no create, got %d", n)
		}
		if len(client.Added("existing")) != 1 {
			t.Errorf("expected 1 song added to existing playlist")
		}
	})

	t.Run("ambiguous title fails", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)
		client.Playlists = []models.Playlist{
			{ID: "a", Title: "Road Trip", Source: models.Google},
			{ID: "b", Title: "ROAD TRIP", Source: models.Google},
		}

		_, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{}, nil)
		if !errors.Is(err, shared.ErrAmbiguousPlaylist) {
			t.Errorf("expected ErrAmbiguousPlaylist, got %v", err)
		}
		if client.Calls("CreatePlaylist") != 0 || client.Calls("Search") != 0 {
			t.Error("expected nothing to be created or searched")
		}
	})

	t.Run("explicit target id skips lookup", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)

		result, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{TargetPlaylistID: "chosen"}, nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if result.Target.ID != "chosen" || result.Created {
			t.Errorf("unexpected target %+v", result.Target)
		}
		if client.Calls("ListPlaylists") != 0 || client.Calls("CreatePlaylist") != 0 {
			t.Error("expected no lookup or create")
		}
	})
}

func TestConvertFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("search error fails before adding", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)
		client.Results["Song A Artist X"] = []models.Song{{ID: "vA"}}
		client.SearchErr["Song B Artist Y"] = &shared.NetworkError{Provider: "google", Op: "Search", Err: io.ErrUnexpectedEOF}

		result, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
		if result == nil || result.Target == nil {
			t.Fatal("expected result with the created target")
		}
		if n := client.Calls("AddItems"); n != 0 {
			t.Errorf("expected no AddItems call, got %d", n)
		}
	})

	t.Run("fail on empty keeps playlist", func(t *testing.T) {
		target, client := newLibrary(t, models.Google)

		result, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{FailOnEmpty: true}, nil)
		if !errors.Is(err, ErrNoMatches) {
			t.Fatalf("expected ErrNoMatches, got %v", err)
		}
		if result == nil || !result.Created || len(client.Playlists) != 1 {
			t.Errorf("expected created playlist to be kept, got %+v", result)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		target, _ := newLibrary(t, models.Google)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newTestEngine().Convert(cctx, nil, roadTrip(), target, ConvertOptions{TargetPlaylistID: "x"}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		target, _ := newLibrary(t, models.Google)
		_, err := newTestEngine().Convert(ctx, nil, models.Playlist{ID: "x"}, target, ConvertOptions{}, nil)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestConvertLoadsSourceSongs(t *testing.T) {
	ctx := context.Background()
	source, sourceClient := newLibrary(t, models.Spotify)
	sourceClient.Songs["sp-road-trip"] = roadTrip().Songs
	target, client := newLibrary(t, models.Google)
	client.Results["Song A Artist X"] = []models.Song{{ID: "vA"}}

	playlist := roadTrip()
	playlist.Songs = nil

	result, err := newTestEngine().Convert(ctx, source, playlist, target, ConvertOptions{}, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if sourceClient.Calls("ListSongs") != 1 {
		t.Errorf("expected source songs to be fetched once")
	}
	if result.Total != 2 || result.Matched != 1 {
		t.Errorf("expected 1/2, got %d/%d", result.Matched, result.Total)
	}
}

func TestConvertRefreshesTargetToken(t *testing.T) {
	ctx := context.Background()
	target, client := newLibrary(t, models.Google)
	client.SetValidToken("fresh")
	client.Refreshed = &models.Tokens{AccessToken: "fresh", RefreshToken: "refresh"}
	client.Results["Song A Artist X"] = []models.Song{{ID: "vA"}}

	if !newTestEngine().ConvertPlaylist(ctx, nil, roadTrip(), target, nil) {
		t.Fatal("expected conversion to succeed after refresh")
	}
	if n := client.Calls("Refresh"); n != 1 {
		t.Errorf("expected 1 refresh, got %d", n)
	}
}

func TestConvertProgress(t *testing.T) {
	ctx := context.Background()
	target, client := newLibrary(t, models.Google)
	client.Results["Song A Artist X"] = []models.Song{{ID: "vA"}}

	progress := make(chan ProgressUpdate, 32)
	if _, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{}, progress); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	close(progress)

	var phases []Phase
	for update := range progress {
		phases = append(phases, update.Phase)
	}
	want := []Phase{FindTarget, CreatePlaylist, SearchSongs, SearchSongs, AddSongs, Complete}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("expected phases %v, got %v", want, phases)
	}

	t.Run("full channel does not block", func(t *testing.T) {
		target, _ := newLibrary(t, models.Google)
		full := make(chan ProgressUpdate)
		if _, err := newTestEngine().Convert(ctx, nil, roadTrip(), target, ConvertOptions{}, full); err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{FetchSource, "fetch_source"},
		{FindTarget, "find_target"},
		{CreatePlaylist, "create_playlist"},
		{SearchSongs, "search_songs"},
		{AddSongs, "add_songs"},
		{Complete, "complete"},
		{ExportPlaylist, "export_playlist"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestNewPlaylistEngineDefaults(t *testing.T) {
	e := NewPlaylistEngine(shared.SyncConfig{Concurrency: 3, FailOnEmpty: true, RateLimit: 2}, nil)
	opts := e.DefaultOptions()
	if opts.Concurrency != 3 || !opts.FailOnEmpty {
		t.Errorf("unexpected default options %+v", opts)
	}
	if e.limiter.Limit() != 2 || e.limiter.Burst() != 1 {
		t.Errorf("unexpected limiter %v/%d", e.limiter.Limit(), e.limiter.Burst())
	}
}
