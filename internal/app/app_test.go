package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/desertthunder/melodari/internal/auth"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/repositories"
	"github.com/desertthunder/melodari/internal/server"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
	tu "github.com/desertthunder/melodari/internal/testing"
)

type testApp struct {
	*App
	google  *tu.FakeProvider
	spotify *tu.FakeProvider
	store   *auth.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	google := tu.NewFakeProvider(models.Google)
	spotify := tu.NewFakeProvider(models.Spotify)
	spotify.Playlists = []models.Playlist{
		{ID: "sp-road-trip", Title: "Road Trip", Source: models.Spotify, Platforms: []models.Provider{models.Spotify}},
	}
	spotify.Songs["sp-road-trip"] = []models.Song{
		{ID: "t1", Title: "Song A", Artist: "Artist X"},
		{ID: "t2", Title: "Song B", Artist: "Artist Y"},
	}
	google.Results["Song A Artist X"] = []models.Song{{ID: "vA", Title: "Song A"}}
	google.Results["Song B Artist Y"] = []models.Song{{ID: "vB", Title: "Song B"}}

	config := shared.DefaultConfig()
	config.Sync = shared.SyncConfig{Concurrency: 1}
	store := auth.NewMemoryStore()

	a, err := New(Options{
		Config:    config,
		DB:        db,
		Logger:    shared.NewLogger(io.Discard),
		Providers: []services.MusicProvider{google, spotify},
		Store:     store,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return &testApp{App: a, google: google, spotify: spotify, store: store}
}

func (a *testApp) loginAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, p := range models.Providers {
		if err := a.Login(ctx, p, &models.Tokens{AccessToken: string(p) + "-at", RefreshToken: "rt"}); err != nil {
			t.Fatalf("login %s failed: %v", p, err)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("requires database", func(t *testing.T) {
		if _, err := New(Options{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("token client follows proxy url", func(t *testing.T) {
		a := newTestApp(t)
		if _, ok := a.Tokens().(*services.OAuthRefresher); !ok {
			t.Errorf("expected OAuthRefresher with default config, got %T", a.Tokens())
		}
		if _, err := a.OAuthConfig(models.Spotify); err != nil {
			t.Errorf("expected spotify oauth config, got %v", err)
		}

		config := shared.DefaultConfig()
		config.Server.ProxyURL = "http://192.168.1.10:3000"
		proxied, err := New(Options{Config: config, DB: a.db, Logger: shared.NewLogger(io.Discard)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := proxied.Tokens().(*services.TokenProxy); !ok {
			t.Errorf("expected TokenProxy, got %T", proxied.Tokens())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		a := newTestApp(t)
		if _, err := a.Manager("tidal"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := a.Library("tidal"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestLoginClient(t *testing.T) {
	tests := []struct {
		name   string
		proxy  string
		addr   string
		direct bool
	}{
		{name: "no proxy", proxy: "", addr: "127.0.0.1:3000", direct: true},
		{name: "proxy is the callback listener", proxy: "http://127.0.0.1:3000", addr: "127.0.0.1:3000", direct: true},
		{name: "localhost alias", proxy: "http://localhost:3000/", addr: "127.0.0.1:3000", direct: true},
		{name: "wildcard listener", proxy: "http://127.0.0.1:3000", addr: "0.0.0.0:3000", direct: true},
		{name: "default port", proxy: "http://localhost", addr: "127.0.0.1:80", direct: true},
		{name: "other port", proxy: "http://127.0.0.1:8080", addr: "127.0.0.1:3000", direct: false},
		{name: "remote proxy", proxy: "https://melodari.example.com", addr: "127.0.0.1:3000", direct: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			a.config.Server.ProxyURL = tt.proxy
			if tt.proxy != "" {
				a.tokens = services.NewTokenProxy(tt.proxy)
			}

			_, direct := a.LoginClient(tt.addr).(*services.OAuthRefresher)
			if direct != tt.direct {
				t.Errorf("LoginClient(%q) direct = %v, want %v", tt.addr, direct, tt.direct)
			}
		})
	}

	t.Run("callback completes with the proxy on the callback address", func(t *testing.T) {
		ctx := context.Background()
		a := newTestApp(t)
		a.google.ValidToken = "at"

		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil || r.Form.Get("code") != "abc" {
				t.Errorf("unexpected token request: %v %v", err, r.Form)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
		}))
		defer tokenServer.Close()
		a.oauth[models.Google].Endpoint.TokenURL = tokenServer.URL

		router := server.NewBasicRouter()
		callback := httptest.NewUnstartedServer(router)
		addr := callback.Listener.Addr().String()
		a.config.Server.ProxyURL = "http://" + addr
		a.tokens = services.NewTokenProxy(a.config.Server.ProxyURL)

		handler := server.NewOAuthHandler(models.Google, a.LoginClient(addr), "s")
		router.Handler(handler)
		callback.Start()
		defer callback.Close()

		resp, err := http.Get(callback.URL + "/callback?state=s&code=abc")
		if err != nil {
			t.Fatalf("callback request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		result := <-handler.Result()
		if result.Error() != nil {
			t.Fatalf("unexpected exchange error: %v", result.Error())
		}
		if err := a.Login(ctx, models.Google, result.Tokens); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		stored, _ := a.store.Get(ctx, models.Google)
		if stored == nil || stored.AccessToken != "at" || stored.RefreshToken != "rt" {
			t.Errorf("unexpected stored tokens %+v", stored)
		}
	})
}

func TestLinkProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("local profile without google", func(t *testing.T) {
		a := newTestApp(t)
		profile, err := a.LinkProfile(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.GoogleID != repositories.LocalProfile {
			t.Errorf("expected local profile, got %q", profile.GoogleID)
		}
		if len(profile.Platforms) != 0 {
			t.Errorf("expected no platforms, got %v", profile.Platforms)
		}
	})

	t.Run("google account keys the profile", func(t *testing.T) {
		a := newTestApp(t)
		a.google.Account = models.Account{ID: "g-123", DisplayName: "Ada", AvatarURL: "https://img/ada.png"}
		a.loginAll(t)

		profile := a.Profile()
		if profile == nil {
			t.Fatal("expected a bound profile")
		}
		if profile.GoogleID != "g-123" || profile.Username != "Ada" || profile.AvatarURL != "https://img/ada.png" {
			t.Errorf("unexpected profile %+v", profile)
		}
		if !reflect.DeepEqual(profile.Platforms, []models.Provider{models.Google, models.Spotify}) {
			t.Errorf("unexpected platforms %v", profile.Platforms)
		}

		again, err := a.LinkProfile(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.ID != profile.ID {
			t.Errorf("expected the same profile, got %s and %s", profile.ID, again.ID)
		}
	})

	t.Run("rejected tokens", func(t *testing.T) {
		a := newTestApp(t)
		a.spotify.ProbeErr = &shared.AuthError{Provider: "spotify", Op: "CurrentUser"}
		a.spotify.RefreshErr = &shared.AuthError{Provider: "spotify", Op: "refresh"}

		err := a.Login(ctx, models.Spotify, &models.Tokens{AccessToken: "bad", RefreshToken: "rt"})
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	status, err := a.Status(ctx, models.Spotify)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Authenticated || status.State != "unauthenticated" || status.Account != nil {
		t.Errorf("unexpected status %+v", status)
	}

	a.loginAll(t)
	status, _ = a.Status(ctx, models.Spotify)
	if !status.Authenticated || status.State != "authenticated" || status.Account == nil {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()

	t.Run("records history and play count", func(t *testing.T) {
		a := newTestApp(t)
		a.loginAll(t)

		result, err := a.Convert(ctx, ConvertRequest{Source: models.Spotify, Target: models.Google, PlaylistID: "sp-road-trip"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Matched != 2 || result.Total != 2 || !result.Created {
			t.Errorf("unexpected result %+v", result)
		}

		target, _ := a.Library(models.Google)
		if _, ok := target.Playlist(result.Target.ID); !ok {
			t.Error("expected target playlists to be refreshed")
		}

		history, err := a.History(ctx, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 conversion, got %d", len(history))
		}
		got := history[0]
		if !got.Success || got.Matched != 2 || got.Title != "Road Trip" || got.TargetPlaylistID != result.Target.ID {
			t.Errorf("unexpected conversion %+v", got)
		}

		profile, err := a.LinkProfile(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.PlayCount["sp-road-trip"] != 1 {
			t.Errorf("expected play count 1, got %v", profile.PlayCount)
		}
	})

	t.Run("failure is recorded", func(t *testing.T) {
		a := newTestApp(t)
		a.loginAll(t)
		a.google.CreateErr = &shared.RequestError{Provider: "google", Op: "CreatePlaylist", Status: 403}

		if _, err := a.Convert(ctx, ConvertRequest{Source: models.Spotify, Target: models.Google, PlaylistID: "sp-road-trip"}, nil); err == nil {
			t.Fatal("expected error")
		}

		history, _ := a.History(ctx, 10)
		if len(history) != 1 || history[0].Success || history[0].Error == "" {
			t.Errorf("expected a failed conversion, got %+v", history)
		}

		profile, _ := a.LinkProfile(ctx)
		if profile.PlayCount["sp-road-trip"] != 0 {
			t.Errorf("expected no play count, got %v", profile.PlayCount)
		}
	})

	tests := []struct {
		name string
		req  ConvertRequest
		want error
	}{
		{name: "same platform", req: ConvertRequest{Source: models.Google, Target: models.Google, PlaylistID: "x"}, want: shared.ErrInvalidArgument},
		{name: "missing playlist id", req: ConvertRequest{Source: models.Spotify, Target: models.Google}, want: shared.ErrMissingArgument},
		{name: "unknown playlist", req: ConvertRequest{Source: models.Spotify, Target: models.Google, PlaylistID: "nope"}, want: shared.ErrPlaylistNotFound},
		{name: "unknown provider", req: ConvertRequest{Source: "tidal", Target: models.Google, PlaylistID: "x"}, want: shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			a.loginAll(t)
			if _, err := a.Convert(ctx, tt.req, nil); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHistoryRequiresProfile(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.History(context.Background(), 5); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	a.loginAll(t)

	if _, err := a.Playlists(ctx, models.Spotify); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.Logout(ctx, models.Spotify); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tokens, _ := a.store.Get(ctx, models.Spotify); tokens != nil {
		t.Errorf("expected tokens to be cleared, got %+v", tokens)
	}
	spotify, _ := a.Library(models.Spotify)
	if n := len(spotify.Playlists()); n != 0 {
		t.Errorf("expected cleared playlists, got %d", n)
	}
	if got := a.Profile().Platforms; !reflect.DeepEqual(got, []models.Provider{models.Google}) {
		t.Errorf("unexpected platforms %v", got)
	}
	if n := a.spotify.Calls("Revoke"); n != 1 {
		t.Errorf("expected 1 revoke, got %d", n)
	}
}

func TestCombined(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	a.google.Playlists = []models.Playlist{
		{ID: "yt-road-trip", Title: "road trip ", Source: models.Google},
		{ID: "yt-focus", Title: "Focus", Source: models.Google},
	}
	a.loginAll(t)

	combined, err := a.Combined(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(combined) != 2 {
		t.Fatalf("expected 2 combined playlists, got %d: %+v", len(combined), combined)
	}

	var road *models.Playlist
	for i := range combined {
		if combined[i].ID == "yt-road-trip" || combined[i].ID == "sp-road-trip" {
			road = &combined[i]
		}
	}
	if road == nil || !road.HasPlatform(models.Google) || !road.HasPlatform(models.Spotify) {
		t.Errorf("expected road trip on both platforms, got %+v", road)
	}
}
