// Package app wires the providers, token store, playlist repositories and sync engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/melodari/internal/auth"
	"github.com/desertthunder/melodari/internal/library"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/repositories"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/desertthunder/melodari/internal/tasks"
)

// TokenClient trades authorization codes and refresh tokens for token pairs.
// [services.OAuthRefresher] and [services.TokenProxy] implement it.
type TokenClient interface {
	services.Refresher
	Exchange(ctx context.Context, provider models.Provider, code string) (*models.Tokens, error)
}

// Options configures [New]. DB must already be migrated.
type Options struct {
	Config *shared.Config
	DB     *sql.DB
	Logger *log.Logger

	// Providers replaces the API clients built from Config, keyed by [services.MusicProvider.Name].
	Providers []services.MusicProvider
	// Tokens replaces the token client built from Config.
	Tokens TokenClient
	// Store replaces the database-backed token store.
	Store auth.TokenStore
}

// App holds one [auth.Manager] and one [library.Repository] per provider and the
// profile they are bound to.
type App struct {
	config      *shared.Config
	db          *sql.DB
	logger      *log.Logger
	tokens      TokenClient
	refresher   *services.OAuthRefresher
	oauth       map[models.Provider]*oauth2.Config
	managers    map[models.Provider]*auth.Manager
	libraries   map[models.Provider]*library.Repository
	profiles    *repositories.ProfileRepository
	conversions *repositories.ConversionRepository
	engine      *tasks.PlaylistEngine

	mu      sync.RWMutex
	profile *models.Profile
}

// Open opens and migrates the configured database and builds an [App] on it.
func Open(ctx context.Context, config *shared.Config, logger *log.Logger) (*App, error) {
	db, err := shared.OpenDatabase(ctx, config.Database)
	if err != nil {
		return nil, err
	}

	a, err := New(Options{Config: config, DB: db, Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// New wires an [App]. Refreshes go through the OAuth proxy when Server.ProxyURL is set
// and straight to the provider otherwise.
func New(opts Options) (*App, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("%w: database", shared.ErrMissingArgument)
	}
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	a := &App{
		config:      opts.Config,
		db:          opts.DB,
		logger:      opts.Logger,
		oauth:       make(map[models.Provider]*oauth2.Config),
		managers:    make(map[models.Provider]*auth.Manager),
		libraries:   make(map[models.Provider]*library.Repository),
		profiles:    repositories.NewProfileRepository(opts.DB),
		conversions: repositories.NewConversionRepository(opts.DB),
		engine:      tasks.NewPlaylistEngine(opts.Config.Sync, opts.Logger),
	}

	for _, p := range models.Providers {
		creds := a.credentials(p)
		if creds.ClientID == "" {
			continue
		}
		config, err := services.NewOAuthConfig(p, creds)
		if err != nil {
			return nil, err
		}
		a.oauth[p] = config
	}

	a.refresher = services.NewOAuthRefresher(a.oauth)
	a.tokens = opts.Tokens
	if a.tokens == nil {
		if url := opts.Config.Server.ProxyURL; url != "" {
			a.tokens = services.NewTokenProxy(url)
		} else {
			a.tokens = a.refresher
		}
	}

	providers := opts.Providers
	if len(providers) == 0 {
		providers = []services.MusicProvider{
			services.NewYouTubeService(services.YouTubeEndpoints{}, a.tokens, opts.Logger),
			services.NewSpotifyService("", a.tokens, opts.Logger),
		}
	}

	store := opts.Store
	if store == nil {
		store = repositories.NewTokenRepository(opts.DB)
	}

	for _, provider := range providers {
		manager := auth.NewManager(provider, store, opts.Logger)
		a.managers[provider.Name()] = manager
		a.libraries[provider.Name()] = library.New(manager, a.profiles, opts.Logger)
	}

	return a, nil
}

func (a *App) credentials(p models.Provider) shared.OAuthClientConfig {
	if p == models.Spotify {
		return a.config.Credentials.Spotify
	}
	return a.config.Credentials.Google
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}

// Config returns the loaded configuration.
func (a *App) Config() *shared.Config { return a.config }

// Engine returns the conversion engine.
func (a *App) Engine() *tasks.PlaylistEngine { return a.engine }

// Tokens returns the client used for code exchange and refresh.
func (a *App) Tokens() TokenClient { return a.tokens }

// Refresher returns the client that talks to the provider token endpoints with the
// configured client secrets.
func (a *App) Refresher() *services.OAuthRefresher { return a.refresher }

// LoginClient returns the client that exchanges a code delivered to callbackAddr.
//
// A proxy URL that resolves to callbackAddr would send the exchange to the login
// listener itself, so the code is exchanged with the provider directly instead.
func (a *App) LoginClient(callbackAddr string) TokenClient {
	proxy := a.config.Server.ProxyURL
	if proxy != "" && sameListener(proxy, callbackAddr) {
		a.logger.Warn("proxy url is the login callback address, exchanging directly", "proxy", proxy, "addr", callbackAddr)
		return a.refresher
	}
	return a.tokens
}

// sameListener reports whether requests to rawURL would reach a listener bound to addr.
func sameListener(rawURL, addr string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	port := u.Port()
	if port == "" {
		port = map[string]string{"http": "80", "https": "443"}[u.Scheme]
	}

	host, listenPort, err := net.SplitHostPort(addr)
	if err != nil || port != listenPort {
		return false
	}
	return localHost(u.Hostname()) == localHost(host)
}

// localHost folds the names of the local machine into one value.
func localHost(host string) string {
	if host == "" || host == "localhost" {
		return "local"
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return "local"
	}
	return host
}

// OAuthConfig returns the client registration used to build consent URLs.
func (a *App) OAuthConfig(p models.Provider) (*oauth2.Config, error) {
	config, ok := a.oauth[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, p)
	}
	return config, nil
}

// Manager returns the auth manager for p.
func (a *App) Manager(p models.Provider) (*auth.Manager, error) {
	m, ok := a.managers[p]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", shared.ErrInvalidArgument, p)
	}
	return m, nil
}

// Library returns the playlist repository for p.
func (a *App) Library(p models.Provider) (*library.Repository, error) {
	r, ok := a.libraries[p]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", shared.ErrInvalidArgument, p)
	}
	return r, nil
}

// Profile returns the bound profile, or nil before [App.LinkProfile].
func (a *App) Profile() *models.Profile {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profile
}

// Status describes one provider link.
type Status struct {
	Provider      models.Provider `json:"provider"`
	State         string          `json:"state"`
	Authenticated bool            `json:"authenticated"`
	Account       *models.Account `json:"account,omitempty"`
}

// Status probes p and reports the resulting state.
func (a *App) Status(ctx context.Context, p models.Provider) (Status, error) {
	m, err := a.Manager(p)
	if err != nil {
		return Status{}, err
	}

	ok := m.CheckAuthenticated(ctx)
	return Status{
		Provider:      p,
		State:         m.State().String(),
		Authenticated: ok,
		Account:       m.Account(),
	}, nil
}

// Login stores tokens for p and rebinds the profile.
func (a *App) Login(ctx context.Context, p models.Provider, tokens *models.Tokens) error {
	m, err := a.Manager(p)
	if err != nil {
		return err
	}
	if err := m.Login(ctx, tokens); err != nil {
		return err
	}
	if !m.CheckAuthenticated(ctx) {
		return fmt.Errorf("%w: %s rejected the new tokens", shared.ErrNotAuthenticated, p.Label())
	}

	_, err = a.LinkProfile(ctx)
	return err
}

// LinkProfile binds the repositories to the profile of the signed-in Google account,
// or to the local profile when Google is not linked. Username, avatar and linked
// platforms are refreshed from the providers.
func (a *App) LinkProfile(ctx context.Context) (*models.Profile, error) {
	var (
		googleID  string
		account   *models.Account
		platforms []models.Provider
	)

	for _, p := range models.Providers {
		m, ok := a.managers[p]
		if !ok || !m.CheckAuthenticated(ctx) {
			continue
		}
		platforms = append(platforms, p)
		if p == models.Google {
			account = m.Account()
		}
	}
	if account != nil {
		googleID = account.ID
	}

	profile, err := a.profiles.Resolve(ctx, googleID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}

	if account != nil {
		if err := a.profiles.UpdateUser(ctx, profile.ID, account.DisplayName, account.AvatarURL); err != nil {
			return nil, err
		}
	}
	if err := a.profiles.SetPlatforms(ctx, profile.ID, platforms); err != nil {
		return nil, err
	}

	if profile, err = a.profiles.Get(ctx, profile.ID); err != nil {
		return nil, err
	}

	for _, r := range a.libraries {
		r.UseProfile(profile.ID)
	}

	a.mu.Lock()
	a.profile = profile
	a.mu.Unlock()

	a.logger.Debug("profile linked", "profile", profile.ID, "platforms", platforms)
	return profile, nil
}

// Logout unlinks p. Cached playlists are dropped through the repository hooks.
func (a *App) Logout(ctx context.Context, p models.Provider) error {
	m, err := a.Manager(p)
	if err != nil {
		return err
	}
	if err := m.Logout(ctx); err != nil {
		return err
	}

	if a.Profile() == nil {
		return nil
	}
	_, err = a.LinkProfile(ctx)
	return err
}

// Playlists loads the cached and fresh playlists of p.
func (a *App) Playlists(ctx context.Context, p models.Provider) ([]models.Playlist, error) {
	r, err := a.Library(p)
	if err != nil {
		return nil, err
	}
	return r.LoadPlaylists(ctx)
}

// Combined merges the playlists of every authenticated provider by title.
func (a *App) Combined(ctx context.Context) ([]models.Playlist, error) {
	var lists [][]models.Playlist
	for _, p := range models.Providers {
		r, ok := a.libraries[p]
		if !ok || !r.Manager().CheckAuthenticated(ctx) {
			continue
		}
		playlists, err := r.LoadPlaylists(ctx)
		if err != nil {
			return nil, err
		}
		lists = append(lists, playlists)
	}
	return library.Combine(lists...), nil
}

// ConvertRequest selects a source playlist and the platform to copy it to.
type ConvertRequest struct {
	Source           models.Provider `json:"source"`
	Target           models.Provider `json:"target"`
	PlaylistID       string          `json:"playlistId"`
	TargetPlaylistID string          `json:"targetPlaylistId,omitempty"`
	FailOnEmpty      bool            `json:"failOnEmpty,omitempty"`
}

// Convert copies a playlist to another platform and records the attempt in the
// profile history.
func (a *App) Convert(ctx context.Context, req ConvertRequest, progress chan<- tasks.ProgressUpdate) (*tasks.ConvertResult, error) {
	if req.Source == req.Target {
		return nil, fmt.Errorf("%w: source and target are both %s", shared.ErrInvalidArgument, req.Source)
	}
	if req.PlaylistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	source, err := a.Library(req.Source)
	if err != nil {
		return nil, err
	}
	target, err := a.Library(req.Target)
	if err != nil {
		return nil, err
	}

	playlist, ok := source.Playlist(req.PlaylistID)
	if !ok {
		if _, err := source.LoadPlaylists(ctx); err != nil {
			return nil, err
		}
		if playlist, ok = source.Playlist(req.PlaylistID); !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, req.PlaylistID)
		}
	}

	opts := a.engine.DefaultOptions()
	opts.TargetPlaylistID = req.TargetPlaylistID
	opts.FailOnEmpty = opts.FailOnEmpty || req.FailOnEmpty

	result, convErr := a.engine.Convert(ctx, source, playlist, target, opts, progress)

	if result != nil && result.Target != nil {
		if _, err := target.RefreshPlaylists(ctx); err != nil {
			a.logger.Warn("failed to refresh target playlists", "provider", req.Target, "err", err)
		}
	}

	a.record(ctx, req, playlist, result, convErr)
	return result, convErr
}

func (a *App) record(ctx context.Context, req ConvertRequest, playlist models.Playlist, result *tasks.ConvertResult, convErr error) {
	profile := a.Profile()
	if profile == nil {
		return
	}

	conversion := &models.Conversion{
		ProfileID:        profile.ID,
		Source:           req.Source,
		Target:           req.Target,
		SourcePlaylistID: playlist.ID,
		Title:            playlist.Title,
		Success:          convErr == nil,
	}
	if result != nil {
		conversion.Matched = result.Matched
		conversion.Total = result.Total
		if result.Target != nil {
			conversion.TargetPlaylistID = result.Target.ID
		}
	}
	if convErr != nil {
		conversion.Error = convErr.Error()
	}

	if err := a.conversions.Create(ctx, conversion); err != nil {
		a.logger.Error("failed to record conversion", "playlist", playlist.ID, "err", err)
	}
	if convErr != nil {
		return
	}
	if _, err := a.profiles.IncrementPlayCount(ctx, profile.ID, playlist.ID); err != nil {
		a.logger.Error("failed to update play count", "playlist", playlist.ID, "err", err)
	}
}

// History returns the most recent conversions of the bound profile, newest first.
func (a *App) History(ctx context.Context, limit int) ([]*models.Conversion, error) {
	profile := a.Profile()
	if profile == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return a.conversions.List(ctx, profile.ID, limit)
}

// ResolveTokens is the tokens hook of the OAuth proxy: tokens issued through the
// proxy are stored and the profile is rebound. A provider rejection is returned as is.
func (a *App) ResolveTokens(ctx context.Context, p models.Provider, tokens *models.Tokens) error {
	err := a.Login(ctx, p, tokens)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		a.logger.Warn("proxy issued tokens that failed the probe", "provider", p)
	}
	return err
}
