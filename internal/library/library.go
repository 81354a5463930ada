// package library caches one provider's playlists and songs on top of the profile store
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/melodari/internal/auth"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// PlaylistStore is the durable backing for cached playlists.
// [repositories.ProfileRepository] implements it.
type PlaylistStore interface {
	LoadPlaylists(ctx context.Context, profileID string, provider models.Provider) ([]models.Playlist, error)
	SavePlaylists(ctx context.Context, profileID string, provider models.Provider, playlists []models.Playlist) error
	SaveSongs(ctx context.Context, profileID string, provider models.Provider, playlistID string, songs []models.Song) error
	ClearPlaylists(ctx context.Context, profileID string, provider models.Provider) error
}

// AmbiguousPlaylistError is returned when more than one playlist matches a title.
type AmbiguousPlaylistError struct {
	Title      string
	Candidates []models.Playlist
}

func (e *AmbiguousPlaylistError) Error() string {
	ids := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("%d playlists titled %q: %s", len(e.Candidates), e.Title, strings.Join(ids, ", "))
}

func (e *AmbiguousPlaylistError) Is(target error) bool { return target == shared.ErrAmbiguousPlaylist }

// Repository owns the in-memory playlist cache for one provider.
//
// LoadPlaylists, RefreshPlaylists, FetchSongsForPlaylist and Clear are serialised so
// overlapping merges cannot interleave. Without a profile id the cache is memory only.
type Repository struct {
	manager *auth.Manager
	store   PlaylistStore
	logger  *log.Logger

	inflight sync.Mutex

	mu        sync.RWMutex
	profileID string
	playlists []models.Playlist
	// songs fetched for ids missing from the listing, folded in by setPlaylists
	loose map[string][]models.Song
}

// New creates a Repository and registers it to be cleared when the manager logs out.
func New(manager *auth.Manager, store PlaylistStore, logger *log.Logger) *Repository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	r := &Repository{
		manager: manager,
		store:   store,
		logger:  shared.WithLogger(logger, "library", manager.Provider()),
	}
	manager.OnLogout(r)
	return r
}

// Provider returns the platform whose playlists are cached.
func (r *Repository) Provider() models.Provider {
	return r.manager.Provider()
}

// Manager returns the auth manager used for provider calls.
func (r *Repository) Manager() *auth.Manager {
	return r.manager
}

// UseProfile binds the repository to a profile and drops the in-memory cache.
func (r *Repository) UseProfile(profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profileID != profileID {
		r.playlists = nil
		r.loose = nil
	}
	r.profileID = profileID
}

func (r *Repository) profile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profileID
}

// Playlists returns a copy of the cached playlists.
func (r *Repository) Playlists() []models.Playlist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.playlists)
}

// Playlist returns the cached playlist with id.
func (r *Repository) Playlist(id string) (models.Playlist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.playlists {
		if p.ID == id {
			return p, true
		}
	}
	return models.Playlist{}, false
}

func (r *Repository) setPlaylists(playlists []models.Playlist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range playlists {
		if songs, ok := r.loose[playlists[i].ID]; ok && len(playlists[i].Songs) == 0 {
			playlists[i].Songs = songs
		}
	}
	r.playlists = playlists
	r.loose = nil
}

// cachedSongs returns the songs held for id, whether or not id is in the listing.
func (r *Repository) cachedSongs(id string) []models.Song {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.playlists {
		if p.ID == id && len(p.Songs) > 0 {
			return slices.Clone(p.Songs)
		}
	}
	return slices.Clone(r.loose[id])
}

func (r *Repository) fetch(ctx context.Context) ([]models.Playlist, error) {
	client := r.manager.Client()
	playlists, err := auth.Call(ctx, r.manager, func(accessToken string) ([]models.Playlist, error) {
		return client.ListPlaylists(ctx, accessToken)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s playlists: %w", r.Provider(), err)
	}
	return playlists, nil
}

func (r *Repository) persist(ctx context.Context, playlists []models.Playlist) error {
	profileID := r.profile()
	if profileID == "" {
		return nil
	}
	if err := r.store.SavePlaylists(ctx, profileID, r.Provider(), playlists); err != nil {
		return fmt.Errorf("failed to persist playlists: %w", err)
	}
	return nil
}

// LoadPlaylists merges a fresh listing with the persisted cache and saves the result.
//
// Fresh records come first in provider order, cached-only records follow by id.
// Songs already fetched for a playlist are kept. Running it twice with no provider-side
// change yields the same result.
func (r *Repository) LoadPlaylists(ctx context.Context) ([]models.Playlist, error) {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	fresh, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var cached []models.Playlist
	if profileID := r.profile(); profileID != "" {
		cached, err = r.store.LoadPlaylists(ctx, profileID, r.Provider())
		if err != nil {
			return nil, fmt.Errorf("failed to load cached playlists: %w", err)
		}
	} else {
		cached = r.Playlists()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := ValidatePlaylists(r.logger, fresh)
	seen := make(map[string]int, len(merged))
	for i, p := range merged {
		seen[p.ID] = i
	}

	cachedOnly := make([]models.Playlist, 0)
	for _, c := range cached {
		i, ok := seen[c.ID]
		if !ok {
			cachedOnly = append(cachedOnly, c)
			continue
		}
		if len(merged[i].Songs) == 0 {
			merged[i].Songs = slices.Clone(c.Songs)
		}
		merged[i].AddPlatforms(c.Platforms...)
	}
	slices.SortStableFunc(cachedOnly, func(a, b models.Playlist) int {
		return strings.Compare(a.ID, b.ID)
	})
	merged = append(merged, cachedOnly...)

	r.setPlaylists(merged)
	if err := r.persist(ctx, merged); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded playlists", "fresh", len(fresh), "cached", len(cached), "merged", len(merged))
	return slices.Clone(merged), nil
}

// RefreshPlaylists replaces the cache with a fresh listing and saves it.
//
// Songs already fetched for a playlist that is still listed are carried over.
func (r *Repository) RefreshPlaylists(ctx context.Context) ([]models.Playlist, error) {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	fresh, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	previous := make(map[string][]models.Song)
	for _, p := range r.Playlists() {
		if len(p.Songs) > 0 {
			previous[p.ID] = p.Songs
		}
	}

	playlists := ValidatePlaylists(r.logger, fresh)
	for i, p := range playlists {
		if len(p.Songs) == 0 {
			playlists[i].Songs = slices.Clone(previous[p.ID])
		}
	}

	r.setPlaylists(playlists)
	if err := r.persist(ctx, playlists); err != nil {
		return nil, err
	}

	r.logger.Debug("refreshed playlists", "count", len(playlists))
	return slices.Clone(playlists), nil
}

// FetchSongsForPlaylist returns the cached songs of a playlist, fetching them when the
// cache is empty. An empty playlist is fetched again on every call.
//
// Songs of a playlist not yet in the listing are cached by id and attached to it on
// the next load.
func (r *Repository) FetchSongsForPlaylist(ctx context.Context, id string) ([]models.Song, error) {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	if songs := r.cachedSongs(id); len(songs) > 0 {
		return songs, nil
	}

	client := r.manager.Client()
	songs, err := auth.Call(ctx, r.manager, func(accessToken string) ([]models.Song, error) {
		return client.ListSongs(ctx, accessToken, id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list songs for %s: %w", id, err)
	}

	r.mu.Lock()
	listed := false
	for i := range r.playlists {
		if r.playlists[i].ID == id {
			r.playlists[i].Songs = slices.Clone(songs)
			listed = true
		}
	}
	if !listed && len(songs) > 0 {
		if r.loose == nil {
			r.loose = make(map[string][]models.Song)
		}
		r.loose[id] = slices.Clone(songs)
	}
	profileID := r.profileID
	r.mu.Unlock()

	if profileID != "" {
		err := r.store.SaveSongs(ctx, profileID, r.Provider(), id, songs)
		switch {
		case errors.Is(err, shared.ErrPlaylistNotFound):
			r.logger.Warn("songs fetched for uncached playlist", "id", id)
		case err != nil:
			return nil, fmt.Errorf("failed to persist songs: %w", err)
		}
	}

	return songs, nil
}

// FindPlaylist looks up a playlist by case-insensitive exact title in a fresh listing.
//
// It returns nil when nothing matches and an [AmbiguousPlaylistError] when several do.
func (r *Repository) FindPlaylist(ctx context.Context, title string) (*models.Playlist, error) {
	playlists, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	want := strings.TrimSpace(title)
	var matches []models.Playlist
	for _, p := range playlists {
		if strings.EqualFold(strings.TrimSpace(p.Title), want) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousPlaylistError{Title: title, Candidates: matches}
	}
}

// CreatePlaylist creates an empty playlist on the provider.
func (r *Repository) CreatePlaylist(ctx context.Context, title, description string) (*models.Playlist, error) {
	client := r.manager.Client()
	playlist, err := auth.Call(ctx, r.manager, func(accessToken string) (*models.Playlist, error) {
		return client.CreatePlaylist(ctx, accessToken, title, description)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist %q: %w", title, err)
	}

	if playlist.Source == "" {
		playlist.Source = r.Provider()
	}
	playlist.AddPlatforms(r.Provider())
	return playlist, nil
}

// SearchSong returns the provider's top hit for query, or nil when there is none.
func (r *Repository) SearchSong(ctx context.Context, query string) (*models.Song, error) {
	client := r.manager.Client()
	songs, err := auth.Call(ctx, r.manager, func(accessToken string) ([]models.Song, error) {
		return client.Search(ctx, accessToken, query)
	})
	if err != nil {
		return nil, fmt.Errorf("search %q failed: %w", query, err)
	}
	if len(songs) == 0 {
		return nil, nil
	}
	return &songs[0], nil
}

// AddSongs appends songs to a provider playlist.
func (r *Repository) AddSongs(ctx context.Context, playlistID string, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}
	client := r.manager.Client()
	err := r.manager.Do(ctx, func(accessToken string) error {
		return client.AddItems(ctx, accessToken, playlistID, songs)
	})
	if err != nil {
		return fmt.Errorf("failed to add %d songs to %s: %w", len(songs), playlistID, err)
	}
	return nil
}

// Clear drops the in-memory and persisted cache. It runs on logout.
func (r *Repository) Clear(ctx context.Context) error {
	r.inflight.Lock()
	defer r.inflight.Unlock()

	r.setPlaylists(nil)

	profileID := r.profile()
	if profileID == "" {
		return nil
	}
	if err := r.store.ClearPlaylists(ctx, profileID, r.Provider()); err != nil {
		return fmt.Errorf("failed to clear %s playlists: %w", r.Provider(), err)
	}
	return nil
}
