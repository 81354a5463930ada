// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// FakeProvider is an in-memory [services.MusicProvider] that records every call.
//
// When ValidToken is set, any other access token is rejected with [shared.AuthError].
type FakeProvider struct {
	mu sync.Mutex

	Provider   models.Provider
	ValidToken string
	Account    models.Account
	Playlists  []models.Playlist
	Songs      map[string][]models.Song
	Results    map[string][]models.Song

	ProbeErr   error
	ListErr    error
	SongsErr   error
	SearchErr  map[string]error
	CreateErr  error
	AddErr     error
	RevokeErr  error
	Refreshed  *models.Tokens
	RefreshErr error

	calls   map[string]int
	queries []string
	added   map[string][]models.Song
	nextID  int
}

// NewFakeProvider creates a FakeProvider for the given platform.
func NewFakeProvider(p models.Provider) *FakeProvider {
	return &FakeProvider{
		Provider:  p,
		Account:   models.Account{ID: string(p) + "-user", DisplayName: "Test User"},
		Songs:     make(map[string][]models.Song),
		Results:   make(map[string][]models.Song),
		SearchErr: make(map[string]error),
		calls:     make(map[string]int),
		added:     make(map[string][]models.Song),
	}
}

func (f *FakeProvider) record(method, accessToken string) error {
	f.calls[method]++
	if f.ValidToken != "" && accessToken != f.ValidToken {
		return &shared.AuthError{Provider: string(f.Provider), Op: method, Body: "invalid token"}
	}
	return nil
}

// Calls returns how many times method was invoked.
func (f *FakeProvider) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Queries returns the search queries in call order.
func (f *FakeProvider) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

// Added returns the songs added to a playlist in call order.
func (f *FakeProvider) Added(playlistID string) []models.Song {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.added[playlistID])
}

// SetValidToken changes the accepted access token.
func (f *FakeProvider) SetValidToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidToken = token
}

func (f *FakeProvider) Name() models.Provider { return f.Provider }

func (f *FakeProvider) CurrentUser(_ context.Context, accessToken string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CurrentUser", accessToken); err != nil {
		return nil, err
	}
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	account := f.Account
	return &account, nil
}

func (f *FakeProvider) ListPlaylists(_ context.Context, accessToken string) ([]models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListPlaylists", accessToken); err != nil {
		return nil, err
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	out := make([]models.Playlist, 0, len(f.Playlists))
	for _, p := range f.Playlists {
		p.Songs = nil
		p.Platforms = slices.Clone(p.Platforms)
		out = append(out, p)
	}
	return out, nil
}

func (f *FakeProvider) ListSongs(_ context.Context, accessToken, playlistID string) ([]models.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListSongs", accessToken); err != nil {
		return nil, err
	}
	if f.SongsErr != nil {
		return nil, f.SongsErr
	}
	return slices.Clone(f.Songs[playlistID]), nil
}

func (f *FakeProvider) Search(_ context.Context, accessToken, query string) ([]models.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Search", accessToken); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, query)
	if err := f.SearchErr[query]; err != nil {
		return nil, err
	}
	return slices.Clone(f.Results[query]), nil
}

func (f *FakeProvider) CreatePlaylist(_ context.Context, accessToken, title, description string) (*models.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePlaylist", accessToken); err != nil {
		return nil, err
	}
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	f.nextID++
	p := models.Playlist{
		ID:          fmt.Sprintf("%s-created-%d", f.Provider, f.nextID),
		Title:       title,
		Description: description,
		AccountName: f.Account.DisplayName,
		Source:      f.Provider,
		Platforms:   []models.Provider{f.Provider},
	}
	f.Playlists = append(f.Playlists, p)
	return &p, nil
}

func (f *FakeProvider) AddItems(_ context.Context, accessToken, playlistID string, songs []models.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddItems", accessToken); err != nil {
		return err
	}
	if f.AddErr != nil {
		return f.AddErr
	}
	f.added[playlistID] = append(f.added[playlistID], songs...)
	f.Songs[playlistID] = append(f.Songs[playlistID], songs...)
	return nil
}

func (f *FakeProvider) Refresh(_ context.Context, refreshToken string) (*models.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Refresh"]++
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	if f.Refreshed == nil {
		return nil, shared.ErrRefreshFailed
	}
	tokens := *f.Refreshed
	return &tokens, nil
}

func (f *FakeProvider) Revoke(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Revoke"]++
	return f.RevokeErr
}

// FakePlaylistStore is an in-memory profile playlist store.
type FakePlaylistStore struct {
	mu        sync.Mutex
	playlists map[string][]models.Playlist
	SaveErr   error
	saves     int
}

// NewFakePlaylistStore creates an empty FakePlaylistStore.
func NewFakePlaylistStore() *FakePlaylistStore {
	return &FakePlaylistStore{playlists: make(map[string][]models.Playlist)}
}

func storeKey(profileID string, provider models.Provider) string {
	return profileID + "/" + string(provider)
}

// Seed sets the stored playlists for a profile and provider.
func (s *FakePlaylistStore) Seed(profileID string, provider models.Provider, playlists []models.Playlist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[storeKey(profileID, provider)] = slices.Clone(playlists)
}

// Saves returns how many writes were made.
func (s *FakePlaylistStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *FakePlaylistStore) LoadPlaylists(_ context.Context, profileID string, provider models.Provider) ([]models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.playlists[storeKey(profileID, provider)]), nil
}

func (s *FakePlaylistStore) SavePlaylists(_ context.Context, profileID string, provider models.Provider, playlists []models.Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saves++
	s.playlists[storeKey(profileID, provider)] = slices.Clone(playlists)
	return nil
}

func (s *FakePlaylistStore) SaveSongs(_ context.Context, profileID string, provider models.Provider, playlistID string, songs []models.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.saves++
	key := storeKey(profileID, provider)
	for i, p := range s.playlists[key] {
		if p.ID == playlistID {
			s.playlists[key][i].Songs = slices.Clone(songs)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
}

func (s *FakePlaylistStore) ClearPlaylists(_ context.Context, profileID string, provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	delete(s.playlists, storeKey(profileID, provider))
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// AssertContains fails the test if s does not contain every substring.
func AssertContains(t *testing.T, s string, subs ...string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			t.Errorf("expected output to contain %q, got:\n%s", sub, s)
		}
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}
