// Spotify [MusicProvider] implementation
//
// Requests go through github.com/zmb3/spotify/v2 with a per-call static token source.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Spotify accepts at most 100 URIs per add-items request.
const spotifyAddBatch = 100

// SpotifyService implements [MusicProvider] for Spotify accounts.
type SpotifyService struct {
	baseURL   string
	refresher Refresher
	logger    *log.Logger
}

// NewSpotifyService creates a new Spotify client. baseURL overrides the Web API root
// (it must end in "/"); empty uses api.spotify.com.
func NewSpotifyService(baseURL string, refresher Refresher, logger *log.Logger) *SpotifyService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SpotifyService{baseURL: baseURL, refresher: refresher, logger: logger}
}

// Name returns the provider name.
func (s *SpotifyService) Name() models.Provider {
	return models.Spotify
}

func (s *SpotifyService) client(ctx context.Context, accessToken string) *spotify.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if s.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.baseURL))
	}
	return spotify.New(oauth2.NewClient(ctx, src), opts...)
}

// classify maps errors from the spotify package onto the provider error taxonomy.
func (s *SpotifyService) classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return shared.Classify(string(models.Spotify), op, apiErr.Status, apiErr.Message)
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) {
		return shared.Classify(string(models.Spotify), op, apiErrPtr.Status, apiErrPtr.Message)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &shared.NetworkError{Provider: string(models.Spotify), Op: op, Err: err}
	}

	return fmt.Errorf("spotify %s: %w", op, err)
}

func spotifyThumbnails(images []spotify.Image) models.Thumbnails {
	if len(images) == 0 {
		return models.Thumbnails{}
	}
	// images arrive largest first
	t := models.Thumbnails{High: images[0].URL, Medium: images[0].URL, Default: images[len(images)-1].URL}
	if len(images) > 1 {
		t.Medium = images[1].URL
	}
	return t
}

func spotifySong(track *spotify.FullTrack) models.Song {
	song := models.Song{
		ID:         string(track.ID),
		Title:      track.Name,
		Thumbnails: spotifyThumbnails(track.Album.Images),
	}
	if len(track.Artists) > 0 {
		song.Artist = track.Artists[0].Name
	}
	return song
}

func spotifyPlaylist(p spotify.SimplePlaylist) models.Playlist {
	return models.Playlist{
		ID:          string(p.ID),
		Title:       p.Name,
		AccountName: p.Owner.DisplayName,
		Source:      models.Spotify,
		Description: p.Description,
		Thumbnails:  spotifyThumbnails(p.Images),
		Platforms:   []models.Provider{models.Spotify},
	}
}

// CurrentUser calls GET /me.
func (s *SpotifyService) CurrentUser(ctx context.Context, accessToken string) (*models.Account, error) {
	user, err := s.client(ctx, accessToken).CurrentUser(ctx)
	if err != nil {
		return nil, s.classify("get profile", err)
	}

	account := &models.Account{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}
	if len(user.Images) > 0 {
		account.AvatarURL = user.Images[0].URL
	}
	return account, nil
}

// ListPlaylists calls GET /me/playlists.
func (s *SpotifyService) ListPlaylists(ctx context.Context, accessToken string) ([]models.Playlist, error) {
	page, err := s.client(ctx, accessToken).CurrentUsersPlaylists(ctx, spotify.Limit(PageSize))
	if err != nil {
		return nil, s.classify("list playlists", err)
	}

	playlists := make([]models.Playlist, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		playlists = append(playlists, spotifyPlaylist(p))
	}
	return playlists, nil
}

// ListSongs calls GET /playlists/{id}/tracks. Episodes and local files without an ID are skipped.
func (s *SpotifyService) ListSongs(ctx context.Context, accessToken, playlistID string) ([]models.Song, error) {
	page, err := s.client(ctx, accessToken).GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(PageSize))
	if err != nil {
		return nil, s.classify("list songs", err)
	}

	songs := make([]models.Song, 0, len(page.Items))
	for _, item := range page.Items {
		track := item.Track.Track
		if track == nil || track.ID == "" {
			continue
		}
		songs = append(songs, spotifySong(track))
	}
	return songs, nil
}

// Search calls GET /search restricted to tracks.
func (s *SpotifyService) Search(ctx context.Context, accessToken, query string) ([]models.Song, error) {
	result, err := s.client(ctx, accessToken).Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(SearchLimit))
	if err != nil {
		return nil, s.classify("search", err)
	}

	if result.Tracks == nil {
		return nil, nil
	}

	songs := make([]models.Song, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		songs = append(songs, spotifySong(&result.Tracks.Tracks[i]))
	}
	if len(songs) > SearchLimit {
		songs = songs[:SearchLimit]
	}
	return songs, nil
}

// CreatePlaylist creates a private playlist for the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, accessToken, title, description string) (*models.Playlist, error) {
	client := s.client(ctx, accessToken)

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, s.classify("get profile", err)
	}

	created, err := client.CreatePlaylistForUser(ctx, user.ID, title, description, false, false)
	if err != nil {
		return nil, s.classify("create playlist", err)
	}

	playlist := spotifyPlaylist(created.SimplePlaylist)
	if playlist.AccountName == "" {
		playlist.AccountName = user.DisplayName
	}
	return &playlist, nil
}

// AddItems adds all songs in a single request per 100 tracks.
func (s *SpotifyService) AddItems(ctx context.Context, accessToken, playlistID string, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}

	ids := make([]spotify.ID, 0, len(songs))
	for _, song := range songs {
		ids = append(ids, spotify.ID(song.ID))
	}

	client := s.client(ctx, accessToken)
	for start := 0; start < len(ids); start += spotifyAddBatch {
		end := min(start+spotifyAddBatch, len(ids))
		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[start:end]...); err != nil {
			return s.classify("add items", err)
		}
	}
	return nil
}

// Refresh delegates to the configured [Refresher].
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	if s.refresher == nil {
		return nil, shared.ErrNotImplemented
	}
	return s.refresher.Refresh(ctx, models.Spotify, refreshToken)
}

// Revoke is a no-op: Spotify offers no token revocation endpoint.
// Access is removed by discarding the tokens.
func (s *SpotifyService) Revoke(ctx context.Context, accessToken string) error {
	s.logger.Debug("spotify has no revoke endpoint, discarding tokens only")
	return nil
}
