// package services defines the [MusicProvider] interface and its HTTP clients
//
// Google (YouTube Data API v3), Spotify (Web API via zmb3/spotify)
package services

import (
	"context"

	"github.com/desertthunder/melodari/internal/models"
)

// Page sizes requested from every listing endpoint. Only the first page is read.
const (
	PageSize    = 50
	SearchLimit = 1
)

// MusicProvider is the per-platform API client.
//
// Every method takes the access token explicitly; clients hold no credentials of their own.
// Failures are returned as [shared.AuthError], [shared.RequestError] or [shared.NetworkError].
type MusicProvider interface {
	// Name returns the platform this client talks to.
	Name() models.Provider

	// CurrentUser fetches the signed-in account. It doubles as the liveness probe for a token.
	CurrentUser(ctx context.Context, accessToken string) (*models.Account, error)

	// ListPlaylists returns the first page of the user's playlists, without songs.
	ListPlaylists(ctx context.Context, accessToken string) ([]models.Playlist, error)

	// ListSongs returns the first page of songs in a playlist.
	ListSongs(ctx context.Context, accessToken, playlistID string) ([]models.Song, error)

	// Search returns at most [SearchLimit] songs matching the free-text query.
	Search(ctx context.Context, accessToken, query string) ([]models.Song, error)

	// CreatePlaylist creates an empty playlist owned by the user.
	CreatePlaylist(ctx context.Context, accessToken, title, description string) (*models.Playlist, error)

	// AddItems appends songs to a playlist.
	AddItems(ctx context.Context, accessToken, playlistID string, songs []models.Song) error

	// Refresh exchanges a refresh token for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error)

	// Revoke invalidates the access token with the provider where supported.
	Revoke(ctx context.Context, accessToken string) error
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, provider models.Provider, refreshToken string) (*models.Tokens, error)
}
