// package models defines the data model for melodari
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Provider identifies a music platform.
type Provider string

const (
	Google  Provider = "google"
	Spotify Provider = "spotify"
)

// Providers lists every supported platform in display order.
var Providers = []Provider{Google, Spotify}

// ParseProvider resolves a user-supplied platform name.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "google", "youtube", "ytmusic", "youtube-music":
		return Google, nil
	case "spotify":
		return Spotify, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

func (p Provider) String() string { return string(p) }

// Label returns the human readable platform name.
func (p Provider) Label() string {
	switch p {
	case Google:
		return "YouTube Music"
	case Spotify:
		return "Spotify"
	default:
		return string(p)
	}
}

// Tokens is an OAuth token pair for one provider.
//
// A refresh replaces the whole value; fields are never patched individually.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// TokensFromOAuth2 converts an [oauth2.Token] returned by a code exchange or refresh.
func TokensFromOAuth2(t *oauth2.Token) *Tokens {
	if t == nil {
		return nil
	}
	tokens := &Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		Expiry:       t.Expiry,
	}
	if tokens.ExpiresIn == 0 && !t.Expiry.IsZero() {
		tokens.ExpiresIn = int64(time.Until(t.Expiry).Seconds())
	}
	return tokens
}

// OAuth2 converts the pair to an [oauth2.Token] for use with oauth2 clients.
func (t *Tokens) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       t.Expiry,
	}
}

// Thumbnails holds artwork URLs at three sizes. Any may be empty.
type Thumbnails struct {
	Default string `json:"default,omitempty"`
	Medium  string `json:"medium,omitempty"`
	High    string `json:"high,omitempty"`
}

// Best returns the largest available thumbnail.
func (t Thumbnails) Best() string {
	for _, u := range []string{t.High, t.Medium, t.Default} {
		if u != "" {
			return u
		}
	}
	return ""
}

// Song is a track or video on a single platform.
type Song struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Thumbnails Thumbnails `json:"thumbnails"`
}

// Query builds the search string used to find this song on another platform.
func (s Song) Query() string {
	title := strings.TrimSpace(s.Title)
	artist := strings.TrimSpace(s.Artist)
	if artist == "" {
		return title
	}
	return title + " " + artist
}

// Playlist is a playlist on one platform, or a merged view across platforms.
//
// Songs is empty until the playlist's songs have been fetched.
type Playlist struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	AccountName string     `json:"accountName"`
	Source      Provider   `json:"source" validate:"required,oneof=google spotify"`
	Description string     `json:"description"`
	Thumbnails  Thumbnails `json:"thumbnails"`
	Songs       []Song     `json:"songs"`
	Platforms   []Provider `json:"platforms"`
}

// HasPlatform reports whether p is in the playlist's platform set.
func (p Playlist) HasPlatform(provider Provider) bool {
	return slices.Contains(p.Platforms, provider)
}

// AddPlatforms unions the given platforms into the playlist's platform set.
func (p *Playlist) AddPlatforms(providers ...Provider) {
	for _, provider := range providers {
		if !p.HasPlatform(provider) {
			p.Platforms = append(p.Platforms, provider)
		}
	}
}

// Account is the signed-in user as reported by a provider's profile endpoint.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Profile is the persisted user profile.
//
// Each field is updated independently; the store applies last-write-wins per field.
type Profile struct {
	ID               string         `json:"id"`
	GoogleID         string         `json:"googleId"`
	Username         string         `json:"username"`
	AvatarURL        string         `json:"avatarUrl"`
	Platforms        []Provider     `json:"platforms"`
	PlayCount        map[string]int `json:"playCount"`
	Friends          []string       `json:"friends"`
	GooglePlaylists  []Playlist     `json:"googlePlaylists"`
	SpotifyPlaylists []Playlist     `json:"spotifyPlaylists"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Playlists returns the cached playlists for a provider.
func (p *Profile) Playlists(provider Provider) []Playlist {
	switch provider {
	case Google:
		return p.GooglePlaylists
	case Spotify:
		return p.SpotifyPlaylists
	default:
		return nil
	}
}

// Conversion records one cross-platform playlist copy.
type Conversion struct {
	ID               string    `json:"id"`
	Sequence         int       `json:"sequence"`
	ProfileID        string    `json:"profileId"`
	Source           Provider  `json:"source"`
	Target           Provider  `json:"target"`
	SourcePlaylistID string    `json:"sourcePlaylistId"`
	TargetPlaylistID string    `json:"targetPlaylistId"`
	Title            string    `json:"title"`
	Matched          int       `json:"matched"`
	Total            int       `json:"total"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
