// Google [MusicProvider] implementation
//
// Talks to the YouTube Data API v3 with the user's OAuth access token.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

const (
	defaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"
	defaultUserInfoURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultGoogleRevoke  = "https://oauth2.googleapis.com/revoke"

	// auto-generated artist channels are named "<Artist> - Topic"
	topicSuffix = " - Topic"
)

// YouTubeEndpoints overrides the Google API locations. Empty fields use the public endpoints.
type YouTubeEndpoints struct {
	API      string
	UserInfo string
	Revoke   string
}

type youtubeThumbnail struct {
	URL string `json:"url"`
}

type youtubeThumbnails struct {
	Default *youtubeThumbnail `json:"default"`
	Medium  *youtubeThumbnail `json:"medium"`
	High    *youtubeThumbnail `json:"high"`
}

func (t youtubeThumbnails) toModel() models.Thumbnails {
	var out models.Thumbnails
	if t.Default != nil {
		out.Default = t.Default.URL
	}
	if t.Medium != nil {
		out.Medium = t.Medium.URL
	}
	if t.High != nil {
		out.High = t.High.URL
	}
	return out
}

// YouTubePlaylist is an item of the playlists.list response.
type YouTubePlaylist struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string            `json:"title"`
		Description  string            `json:"description"`
		ChannelTitle string            `json:"channelTitle"`
		Thumbnails   youtubeThumbnails `json:"thumbnails"`
	} `json:"snippet"`
}

// YouTubePlaylistItem is an item of the playlistItems.list response.
type YouTubePlaylistItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title                  string            `json:"title"`
		VideoOwnerChannelTitle string            `json:"videoOwnerChannelTitle"`
		Thumbnails             youtubeThumbnails `json:"thumbnails"`
		ResourceID             struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

// YouTubeSearchResult is an item of the search.list response.
type YouTubeSearchResult struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string            `json:"title"`
		ChannelTitle string            `json:"channelTitle"`
		Thumbnails   youtubeThumbnails `json:"thumbnails"`
	} `json:"snippet"`
}

type youtubeList[T any] struct {
	Items []T `json:"items"`
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// YouTubeService implements [MusicProvider] for Google accounts.
type YouTubeService struct {
	endpoints YouTubeEndpoints
	retrier   *rateLimitRetrier
	refresher Refresher
	logger    *log.Logger
}

// NewYouTubeService creates a new Google client. refresher handles token refresh.
func NewYouTubeService(endpoints YouTubeEndpoints, refresher Refresher, logger *log.Logger) *YouTubeService {
	if endpoints.API == "" {
		endpoints.API = defaultYouTubeAPIURL
	}
	if endpoints.UserInfo == "" {
		endpoints.UserInfo = defaultUserInfoURL
	}
	if endpoints.Revoke == "" {
		endpoints.Revoke = defaultGoogleRevoke
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &YouTubeService{
		endpoints: endpoints,
		retrier:   &rateLimitRetrier{client: http.DefaultClient, logger: logger},
		refresher: refresher,
		logger:    logger,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (y *YouTubeService) SetHTTPClient(client *http.Client) {
	y.retrier.client = client
}

// Name returns the provider name.
func (y *YouTubeService) Name() models.Provider {
	return models.Google
}

func (y *YouTubeService) doRequest(ctx context.Context, op, accessToken, method, apiURL string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := y.retrier.do(req)
	if err != nil {
		return &shared.NetworkError{Provider: string(models.Google), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return shared.Classify(string(models.Google), op, resp.StatusCode, string(data))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (y *YouTubeService) apiURL(resource string, params url.Values) string {
	return strings.TrimRight(y.endpoints.API, "/") + "/" + resource + "?" + params.Encode()
}

// CurrentUser calls the OAuth userinfo endpoint.
func (y *YouTubeService) CurrentUser(ctx context.Context, accessToken string) (*models.Account, error) {
	var info googleUserInfo
	if err := y.doRequest(ctx, "get profile", accessToken, http.MethodGet, y.endpoints.UserInfo, nil, &info); err != nil {
		return nil, err
	}

	return &models.Account{
		ID:          info.ID,
		DisplayName: info.Name,
		Email:       info.Email,
		AvatarURL:   info.Picture,
	}, nil
}

// ListPlaylists calls GET /playlists?mine=true.
func (y *YouTubeService) ListPlaylists(ctx context.Context, accessToken string) ([]models.Playlist, error) {
	params := url.Values{
		"part":       {"snippet,contentDetails"},
		"mine":       {"true"},
		"maxResults": {fmt.Sprint(PageSize)},
	}

	var resp youtubeList[YouTubePlaylist]
	if err := y.doRequest(ctx, "list playlists", accessToken, http.MethodGet, y.apiURL("playlists", params), nil, &resp); err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(resp.Items))
	for _, item := range resp.Items {
		playlists = append(playlists, y.toPlaylist(item))
	}
	return playlists, nil
}

func (y *YouTubeService) toPlaylist(item YouTubePlaylist) models.Playlist {
	return models.Playlist{
		ID:          item.ID,
		Title:       item.Snippet.Title,
		AccountName: item.Snippet.ChannelTitle,
		Source:      models.Google,
		Description: item.Snippet.Description,
		Thumbnails:  item.Snippet.Thumbnails.toModel(),
		Platforms:   []models.Provider{models.Google},
	}
}

// ListSongs calls GET /playlistItems for the playlist.
//
// Deleted and private videos have no owner channel and are skipped.
func (y *YouTubeService) ListSongs(ctx context.Context, accessToken, playlistID string) ([]models.Song, error) {
	params := url.Values{
		"part":       {"snippet"},
		"playlistId": {playlistID},
		"maxResults": {fmt.Sprint(PageSize)},
	}

	var resp youtubeList[YouTubePlaylistItem]
	if err := y.doRequest(ctx, "list songs", accessToken, http.MethodGet, y.apiURL("playlistItems", params), nil, &resp); err != nil {
		return nil, err
	}

	songs := make([]models.Song, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet.ResourceID.VideoID == "" {
			continue
		}
		songs = append(songs, models.Song{
			ID:         item.Snippet.ResourceID.VideoID,
			Title:      item.Snippet.Title,
			Artist:     strings.TrimSuffix(item.Snippet.VideoOwnerChannelTitle, topicSuffix),
			Thumbnails: item.Snippet.Thumbnails.toModel(),
		})
	}
	return songs, nil
}

// Search calls GET /search restricted to videos.
func (y *YouTubeService) Search(ctx context.Context, accessToken, query string) ([]models.Song, error) {
	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {query},
		"maxResults": {fmt.Sprint(SearchLimit)},
	}

	var resp youtubeList[YouTubeSearchResult]
	if err := y.doRequest(ctx, "search", accessToken, http.MethodGet, y.apiURL("search", params), nil, &resp); err != nil {
		return nil, err
	}

	songs := make([]models.Song, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		songs = append(songs, models.Song{
			ID:         item.ID.VideoID,
			Title:      item.Snippet.Title,
			Artist:     strings.TrimSuffix(item.Snippet.ChannelTitle, topicSuffix),
			Thumbnails: item.Snippet.Thumbnails.toModel(),
		})
	}
	if len(songs) > SearchLimit {
		songs = songs[:SearchLimit]
	}
	return songs, nil
}

// CreatePlaylist calls POST /playlists. New playlists are private.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, accessToken, title, description string) (*models.Playlist, error) {
	body := map[string]any{
		"snippet": map[string]string{
			"title":       title,
			"description": description,
		},
		"status": map[string]string{
			"privacyStatus": "private",
		},
	}

	params := url.Values{"part": {"snippet,status"}}

	var created YouTubePlaylist
	if err := y.doRequest(ctx, "create playlist", accessToken, http.MethodPost, y.apiURL("playlists", params), body, &created); err != nil {
		return nil, err
	}

	playlist := y.toPlaylist(created)
	if playlist.Title == "" {
		playlist.Title = title
	}
	return &playlist, nil
}

// AddItems calls POST /playlistItems once per video, in order.
//
// The first failure stops the loop; earlier inserts are not undone.
func (y *YouTubeService) AddItems(ctx context.Context, accessToken, playlistID string, songs []models.Song) error {
	params := url.Values{"part": {"snippet"}}
	endpoint := y.apiURL("playlistItems", params)

	for i, song := range songs {
		if err := ctx.Err(); err != nil {
			return err
		}

		body := map[string]any{
			"snippet": map[string]any{
				"playlistId": playlistID,
				"resourceId": map[string]string{
					"kind":    "youtube#video",
					"videoId": song.ID,
				},
			},
		}

		if err := y.doRequest(ctx, "add item", accessToken, http.MethodPost, endpoint, body, nil); err != nil {
			return fmt.Errorf("failed to add video %d/%d (%s): %w", i+1, len(songs), song.ID, err)
		}
	}
	return nil
}

// Refresh delegates to the configured [Refresher].
func (y *YouTubeService) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	if y.refresher == nil {
		return nil, shared.ErrNotImplemented
	}
	return y.refresher.Refresh(ctx, models.Google, refreshToken)
}

// Revoke calls Google's token revocation endpoint.
func (y *YouTubeService) Revoke(ctx context.Context, accessToken string) error {
	revokeURL := y.endpoints.Revoke + "?" + url.Values{"token": {accessToken}}.Encode()
	return y.doRequest(ctx, "revoke", "", http.MethodPost, revokeURL, nil, nil)
}
