package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested from each provider.
var (
	GoogleScopes = []string{
		"https://www.googleapis.com/auth/youtube",
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email",
	}
	SpotifyScopes = []string{
		spotifyauth.ScopeUserReadPrivate,
		spotifyauth.ScopeUserReadEmail,
		spotifyauth.ScopePlaylistReadPrivate,
		spotifyauth.ScopePlaylistReadCollaborative,
		spotifyauth.ScopePlaylistModifyPrivate,
		spotifyauth.ScopePlaylistModifyPublic,
	}
)

// NewOAuthConfig builds the [oauth2.Config] for a provider from its client registration.
func NewOAuthConfig(provider models.Provider, creds shared.OAuthClientConfig) (*oauth2.Config, error) {
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
	}

	switch provider {
	case models.Google:
		config.Endpoint = google.Endpoint
		config.Scopes = GoogleScopes
	case models.Spotify:
		config.Endpoint = oauth2.Endpoint{AuthURL: spotifyauth.AuthURL, TokenURL: spotifyauth.TokenURL}
		config.Scopes = SpotifyScopes
	default:
		return nil, fmt.Errorf("%w: provider %q", shared.ErrInvalidArgument, provider)
	}

	return config, nil
}

// AuthCodeURL returns the consent page URL. Google only issues refresh tokens for
// offline access with an explicit consent prompt.
func AuthCodeURL(provider models.Provider, config *oauth2.Config, state string) string {
	if provider == models.Google {
		return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return config.AuthCodeURL(state)
}

// OAuthRefresher refreshes tokens directly against the provider's token endpoint.
//
// It needs the client secret and so runs inside the proxy server, or in the CLI
// when no proxy is configured.
type OAuthRefresher struct {
	configs    map[models.Provider]*oauth2.Config
	httpClient *http.Client
}

// NewOAuthRefresher creates a refresher over the given per-provider configs.
func NewOAuthRefresher(configs map[models.Provider]*oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{configs: configs}
}

// SetHTTPClient replaces the HTTP client used for token requests.
func (r *OAuthRefresher) SetHTTPClient(client *http.Client) {
	r.httpClient = client
}

func (r *OAuthRefresher) context(ctx context.Context) context.Context {
	if r.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	return ctx
}

// Config returns the oauth2 config for a provider.
func (r *OAuthRefresher) Config(provider models.Provider) (*oauth2.Config, error) {
	config, ok := r.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrMissingCredentials, provider)
	}
	return config, nil
}

// Exchange trades an authorization code for a token pair.
func (r *OAuthRefresher) Exchange(ctx context.Context, provider models.Provider, code string) (*models.Tokens, error) {
	config, err := r.Config(provider)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(r.context(ctx), code)
	if err != nil {
		return nil, ClassifyOAuthError(provider, "exchange code", err)
	}
	return models.TokensFromOAuth2(token), nil
}

// Refresh implements [Refresher]. The refresh token is carried over when the provider
// does not rotate it.
func (r *OAuthRefresher) Refresh(ctx context.Context, provider models.Provider, refreshToken string) (*models.Tokens, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	config, err := r.Config(provider)
	if err != nil {
		return nil, err
	}

	token, err := config.TokenSource(r.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, ClassifyOAuthError(provider, "refresh token", err)
	}

	tokens := models.TokensFromOAuth2(token)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// ClassifyOAuthError maps token endpoint failures: a rejected grant or client becomes
// [shared.AuthError], other statuses [shared.RequestError], transport failures [shared.NetworkError].
func ClassifyOAuthError(provider models.Provider, op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		body := string(retrieveErr.Body)
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return &shared.AuthError{Provider: string(provider), Op: op, Body: body}
		}
		return shared.Classify(string(provider), op, status, body)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &shared.NetworkError{Provider: string(provider), Op: op, Err: err}
	}

	return fmt.Errorf("%s %s: %w", provider, op, err)
}
