package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// TokenProxy exchanges and refreshes tokens through the melodari server, which holds the client secrets.
type TokenProxy struct {
	baseURL    string
	httpClient *http.Client
}

// NewTokenProxy creates a [Refresher] backed by the proxy at baseURL.
func NewTokenProxy(baseURL string) *TokenProxy {
	return &TokenProxy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

// SetHTTPClient replaces the HTTP client used for proxy requests.
func (p *TokenProxy) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// Refresh implements [Refresher].
func (p *TokenProxy) Refresh(ctx context.Context, provider models.Provider, refreshToken string) (*models.Tokens, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	var tokens models.Tokens
	endpoint := fmt.Sprintf("%s/auth/%s/refresh", p.baseURL, provider)
	if err := p.post(ctx, provider, "refresh token", endpoint, map[string]string{"refresh_token": refreshToken}, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response has no access token", shared.ErrRefreshFailed)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return &tokens, nil
}

// Exchange trades an authorization code for tokens through POST {baseURL}/auth/{provider}.
func (p *TokenProxy) Exchange(ctx context.Context, provider models.Provider, code string) (*models.Tokens, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	var body struct {
		Tokens *models.Tokens `json:"tokens"`
	}
	endpoint := fmt.Sprintf("%s/auth/%s", p.baseURL, provider)
	if err := p.post(ctx, provider, "exchange code", endpoint, map[string]string{"code": code}, &body); err != nil {
		return nil, err
	}
	if body.Tokens == nil || body.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: exchange response has no access token", shared.ErrNotAuthenticated)
	}
	return body.Tokens, nil
}

func (p *TokenProxy) post(ctx context.Context, provider models.Provider, op, endpoint string, payload, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &shared.NetworkError{Provider: string(provider), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var msg struct {
			Message string `json:"message"`
		}
		body := string(raw)
		if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
			body = msg.Message
		}
		return shared.Classify(string(provider), op, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
