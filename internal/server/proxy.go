package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
)

// TokenExchanger holds the client secrets and talks to the provider token endpoints.
// [services.OAuthRefresher] implements it.
type TokenExchanger interface {
	CodeExchanger
	Config(provider models.Provider) (*oauth2.Config, error)
	Refresh(ctx context.Context, provider models.Provider, refreshToken string) (*models.Tokens, error)
}

// TokensHook receives tokens issued through the proxy.
type TokensHook func(ctx context.Context, provider models.Provider, tokens *models.Tokens) error

// AuthProxyHandler keeps client secrets server-side for the authorization code and refresh flows.
//
//	GET  /auth/{provider}          → {"authorizeUrl": ...}
//	POST /auth/{provider}          {"code"} → {"tokens": ...}
//	POST /auth/{provider}/refresh  {"refresh_token"} → tokens
//
// Failures are answered with {"message": ...}.
type AuthProxyHandler struct {
	exchanger TokenExchanger
	onTokens  TokensHook
	logger    *log.Logger
}

// NewAuthProxyHandler creates the proxy. onTokens may be nil.
func NewAuthProxyHandler(exchanger TokenExchanger, onTokens TokensHook, logger *log.Logger) *AuthProxyHandler {
	return &AuthProxyHandler{
		exchanger: exchanger,
		onTokens:  onTokens,
		logger:    shared.WithLogger(logger, "component", "auth-proxy"),
	}
}

const (
	authorizeRoute = "GET /auth/{provider}"
	exchangeRoute  = "POST /auth/{provider}"
	refreshRoute   = "POST /auth/{provider}/refresh"
)

// Routes returns the HTTP routes this handler serves.
func (h *AuthProxyHandler) Routes() []string {
	return []string{authorizeRoute, exchangeRoute, refreshRoute}
}

func (h *AuthProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provider, err := models.ParseProvider(r.PathValue("provider"))
	if err != nil {
		WriteMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Pattern {
	case authorizeRoute:
		h.authorize(w, provider)
	case exchangeRoute:
		h.exchange(w, r, provider)
	case refreshRoute:
		h.refresh(w, r, provider)
	default:
		http.NotFound(w, r)
	}
}

func (h *AuthProxyHandler) authorize(w http.ResponseWriter, provider models.Provider) {
	config, err := h.exchanger.Config(provider)
	if err != nil {
		WriteMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := shared.GenerateState()
	WriteJSON(w, http.StatusOK, map[string]string{
		"authorizeUrl": services.AuthCodeURL(provider, config, state),
		"state":        state,
	})
}

func (h *AuthProxyHandler) exchange(w http.ResponseWriter, r *http.Request, provider models.Provider) {
	var body struct {
		Code string `json:"code"`
	}
	if err := DecodeJSON(r, &body); err != nil || body.Code == "" {
		WriteMessage(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	tokens, err := h.exchanger.Exchange(r.Context(), provider, body.Code)
	if err != nil {
		h.logger.Warn("code exchange failed", "provider", provider, "err", err)
		WriteMessage(w, proxyStatus(err), err.Error())
		return
	}

	if h.onTokens != nil {
		if err := h.onTokens(r.Context(), provider, tokens); err != nil {
			h.logger.Error("failed to link tokens", "provider", provider, "err", err)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]*models.Tokens{"tokens": tokens})
}

func (h *AuthProxyHandler) refresh(w http.ResponseWriter, r *http.Request, provider models.Provider) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := DecodeJSON(r, &body); err != nil || body.RefreshToken == "" {
		WriteMessage(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	tokens, err := h.exchanger.Refresh(r.Context(), provider, body.RefreshToken)
	if err != nil {
		h.logger.Warn("token refresh failed", "provider", provider, "err", err)
		WriteMessage(w, proxyStatus(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, tokens)
}

// proxyStatus answers 401 when the provider rejected the grant and 500 otherwise.
func proxyStatus(err error) int {
	var authErr *shared.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// HealthHandler answers liveness checks.
type HealthHandler struct{}

func (HealthHandler) Routes() []string { return []string{"GET /health"} }

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
