// package auth owns the OAuth token lifecycle for one provider
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodari/internal/metrics"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
)

// State is the authentication state of a provider link.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Clearer drops cached data tied to a provider login.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Manager decides whether a provider link is usable and keeps its tokens fresh.
//
// Liveness is decided by probing the provider, never by comparing expiry times.
// An [shared.AuthError] triggers at most one refresh per logical operation.
type Manager struct {
	provider services.MusicProvider
	store    TokenStore
	logger   *log.Logger

	mu       sync.RWMutex
	state    State
	account  *models.Account
	clearers []Clearer

	// refreshMu serialises refreshes so concurrent 401s do not spend the same refresh token twice
	refreshMu sync.Mutex
}

// NewManager creates a Manager for the provider backed by store.
func NewManager(provider services.MusicProvider, store TokenStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		provider: provider,
		store:    store,
		logger:   shared.WithLogger(logger, "provider", provider.Name()),
	}
}

// Provider returns the managed provider name.
func (m *Manager) Provider() models.Provider {
	return m.provider.Name()
}

// Client returns the underlying API client.
func (m *Manager) Client() services.MusicProvider {
	return m.provider
}

// OnLogout registers c to be cleared when the user logs out.
func (m *Manager) OnLogout(c Clearer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearers = append(m.clearers, c)
}

// State returns the last known state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Account returns the account from the last successful probe, or nil.
func (m *Manager) Account() *models.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}

func (m *Manager) setState(s State, account *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	if s != Authenticated {
		account = nil
	}
	m.account = account
}

// Tokens returns the stored token pair, or nil.
func (m *Manager) Tokens(ctx context.Context) (*models.Tokens, error) {
	return m.store.Get(ctx, m.Provider())
}

// AccessToken returns the stored access token or [shared.ErrNotAuthenticated].
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tokens, err := m.store.Get(ctx, m.Provider())
	if err != nil {
		return "", fmt.Errorf("failed to read tokens: %w", err)
	}
	if tokens == nil || tokens.AccessToken == "" {
		return "", shared.ErrNotAuthenticated
	}
	return tokens.AccessToken, nil
}

// Login stores a freshly issued token pair. It must complete before the tokens are used.
func (m *Manager) Login(ctx context.Context, tokens *models.Tokens) error {
	if tokens == nil || tokens.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidInput)
	}
	if err := m.store.Set(ctx, m.Provider(), tokens); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	m.setState(Unauthenticated, nil)
	m.logger.Info("stored new tokens")
	return nil
}

// CheckAuthenticated probes the provider with the stored access token.
//
// A rejected token is refreshed once and probed again. Other probe failures
// return false without changing state.
func (m *Manager) CheckAuthenticated(ctx context.Context) bool {
	return m.check(ctx, true)
}

func (m *Manager) check(ctx context.Context, allowRefresh bool) bool {
	provider := string(m.Provider())

	accessToken, err := m.AccessToken(ctx)
	if err != nil {
		m.setState(Unauthenticated, nil)
		return false
	}

	account, err := m.provider.CurrentUser(ctx, accessToken)
	if err == nil {
		m.setState(Authenticated, account)
		metrics.AuthChecks.WithLabelValues(provider, "ok").Inc()
		return true
	}

	var authErr *shared.AuthError
	if !errors.As(err, &authErr) {
		m.logger.Warn("auth probe failed", "err", err)
		metrics.AuthChecks.WithLabelValues(provider, "error").Inc()
		return false
	}

	if !allowRefresh || !m.refreshFrom(ctx, accessToken) {
		m.setState(Expired, nil)
		metrics.AuthChecks.WithLabelValues(provider, "expired").Inc()
		return false
	}

	metrics.AuthChecks.WithLabelValues(provider, "refreshed").Inc()
	return m.check(ctx, false)
}

// RefreshTokens exchanges the stored refresh token for a new pair.
//
// On success the stored pair is replaced as a whole. On failure the old pair is kept
// and the state becomes [Expired].
func (m *Manager) RefreshTokens(ctx context.Context) bool {
	return m.refreshFrom(ctx, "")
}

// refreshFrom refreshes unless the stored access token already differs from stale,
// in which case another caller has refreshed in the meantime.
func (m *Manager) refreshFrom(ctx context.Context, stale string) bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	provider := string(m.Provider())

	tokens, err := m.store.Get(ctx, m.Provider())
	if err != nil {
		m.logger.Error("failed to read tokens", "err", err)
		return false
	}
	if tokens == nil || tokens.RefreshToken == "" {
		m.logger.Warn("no refresh token available")
		m.setState(Expired, nil)
		metrics.TokenRefreshes.WithLabelValues(provider, "error").Inc()
		return false
	}
	if stale != "" && tokens.AccessToken != stale {
		return true
	}

	fresh, err := m.provider.Refresh(ctx, tokens.RefreshToken)
	if err != nil || fresh == nil || fresh.AccessToken == "" {
		m.logger.Warn("token refresh failed", "err", err)
		m.setState(Expired, nil)
		metrics.TokenRefreshes.WithLabelValues(provider, "error").Inc()
		return false
	}

	if fresh.RefreshToken == "" {
		kept := *fresh
		kept.RefreshToken = tokens.RefreshToken
		fresh = &kept
	}

	if err := m.store.Set(ctx, m.Provider(), fresh); err != nil {
		m.logger.Error("failed to store refreshed tokens", "err", err)
		metrics.TokenRefreshes.WithLabelValues(provider, "error").Inc()
		return false
	}

	m.logger.Debug("refreshed tokens")
	metrics.TokenRefreshes.WithLabelValues(provider, "ok").Inc()
	return true
}

// Do runs fn with the current access token. If fn fails with [shared.AuthError] the tokens
// are refreshed once and fn is retried once with the new token.
func (m *Manager) Do(ctx context.Context, fn func(accessToken string) error) error {
	accessToken, err := m.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = fn(accessToken)
	var authErr *shared.AuthError
	if !errors.As(err, &authErr) {
		return err
	}

	if !m.refreshFrom(ctx, accessToken) {
		return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	accessToken, err = m.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = fn(accessToken)
	if errors.As(err, &authErr) {
		m.setState(Expired, nil)
	}
	return err
}

// Call is [Manager.Do] for functions that return a value.
func Call[T any](ctx context.Context, m *Manager, fn func(accessToken string) (T, error)) (T, error) {
	var result T
	err := m.Do(ctx, func(accessToken string) error {
		var err error
		result, err = fn(accessToken)
		return err
	})
	return result, err
}

// Logout clears the stored tokens and cached data, then revokes the token with the
// provider. Revocation failures are logged and otherwise ignored.
func (m *Manager) Logout(ctx context.Context) error {
	tokens, err := m.store.Get(ctx, m.Provider())
	if err != nil {
		return fmt.Errorf("failed to read tokens: %w", err)
	}

	if err := m.store.Clear(ctx, m.Provider()); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	m.setState(Unauthenticated, nil)

	m.mu.RLock()
	clearers := append([]Clearer(nil), m.clearers...)
	m.mu.RUnlock()

	var errs []error
	for _, c := range clearers {
		if err := c.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if tokens != nil && tokens.AccessToken != "" {
		if err := m.provider.Revoke(ctx, tokens.AccessToken); err != nil {
			m.logger.Warn("token revocation failed", "err", err)
		}
	}

	m.logger.Info("logged out")
	if len(errs) > 0 {
		return fmt.Errorf("failed to clear cached data: %w", errors.Join(errs...))
	}
	return nil
}
