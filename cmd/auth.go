package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/server"
	"github.com/desertthunder/melodari/internal/services"
	"github.com/desertthunder/melodari/internal/shared"
	"github.com/urfave/cli/v3"
)

const loginTimeout = 2 * time.Minute

// AuthLogin links a provider account.
//
// Starts a local HTTP server for the redirect, opens the browser for consent, and exchanges
// the code through the proxy (or directly when no proxy is configured).
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.provider(cmd, "provider")
	if err != nil {
		return err
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	tokens, err := r.doOAuth(ctx, a, provider)
	if err != nil {
		return err
	}

	if err := a.Login(ctx, provider, tokens); err != nil {
		return err
	}

	account := "unknown account"
	if m, err := a.Manager(provider); err == nil && m.Account() != nil {
		account = m.Account().DisplayName
	}

	r.writePlainln("%s %s linked as %s", r.palette.OK("✓"), provider.Label(), account)
	r.writePlain("You can now use: melodari playlists list %s\n", provider)
	return nil
}

func (r *Runner) doOAuth(ctx context.Context, a *app.App, provider models.Provider) (*models.Tokens, error) {
	config, err := a.OAuthConfig(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: set the %s client_id in %s", err, provider, r.configPath)
	}

	state := shared.GenerateState()
	authURL := services.AuthCodeURL(provider, config, state)

	addr := r.config.Server.Addr()
	oauthHandler := server.NewOAuthHandler(provider, a.LoginClient(addr), state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	httpServer := server.New(addr, router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for %s authorization...\n", provider.Label())
	if err := shared.OpenBrowser(ctx, authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("%s Could not open browser automatically.", r.palette.Warn("⚠"))
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("callback server on %s: %w (stop melodari serve or change server.port)", addr, err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Tokens == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Tokens, nil
}

// AuthStatus probes one provider, or every provider when none is named.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	providers := models.Providers
	if cmd.StringArg("provider") != "" {
		p, err := r.provider(cmd, "provider")
		if err != nil {
			return err
		}
		providers = []models.Provider{p}
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	statuses := make([]app.Status, 0, len(providers))
	for _, p := range providers {
		status, err := a.Status(ctx, p)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, cmd.Bool("pretty"))
	}

	for _, s := range statuses {
		r.writePlain("%-14s %s", s.Provider.Label(), r.palette.State(s.Authenticated, s.State))
		if s.Account != nil {
			r.writePlain("  %s", s.Account.DisplayName)
			if s.Account.Email != "" {
				r.writePlain(" <%s>", s.Account.Email)
			}
		}
		r.writePlain("\n")
	}
	return nil
}

// AuthLogout unlinks a provider.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.provider(cmd, "provider")
	if err != nil {
		return err
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}

	if err := a.Logout(ctx, provider); err != nil {
		return err
	}
	return r.writePlain("%s Logged out of %s\n", r.palette.OK("✓"), provider.Label())
}
