package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/metrics"
	"github.com/desertthunder/melodari/internal/server"
	"github.com/desertthunder/melodari/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the OAuth proxy, JSON API and metrics endpoint until interrupted.
//
// The server holds the client secrets, so it always refreshes against the providers directly.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := *r.config
	config.Server.ProxyURL = ""

	a, err := app.Open(ctx, &config, r.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.LinkProfile(ctx); err != nil {
		r.logger.Warn("failed to link profile", "err", err)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = config.Server.Addr()
	}

	srv := server.New(addr, newRouter(a, r))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.writePlain("%s Listening on http://%s\n", r.palette.OK("→"), addr)
	return server.Run(ctx, srv, r.logger)
}

func newRouter(a *app.App, r *Runner) http.Handler {
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger), server.Metrics, server.Recover(r.logger))

	router.Handler(server.HealthHandler{})
	router.Handler(server.NewAuthProxyHandler(a.Refresher(), a.ResolveTokens, r.logger))
	router.Handler(web.NewAPI(a, r.logger))
	router.Handle(http.MethodGet, "/metrics", metrics.Handler())

	return router
}
