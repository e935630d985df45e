package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/heatx/internal/server"
	"github.com/urfave/cli/v3"
)

// newProxyRouter wires the proxy handler behind request logging and, when metrics is set, instrumentation.
func (r *Runner) newProxyRouter(metrics *server.Metrics) *server.ChiRouter {
	router := server.NewRouter()
	router.Use(server.RequestLogger(r.logger))
	if metrics != nil {
		router.Use(metrics.Middleware())
	}
	router.Handler(server.NewProxyHandler(server.ProxyOpts{
		Strava:      r.strava,
		RideWithGPS: r.rwgps,
		Metrics:     metrics,
		Logger:      r.logger,
	}))
	return router
}

// Serve runs the proxy until interrupted, then drains in-flight requests.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	var metrics *server.Metrics
	if cmd.Bool("metrics") {
		metrics = server.NewMetrics()
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           r.newProxyRouter(metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("proxy listening", "addr", addr, "strava", r.strava != nil, "ridewithgps", r.rwgps != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	r.writePlain("→ heatx proxy running at http://%s (Ctrl+C to stop)\n", addr)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
