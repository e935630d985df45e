package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

func main() {
	logger := shared.NewLogger(nil)
	services.Version = version

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	if err := config.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	opts := services.Options{
		HTTPClient: httpClient,
		Logger:     logger,
		RateLimit:  config.Heatmap.RateLimit,
	}

	var strava *services.StravaService
	if config.Credentials.Strava.Configured() {
		stravaOpts := opts
		stravaOpts.PageSize = config.Heatmap.StravaPerPage
		if svc, err := services.NewStravaService(config.Credentials.Strava.Map(), stravaOpts); err == nil {
			strava = svc
		} else {
			logger.Warn("strava disabled", "error", err)
		}
	}

	var rwgps *services.RideWithGPSService
	if config.Credentials.RideWithGPS.Configured() {
		rwgpsOpts := opts
		rwgpsOpts.PageSize = config.Heatmap.RWGPSPageSize
		if svc, err := services.NewRideWithGPSService(config.Credentials.RideWithGPS.Map(), rwgpsOpts); err == nil {
			rwgps = svc
		} else {
			logger.Warn("ridewithgps disabled", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:      config,
		Strava:      strava,
		RideWithGPS: rwgps,
		API:         services.NewProxyClient("http://"+config.Server.Addr(), httpClient),
		HTTPClient:  httpClient,
		Logger:      logger,
	})

	app := &cli.Command{
		Name:     "heatx",
		Usage:    "Build route heatmaps from Strava & RideWithGPS activities",
		Version:  version,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
