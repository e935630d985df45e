package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/server"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// StravaAuth performs the OAuth2 authorization code flow for Strava.
func (r *Runner) StravaAuth(ctx context.Context, cmd *cli.Command) error {
	return r.authorize(ctx, models.SourceStrava)
}

// RWGPSAuth performs the OAuth2 authorization code flow for RideWithGPS.
func (r *Runner) RWGPSAuth(ctx context.Context, cmd *cli.Command) error {
	return r.authorize(ctx, models.SourceRideWithGPS)
}

// authorize runs the flow for source and prints the issued tokens. Tokens are never written to disk.
func (r *Runner) authorize(ctx context.Context, source string) error {
	src, err := r.source(source)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, src)
	if err != nil {
		return err
	}

	env := tokenEnv[source]
	r.writePlainln("✓ Authorization successful")
	r.writePlain("Access token:  %s\n", token.AccessToken)
	if token.RefreshToken != "" {
		r.writePlain("Refresh token: %s\n", token.RefreshToken)
	}
	if !token.Expiry.IsZero() {
		r.writePlain("Expires:       %s\n", token.Expiry.Local().Format(time.RFC1123))
	}
	if athlete, ok := token.Extra("athlete").(map[string]any); ok {
		r.writePlain("Athlete:       %v %v\n", athlete["firstname"], athlete["lastname"])
	}

	r.writePlainln("heatx does not store tokens. Export them for later commands:")
	r.writePlain("  export %s=%s\n", env[0], token.AccessToken)
	if token.RefreshToken != "" {
		r.writePlain("  export %s=%s\n", env[1], token.RefreshToken)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, src services.Source) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := src.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(src, state, src.OAuthConfig().RedirectURL)
	router := server.NewRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	serverAddr := r.config.Server.Addr()
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", src.Name(), serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for %s authorization...\n", src.Name())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}
