package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/oauth2"
)

const (
	defaultStravaPage    = 1
	defaultStravaPerPage = 200
	defaultRWGPSLimit    = 100
)

// ProxyOpts configures a [ProxyHandler]. A nil service disables its routes with 503.
type ProxyOpts struct {
	Strava      *services.StravaService
	RideWithGPS *services.RideWithGPSService
	Metrics     *Metrics
	Logger      *log.Logger
}

// ProxyHandler exposes the upstream services and the polyline codec as a JSON API.
//
// Callers hold their own tokens and pass them on every request; the handler keeps no session state.
type ProxyHandler struct {
	strava   *services.StravaService
	rwgps    *services.RideWithGPSService
	metrics  *Metrics
	logger   *log.Logger
	mux      *chi.Mux
	routes   []string
	validate *validator.Validate
	trans    ut.Translator
}

// NewProxyHandler builds the handler and its routes.
func NewProxyHandler(opts ProxyOpts) *ProxyHandler {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	h := &ProxyHandler{
		strava:   opts.Strava,
		rwgps:    opts.RideWithGPS,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "proxy"),
		mux:      chi.NewRouter(),
		validate: validate,
		trans:    trans,
	}

	h.handle(http.MethodGet, "/health", h.health)
	h.handle(http.MethodPost, "/api/strava-token", h.stravaToken)
	h.handle(http.MethodGet, "/api/strava-activities", h.stravaActivities)
	h.handle(http.MethodPost, "/api/rwgps-token", h.rwgpsToken)
	h.handle(http.MethodGet, "/api/rwgps-trips", h.rwgpsTrips)
	h.handle(http.MethodGet, "/api/rwgps-user", h.rwgpsUser)
	h.handle(http.MethodGet, "/api/rwgps-track", h.rwgpsTrack)
	h.handle(http.MethodPost, "/api/polyline/decode", h.decodePolyline)
	h.handle(http.MethodPost, "/api/polyline/encode", h.encodePolyline)
	if h.metrics != nil {
		h.handle(http.MethodGet, "/metrics", h.metrics.Handler().ServeHTTP)
	}

	return h
}

func (h *ProxyHandler) handle(method, path string, fn http.HandlerFunc) {
	h.mux.Method(method, path, fn)
	if !slices.Contains(h.routes, path) {
		h.routes = append(h.routes, path)
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *ProxyHandler) Routes() []string {
	return slices.Clone(h.routes)
}

// ServeHTTP dispatches to the registered routes.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// HealthResponse reports which upstream services are configured.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Services map[string]bool `json:"services"`
}

// TokenResponse is the token returned by the exchange endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	Athlete      any    `json:"athlete,omitempty"`
}

func newTokenResponse(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Athlete:      tok.Extra("athlete"),
	}
	if !tok.Expiry.IsZero() {
		resp.ExpiresAt = tok.Expiry.Unix()
	}
	return resp
}

// StravaTokenRequest is the body of POST /api/strava-token.
type StravaTokenRequest struct {
	Code string `json:"code" validate:"required"`
}

func (s *StravaTokenRequest) Bind(r *http.Request) error {
	s.Code = strings.TrimSpace(s.Code)
	return nil
}

// RWGPSTokenRequest is the body of POST /api/rwgps-token.
type RWGPSTokenRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirectUri" validate:"required,url"`
}

func (s *RWGPSTokenRequest) Bind(r *http.Request) error {
	s.Code = strings.TrimSpace(s.Code)
	s.RedirectURI = strings.TrimSpace(s.RedirectURI)
	return nil
}

// DecodeRequest is the body of POST /api/polyline/decode.
type DecodeRequest struct {
	Polyline  string `json:"polyline"`
	Precision *int   `json:"precision" validate:"omitempty,gte=0,lte=10"`
}

func (d *DecodeRequest) Bind(r *http.Request) error {
	return nil
}

// EncodeRequest is the body of POST /api/polyline/encode. Points are [lat, lng] pairs.
type EncodeRequest struct {
	Points    [][2]float64 `json:"points" validate:"required"`
	Precision *int         `json:"precision" validate:"omitempty,gte=0,lte=10"`
}

func (e *EncodeRequest) Bind(r *http.Request) error {
	return nil
}

// PolylineResponse is returned by both polyline endpoints.
type PolylineResponse struct {
	Polyline  string       `json:"polyline"`
	Precision int          `json:"precision"`
	Points    [][2]float64 `json:"points"`
	Count     int          `json:"count"`
}

func (h *ProxyHandler) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Version: services.Version,
		Services: map[string]bool{
			models.SourceStrava:      h.strava != nil,
			models.SourceRideWithGPS: h.rwgps != nil,
		},
	})
}

func (h *ProxyHandler) stravaToken(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceStrava, h.strava != nil) {
		return
	}
	data := &StravaTokenRequest{}
	if !h.bind(w, r, data) {
		return
	}

	tok, err := h.strava.Exchange(r.Context(), data.Code)
	if err != nil {
		h.fail(w, r, models.SourceStrava, "Token exchange failed", err)
		return
	}
	render.JSON(w, r, newTokenResponse(tok))
}

func (h *ProxyHandler) stravaActivities(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceStrava, h.strava != nil) {
		return
	}
	token := headerToken(r)
	if token == "" {
		render.Render(w, r, ErrUnauthorized(errors.New("missing authorization header")))
		return
	}
	page, err := queryInt(r, "page", defaultStravaPage)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	perPage, err := queryInt(r, "per_page", defaultStravaPerPage)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	activities, err := h.strava.ActivitiesPage(r.Context(), bearerSession(token), page, perPage)
	if err != nil {
		h.fail(w, r, models.SourceStrava, "Failed to fetch activities", err)
		return
	}
	if activities == nil {
		activities = []services.StravaActivity{}
	}
	render.JSON(w, r, activities)
}

func (h *ProxyHandler) rwgpsToken(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceRideWithGPS, h.rwgps != nil) {
		return
	}
	data := &RWGPSTokenRequest{}
	if !h.bind(w, r, data) {
		return
	}

	tok, err := h.rwgps.Exchange(r.Context(), data.Code, oauth2.SetAuthURLParam("redirect_uri", data.RedirectURI))
	if err != nil {
		h.fail(w, r, models.SourceRideWithGPS, "Token exchange failed", err)
		return
	}
	render.JSON(w, r, newTokenResponse(tok))
}

func (h *ProxyHandler) rwgpsTrips(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceRideWithGPS, h.rwgps != nil) {
		return
	}
	token := queryOrHeaderToken(r)
	if token == "" {
		render.Render(w, r, ErrUnauthorized(errors.New("missing access token")))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	limit, err := queryInt(r, "limit", defaultRWGPSLimit)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	page, err := h.rwgps.TripsPage(r.Context(), bearerSession(token), offset, limit)
	if err != nil {
		h.fail(w, r, models.SourceRideWithGPS, "Failed to fetch trips", err)
		return
	}
	if page.Results == nil {
		page.Results = []services.RWGPSTrip{}
	}
	render.JSON(w, r, page)
}

func (h *ProxyHandler) rwgpsUser(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceRideWithGPS, h.rwgps != nil) {
		return
	}
	token := headerToken(r)
	if token == "" {
		render.Render(w, r, ErrUnauthorized(errors.New("missing authorization header")))
		return
	}

	user, err := h.rwgps.User(r.Context(), bearerSession(token))
	if err != nil {
		h.fail(w, r, models.SourceRideWithGPS, "Failed to fetch user info", err)
		return
	}
	render.JSON(w, r, map[string]any{"user": user})
}

func (h *ProxyHandler) rwgpsTrack(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r, models.SourceRideWithGPS, h.rwgps != nil) {
		return
	}
	token := queryOrHeaderToken(r)
	if token == "" {
		render.Render(w, r, ErrUnauthorized(errors.New("missing access token")))
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		render.Render(w, r, ErrInvalidRequest(errors.New("missing track ID")))
		return
	}

	data, err := h.rwgps.TrackData(r.Context(), bearerSession(token), id)
	if err != nil {
		h.fail(w, r, models.SourceRideWithGPS, "Failed to fetch track from all endpoints", err)
		return
	}
	render.JSON(w, r, data)
}

func (h *ProxyHandler) decodePolyline(w http.ResponseWriter, r *http.Request) {
	data := &DecodeRequest{}
	if !h.bind(w, r, data) {
		return
	}
	codec, err := codecFor(data.Precision)
	if err != nil {
		render.Render(w, r, errorRenderer("", err))
		return
	}

	track, err := codec.Decode(data.Polyline)
	if err != nil {
		render.Render(w, r, errorRenderer("", err))
		return
	}

	points := make([][2]float64, len(track))
	for i, p := range track {
		points[i] = [2]float64{p.Latitude, p.Longitude}
	}
	render.JSON(w, r, PolylineResponse{
		Polyline:  data.Polyline,
		Precision: codec.Precision(),
		Points:    points,
		Count:     len(points),
	})
}

func (h *ProxyHandler) encodePolyline(w http.ResponseWriter, r *http.Request) {
	data := &EncodeRequest{}
	if !h.bind(w, r, data) {
		return
	}
	codec, err := codecFor(data.Precision)
	if err != nil {
		render.Render(w, r, errorRenderer("", err))
		return
	}

	track := make(models.Track, len(data.Points))
	for i, p := range data.Points {
		track[i] = models.NewGeoPoint(p[0], p[1])
	}
	encoded, err := codec.Encode(track)
	if err != nil {
		render.Render(w, r, errorRenderer("", err))
		return
	}

	render.JSON(w, r, PolylineResponse{
		Polyline:  encoded,
		Precision: codec.Precision(),
		Points:    data.Points,
		Count:     len(data.Points),
	})
}

// bind decodes and validates the request body, rendering a 400 on failure.
func (h *ProxyHandler) bind(w http.ResponseWriter, r *http.Request, data render.Binder) bool {
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return false
	}
	if err := h.validate.Struct(data); err != nil {
		render.Render(w, r, ErrValidation(err, translateError(err, h.trans)))
		return false
	}
	return true
}

func (h *ProxyHandler) available(w http.ResponseWriter, r *http.Request, service string, ok bool) bool {
	if !ok {
		render.Render(w, r, ErrUnavailable(fmt.Errorf("%w: %s is not configured", shared.ErrServiceUnavailable, service)))
	}
	return ok
}

// fail logs an upstream failure and renders it with the upstream status when there is one.
func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, service, message string, err error) {
	status := services.StatusCode(err)
	h.logger.Warn(message, "service", service, "status", status, "error", err)
	if status != 0 {
		h.metrics.upstreamError(service, status)
	}
	render.Render(w, r, errorRenderer(message, err))
}

func codecFor(precision *int) (*polyline.Codec, error) {
	if precision == nil {
		return polyline.Default(), nil
	}
	return polyline.NewCodec(*precision)
}

func bearerSession(token string) *services.Session {
	return services.NewSession(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// headerToken returns the token from the Authorization header, with or without the Bearer prefix.
func headerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		auth = auth[7:]
	}
	return strings.TrimSpace(auth)
}

// queryOrHeaderToken prefers the token query parameter over the Authorization header.
func queryOrHeaderToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return headerToken(r)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", shared.ErrInvalidArgument, key, raw)
	}
	return v, nil
}
