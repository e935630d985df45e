// Strava API implementation of [Source]
//
// Response types based on https://developers.strava.com/docs/reference/
package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/heatx/internal/models"
	"golang.org/x/oauth2"
)

const (
	stravaBaseURL        = "https://www.strava.com"
	stravaScope          = "read,activity:read_all"
	stravaDefaultPerPage = 200
	stravaMaxPerPage     = 200
)

// StravaMap holds the encoded route of an activity.
type StravaMap struct {
	ID              string `json:"id"`
	Polyline        string `json:"polyline,omitempty"`
	SummaryPolyline string `json:"summary_polyline,omitempty"`
}

// StravaActivity is a summary or detailed activity.
type StravaActivity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Distance  float64   `json:"distance"`
	Type      string    `json:"type"`
	SportType string    `json:"sport_type,omitempty"`
	StartDate time.Time `json:"start_date"`
	Map       StravaMap `json:"map"`
}

// BestPolyline returns the detailed polyline when present and the summary polyline otherwise.
func (a StravaActivity) BestPolyline() string {
	if a.Map.Polyline != "" {
		return a.Map.Polyline
	}
	return a.Map.SummaryPolyline
}

// Activity converts a into the shared model.
func (a StravaActivity) Activity() models.Activity {
	kind := a.SportType
	if kind == "" {
		kind = a.Type
	}
	return models.Activity{
		Source:    models.SourceStrava,
		SourceID:  strconv.FormatInt(a.ID, 10),
		Name:      a.Name,
		Type:      kind,
		Distance:  a.Distance,
		StartDate: a.StartDate,
		Polyline:  a.BestPolyline(),
	}
}

// StravaAthlete is the authenticated athlete.
type StravaAthlete struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Profile   string `json:"profile"`
}

// Athlete converts a into the shared model.
func (a StravaAthlete) Athlete() models.Athlete {
	name := a.FirstName
	if a.LastName != "" {
		name += " " + a.LastName
	}
	return models.Athlete{
		Source:   models.SourceStrava,
		SourceID: strconv.FormatInt(a.ID, 10),
		Name:     name,
		Avatar:   a.Profile,
	}
}

// StravaService implements [Source] for Strava.
type StravaService struct {
	config  *oauth2.Config
	client  *client
	perPage int
}

// NewStravaService creates a Strava client from "client_id", "client_secret", "redirect_uri" and optional "base_url".
func NewStravaService(credentials map[string]string, opts Options) (*StravaService, error) {
	clientID, err := credentialValue(credentials, "client_id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := credentialValue(credentials, "client_secret")
	if err != nil {
		return nil, err
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = credentials["base_url"]
	}

	c := newClient("strava", stravaBaseURL, opts)

	perPage := opts.PageSize
	if perPage <= 0 || perPage > stravaMaxPerPage {
		perPage = stravaDefaultPerPage
	}

	return &StravaService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{stravaScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.baseURL + "/oauth/authorize",
				TokenURL:  c.baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:  c,
		perPage: perPage,
	}, nil
}

func (s *StravaService) Name() string {
	return models.SourceStrava
}

// AuthURL returns the authorization page. Strava re-prompts only when scopes change.
func (s *StravaService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

func (s *StravaService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Exchange trades code for a token. The athlete summary Strava returns is available via tok.Extra("athlete").
func (s *StravaService) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return exchange(ctx, s.Name(), s.config, s.client.http, code, opts...)
}

// ActivitiesPage fetches one page of the athlete's activities. Pages start at 1.
func (s *StravaService) ActivitiesPage(ctx context.Context, sess *Session, page, perPage int) ([]StravaActivity, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > stravaMaxPerPage {
		perPage = s.perPage
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var activities []StravaActivity
	if err := s.client.getJSON(ctx, sess, "/api/v3/athlete/activities", query, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// Activities fetches every page until Strava returns an empty one.
func (s *StravaService) Activities(ctx context.Context, sess *Session, progress func(int)) ([]models.Activity, error) {
	var all []models.Activity
	for page := 1; ; page++ {
		items, err := s.ActivitiesPage(ctx, sess, page, s.perPage)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch activities page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			all = append(all, item.Activity())
		}
		s.client.logger.Debug("fetched page", "page", page, "count", len(items), "total", len(all))

		if progress != nil {
			progress(len(all))
		}
	}
	return all, nil
}

// Activity fetches one detailed activity, which carries the full-resolution polyline.
func (s *StravaService) Activity(ctx context.Context, sess *Session, id string) (*StravaActivity, error) {
	var activity StravaActivity
	if err := s.client.getJSON(ctx, sess, "/api/v3/activities/"+url.PathEscape(id), nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Athlete fetches the authenticated athlete.
func (s *StravaService) Athlete(ctx context.Context, sess *Session) (*StravaAthlete, error) {
	var athlete StravaAthlete
	if err := s.client.getJSON(ctx, sess, "/api/v3/athlete", nil, &athlete); err != nil {
		return nil, err
	}
	return &athlete, nil
}

