// RideWithGPS API implementation of [Source] and [TrackResolver]
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
	"golang.org/x/oauth2"
)

const (
	rwgpsBaseURL      = "https://ridewithgps.com"
	rwgpsDefaultLimit = 100
)

// rwgpsTrackPaths are tried in order when fetching track data by id.
var rwgpsTrackPaths = []string{
	"/tracks/%s.json",
	"/api/v1/tracks/%s.json",
	"/trips/%s/track.json",
}

// FlexibleID accepts a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// RWGPSTrackPoint is one recorded point. X is longitude, Y latitude, E elevation in meters.
type RWGPSTrackPoint struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	E *float64 `json:"e,omitempty"`
}

// RWGPSTrip is a recorded trip.
type RWGPSTrip struct {
	ID           FlexibleID        `json:"id"`
	Name         string            `json:"name"`
	Distance     float64           `json:"distance"`
	ActivityType string            `json:"activity_type"`
	CreatedAt    string            `json:"created_at"`
	DepartedAt   string            `json:"departed_at,omitempty"`
	TrackID      FlexibleID        `json:"track_id,omitempty"`
	IsGPS        bool              `json:"is_gps"`
	TrackEncoded string            `json:"track_encoded,omitempty"`
	TrackPoints  []RWGPSTrackPoint `json:"track_points,omitempty"`
}

// RWGPSTripsPage is one page of /users/current/trips.json.
type RWGPSTripsPage struct {
	Results      []RWGPSTrip `json:"results"`
	ResultsCount int         `json:"results_count"`
}

// RWGPSTrackData is the payload of the track endpoints.
type RWGPSTrackData struct {
	TrackPoints  []RWGPSTrackPoint `json:"track_points,omitempty"`
	TrackEncoded string            `json:"track_encoded,omitempty"`
}

// RWGPSUser is the authenticated account.
type RWGPSUser struct {
	ID     FlexibleID `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Avatar string     `json:"avatar,omitempty"`
}

// Athlete converts u into the shared model.
func (u RWGPSUser) Athlete() models.Athlete {
	return models.Athlete{
		Source:   models.SourceRideWithGPS,
		SourceID: string(u.ID),
		Name:     u.Name,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// Track converts track points into a Track, keeping elevation where recorded.
func trackFromPoints(points []RWGPSTrackPoint) models.Track {
	track := make(models.Track, 0, len(points))
	for _, p := range points {
		gp := models.NewGeoPoint(p.Y, p.X)
		if p.E != nil {
			gp = gp.WithElevation(*p.E)
		}
		track = append(track, gp)
	}
	return track
}

// trackPayload returns the stored form of track data: the encoded polyline when present, else a coordinate array.
func trackPayload(encoded string, points []RWGPSTrackPoint) (string, error) {
	if encoded != "" {
		return encoded, nil
	}
	if len(points) == 0 {
		return "", nil
	}
	data, err := trackFromPoints(points).MarshalCoordinates()
	if err != nil {
		return "", fmt.Errorf("failed to encode track points: %w", err)
	}
	return string(data), nil
}

// Payload returns the stored form of d.
func (d RWGPSTrackData) Payload() (string, error) {
	return trackPayload(d.TrackEncoded, d.TrackPoints)
}

// Activity converts t into the shared model.
//
// Track data is taken from track_encoded, then track_points. A GPS trip with neither keeps its
// track_id so the track can be fetched later.
func (t RWGPSTrip) Activity() models.Activity {
	a := models.Activity{
		Source:    models.SourceRideWithGPS,
		SourceID:  string(t.ID),
		Name:      t.Name,
		Type:      t.ActivityType,
		Distance:  t.Distance,
		StartDate: parseRWGPSTime(t.DepartedAt, t.CreatedAt),
	}

	payload, err := trackPayload(t.TrackEncoded, t.TrackPoints)
	if err == nil && payload != "" {
		a.Polyline = payload
	} else if t.TrackID != "" && t.IsGPS {
		a.TrackID = string(t.TrackID)
	}
	return a
}

func parseRWGPSTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// RideWithGPSService implements [Source] and [TrackResolver] for RideWithGPS.
type RideWithGPSService struct {
	config *oauth2.Config
	client *client
	limit  int
}

// NewRideWithGPSService creates a RideWithGPS client from "client_id", "client_secret", "redirect_uri" and optional "base_url".
func NewRideWithGPSService(credentials map[string]string, opts Options) (*RideWithGPSService, error) {
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

	c := newClient("ridewithgps", rwgpsBaseURL, opts)

	limit := opts.PageSize
	if limit <= 0 {
		limit = rwgpsDefaultLimit
	}

	return &RideWithGPSService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.baseURL + "/oauth/authorize",
				TokenURL:  c.baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: c,
		limit:  limit,
	}, nil
}

func (s *RideWithGPSService) Name() string {
	return models.SourceRideWithGPS
}

// AuthURL returns the authorization page. RideWithGPS takes no scope parameter.
func (s *RideWithGPSService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

func (s *RideWithGPSService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Exchange trades code for a token. Pass oauth2.SetAuthURLParam("redirect_uri", ...) to override the configured redirect.
func (s *RideWithGPSService) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return exchange(ctx, s.Name(), s.config, s.client.http, code, opts...)
}

// TripsPage fetches one page of the current user's trips.
func (s *RideWithGPSService) TripsPage(ctx context.Context, sess *Session, offset, limit int) (*RWGPSTripsPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.limit
	}

	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var page RWGPSTripsPage
	if err := s.client.getJSON(ctx, sess, "/users/current/trips.json", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Activities pages by offset until a page comes back empty or short.
//
// Trips that only reference a track by id are returned with TrackID set; see [RideWithGPSService.ResolveTrack].
func (s *RideWithGPSService) Activities(ctx context.Context, sess *Session, progress func(int)) ([]models.Activity, error) {
	var all []models.Activity
	for offset := 0; ; offset += s.limit {
		page, err := s.TripsPage(ctx, sess, offset, s.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch trips at offset %d: %w", offset, err)
		}
		if len(page.Results) == 0 {
			break
		}

		for _, trip := range page.Results {
			all = append(all, trip.Activity())
		}
		s.client.logger.Debug("fetched page", "offset", offset, "count", len(page.Results), "total", len(all))

		if progress != nil {
			progress(len(all))
		}
		if len(page.Results) < s.limit {
			break
		}
	}
	return all, nil
}

// Trip fetches one trip with its track data.
func (s *RideWithGPSService) Trip(ctx context.Context, sess *Session, id string) (*RWGPSTrip, error) {
	var envelope struct {
		Trip RWGPSTrip `json:"trip"`
	}
	if err := s.client.getJSON(ctx, sess, "/trips/"+url.PathEscape(id)+".json", nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Trip, nil
}

// User fetches the authenticated user.
func (s *RideWithGPSService) User(ctx context.Context, sess *Session) (*RWGPSUser, error) {
	var envelope struct {
		User RWGPSUser `json:"user"`
	}
	if err := s.client.getJSON(ctx, sess, "/users/current.json", nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.User, nil
}

// TrackData tries each known track endpoint in order and returns the first success.
// When every endpoint fails, the last failure is returned.
func (s *RideWithGPSService) TrackData(ctx context.Context, sess *Session, trackID string) (*RWGPSTrackData, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	var lastErr error
	for _, pattern := range rwgpsTrackPaths {
		path := fmt.Sprintf(pattern, url.PathEscape(trackID))

		var data RWGPSTrackData
		err := s.client.getJSON(ctx, sess, path, nil, &data)
		if err == nil {
			return &data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		s.client.logger.Debug("track endpoint failed", "path", path, "status", apiErr.StatusCode)
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %w", shared.ErrTrackNotFound, trackID, lastErr)
}

// ResolveTrack fills activity.Polyline from its TrackID. Activities that already carry track data are left alone.
func (s *RideWithGPSService) ResolveTrack(ctx context.Context, sess *Session, activity *models.Activity) error {
	if activity.HasTrack() || activity.TrackID == "" {
		return nil
	}

	data, err := s.TrackData(ctx, sess, activity.TrackID)
	if err != nil {
		return err
	}

	payload, err := data.Payload()
	if err != nil {
		return err
	}
	if payload == "" {
		return fmt.Errorf("%w: track %s", shared.ErrNoTrackData, activity.TrackID)
	}
	activity.Polyline = payload
	return nil
}
