package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Version is sent in the User-Agent header. Set by the CLI at startup.
var Version = "dev"

// Source is an upstream activity service reached through the OAuth code flow.
type Source interface {
	// Name returns the source key stored with cached activities ("strava", "ridewithgps").
	Name() string

	// AuthURL returns the authorization page for the given state.
	AuthURL(state string) string

	// OAuthConfig returns the client configuration used for exchange and refresh.
	OAuthConfig() *oauth2.Config

	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)

	// Activities pages through every activity visible to sess.
	// progress, when non-nil, receives the running count after each page.
	Activities(ctx context.Context, sess *Session, progress func(int)) ([]models.Activity, error)
}

// TrackResolver fills in track data that a listing only referenced by id.
type TrackResolver interface {
	ResolveTrack(ctx context.Context, sess *Session, activity *models.Activity) error
}

// Session carries the credentials for one caller. It is passed explicitly to every upstream call.
type Session struct {
	source oauth2.TokenSource
}

// NewSession returns a session that always presents tok.
func NewSession(tok *oauth2.Token) *Session {
	return &Session{source: oauth2.StaticTokenSource(tok)}
}

// NewRefreshingSession returns a session that refreshes tok through cfg when it expires.
func NewRefreshingSession(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) *Session {
	return &Session{source: oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok))}
}

// Token returns the current, possibly refreshed, token.
func (s *Session) Token() (*oauth2.Token, error) {
	if s == nil || s.source == nil {
		return nil, shared.ErrNotAuthenticated
	}
	tok, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	if tok.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	return tok, nil
}

// APIError is a non-2xx response from an upstream service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s API error: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.StatusCode, body)
}

// Unwrap maps well-known statuses onto shared sentinels.
func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		errs = append(errs, shared.ErrTokenExpired)
	case http.StatusTooManyRequests:
		errs = append(errs, shared.ErrRateLimited)
	case http.StatusNotFound:
		errs = append(errs, shared.ErrActivityNotFound)
	}
	return errs
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Options configures a service client. Zero values fall back to production defaults.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	RateLimit  float64 // requests per second
	PageSize   int
}

// client is the HTTP plumbing shared by the upstream services.
type client struct {
	service string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

func newClient(service, defaultBase string, opts Options) *client {
	base := opts.BaseURL
	if base == "" {
		base = defaultBase
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &client{
		service: service,
		baseURL: strings.TrimRight(base, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("service", service),
	}
}

// getJSON performs an authenticated GET and decodes the body into out.
func (c *client) getJSON(ctx context.Context, sess *Session, path string, query url.Values, out any) error {
	body, err := c.get(ctx, sess, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrAPIRequest, c.service, err)
	}
	return nil
}

// get performs an authenticated, rate limited GET and returns the raw body.
func (c *client) get(ctx context.Context, sess *Session, path string, query url.Values) ([]byte, error) {
	tok, err := sess.Token()
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	apiURL := c.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "heatx/"+Version)

	c.logger.Debug("request", "method", req.Method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("request failed", "path", path, "status", resp.StatusCode)
		return nil, &APIError{Service: c.service, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// exchange wraps oauth2 exchange errors so upstream statuses survive.
func exchange(ctx context.Context, service string, cfg *oauth2.Config, httpClient *http.Client, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, &APIError{
				Service:    service,
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
			})
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return tok, nil
}

// credentialValue returns credentials[key] or an error naming the missing key.
func credentialValue(credentials map[string]string, key string) (string, error) {
	v, ok := credentials[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s in credentials", shared.ErrMissingCredentials, key)
	}
	return v, nil
}
