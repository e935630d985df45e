package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	tu "github.com/desertthunder/heatx/internal/testing"
	"golang.org/x/oauth2"
)

type fakeExchanger struct {
	codes []string
	err   error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "tok-" + code}, nil
}

func request(t *testing.T, h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestChiRouter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	t.Run("Handle Filters Methods", func(t *testing.T) {
		router := NewRouter()
		router.Handle("get", "/ping", ok)

		if rec := request(t, router, http.MethodGet, "/ping", nil, nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
			t.Errorf("GET /ping = %d %q", rec.Code, rec.Body.String())
		}
		if rec := request(t, router, http.MethodPost, "/ping", nil, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST /ping = %d, want 405", rec.Code)
		}
		if rec := request(t, router, http.MethodGet, "/missing", nil, nil); rec.Code != http.StatusNotFound {
			t.Errorf("GET /missing = %d, want 404", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewRouter()
		router.Use(mark("first"), mark("second"))
		router.Handle(http.MethodGet, "/", ok)
		request(t, router, http.MethodGet, "/", nil, nil)

		if strings.Join(order, ",") != "first,second" {
			t.Errorf("middleware order = %v", order)
		}
	})

	t.Run("Handler Registers Every Route", func(t *testing.T) {
		router := NewRouter()
		h := NewOAuthHandler(&fakeExchanger{}, "s", "http://localhost:3000/auth/callback")
		router.Handler(h)

		rec := request(t, router, http.MethodGet, "/auth/callback?state=s&code=c", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("callback = %d, want 200", rec.Code)
		}
	})

	t.Run("Recovers From Panics", func(t *testing.T) {
		router := NewRouter()
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		if rec := request(t, router, http.MethodGet, "/boom", nil, nil); rec.Code != http.StatusInternalServerError {
			t.Errorf("panic handler = %d, want 500", rec.Code)
		}
	})

	t.Run("RequestLogger", func(t *testing.T) {
		var buf bytes.Buffer
		router := NewRouter()
		router.Use(RequestLogger(shared.NewLogger(&buf)))
		router.Handle(http.MethodGet, "/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		request(t, router, http.MethodGet, "/teapot", nil, nil)

		out := buf.String()
		for _, want := range []string{"/teapot", "418", "request_id"} {
			if !strings.Contains(out, want) {
				t.Errorf("log output missing %q: %s", want, out)
			}
		}
	})
}

func TestOAuthHandler(t *testing.T) {
	t.Run("CallbackPath", func(t *testing.T) {
		tests := []struct {
			redirect string
			want     string
		}{
			{"http://localhost:3000/callback", "/callback"},
			{"http://localhost:3000/oauth/strava", "/oauth/strava"},
			{"http://localhost:3000", "/callback"},
			{"http://localhost:3000/", "/callback"},
			{"", "/callback"},
		}
		for _, tt := range tests {
			if got := CallbackPath(tt.redirect); got != tt.want {
				t.Errorf("CallbackPath(%q) = %q, want %q", tt.redirect, got, tt.want)
			}
		}
	})

	t.Run("Successful Exchange", func(t *testing.T) {
		ex := &fakeExchanger{}
		h := NewOAuthHandler(ex, "state123", "")

		rec := request(t, h, http.MethodGet, "/callback?state=state123&code=abc", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Connected to heatx") {
			t.Errorf("unexpected page: %s", rec.Body.String())
		}

		result := <-h.Result()
		if result.Error() != nil {
			t.Fatalf("unexpected error: %v", result.Error())
		}
		if result.Token.AccessToken != "tok-abc" {
			t.Errorf("token = %q", result.Token.AccessToken)
		}
		if _, open := <-h.Result(); open {
			t.Error("result channel should be closed after one result")
		}
	})

	t.Run("State Mismatch", func(t *testing.T) {
		ex := &fakeExchanger{}
		h := NewOAuthHandler(ex, "expected", "")

		rec := request(t, h, http.MethodGet, "/callback?state=forged&code=abc", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		result := <-h.Result()
		if !errors.Is(result.Error(), shared.ErrStateMismatch) {
			t.Errorf("error = %v, want ErrStateMismatch", result.Error())
		}
		if len(ex.codes) != 0 {
			t.Error("exchange should not run on state mismatch")
		}
	})

	t.Run("Denied Authorization", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s", "")

		rec := request(t, h, http.MethodGet, "/callback?state=s&error=access_denied&error_description=nope", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		result := <-h.Result()
		if !errors.Is(result.Error(), shared.ErrAuthFailed) || !strings.Contains(result.Error().Error(), "access_denied") {
			t.Errorf("error = %v", result.Error())
		}
	})

	t.Run("Exchange Failure", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{err: errors.New("upstream down")}, "s", "")

		rec := request(t, h, http.MethodGet, "/callback?state=s&code=c", nil, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		result := <-h.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "token exchange failed") {
			t.Errorf("error = %v", result.Error())
		}
	})

	t.Run("Only One Callback", func(t *testing.T) {
		ex := &fakeExchanger{}
		h := NewOAuthHandler(ex, "s", "")

		request(t, h, http.MethodGet, "/callback?state=s&code=one", nil, nil)
		rec := request(t, h, http.MethodGet, "/callback?state=s&code=two", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("second callback = %d, want 400", rec.Code)
		}
		if len(ex.codes) != 1 || ex.codes[0] != "one" {
			t.Errorf("exchanged codes = %v", ex.codes)
		}
	})
}

var testCredentials = map[string]string{
	"client_id":     "id",
	"client_secret": "secret",
	"redirect_uri":  "http://localhost:3000/callback",
}

func newTestProxy(t *testing.T, mux *http.ServeMux, metrics *Metrics) (*ProxyHandler, *tu.Upstream) {
	t.Helper()
	upstream := tu.NewUpstream(t, mux)

	strava, err := services.NewStravaService(testCredentials, services.Options{BaseURL: upstream.URL})
	if err != nil {
		t.Fatalf("NewStravaService() error = %v", err)
	}
	rwgps, err := services.NewRideWithGPSService(testCredentials, services.Options{BaseURL: upstream.URL})
	if err != nil {
		t.Fatalf("NewRideWithGPSService() error = %v", err)
	}

	return NewProxyHandler(ProxyOpts{Strava: strava, RideWithGPS: rwgps, Metrics: metrics}), upstream
}

func TestProxyHandler(t *testing.T) {
	t.Run("Routes", func(t *testing.T) {
		h := NewProxyHandler(ProxyOpts{Metrics: NewMetrics()})
		routes := strings.Join(h.Routes(), " ")
		for _, want := range []string{"/health", "/api/strava-token", "/api/rwgps-track", "/api/polyline/encode", "/metrics"} {
			if !strings.Contains(routes, want) {
				t.Errorf("routes %q missing %s", routes, want)
			}
		}

		if strings.Contains(strings.Join(NewProxyHandler(ProxyOpts{}).Routes(), " "), "/metrics") {
			t.Error("/metrics should only be served with metrics configured")
		}
	})

	t.Run("Health", func(t *testing.T) {
		h := NewProxyHandler(ProxyOpts{})
		rec := request(t, h, http.MethodGet, "/health", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeBody[HealthResponse](t, rec)
		if body.Status != "ok" || body.Services["strava"] || body.Services["ridewithgps"] {
			t.Errorf("unexpected health %+v", body)
		}
	})

	t.Run("Unconfigured Service", func(t *testing.T) {
		h := NewProxyHandler(ProxyOpts{})
		rec := request(t, h, http.MethodGet, "/api/rwgps-user", nil, bearer("t"))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("Strava Token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code") == "bad" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Bad Request"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"a1","refresh_token":"r1","token_type":"Bearer","expires_in":3600,"athlete":{"id":7}}`))
		})
		h, _ := newTestProxy(t, mux, nil)

		t.Run("Exchanges Code", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/strava-token", map[string]string{"code": "good"}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			tok := decodeBody[TokenResponse](t, rec)
			if tok.AccessToken != "a1" || tok.RefreshToken != "r1" || tok.ExpiresAt == 0 {
				t.Errorf("unexpected token %+v", tok)
			}
			if tok.Athlete == nil {
				t.Error("expected athlete to be passed through")
			}
		})

		t.Run("Missing Code", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/strava-token", map[string]string{}, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[ErrResponse](t, rec)
			if len(body.ErrValidation) != 1 || !strings.Contains(body.ErrValidation[0], "code is a required field") {
				t.Errorf("validation = %v", body.ErrValidation)
			}
		})

		t.Run("Malformed Body", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/strava-token", "{not json", nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})

		t.Run("Upstream Status Propagated", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/strava-token", map[string]string{"code": "bad"}, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[ErrResponse](t, rec)
			if body.ErrorText != "Token exchange failed" || body.Details == nil || body.Details.Status != http.StatusBadRequest {
				t.Errorf("unexpected error body %+v", body)
			}
		})

		t.Run("Wrong Method", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-token", nil, nil)
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want 405", rec.Code)
			}
		})
	})

	t.Run("Strava Activities", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer expired" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Authorization Error"}`))
				return
			}
			if r.URL.Query().Get("page") == "2" {
				w.Write([]byte(`[]`))
				return
			}
			w.Write([]byte(`[{"id":1,"name":"Morning Ride","type":"Ride","map":{"summary_polyline":"_p~iF~ps|U"}}]`))
		})
		h, upstream := newTestProxy(t, mux, nil)

		t.Run("Missing Authorization", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-activities", nil, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})

		t.Run("Forwards Paging", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-activities?page=1&per_page=50", nil, bearer("tok"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			activities := decodeBody[[]services.StravaActivity](t, rec)
			if len(activities) != 1 || activities[0].Name != "Morning Ride" {
				t.Errorf("activities = %+v", activities)
			}

			reqs := upstream.Requests()
			last := reqs[len(reqs)-1]
			if last.URL.Query().Get("per_page") != "50" || last.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("upstream request = %s %v", last.URL, last.Header)
			}
		})

		t.Run("Empty Page Is An Array", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-activities?page=2", nil, bearer("tok"))
			if strings.TrimSpace(rec.Body.String()) != "[]" {
				t.Errorf("body = %q, want []", rec.Body.String())
			}
		})

		t.Run("Invalid Page", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-activities?page=abc", nil, bearer("tok"))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})

		t.Run("Expired Token", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/strava-activities", nil, bearer("expired"))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	})

	t.Run("RideWithGPS", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("redirect_uri") != "http://app.test/cb" {
				t.Errorf("redirect_uri = %q", r.Form.Get("redirect_uri"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"rw","token_type":"Bearer"}`))
		})
		mux.HandleFunc("GET /users/current/trips.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"results":[{"id":11,"name":"Loop","track_id":"99"}],"results_count":1}`))
		})
		mux.HandleFunc("GET /users/current.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":5,"name":"Rider"}}`))
		})
		mux.HandleFunc("GET /tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		mux.HandleFunc("GET /api/v1/tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "99.json" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"track_points":[{"x":-120.2,"y":38.5},{"x":-120.95,"y":40.7}]}`))
		})
		mux.HandleFunc("GET /trips/{id}/track.json", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		h, upstream := newTestProxy(t, mux, nil)

		t.Run("Token Requires Redirect", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/rwgps-token", map[string]string{"code": "c"}, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[ErrResponse](t, rec)
			if len(body.ErrValidation) == 0 || !strings.Contains(body.ErrValidation[0], "redirectUri") {
				t.Errorf("validation = %v", body.ErrValidation)
			}
		})

		t.Run("Token", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/rwgps-token", map[string]string{"code": "c", "redirectUri": "http://app.test/cb"}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if tok := decodeBody[TokenResponse](t, rec); tok.AccessToken != "rw" {
				t.Errorf("token = %+v", tok)
			}
		})

		t.Run("Trips Token From Query", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-trips?token=qtok&offset=10&limit=5", nil, bearer("ignored"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			page := decodeBody[services.RWGPSTripsPage](t, rec)
			if len(page.Results) != 1 || page.Results[0].TrackID != "99" {
				t.Errorf("page = %+v", page)
			}

			reqs := upstream.Requests()
			last := reqs[len(reqs)-1]
			if last.Header.Get("Authorization") != "Bearer qtok" {
				t.Errorf("Authorization = %q", last.Header.Get("Authorization"))
			}
			if last.URL.Query().Get("offset") != "10" || last.URL.Query().Get("limit") != "5" {
				t.Errorf("query = %s", last.URL.RawQuery)
			}
		})

		t.Run("Trips Without Token", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-trips", nil, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})

		t.Run("User", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-user", nil, bearer("tok"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decodeBody[map[string]services.RWGPSUser](t, rec)
			if body["user"].Name != "Rider" {
				t.Errorf("user = %+v", body)
			}
		})

		t.Run("Track Falls Back", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-track?id=99", nil, bearer("tok"))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			data := decodeBody[services.RWGPSTrackData](t, rec)
			if len(data.TrackPoints) != 2 {
				t.Errorf("track points = %d, want 2", len(data.TrackPoints))
			}
		})

		t.Run("Track Missing ID", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-track?token=tok", nil, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})

		t.Run("Track Missing Token Checked First", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-track", nil, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})

		t.Run("Track Reports Last Failure", func(t *testing.T) {
			rec := request(t, h, http.MethodGet, "/api/rwgps-track?id=42", nil, bearer("tok"))
			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403 from the last endpoint", rec.Code)
			}
		})
	})

	t.Run("Polyline", func(t *testing.T) {
		h := NewProxyHandler(ProxyOpts{})

		t.Run("Encode", func(t *testing.T) {
			points := [][2]float64{}
			for _, p := range tu.ExampleTrack() {
				points = append(points, [2]float64{p.Latitude, p.Longitude})
			}
			rec := request(t, h, http.MethodPost, "/api/polyline/encode", map[string]any{"points": points}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody[PolylineResponse](t, rec)
			if body.Polyline != tu.ExamplePolyline || body.Precision != 5 || body.Count != 3 {
				t.Errorf("unexpected response %+v", body)
			}
		})

		t.Run("Encode Invalid Coordinate", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/encode", map[string]any{"points": [][2]float64{{91, 0}}}, nil)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", rec.Code)
			}
		})

		t.Run("Decode", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/decode", map[string]any{"polyline": tu.ExamplePolyline}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody[PolylineResponse](t, rec)
			if body.Count != 3 || body.Points[2] != [2]float64{43.252, -126.453} {
				t.Errorf("unexpected response %+v", body)
			}
		})

		t.Run("Decode At Precision 6", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/decode", map[string]any{"polyline": tu.SinglePointPolyline, "precision": 6}, nil)
			body := decodeBody[PolylineResponse](t, rec)
			if body.Precision != 6 || body.Points[0] != [2]float64{3.85, -12.02} {
				t.Errorf("unexpected response %+v", body)
			}
		})

		t.Run("Decode Empty", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/decode", map[string]any{"polyline": ""}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"points":[]`) {
				t.Errorf("expected an empty point list, got %s", rec.Body.String())
			}
			if body := decodeBody[PolylineResponse](t, rec); body.Count != 0 {
				t.Errorf("unexpected response %+v", body)
			}
		})

		t.Run("Decode Malformed", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/decode", map[string]any{"polyline": "_p~iF~ps|"}, nil)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", rec.Code)
			}
		})

		t.Run("Precision Out Of Range", func(t *testing.T) {
			rec := request(t, h, http.MethodPost, "/api/polyline/decode", map[string]any{"polyline": "??", "precision": 11}, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[ErrResponse](t, rec)
			if len(body.ErrValidation) == 0 || !strings.Contains(body.ErrValidation[0], "precision") {
				t.Errorf("validation = %v", body.ErrValidation)
			}
		})
	})
}

func TestMetrics(t *testing.T) {
	metrics := NewMetrics()
	router := NewRouter()
	router.Use(metrics.Middleware())
	router.Handler(NewProxyHandler(ProxyOpts{Metrics: metrics}))

	request(t, router, http.MethodGet, "/health", nil, nil)
	request(t, router, http.MethodGet, "/api/rwgps-user", nil, nil)

	rec := request(t, router, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`heatx_http_requests_total{method="GET",path="/health",status="200"} 1`,
		`heatx_http_requests_total{method="GET",path="/api/rwgps-user",status="503"} 1`,
		`heatx_http_request_duration_seconds_bucket`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}

	metrics.upstreamError("strava", http.StatusTooManyRequests)
	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "heatx_upstream_errors_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected upstream error counter to be gathered")
	}

	var nilMetrics *Metrics
	nilMetrics.upstreamError("strava", 500)
}

func TestMetricsRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	router := NewRouter()
	router.Use(metrics.Middleware())
	router.Handle(http.MethodGet, "/tracks/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	router.Handle(http.MethodGet, "/metrics", metrics.Handler())

	for _, id := range []string{"1", "2", "3"} {
		request(t, router, http.MethodGet, "/tracks/"+id, nil, nil)
	}
	request(t, router, http.MethodGet, "/nope", nil, nil)

	out := request(t, router, http.MethodGet, "/metrics", nil, nil).Body.String()
	if !strings.Contains(out, `heatx_http_requests_total{method="GET",path="/tracks/{id}",status="204"} 3`) {
		t.Errorf("expected requests grouped under the route pattern:\n%s", out)
	}
	for _, raw := range []string{`path="/tracks/1"`, `path="/nope"`} {
		if strings.Contains(out, raw) {
			t.Errorf("unexpected raw path label %s", raw)
		}
	}
}
