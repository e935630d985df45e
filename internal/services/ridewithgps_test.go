package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
	tu "github.com/desertthunder/heatx/internal/testing"
	"golang.org/x/oauth2"
)

var rwgpsCredentials = map[string]string{
	"client_id":     "rw-id",
	"client_secret": "rw-secret",
	"redirect_uri":  "http://localhost:3000/callback",
}

func newTestRWGPS(t *testing.T, mux *http.ServeMux, limit int) (*RideWithGPSService, *tu.Upstream) {
	t.Helper()
	upstream := tu.NewUpstream(t, mux)
	srv, err := NewRideWithGPSService(rwgpsCredentials, Options{BaseURL: upstream.URL, PageSize: limit})
	if err != nil {
		t.Fatalf("NewRideWithGPSService() error = %v", err)
	}
	return srv, upstream
}

func rwgpsSession() *Session {
	return NewSession(&oauth2.Token{AccessToken: "rw-token"})
}

func TestRideWithGPSService(t *testing.T) {
	t.Run("AuthURL Has No Scope", func(t *testing.T) {
		srv, err := NewRideWithGPSService(rwgpsCredentials, Options{})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		u, err := url.Parse(srv.AuthURL("xyz"))
		if err != nil {
			t.Fatalf("invalid auth URL: %v", err)
		}
		if u.Host != "ridewithgps.com" || u.Path != "/oauth/authorize" {
			t.Errorf("unexpected auth endpoint %s", u)
		}
		if u.Query().Has("scope") {
			t.Errorf("auth URL should not carry a scope: %s", u)
		}
		if u.Query().Get("redirect_uri") != "http://localhost:3000/callback" {
			t.Errorf("redirect_uri = %q", u.Query().Get("redirect_uri"))
		}
	})

	t.Run("Exchange Uses Form Body", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("Content-Type = %q", ct)
			}
			r.ParseForm()
			if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("client_id") != "rw-id" {
				t.Errorf("unexpected form %v", r.Form)
			}
			if r.Form.Get("redirect_uri") != "http://app.test/rwgps-callback" {
				t.Errorf("redirect_uri = %q", r.Form.Get("redirect_uri"))
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"rw-a","token_type":"Bearer"}`))
		})
		srv, _ := newTestRWGPS(t, mux, 0)

		tok, err := srv.Exchange(context.Background(), "c0de", oauth2.SetAuthURLParam("redirect_uri", "http://app.test/rwgps-callback"))
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if tok.AccessToken != "rw-a" {
			t.Errorf("AccessToken = %q", tok.AccessToken)
		}
	})

	t.Run("Activities Stops On Short Page", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /users/current/trips.json", func(w http.ResponseWriter, r *http.Request) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

			const total = 5
			page := RWGPSTripsPage{Results: []RWGPSTrip{}, ResultsCount: total}
			for i := offset; i < total && i < offset+limit; i++ {
				page.Results = append(page.Results, RWGPSTrip{
					ID:           FlexibleID(strconv.Itoa(100 + i)),
					Name:         fmt.Sprintf("Trip %d", i),
					ActivityType: "cycling",
					TrackEncoded: tu.SinglePointPolyline,
				})
			}
			json.NewEncoder(w).Encode(page)
		})
		srv, upstream := newTestRWGPS(t, mux, 2)

		var calls int
		activities, err := srv.Activities(context.Background(), rwgpsSession(), func(int) { calls++ })
		if err != nil {
			t.Fatalf("Activities() error = %v", err)
		}
		if len(activities) != 5 {
			t.Fatalf("expected 5 trips, got %d", len(activities))
		}
		// offsets 0, 2 and 4; the third page holds a single trip
		if got := upstream.Count("/users/current/trips.json"); got != 3 {
			t.Errorf("expected 3 page requests, got %d", got)
		}
		if calls != 3 {
			t.Errorf("expected 3 progress calls, got %d", calls)
		}
		if activities[4].SourceID != "104" || activities[4].Source != models.SourceRideWithGPS {
			t.Errorf("unexpected identity %+v", activities[4])
		}
	})

	t.Run("Activities Stops On Empty Page", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /users/current/trips.json", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("offset") == "0" {
				w.Write([]byte(`{"results":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`))
				return
			}
			w.Write([]byte(`{"results":[]}`))
		})
		srv, upstream := newTestRWGPS(t, mux, 2)

		activities, err := srv.Activities(context.Background(), rwgpsSession(), nil)
		if err != nil {
			t.Fatalf("Activities() error = %v", err)
		}
		if len(activities) != 2 || upstream.Count("/users/current/trips.json") != 2 {
			t.Errorf("got %d trips in %d requests", len(activities), upstream.Count("/users/current/trips.json"))
		}
	})

	t.Run("Trip", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /trips/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "42.json" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"trip":{"id":42,"name":"Coast","distance":80467.2,"departed_at":"2023-06-01T08:00:00-07:00","track_points":[{"x":-122.4,"y":37.8,"e":10},{"x":-122.5,"y":37.7}]}}`))
		})
		srv, _ := newTestRWGPS(t, mux, 0)

		trip, err := srv.Trip(context.Background(), rwgpsSession(), "42")
		if err != nil {
			t.Fatalf("Trip() error = %v", err)
		}
		a := trip.Activity()
		if a.Polyline != "[[37.8,-122.4],[37.7,-122.5]]" {
			t.Errorf("Polyline = %q", a.Polyline)
		}
		if a.StartDate.IsZero() {
			t.Error("expected departed_at to be parsed")
		}
	})

	t.Run("User", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /users/current.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"user":{"id":9,"name":"Grace","email":"g@example.com"}}`))
		})
		srv, _ := newTestRWGPS(t, mux, 0)

		user, err := srv.User(context.Background(), rwgpsSession())
		if err != nil {
			t.Fatalf("User() error = %v", err)
		}
		if athlete := user.Athlete(); athlete.SourceID != "9" || athlete.Email != "g@example.com" {
			t.Errorf("unexpected athlete %+v", athlete)
		}
	})

	t.Run("TrackData Falls Back Through Endpoints", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /tracks/{file}", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		mux.HandleFunc("GET /api/v1/tracks/{file}", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusGone)
		})
		mux.HandleFunc("GET /trips/{id}/track.json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"track_encoded":%q}`, tu.ExamplePolyline)
		})
		srv, upstream := newTestRWGPS(t, mux, 0)

		data, err := srv.TrackData(context.Background(), rwgpsSession(), "abc123")
		if err != nil {
			t.Fatalf("TrackData() error = %v", err)
		}
		if data.TrackEncoded != tu.ExamplePolyline {
			t.Errorf("TrackEncoded = %q", data.TrackEncoded)
		}
		if len(upstream.Requests()) != 3 {
			t.Errorf("expected 3 requests, got %d", len(upstream.Requests()))
		}
	})

	t.Run("TrackData Returns Last Failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/trips/abc/track.json" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			http.NotFound(w, r)
		})
		srv, _ := newTestRWGPS(t, mux, 0)

		_, err := srv.TrackData(context.Background(), rwgpsSession(), "abc")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
		if StatusCode(err) != http.StatusForbidden {
			t.Errorf("expected last status 403, got %d", StatusCode(err))
		}
	})

	t.Run("ResolveTrack", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /tracks/{file}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"track_points":[{"x":2,"y":1},{"x":4,"y":3}]}`))
		})
		srv, upstream := newTestRWGPS(t, mux, 0)

		deferred := models.Activity{Source: models.SourceRideWithGPS, SourceID: "1", TrackID: "t1"}
		if err := srv.ResolveTrack(context.Background(), rwgpsSession(), &deferred); err != nil {
			t.Fatalf("ResolveTrack() error = %v", err)
		}
		if deferred.Polyline != "[[1,2],[3,4]]" {
			t.Errorf("Polyline = %q", deferred.Polyline)
		}

		ready := models.Activity{Polyline: tu.SinglePointPolyline, TrackID: "t2"}
		if err := srv.ResolveTrack(context.Background(), rwgpsSession(), &ready); err != nil {
			t.Fatalf("ResolveTrack() error = %v", err)
		}
		if upstream.Count("/tracks/t2.json") != 0 {
			t.Error("activities with track data should not be fetched")
		}
	})

	t.Run("ResolveTrack Empty Payload", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /tracks/{file}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
		srv, _ := newTestRWGPS(t, mux, 0)

		a := models.Activity{TrackID: "t1"}
		if err := srv.ResolveTrack(context.Background(), rwgpsSession(), &a); !errors.Is(err, shared.ErrNoTrackData) {
			t.Errorf("expected ErrNoTrackData, got %v", err)
		}
	})
}

func TestRWGPSTripActivity(t *testing.T) {
	ele := 12.5
	tc := []struct {
		name         string
		trip         RWGPSTrip
		wantPolyline string
		wantTrackID  string
	}{
		{
			name:         "encoded track wins",
			trip:         RWGPSTrip{TrackEncoded: "abc", TrackPoints: []RWGPSTrackPoint{{X: 1, Y: 2}}, TrackID: "t", IsGPS: true},
			wantPolyline: "abc",
		},
		{
			name:         "track points as coordinate array",
			trip:         RWGPSTrip{TrackPoints: []RWGPSTrackPoint{{X: 1, Y: 2, E: &ele}}},
			wantPolyline: "[[2,1]]",
		},
		{
			name:        "deferred gps track",
			trip:        RWGPSTrip{TrackID: "t9", IsGPS: true},
			wantTrackID: "t9",
		},
		{
			name: "planned route without gps",
			trip: RWGPSTrip{TrackID: "t9", IsGPS: false},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.trip.Activity()
			if a.Polyline != tt.wantPolyline {
				t.Errorf("Polyline = %q, want %q", a.Polyline, tt.wantPolyline)
			}
			if a.TrackID != tt.wantTrackID {
				t.Errorf("TrackID = %q, want %q", a.TrackID, tt.wantTrackID)
			}
		})
	}
}

func TestFlexibleID(t *testing.T) {
	tc := []struct {
		in   string
		want FlexibleID
	}{
		{in: `123`, want: "123"},
		{in: `"5f1e"`, want: "5f1e"},
		{in: `null`, want: ""},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			var id FlexibleID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if id != tt.want {
				t.Errorf("got %q, want %q", id, tt.want)
			}
		})
	}

	var id FlexibleID
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Error("expected error for object id")
	}
}
