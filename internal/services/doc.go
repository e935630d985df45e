// Package services talks to the upstream activity services and to the heatx proxy.
//
// # Sources
//
// [StravaService] and [RideWithGPSService] implement [Source]: OAuth2 code flow through
// [golang.org/x/oauth2], then paginated listing of every activity.
//
//   - Strava pages with page/per_page (200) until a page comes back empty.
//   - RideWithGPS pages with offset/limit (100) until a page is empty or short.
//
// Requests are paced by a [rate.Limiter] per service.
//
// # Sessions
//
// Services hold no tokens. Each call takes a [*Session], created with [NewSession] for a fixed
// access token or [NewRefreshingSession] to refresh through the service's oauth2 config.
//
// # Track data
//
// Strava activities carry map.polyline (preferred) or map.summary_polyline. RideWithGPS trips carry
// track_encoded, or raw track_points which are stored as a JSON [lat, lng] array, or only a
// track_id; [RideWithGPSService.ResolveTrack] fetches the latter, trying three endpoints in order.
//
// # Errors
//
// Non-2xx responses are returned as [*APIError]. It unwraps to:
//   - [shared.ErrAPIRequest] : always
//   - [shared.ErrTokenExpired] : 401
//   - [shared.ErrRateLimited] : 429
//   - [shared.ErrActivityNotFound] : 404
//
// # Proxy client
//
// [ProxyClient] issues raw GET/POST requests against `heatx serve` for the `api` command.
package services
