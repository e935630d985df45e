// Package server provides HTTP routing, middleware, OAuth handling and the JSON API proxy.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [ChiRouter] implementation uses a chi mux internally, with request ids and panic recovery installed on
// every router. [RequestLogger] and [Metrics.Middleware] are opt-in.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # API Proxy
//
// [ProxyHandler] serves token exchange, activity listing and track lookup for Strava and RideWithGPS, plus
// polyline encode/decode. Callers pass their token on each request, either as a bearer Authorization header or,
// for the RideWithGPS listing and track routes, a token query parameter.
//
// Failures are rendered as [ErrResponse] JSON. Upstream statuses are propagated to the caller.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
