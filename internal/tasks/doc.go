// Package tasks turns upstream activity feeds into heatmaps with real-time progress reporting.
//
// # Core Operations
//
// [HeatmapEngine] implements three operations:
//
//  1. [HeatmapEngine.Sync] : Fetch a source into the cache
//     - Pages through every activity of a [services.Source]
//     - Resolves RideWithGPS tracks that a listing only referenced by id
//     - Caches activities through the optional [ActivityCacher]
//
//  2. [HeatmapEngine.Build] : Assemble a heatmap
//     - Reads cached track payloads, extra payloads and GPX files
//     - Decodes them in parallel and counts shared road segments
//     - Optionally bins points into H3 cells
//
//  3. [HeatmapEngine.ExportTracks] : Write one file per activity
//     - GeoJSON, GPX or JSON, followed by an export manifest
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Rate Limiting
//
// Track resolution and export-time track fetches are throttled by a token bucket (golang.org/x/time/rate)
// sized by [EngineOpts.RateLimit].
package tasks
