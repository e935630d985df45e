// Package models defines domain entities and persistence interfaces for heatx.
//
// The package contains two categories of types:
//
// 1. Value types and DTOs shared by every layer
//   - [GeoPoint] : a latitude/longitude pair with optional elevation
//   - [Track] : an ordered sequence of [GeoPoint] in recording order
//   - [Activity] : a recorded activity from Strava or RideWithGPS with its raw track payload
//   - [Athlete] : the authenticated account on an upstream service
//   - [ExportManifest] : the summary written after exporting activity tracks
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [PersistedActivity] : cached activities keyed by source and source id
//   - [SyncJob] : one run of fetching a source into the cache
//
// All persistent entities implement the [Model] interface providing ID generation, timestamps, validation, and soft delete support.
// The [Repository] interface defines standard CRUD operations for database access.
package models
