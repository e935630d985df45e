// Package repositories implements SQLite persistence for the activity cache.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// Repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [ActivityRepository] : Activity cache keyed by (source, source_id)
//   - [SyncJobRepository] : Sync history with status tracking
//   - [ActivityCacheAdapter] : Deduplicating cache used by the sync engine
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
