package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
)

const activityColumns = `id, sequence, source, source_id, name, type, distance, start_date, polyline, track_id, created_at, updated_at, deleted_at`

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}

// ActivityRepository implements models.Repository[*models.PersistedActivity] for the activity cache.
//
// Activities are unique per (source, source_id); soft-deleted rows still hold that key.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new ActivityRepository with the given database connection
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a new [models.PersistedActivity] with generated ID and sequence
func (r *ActivityRepository) Create(activity *models.PersistedActivity) error {
	if err := activity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "activities")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO activities (id, sequence, source, source_id, name, type, distance, start_date, polyline, track_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		activity.Source(),
		activity.SourceID(),
		activity.Name(),
		activity.Type(),
		activity.Distance(),
		nullTime(activity.StartDate()),
		activity.Polyline(),
		activity.Activity().TrackID,
		activity.CreatedAt(),
		activity.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	activity.SetID(id)
	activity.SetSequence(sequence)
	return nil
}

// Get retrieves an activity by ID, excluding soft-deleted activities
func (r *ActivityRepository) Get(id string) (*models.PersistedActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetBySourceID retrieves an activity by its upstream identity
func (r *ActivityRepository) GetBySourceID(source, sourceID string) (*models.PersistedActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE source = ? AND source_id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, source, sourceID))
}

// Update writes the activity payload of an existing record
func (r *ActivityRepository) Update(activity *models.PersistedActivity) error {
	if err := activity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()

	query := `
		UPDATE activities
		SET name = ?, type = ?, distance = ?, start_date = ?, polyline = ?, track_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		activity.Name(),
		activity.Type(),
		activity.Distance(),
		nullTime(activity.StartDate()),
		activity.Polyline(),
		activity.Activity().TrackID,
		now,
		activity.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	if err := expectRow(result, "activity", activity.ID()); err != nil {
		return err
	}

	activity.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes an activity by ID
func (r *ActivityRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE activities SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return expectRow(result, "activity", id)
}

// List retrieves activities matching the given criteria, excluding soft-deleted rows.
//
// Supported criteria: "source" (string), "type" (string), "has_track" (bool) and "limit" (int).
// Results are ordered by start date, newest first.
func (r *ActivityRepository) List(criteria map[string]any) ([]*models.PersistedActivity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE deleted_at IS NULL`
	args := []any{}

	if source, ok := criteria["source"].(string); ok && source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	if typ, ok := criteria["type"].(string); ok && typ != "" {
		query += " AND type = ?"
		args = append(args, typ)
	}

	if hasTrack, ok := criteria["has_track"].(bool); ok {
		if hasTrack {
			query += " AND polyline != ''"
		} else {
			query += " AND polyline = ''"
		}
	}

	query += " ORDER BY start_date DESC, sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []*models.PersistedActivity
	for rows.Next() {
		activity, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return activities, nil
}

// Polylines returns every non-empty track payload for source, oldest first. An empty source means all sources.
func (r *ActivityRepository) Polylines(source string) ([]string, error) {
	query := `SELECT polyline FROM activities WHERE deleted_at IS NULL AND polyline != ''`
	args := []any{}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query polylines: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan polyline: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Count returns the number of cached activities for source. An empty source means all sources.
func (r *ActivityRepository) Count(source string) (int, error) {
	query := `SELECT COUNT(*) FROM activities WHERE deleted_at IS NULL`
	args := []any{}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}

func (r *ActivityRepository) scanOne(row *sql.Row) (*models.PersistedActivity, error) {
	activity, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, shared.ErrActivityNotFound)
	}
	return activity, err
}

// scan reads one row selected with activityColumns into a [models.PersistedActivity]
func (r *ActivityRepository) scan(row rowScanner) (*models.PersistedActivity, error) {
	var (
		id        string
		sequence  int
		dto       models.Activity
		startDate sql.NullTime
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &dto.Source, &dto.SourceID, &dto.Name, &dto.Type, &dto.Distance,
		&startDate, &dto.Polyline, &dto.TrackID, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	if startDate.Valid {
		dto.StartDate = startDate.Time
	}

	activity := models.NewPersistedActivity(sequence, dto)
	activity.SetID(id)
	activity.SetCreatedAt(createdAt)
	activity.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		activity.SetDeletedAt(&deletedAt.Time)
	}

	return activity, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found or already deleted: %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
