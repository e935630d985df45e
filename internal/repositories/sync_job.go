package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/shared"
)

const syncJobColumns = `
	id, sequence, source, status, fetched, with_track, error_message,
	started_at, completed_at, created_at, updated_at, deleted_at
`

// SyncJobRepository implements models.Repository[*models.SyncJob] for sync history.
type SyncJobRepository struct {
	db *sql.DB
}

// NewSyncJobRepository creates a new SyncJobRepository with the given database connection
func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new sync job with generated ID and sequence
func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO sync_jobs (
			id, sequence, source, status, fetched, with_track, error_message,
			started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		job.Source(),
		string(job.Status()),
		job.Fetched(),
		job.WithTrack(),
		nullString(job.ErrorMessage()),
		job.StartedAt(),
		job.CompletedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync job: %w", err)
	}

	job.SetID(id)
	job.SetSequence(sequence)
	return nil
}

// Get retrieves a sync job by ID, excluding soft-deleted jobs
func (r *SyncJobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ? AND deleted_at IS NULL`
	job, err := r.scan(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// Latest returns the most recent sync job for source
func (r *SyncJobRepository) Latest(source string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE source = ? AND deleted_at IS NULL ORDER BY sequence DESC LIMIT 1`
	job, err := r.scan(r.db.QueryRow(query, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no sync for %s: %w", source, ErrNotFound)
	}
	return job, err
}

// Update writes status, counts and timestamps of an existing job
func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()

	query := `
		UPDATE sync_jobs
		SET status = ?, fetched = ?, with_track = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(job.Status()),
		job.Fetched(),
		job.WithTrack(),
		nullString(job.ErrorMessage()),
		job.StartedAt(),
		job.CompletedAt(),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if err := expectRow(result, "sync job", job.ID()); err != nil {
		return err
	}

	job.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes a sync job by ID
func (r *SyncJobRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE sync_jobs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}
	return expectRow(result, "sync job", id)
}

// List retrieves sync jobs matching "source" and "status" criteria, newest first
func (r *SyncJobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE deleted_at IS NULL`
	args := []any{}

	if source, ok := criteria["source"].(string); ok && source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	switch status := criteria["status"].(type) {
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	case models.SyncStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// scan reads one row selected with syncJobColumns into a [models.SyncJob]
func (r *SyncJobRepository) scan(row rowScanner) (*models.SyncJob, error) {
	var (
		id           string
		sequence     int
		source       string
		status       string
		fetched      int
		withTrack    int
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &source, &status, &fetched, &withTrack, &errorMessage,
		&startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}

	job := models.NewSyncJob(sequence, source)
	job.SetID(id)
	job.SetStatus(models.SyncStatus(status))
	job.SetCounts(fetched, withTrack)
	if errorMessage.Valid {
		job.SetErrorMessage(errorMessage.String)
	}

	var started, completed *time.Time
	if startedAt.Valid {
		started = &startedAt.Time
	}
	if completedAt.Valid {
		completed = &completedAt.Time
	}
	job.SetTimes(started, completed)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}

	return job, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
