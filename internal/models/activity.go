package models

import (
	"fmt"
	"time"
)

const (
	SourceStrava      = "strava"
	SourceRideWithGPS = "ridewithgps"
)

// Activity is a recorded activity as returned by an upstream service.
//
// Polyline holds the raw track payload: an encoded polyline, or a JSON coordinate array when the
// upstream only provided raw points. It is empty when the track still has to be fetched via TrackID.
type Activity struct {
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Distance  float64   `json:"distance"` // meters
	StartDate time.Time `json:"start_date"`
	Polyline  string    `json:"polyline,omitempty"`
	TrackID   string    `json:"track_id,omitempty"`
}

// HasTrack reports whether the activity carries track data.
func (a Activity) HasTrack() bool {
	return a.Polyline != ""
}

// Athlete is the authenticated account on an upstream service.
type Athlete struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// PersistedActivity is a cached [Activity].
type PersistedActivity struct {
	base
	activity Activity
}

// NewPersistedActivity wraps an activity for persistence.
func NewPersistedActivity(sequence int, activity Activity) *PersistedActivity {
	return &PersistedActivity{base: newBase(sequence), activity: activity}
}

func (a *PersistedActivity) Activity() Activity { return a.activity }
func (a *PersistedActivity) Source() string { return a.activity.Source }
func (a *PersistedActivity) SourceID() string { return a.activity.SourceID }
func (a *PersistedActivity) Name() string { return a.activity.Name }
func (a *PersistedActivity) Type() string { return a.activity.Type }
func (a *PersistedActivity) Distance() float64 { return a.activity.Distance }
func (a *PersistedActivity) StartDate() time.Time { return a.activity.StartDate }
func (a *PersistedActivity) Polyline() string { return a.activity.Polyline }

// SetActivity replaces the cached payload, keeping identity and timestamps.
func (a *PersistedActivity) SetActivity(activity Activity) {
	a.activity = activity
}

// Validate checks required fields.
func (a *PersistedActivity) Validate() error {
	if a.activity.Source != SourceStrava && a.activity.Source != SourceRideWithGPS {
		return fmt.Errorf("unknown source %q", a.activity.Source)
	}
	if a.activity.SourceID == "" {
		return fmt.Errorf("source id is required")
	}
	return nil
}

// SyncStatus is the lifecycle state of a [SyncJob].
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncJob records one run of fetching a source into the cache.
type SyncJob struct {
	base
	source       string
	status       SyncStatus
	fetched      int
	withTrack    int
	errorMessage string
	startedAt    *time.Time
	completedAt  *time.Time
}

// NewSyncJob creates a pending job for the given source.
func NewSyncJob(sequence int, source string) *SyncJob {
	return &SyncJob{base: newBase(sequence), source: source, status: SyncPending}
}

func (j *SyncJob) Source() string { return j.source }
func (j *SyncJob) Status() SyncStatus { return j.status }
func (j *SyncJob) Fetched() int { return j.fetched }
func (j *SyncJob) WithTrack() int { return j.withTrack }
func (j *SyncJob) ErrorMessage() string { return j.errorMessage }
func (j *SyncJob) StartedAt() *time.Time { return j.startedAt }
func (j *SyncJob) CompletedAt() *time.Time { return j.completedAt }

// SetStatus sets status directly; used when rehydrating from storage.
func (j *SyncJob) SetStatus(status SyncStatus) { j.status = status }

// SetCounts sets fetched and with-track counts.
func (j *SyncJob) SetCounts(fetched, withTrack int) {
	j.fetched = fetched
	j.withTrack = withTrack
}

// SetErrorMessage sets the failure message.
func (j *SyncJob) SetErrorMessage(msg string) { j.errorMessage = msg }

// SetTimes sets start and completion times.
func (j *SyncJob) SetTimes(started, completed *time.Time) {
	j.startedAt = started
	j.completedAt = completed
}

// Start marks the job running.
func (j *SyncJob) Start() {
	now := time.Now()
	j.status = SyncRunning
	j.startedAt = &now
}

// Complete marks the job completed with its counts.
func (j *SyncJob) Complete(fetched, withTrack int) {
	now := time.Now()
	j.status = SyncCompleted
	j.fetched = fetched
	j.withTrack = withTrack
	j.completedAt = &now
}

// Fail marks the job failed.
func (j *SyncJob) Fail(err error) {
	now := time.Now()
	j.status = SyncFailed
	if err != nil {
		j.errorMessage = err.Error()
	}
	j.completedAt = &now
}

// Validate checks required fields and status.
func (j *SyncJob) Validate() error {
	if j.source != SourceStrava && j.source != SourceRideWithGPS {
		return fmt.Errorf("unknown source %q", j.source)
	}
	switch j.status {
	case SyncPending, SyncRunning, SyncCompleted, SyncFailed:
	default:
		return fmt.Errorf("invalid status %q", j.status)
	}
	if j.fetched < 0 || j.withTrack < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	return nil
}
