package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/heatx/internal/models"
)

// ActivityCacheAdapter implements tasks.ActivityCacher using ActivityRepository.
//
// Activities are deduplicated on (source, source_id). A cached activity is only rewritten when its
// payload changed, e.g. a RideWithGPS track that has since been resolved.
type ActivityCacheAdapter struct {
	repo *ActivityRepository
}

// NewActivityCacheAdapter creates a new ActivityCacheAdapter with the given repository
func NewActivityCacheAdapter(repo *ActivityRepository) *ActivityCacheAdapter {
	return &ActivityCacheAdapter{repo: repo}
}

// CacheActivity stores activity and reports whether a new record was created.
func (a *ActivityCacheAdapter) CacheActivity(activity models.Activity) (bool, error) {
	existing, err := a.repo.GetBySourceID(activity.Source, activity.SourceID)
	switch {
	case err == nil:
		if !changed(existing.Activity(), activity) {
			return false, nil
		}
		if activity.Polyline == "" {
			activity.Polyline = existing.Polyline()
		}
		existing.SetActivity(activity)
		if err := a.repo.Update(existing); err != nil {
			return false, fmt.Errorf("failed to refresh cached activity: %w", err)
		}
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, fmt.Errorf("failed to look up cached activity: %w", err)
	}

	if err := a.repo.Create(models.NewPersistedActivity(0, activity)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return false, nil
		}
		return false, fmt.Errorf("failed to cache activity: %w", err)
	}
	return true, nil
}

// CachedPolylines returns every cached track payload for source. An empty source means all sources.
func (a *ActivityCacheAdapter) CachedPolylines(source string) ([]string, error) {
	return a.repo.Polylines(source)
}

// changed reports whether incoming would alter the cached payload. An empty incoming polyline never
// erases a cached track.
func changed(cached, incoming models.Activity) bool {
	if incoming.Polyline != "" && incoming.Polyline != cached.Polyline {
		return true
	}
	return cached.Name != incoming.Name ||
		cached.Type != incoming.Type ||
		cached.Distance != incoming.Distance ||
		cached.TrackID != incoming.TrackID ||
		!cached.StartDate.Equal(incoming.StartDate)
}
