package tasks

import (
	"fmt"

	"github.com/desertthunder/heatx/internal/heatmap"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase; zero when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchActivities Phase = iota
	ResolveTracks
	CacheActivities
	LoadPolylines
	DecodePolylines
	ReadGPX
	BinDensity
	ExportActivities
	Done
)

func (p Phase) String() string {
	switch p {
	case FetchActivities:
		return "fetch_activities"
	case ResolveTracks:
		return "resolve_tracks"
	case CacheActivities:
		return "cache_activities"
	case LoadPolylines:
		return "load_polylines"
	case DecodePolylines:
		return "decode_polylines"
	case ReadGPX:
		return "read_gpx"
	case BinDensity:
		return "bin_density"
	case ExportActivities:
		return "export_activities"
	case Done:
		return "done"
	default:
		return ""
	}
}

func fetchActivitiesUpdate(source string, fetched int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchActivities,
		Step:    fetched,
		Message: fmt.Sprintf("Fetching %s activities... (%d so far)", source, fetched),
	}
}

func resolveTrackUpdate(step, total int, trackID string, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ track %s", step, total, trackID)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ track %s: %v", step, total, trackID, err)
	}
	return ProgressUpdate{Phase: ResolveTracks, Step: step, Total: total, Message: msg}
}

func cacheActivitiesUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CacheActivities,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Caching activities... (%d/%d)", step, total),
	}
}

func loadPolylinesUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadPolylines,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded %d track payloads", count),
	}
}

func decodePolylinesUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DecodePolylines,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Decoding %d tracks...", total),
	}
}

func readGPXUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReadGPX,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Reading %d GPX files...", total),
	}
}

func binDensityUpdate(resolution int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BinDensity,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Binning points into H3 cells (resolution %d)...", resolution),
	}
}

func exportCompletedUpdate(step, total int, name string, points int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportActivities,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d points)", step, total, name, points),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportActivities,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func heatmapDoneUpdate(res *heatmap.Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Heatmap ready: %d segments from %d tracks", res.Stats.Segments, res.Stats.Tracks),
		Data:    res,
	}
}
