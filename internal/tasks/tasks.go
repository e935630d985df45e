package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/heatx/internal/heatmap"
	"github.com/desertthunder/heatx/internal/models"
	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/desertthunder/heatx/internal/tracks"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 4
	maxWorkers       = 16
	defaultRateLimit = 2.0
)

// ActivityCacher persists fetched activities. Implemented by repositories.ActivityCacheAdapter.
type ActivityCacher interface {
	// CacheActivity stores activity and reports whether it was new.
	CacheActivity(activity models.Activity) (bool, error)

	// CachedPolylines returns the stored track payloads for source; "" means every source.
	CachedPolylines(source string) ([]string, error)
}

// SyncRecorder keeps a history of sync runs. Implemented by repositories.SyncJobRepository.
type SyncRecorder interface {
	Create(job *models.SyncJob) error
	Update(job *models.SyncJob) error
}

// TrackFailure is an activity whose deferred track could not be fetched.
type TrackFailure struct {
	SourceID string
	TrackID  string
	Error    error
}

// SyncResult contains everything fetched by [HeatmapEngine.Sync].
type SyncResult struct {
	Source     string
	Activities []models.Activity
	WithTrack  int            // Activities carrying track data after resolution
	Resolved   int            // Deferred tracks fetched successfully
	Failures   []TrackFailure // Deferred tracks that could not be fetched
	Cached     int            // Activities newly added to the cache
	CacheErrs  int            // Activities that failed to cache
	JobID      string         // Sync history record, when a recorder is configured
}

// Polylines returns the non-empty track payloads of the synced activities.
func (r *SyncResult) Polylines() []string {
	out := make([]string, 0, r.WithTrack)
	for _, a := range r.Activities {
		if a.HasTrack() {
			out = append(out, a.Polyline)
		}
	}
	return out
}

// BuildOpts configures [HeatmapEngine.Build].
type BuildOpts struct {
	Sources    []string // Cached sources to read; empty reads every source
	SkipCache  bool     // Ignore the cache and use only Polylines and GPXFiles
	Polylines  []string // Extra track payloads, e.g. from a [SyncResult]
	GPXFiles   [][]byte // Raw GPX documents
	Density    bool     // Also bin points into H3 cells
	Resolution int      // H3 resolution for density mode
}

// BuildResult is a finished heatmap.
type BuildResult struct {
	Heatmap   *heatmap.Result
	Cells     []heatmap.Cell // Set in density mode
	Polylines int            // Track payloads considered
	GPXFiles  int            // GPX files considered
}

// EngineOpts configures a [HeatmapEngine]. Zero values fall back to defaults.
type EngineOpts struct {
	Cache     ActivityCacher
	Recorder  SyncRecorder
	Logger    *log.Logger
	Precision *int    // Polyline precision; nil means the default of 5
	Workers   int     // Concurrent workers for decoding and track resolution
	RateLimit float64 // Upstream requests per second during track resolution
}

// HeatmapEngine syncs activities from upstream sources and turns them into heatmaps.
type HeatmapEngine struct {
	cache     ActivityCacher
	recorder  SyncRecorder
	logger    *log.Logger
	codec     *polyline.Codec
	workers   int
	rateLimit float64
}

// NewHeatmapEngine creates an engine from opts.
func NewHeatmapEngine(opts EngineOpts) (*HeatmapEngine, error) {
	codec := polyline.Default()
	if opts.Precision != nil {
		c, err := polyline.NewCodec(*opts.Precision)
		if err != nil {
			return nil, err
		}
		codec = c
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	workers = min(workers, maxWorkers)

	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &HeatmapEngine{
		cache:     opts.Cache,
		recorder:  opts.Recorder,
		logger:    logger,
		codec:     codec,
		workers:   workers,
		rateLimit: rateLimit,
	}, nil
}

// Codec returns the polyline codec used for decoding.
func (e *HeatmapEngine) Codec() *polyline.Codec {
	return e.codec
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Sync fetches every activity from src, resolves deferred tracks and caches the result.
//
// Track resolution failures are reported in the result, not returned as errors.
func (e *HeatmapEngine) Sync(ctx context.Context, progress chan<- ProgressUpdate, src services.Source, sess *services.Session) (*SyncResult, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source not initialized", shared.ErrMissingArgument)
	}

	job := e.startJob(src.Name())
	logger := e.logger.With("source", src.Name())

	activities, err := src.Activities(ctx, sess, func(n int) {
		sendProgress(progress, fetchActivitiesUpdate(src.Name(), n))
	})
	if err != nil {
		e.failJob(job, err)
		return nil, fmt.Errorf("failed to fetch %s activities: %w", src.Name(), err)
	}
	logger.Info("fetched activities", "count", len(activities))

	result := &SyncResult{Source: src.Name(), Activities: activities}

	if resolver, ok := src.(services.TrackResolver); ok {
		if err := e.resolveTracks(ctx, progress, resolver, sess, result); err != nil {
			e.failJob(job, err)
			return result, err
		}
	}

	for _, a := range result.Activities {
		if a.HasTrack() {
			result.WithTrack++
		}
	}

	if e.cache != nil {
		for i, a := range result.Activities {
			created, err := e.cache.CacheActivity(a)
			if err != nil {
				result.CacheErrs++
				logger.Warn("failed to cache activity", "id", a.SourceID, "error", err)
			} else if created {
				result.Cached++
			}
			sendProgress(progress, cacheActivitiesUpdate(i+1, len(result.Activities)))
		}
	}

	if job != nil {
		job.Complete(len(result.Activities), result.WithTrack)
		if err := e.recorder.Update(job); err != nil {
			logger.Warn("failed to record sync", "error", err)
		}
		result.JobID = job.ID()
	}

	logger.Info("sync complete", "activities", len(result.Activities), "with_track", result.WithTrack,
		"resolved", result.Resolved, "failed", len(result.Failures), "cached", result.Cached)
	return result, nil
}

func (e *HeatmapEngine) startJob(source string) *models.SyncJob {
	if e.recorder == nil {
		return nil
	}
	job := models.NewSyncJob(0, source)
	job.Start()
	if err := e.recorder.Create(job); err != nil {
		e.logger.Warn("failed to record sync", "source", source, "error", err)
		return nil
	}
	return job
}

func (e *HeatmapEngine) failJob(job *models.SyncJob, err error) {
	if job == nil {
		return
	}
	job.Fail(err)
	if uerr := e.recorder.Update(job); uerr != nil {
		e.logger.Warn("failed to record sync failure", "error", uerr)
	}
}

type resolveResult struct {
	index int
	err   error
}

// resolveTracks fetches deferred tracks with a rate-limited worker pool. Each worker writes only
// to its own activity, so result.Activities is updated in place.
func (e *HeatmapEngine) resolveTracks(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	resolver services.TrackResolver,
	sess *services.Session,
	result *SyncResult,
) error {
	var pending []int
	for i, a := range result.Activities {
		if !a.HasTrack() && a.TrackID != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(e.rateLimit), 1)
	jobs := make(chan int, len(pending))
	results := make(chan resolveResult, len(pending))

	var wg sync.WaitGroup
	for range min(e.workers, len(pending)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				err := resolver.ResolveTrack(ctx, sess, &result.Activities[idx])
				results <- resolveResult{index: idx, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, idx := range pending {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- idx
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		a := result.Activities[res.index]
		if res.err != nil {
			result.Failures = append(result.Failures, TrackFailure{SourceID: a.SourceID, TrackID: a.TrackID, Error: res.err})
			e.logger.Debug("track unavailable", "id", a.SourceID, "track", a.TrackID, "error", res.err)
		} else {
			result.Resolved++
		}
		sendProgress(progress, resolveTrackUpdate(completed, len(pending), a.TrackID, res.err))
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("track resolution interrupted: %w", err)
	}
	return nil
}

// Build assembles a heatmap from cached tracks, extra payloads and GPX files.
func (e *HeatmapEngine) Build(ctx context.Context, progress chan<- ProgressUpdate, opts BuildOpts) (*BuildResult, error) {
	polylines, err := e.loadPolylines(opts)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, loadPolylinesUpdate(len(polylines)))

	if len(polylines) == 0 && len(opts.GPXFiles) == 0 {
		return nil, fmt.Errorf("%w: nothing to build a heatmap from", shared.ErrNoTrackData)
	}

	b := heatmap.NewBuilder()

	sendProgress(progress, decodePolylinesUpdate(len(polylines)))
	errs, err := b.AddPolylines(ctx, e.codec, polylines, e.workers)
	if err != nil {
		return nil, fmt.Errorf("heatmap build interrupted: %w", err)
	}

	if len(opts.GPXFiles) > 0 {
		sendProgress(progress, readGPXUpdate(len(opts.GPXFiles)))
		errs = append(errs, b.AddGPX(opts.GPXFiles)...)
	}

	for _, err := range errs {
		e.logger.Debug("skipped track", "error", err)
	}

	result := &BuildResult{
		Heatmap:   b.Result(len(errs), errs),
		Polylines: len(polylines),
		GPXFiles:  len(opts.GPXFiles),
	}

	if opts.Density {
		sendProgress(progress, binDensityUpdate(opts.Resolution))
		cells, err := heatmap.Density(e.collectTracks(polylines, opts.GPXFiles), opts.Resolution)
		if err != nil {
			return nil, err
		}
		result.Cells = cells
	}

	sendProgress(progress, heatmapDoneUpdate(result.Heatmap))
	e.logger.Info("heatmap built", "segments", result.Heatmap.Stats.Segments, "tracks", result.Heatmap.Stats.Tracks,
		"skipped", result.Heatmap.Skipped)
	return result, nil
}

func (e *HeatmapEngine) loadPolylines(opts BuildOpts) ([]string, error) {
	polylines := append([]string(nil), opts.Polylines...)
	if opts.SkipCache {
		return polylines, nil
	}
	if e.cache == nil {
		if len(opts.Sources) > 0 {
			return nil, fmt.Errorf("%w: no activity cache configured", shared.ErrMissingConfig)
		}
		return polylines, nil
	}

	sources := opts.Sources
	if len(sources) == 0 {
		sources = []string{""}
	}
	for _, src := range sources {
		cached, err := e.cache.CachedPolylines(src)
		if err != nil {
			return nil, fmt.Errorf("failed to load cached tracks: %w", err)
		}
		polylines = append(polylines, cached...)
	}
	return polylines, nil
}

func (e *HeatmapEngine) collectTracks(polylines []string, gpxFiles [][]byte) []models.Track {
	var out []models.Track
	for _, raw := range polylines {
		if t, err := tracks.ParseWith(e.codec, raw); err == nil && len(t) > 0 {
			out = append(out, t)
		}
	}
	for _, data := range gpxFiles {
		if segs, err := tracks.FromGPX(data); err == nil {
			out = append(out, segs...)
		}
	}
	return out
}
