package heatmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/tracks"
)

// DefaultWorkers is used when a caller asks for zero or fewer workers.
const DefaultWorkers = 4

// Result is a finished heatmap.
type Result struct {
	Segments []Segment `json:"segments"`
	Stats    Stats     `json:"stats"`
	Skipped  int       `json:"skipped"`
	Errors   []string  `json:"errors,omitempty"`
}

// Result snapshots the builder. skipped and errs describe inputs that never reached it.
func (b *Builder) Result(skipped int, errs []error) *Result {
	r := &Result{Segments: b.Segments(), Stats: b.Stats(), Skipped: skipped}
	for _, err := range errs {
		r.Errors = append(r.Errors, err.Error())
	}
	return r
}

// FromPolylines builds a heatmap from raw track payloads at the default precision.
// Malformed entries are skipped and counted.
func FromPolylines(ctx context.Context, polylines []string, workers int) (*Result, error) {
	b := NewBuilder()
	errs, err := b.AddPolylines(ctx, polyline.Default(), polylines, workers)
	if err != nil {
		return nil, err
	}
	return b.Result(len(errs), errs), nil
}

type decodeJob struct {
	index int
	raw   string
}

// AddPolylines decodes payloads in parallel with c and adds them to b.
//
// Each payload may be an encoded polyline or a JSON coordinate array. The returned slice holds one
// error per skipped entry. The error result is non-nil only when ctx ends first.
func (b *Builder) AddPolylines(ctx context.Context, c *polyline.Codec, polylines []string, workers int) ([]error, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	workers = min(workers, max(len(polylines), 1))

	jobs := make(chan decodeJob)
	failures := make(chan error, len(polylines))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				track, err := tracks.ParseWith(c, job.raw)
				if err != nil {
					failures <- fmt.Errorf("entry %d: %w", job.index, err)
					continue
				}
				if len(track) > 0 {
					b.Add(track)
				}
			}
		}()
	}

	var ctxErr error
feed:
	for i, raw := range polylines {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case jobs <- decodeJob{index: i, raw: raw}:
		}
	}
	close(jobs)
	wg.Wait()
	close(failures)

	var errs []error
	for err := range failures {
		errs = append(errs, err)
	}
	return errs, ctxErr
}

// FromGPXFiles builds a heatmap from GPX documents. Files that fail to parse are skipped and counted.
func FromGPXFiles(files [][]byte) *Result {
	b := NewBuilder()
	errs := b.AddGPX(files)
	return b.Result(len(errs), errs)
}

// AddGPX adds every segment of every parseable file and returns one error per skipped file.
func (b *Builder) AddGPX(files [][]byte) []error {
	var errs []error
	for i, data := range files {
		segs, err := tracks.FromGPX(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("file %d: %w", i, err))
			continue
		}
		for _, t := range segs {
			b.Add(t)
		}
	}
	return errs
}
