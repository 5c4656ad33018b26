// Package generate fans a population out over a bounded pool of generation tasks, one per range, and records
// the artifact each task produces in the manifest.
package generate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/graphseed/manifest"
	"github.com/socialseed/graphseed/internal/graphseed/metrics"
	"github.com/socialseed/graphseed/internal/graphseed/partition"
)

// TaskFunc generates the entities of one range and returns a reference to the artifact holding them.
type TaskFunc func(ctx *seedcontext.Context, r partition.Range, index int) (string, error)

// TaskFailure records a range whose task did not produce an artifact.
type TaskFailure struct {
	Index int
	Range partition.Range
	Err   error
}

// Report summarises one generation phase.
type Report struct {
	Description string
	Ranges      int
	Generated   int
	Failures    []TaskFailure
	Duration    time.Duration
}

// Complete is true when every range produced an artifact.
func (r *Report) Complete() bool {
	return len(r.Failures) == 0 && r.Generated == r.Ranges
}

// Err combines the task failures, or returns nil if there were none.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures {
		result = multierror.Append(result, errors.WithMessagef(f.Err, "range %d %s", f.Index, f.Range))
	}
	return result.ErrorOrNil()
}

type Pool struct {
	workers      int
	manifestPath string
	metrics      *metrics.Metrics
}

// NewPool creates a pool running up to workers tasks at once, zero meaning one per cpu.
func NewPool(workers int, manifestPath string) *Pool {
	return &Pool{
		workers:      partition.Workers(workers),
		manifestPath: manifestPath,
		metrics:      metrics.Get(),
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) ManifestPath() string {
	return p.manifestPath
}

// Run partitions [1, total], creates a fresh manifest and runs task once per range. A failing task is logged and
// reported but never cancels its siblings, so the returned error covers only partitioning, manifest I/O and
// cancellation of ctx.
func (p *Pool) Run(ctx *seedcontext.Context, total int64, description string, task TaskFunc) (*Report, error) {
	start := time.Now()
	ranges, err := partition.CalculateRanges(total, p.workers)
	if err != nil {
		return nil, errors.WithMessagef(err, "partitioning %s", description)
	}
	ctx = seedcontext.WithLogField(ctx, "phase", description)
	ctx.Log.Infof("Generating %d %s across %d ranges with %d workers", total, description, len(ranges), p.workers)

	w, err := manifest.Create(p.manifestPath)
	if err != nil {
		return nil, err
	}

	report := &Report{Description: description, Ranges: len(ranges)}
	var mu sync.Mutex
	fail := func(index int, r partition.Range, err error) {
		ctx.Log.WithError(err).WithFields(logrus.Fields{"range": r.String(), "index": index}).Error("generation task failed")
		p.metrics.RecordGenerationFailure(description)
		mu.Lock()
		report.Failures = append(report.Failures, TaskFailure{Index: index, Range: r, Err: err})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, r := range ranges {
		i, r := i, r
		if ctx.Err() != nil {
			fail(i, r, ctx.Err())
			continue
		}
		g.Go(func() error {
			ref, err := runTask(ctx, task, r, i)
			if err != nil {
				fail(i, r, err)
				return nil
			}
			w.Append(ref)
			p.metrics.RecordArtifactGenerated(description)
			ctx.Log.Debugf("range %d %s written to %s", i, r, ref)
			return nil
		})
	}
	_ = g.Wait()

	written, err := w.Close()
	report.Generated = written
	report.Duration = time.Since(start)
	sort.Slice(report.Failures, func(a, b int) bool { return report.Failures[a].Index < report.Failures[b].Index })
	if err != nil {
		return report, err
	}
	if !report.Complete() {
		ctx.Log.Warnf("manifest incomplete: %d of %d ranges missing for %s", report.Ranges-report.Generated, report.Ranges, description)
	} else {
		ctx.Log.Infof("Generated %d artifacts for %s in %s", report.Generated, description, report.Duration)
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

func runTask(ctx *seedcontext.Context, task TaskFunc, r partition.Range, index int) (ref string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task(ctx, r, index)
}
