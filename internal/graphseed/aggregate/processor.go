// Package aggregate derives the properties that can only be computed once the whole graph is loaded: degree
// counts on nodes, hashtag tokens in post content and relationship dates interpolated between the dates of the
// two endpoints.
package aggregate

import (
	"time"

	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
)

const DefaultChunkSize = 1000

// Interpolate returns the midpoint between the later of a and b and now, with the offset truncated to whole seconds.
func Interpolate(a, b, now time.Time) time.Time {
	lowerBound := a
	if b.After(a) {
		lowerBound = b
	}
	offset := (now.Sub(lowerBound) / 2).Truncate(time.Second)
	return lowerBound.Add(offset)
}

type Processor struct {
	store     graphstore.Store
	clock     util.Clock
	chunkSize int
}

func NewProcessor(store graphstore.Store, clock util.Clock, chunkSize int) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Processor{store: store, clock: clock, chunkSize: chunkSize}
}

// Run recomputes every degree count, tags post content with its hashtags, then derives every interpolated date.
// Each chunk of chunkSize nodes or edges is written in its own transaction, so a run can be repeated after a failure.
func (p *Processor) Run(ctx *seedcontext.Context) error {
	start := time.Now()
	for _, d := range graphstore.DegreeCounts {
		if err := p.degree(ctx, d); err != nil {
			return err
		}
	}
	if err := p.tags(ctx); err != nil {
		return err
	}
	now := p.clock.Now()
	for _, d := range graphstore.TimestampDerivations {
		if err := p.timestamps(ctx, d, now); err != nil {
			return err
		}
	}
	ctx.Log.Infof("Aggregates computed in %s", time.Since(start))
	return nil
}

func (p *Processor) degree(ctx *seedcontext.Context, d graphstore.DegreeCount) error {
	maxIdn, err := p.store.MaxIdn(ctx, d.Label)
	if err != nil {
		return err
	}
	for from := int64(1); from <= maxIdn; from += int64(p.chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := from + int64(p.chunkSize) - 1
		if err := p.store.UpdateDegree(ctx, d, from, to); err != nil {
			return err
		}
	}
	ctx.Log.Infof("Counted %s.%s over %d nodes", d.Label, d.Property, maxIdn)
	return nil
}

func (p *Processor) tags(ctx *seedcontext.Context) error {
	maxIdn, err := p.store.MaxIdn(ctx, graphstore.LabelPost)
	if err != nil {
		return err
	}
	for from := int64(1); from <= maxIdn; from += int64(p.chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.store.TagContent(ctx, from, from+int64(p.chunkSize)-1); err != nil {
			return err
		}
	}
	ctx.Log.Infof("Tagged the content of %d posts", maxIdn)
	return nil
}

func (p *Processor) timestamps(ctx *seedcontext.Context, d graphstore.TimestampDerivation, now time.Time) error {
	var cursor graphstore.EdgeKey
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pairs, last, err := p.store.TimestampPairs(ctx, d, cursor, p.chunkSize)
		if err != nil {
			return errors.WithMessagef(err, "reading %s dates", d.Edge)
		}
		if last == cursor {
			break
		}
		updates := make([]graphstore.TimestampUpdate, len(pairs))
		for i, pair := range pairs {
			updates[i] = graphstore.TimestampUpdate{Key: pair.Key, Value: Interpolate(pair.A, pair.B, now)}
		}
		if err := p.store.WriteTimestamps(ctx, d, updates); err != nil {
			return err
		}
		written += len(updates)
		cursor = last
	}
	ctx.Log.Infof("Derived %s.%s for %d edges", d.Edge, d.Property, written)
	return nil
}
