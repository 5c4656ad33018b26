// Package relationship generates edges between two node populations that have already been numbered 1..N.
package relationship

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/artifact"
	"github.com/socialseed/graphseed/internal/graphseed/generate"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/partition"
	"github.com/socialseed/graphseed/internal/graphseed/registry"
)

// EdgeHeader is the header row of every edge artifact.
var EdgeHeader = []string{graphstore.OriginColumn, graphstore.DestinationColumn}

// Spec describes one relationship population. Origins are drawn from [1, Origins] and destinations from
// [1, Destinations].
type Spec struct {
	Name         string
	Origins      int64
	Destinations int64
	Min          int
	Max          int
	// Unique forbids an origin from linking the same destination twice.
	Unique bool
}

type Builder struct {
	pool        *generate.Pool
	artifacts   *artifact.Store
	seed        int64
	shards      int
	maxAttempts int
}

// NewBuilder creates a builder. Each task seeds its own generator from seed, its phase and its range index.
func NewBuilder(pool *generate.Pool, artifacts *artifact.Store, seed int64, shards, maxAttempts int) *Builder {
	return &Builder{
		pool:        pool,
		artifacts:   artifacts,
		seed:        seed,
		shards:      shards,
		maxAttempts: maxAttempts,
	}
}

func (s Spec) validate() error {
	if s.Name == "" {
		return &seederrors.ErrInvalidArgument{Name: "name", Value: s.Name, Message: "relationship needs a name"}
	}
	if s.Destinations <= 0 {
		return &seederrors.ErrInvalidArgument{Name: "destinations", Value: s.Destinations, Message: "must be positive"}
	}
	if s.Min < 0 || s.Max < s.Min {
		return &seederrors.ErrInvalidArgument{Name: "min/max", Value: []int{s.Min, s.Max}, Message: "need 0 <= min <= max"}
	}
	if s.Unique && int64(s.Max) > s.Destinations {
		return &seederrors.ErrInvalidArgument{
			Name:    "max",
			Value:   s.Max,
			Message: "a unique relationship cannot have more edges per origin than there are destinations",
		}
	}
	return nil
}

func (s Spec) phase() string {
	return strings.ToLower(s.Name)
}

// ManyToMany links every origin to between Min and Max destinations, drawn uniformly. When Unique is set a
// destination is resampled until it is new for that origin; otherwise repeated edges are kept and collapse on load.
func (b *Builder) ManyToMany(ctx *seedcontext.Context, spec Spec) (*generate.Report, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	// Ranges partition the origins, so each origin's destinations are only ever touched by one task.
	destinations := registry.NewDestinationRegistry(b.shards, b.maxAttempts)
	return b.pool.Run(ctx, spec.Origins, spec.phase(), func(ctx *seedcontext.Context, r partition.Range, index int) (string, error) {
		rnd := rand.New(rand.NewSource(generate.TaskSeed(b.seed, spec.phase(), index)))
		draw := func() int64 { return util.Int64Between(rnd, 1, spec.Destinations) }
		rows := make([][]string, 0, r.Len()*int64(spec.Max))
		for origin := r.Start; origin <= r.End; origin++ {
			count := util.IntBetween(rnd, spec.Min, spec.Max)
			for i := 0; i < count; i++ {
				if !spec.Unique {
					rows = append(rows, edgeRecord(origin, draw()))
					continue
				}
				destination, err := destinations.Reserve(ctx, origin, draw)
				if err != nil {
					return "", errors.WithMessagef(err, "%s origin %d", spec.Name, origin)
				}
				rows = append(rows, edgeRecord(origin, destination))
			}
			destinations.Release(origin)
		}
		return b.write(spec, index, rows)
	})
}

// ManyToOne links every origin to exactly one destination, drawn uniformly.
func (b *Builder) ManyToOne(ctx *seedcontext.Context, spec Spec) (*generate.Report, error) {
	spec.Min, spec.Max, spec.Unique = 1, 1, false
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return b.pool.Run(ctx, spec.Origins, spec.phase(), func(ctx *seedcontext.Context, r partition.Range, index int) (string, error) {
		rnd := rand.New(rand.NewSource(generate.TaskSeed(b.seed, spec.phase(), index)))
		rows := make([][]string, 0, r.Len())
		for origin := r.Start; origin <= r.End; origin++ {
			rows = append(rows, edgeRecord(origin, util.Int64Between(rnd, 1, spec.Destinations)))
		}
		return b.write(spec, index, rows)
	})
}

func (b *Builder) write(spec Spec, index int, rows [][]string) (string, error) {
	ref := b.artifacts.Ref(spec.phase(), index)
	if err := b.artifacts.Write(ref, EdgeHeader, rows); err != nil {
		return "", err
	}
	return ref, nil
}

func edgeRecord(origin, destination int64) []string {
	return []string{strconv.FormatInt(origin, 10), strconv.FormatInt(destination, 10)}
}
