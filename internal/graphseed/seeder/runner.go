// Package seeder runs a complete seeding: every node and relationship population is generated in parallel,
// loaded sequentially, and finally the aggregates are derived.
package seeder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/aggregate"
	"github.com/socialseed/graphseed/internal/graphseed/artifact"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
	"github.com/socialseed/graphseed/internal/graphseed/generate"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/load"
	"github.com/socialseed/graphseed/internal/graphseed/manifest"
	"github.com/socialseed/graphseed/internal/graphseed/relationship"
)

const artifactDir = "artifacts"

// Runner owns the components of a seeding run. The store is borrowed and not closed by Close.
type Runner struct {
	config        configuration.Configuration
	store         graphstore.Store
	clock         util.Clock
	seed          int64
	artifacts     *artifact.Store
	pool          *generate.Pool
	relationships *relationship.Builder
	registries    valueRegistries
	pipeline      *load.Pipeline
	importer      *graphstore.Importer
	aggregates    *aggregate.Processor
}

func NewRunner(config configuration.Configuration, store graphstore.Store, clock util.Clock) (*Runner, error) {
	registries, err := newValueRegistries(config.Registry)
	if err != nil {
		return nil, err
	}
	seed := util.ResolveSeed(config.Generation.Seed)
	artifacts := artifact.NewStore(filepath.Join(config.Generation.WorkDir, artifactDir), config.Generation.CompressArtifacts)
	pool := generate.NewPool(config.Generation.Workers, manifest.Path(config.Generation.WorkDir))
	return &Runner{
		config:        config,
		store:         store,
		clock:         clock,
		seed:          seed,
		artifacts:     artifacts,
		pool:          pool,
		relationships: relationship.NewBuilder(pool, artifacts, seed, config.Registry.Shards, config.Registry.MaxAttempts),
		registries:    registries,
		pipeline:      load.NewPipeline(load.PolicyFromConfig(config.Load)),
		importer:      graphstore.NewImporter(store, artifacts, config.Store.ChunkSize),
		aggregates:    aggregate.NewProcessor(store, clock, config.Store.ChunkSize),
	}, nil
}

func (r *Runner) Close() error {
	return r.registries.Close()
}

func (r *Runner) ManifestPath() string {
	return r.pool.ManifestPath()
}

// Prepare waits for the store to answer, creates the schema and, if reset is set, empties it.
func (r *Runner) Prepare(ctx *seedcontext.Context, reset bool) error {
	if err := graphstore.WaitUntilAvailable(ctx, r.store, r.config.Store.WaitInterval); err != nil {
		return err
	}
	if err := r.store.EnsureSchema(ctx); err != nil {
		return errors.WithMessage(err, "creating schema")
	}
	if reset {
		return r.store.Reset(ctx)
	}
	return nil
}

// Run seeds the store. Phases run one after the other; if one fails to load completely the run stops there, with
// the unloaded artifacts left in the manifest.
func (r *Runner) Run(ctx *seedcontext.Context, reset bool) (*Report, error) {
	start := time.Now()
	ctx.Log.Infof("Seeding with seed %d", r.seed)
	report := &Report{Seed: r.seed}
	if err := r.Prepare(ctx, reset); err != nil {
		return report, err
	}
	for _, phase := range r.Phases() {
		phaseReport, err := r.RunPhase(ctx, phase)
		report.Phases = append(report.Phases, phaseReport)
		if err != nil {
			report.Duration = time.Since(start)
			return report, errors.WithMessagef(err, "phase %s", phase.Name)
		}
	}
	if err := r.Aggregate(ctx); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// RunPhase generates a phase into a fresh manifest and drains it.
func (r *Runner) RunPhase(ctx *seedcontext.Context, phase Phase) (PhaseReport, error) {
	report := PhaseReport{Name: phase.Name}
	generated, err := phase.generate(ctx)
	report.Generation = generated
	if err != nil {
		return report, err
	}
	if !generated.Complete() && r.config.Generation.FailOnIncompleteManifest {
		return report, errors.WithMessagef(generated.Err(), "%d of %d ranges generated", generated.Generated, generated.Ranges)
	}
	report.Load, err = r.Load(ctx, phase)
	if err != nil {
		return report, err
	}
	report.Rows, err = r.store.Count(ctx, phase.Mapping.String())
	return report, err
}

// Load drains whatever the manifest currently holds into phase's mapping. A manifest holding artifacts of another
// phase is refused and left untouched.
func (r *Runner) Load(ctx *seedcontext.Context, phase Phase) (*load.Result, error) {
	refs, err := manifest.Read(r.ManifestPath())
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if owner := artifact.PhaseOf(ref); !strings.EqualFold(owner, phase.Name) {
			return nil, &seederrors.ErrInvalidArgument{
				Name:    "phase",
				Value:   phase.Name,
				Message: fmt.Sprintf("manifest holds artifact %s of phase %s", ref, owner),
			}
		}
	}
	return r.pipeline.Drain(ctx, r.ManifestPath(), r.importFunc(phase.Mapping), phase.Name)
}

// PendingPhase returns the phase whose artifacts the manifest holds.
func (r *Runner) PendingPhase() (Phase, error) {
	refs, err := manifest.Read(r.ManifestPath())
	if err != nil {
		return Phase{}, err
	}
	if len(refs) == 0 {
		return Phase{}, &seederrors.ErrNotFound{Type: "manifest", Value: r.ManifestPath(), Message: "no artifacts are pending"}
	}
	owner := artifact.PhaseOf(refs[0])
	phase, ok := r.LookupPhase(owner)
	if !ok {
		return Phase{}, &seederrors.ErrInvalidArgument{Name: "manifest", Value: refs[0], Message: "artifact belongs to no known phase"}
	}
	return phase, nil
}

func (r *Runner) importFunc(m graphstore.Mapping) load.ImportFunc {
	return func(ctx *seedcontext.Context, ref string) error {
		if err := r.importer.Import(ctx, ref, m); err != nil {
			return err
		}
		if r.config.Generation.RemoveArtifacts {
			if err := r.artifacts.Remove(ref); err != nil {
				ctx.Log.WithError(err).Warnf("failed to remove imported artifact %s", ref)
			}
		}
		return nil
	}
}

// Aggregate derives degree counts and interpolated dates over whatever is currently in the store.
func (r *Runner) Aggregate(ctx *seedcontext.Context) error {
	return errors.WithMessage(r.aggregates.Run(ctx), "computing aggregates")
}
