// Package load drains a manifest into the graph store one artifact at a time, retrying failed imports.
package load

import (
	"fmt"
	"math"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
	"github.com/socialseed/graphseed/internal/graphseed/manifest"
	"github.com/socialseed/graphseed/internal/graphseed/metrics"
)

// ImportFunc loads a single artifact. Errors wrapped with seederrors.Permanent are not retried.
type ImportFunc func(ctx *seedcontext.Context, ref string) error

// Policy controls how often and how patiently a failing import is retried.
type Policy struct {
	Delay    time.Duration
	MaxDelay time.Duration
	Backoff  configuration.Backoff
	// MaxAttempts bounds the attempts per artifact. Zero means retry until the import succeeds.
	MaxAttempts uint
}

func PolicyFromConfig(c configuration.LoadConfig) Policy {
	return Policy{
		Delay:       c.RetryDelay,
		MaxDelay:    c.MaxRetryDelay,
		Backoff:     c.Backoff,
		MaxAttempts: c.MaxAttempts,
	}
}

func (p Policy) attempts() uint {
	if p.MaxAttempts == 0 {
		return math.MaxUint32
	}
	return p.MaxAttempts
}

func (p Policy) delayType() retry.DelayTypeFunc {
	if p.Backoff == configuration.BackoffExponential {
		return retry.BackOffDelay
	}
	return retry.FixedDelay
}

// Result summarises one drain.
type Result struct {
	Description  string
	Total        int
	Loaded       int
	Retries      int
	DeadLettered []string
	Duration     time.Duration
}

// ErrDeadLettered is returned by Drain when some artifacts could not be loaded. The manifest is left holding
// exactly those artifacts, so draining it again retries only them.
type ErrDeadLettered struct {
	Description string
	Loaded      int
	Total       int
	Refs        []string
	Err         error
}

func (err *ErrDeadLettered) Error() string {
	return fmt.Sprintf("%s: %d of %d artifacts loaded: %s", err.Description, err.Loaded, err.Total, err.Err)
}

func (err *ErrDeadLettered) Unwrap() error {
	return err.Err
}

type Pipeline struct {
	policy  Policy
	metrics *metrics.Metrics
}

func NewPipeline(policy Policy) *Pipeline {
	return &Pipeline{policy: policy, metrics: metrics.Get()}
}

// Drain imports every artifact listed in the manifest at path, in stored order and strictly one at a time.
// After each artifact the manifest is rewritten to hold only what is still outstanding, and once everything has
// been loaded it is deleted. A missing manifest is reported as *seederrors.ErrNotFound.
func (p *Pipeline) Drain(ctx *seedcontext.Context, path string, importFn ImportFunc, description string) (*Result, error) {
	start := time.Now()
	refs, err := manifest.Read(path)
	if err != nil {
		return nil, err
	}
	ctx = seedcontext.WithLogField(ctx, "phase", description)
	ctx.Log.Infof("Loading %d artifacts for %s", len(refs), description)

	result := &Result{Description: description, Total: len(refs)}
	var causes *multierror.Error
	for i, ref := range refs {
		if ctx.Err() != nil {
			return p.interrupted(ctx, path, result, refs[i:], start)
		}
		importStart := time.Now()
		err := p.importWithRetry(ctx, ref, importFn, result)
		if err != nil && ctx.Err() != nil {
			return p.interrupted(ctx, path, result, refs[i:], start)
		}
		if err != nil {
			ctx.Log.WithError(err).WithField("artifact", ref).Error("giving up on artifact")
			p.metrics.RecordDeadLetter(description)
			result.DeadLettered = append(result.DeadLettered, ref)
			causes = multierror.Append(causes, errors.WithMessage(err, ref))
		} else {
			result.Loaded++
			p.metrics.RecordArtifactImported(description, time.Since(importStart))
			ctx.Log.Debugf("loaded %s", ref)
		}
		if err := manifest.Rewrite(path, outstanding(result.DeadLettered, refs[i+1:])); err != nil {
			return result, err
		}
	}
	result.Duration = time.Since(start)

	if len(result.DeadLettered) > 0 {
		ctx.Log.Errorf("%d of %d artifacts loaded for %s", result.Loaded, result.Total, description)
		return result, &ErrDeadLettered{
			Description: description,
			Loaded:      result.Loaded,
			Total:       result.Total,
			Refs:        result.DeadLettered,
			Err:         causes.ErrorOrNil(),
		}
	}
	if err := manifest.Delete(path); err != nil {
		return result, err
	}
	ctx.Log.Infof("Loaded %d artifacts for %s in %s with %d retries", result.Loaded, description, result.Duration, result.Retries)
	return result, nil
}

func (p *Pipeline) importWithRetry(ctx *seedcontext.Context, ref string, importFn ImportFunc, result *Result) error {
	attempts := p.policy.attempts()
	return retry.Do(
		func() error {
			return importFn(ctx, ref)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.policy.Delay),
		retry.MaxDelay(p.policy.MaxDelay),
		retry.DelayType(p.policy.delayType()),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !seederrors.IsPermanent(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			// Also called after the final attempt, which is not followed by a retry.
			if n+1 >= attempts {
				return
			}
			result.Retries++
			p.metrics.RecordImportRetry(result.Description)
			ctx.Log.WithError(err).WithField("artifact", ref).Warnf("import attempt %d failed, retrying", n+1)
		}),
	)
}

// interrupted keeps whatever was not loaded in the manifest so a later drain can resume.
func (p *Pipeline) interrupted(ctx *seedcontext.Context, path string, result *Result, rest []string, start time.Time) (*Result, error) {
	result.Duration = time.Since(start)
	if err := manifest.Rewrite(path, outstanding(result.DeadLettered, rest)); err != nil {
		ctx.Log.WithError(err).Error("failed to save outstanding artifacts")
	}
	ctx.Log.Warnf("loading %s interrupted after %d of %d artifacts", result.Description, result.Loaded, result.Total)
	return result, ctx.Err()
}

func outstanding(deadLettered, rest []string) []string {
	refs := make([]string, 0, len(deadLettered)+len(rest))
	refs = append(refs, deadLettered...)
	return append(refs, rest...)
}
