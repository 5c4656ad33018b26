package load

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
	"github.com/socialseed/graphseed/internal/graphseed/manifest"
)

var fastPolicy = Policy{Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Backoff: configuration.BackoffExponential}

func writeManifest(t *testing.T, refs ...string) string {
	path := manifest.Path(t.TempDir())
	require.NoError(t, manifest.Rewrite(path, refs))
	return path
}

func TestPipeline_DrainInOrder(t *testing.T) {
	path := writeManifest(t, "a.csv", "b.csv", "c.csv")
	var loaded []string
	result, err := NewPipeline(fastPolicy).Drain(seedcontext.Background(), path, func(ctx *seedcontext.Context, ref string) error {
		loaded = append(loaded, ref)
		return nil
	}, "things")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, loaded)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Loaded)
	assert.Equal(t, 0, result.Retries)
	assert.Empty(t, result.DeadLettered)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = NewPipeline(fastPolicy).Drain(seedcontext.Background(), path, func(ctx *seedcontext.Context, ref string) error {
		return nil
	}, "things")
	assert.True(t, seederrors.IsNotFound(err))
}

func TestPipeline_RetriesUntilSuccess(t *testing.T) {
	path := writeManifest(t, "a.csv")
	calls := 0
	result, err := NewPipeline(fastPolicy).Drain(seedcontext.Background(), path, func(ctx *seedcontext.Context, ref string) error {
		calls++
		if calls <= 2 {
			return errors.New("transient")
		}
		return nil
	}, "things")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, 1, result.Loaded)
}

func TestPipeline_ManifestShrinksAsArtifactsLoad(t *testing.T) {
	path := writeManifest(t, "a.csv", "b.csv", "c.csv")
	var remaining [][]string
	_, err := NewPipeline(fastPolicy).Drain(seedcontext.Background(), path, func(ctx *seedcontext.Context, ref string) error {
		refs, err := manifest.Read(path)
		require.NoError(t, err)
		remaining = append(remaining, refs)
		return nil
	}, "things")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"a.csv", "b.csv", "c.csv"},
		{"b.csv", "c.csv"},
		{"c.csv"},
	}, remaining)
}

func TestPipeline_DeadLetters(t *testing.T) {
	path := writeManifest(t, "a.csv", "bad.csv", "c.csv", "malformed.csv")
	policy := fastPolicy
	policy.MaxAttempts = 3
	calls := map[string]int{}

	result, err := NewPipeline(policy).Drain(seedcontext.Background(), path, func(ctx *seedcontext.Context, ref string) error {
		calls[ref]++
		switch ref {
		case "bad.csv":
			return errors.New("store unavailable")
		case "malformed.csv":
			return seederrors.Permanent(errors.New("bad header"))
		}
		return nil
	}, "things")

	var deadLettered *ErrDeadLettered
	require.ErrorAs(t, err, &deadLettered)
	assert.Equal(t, 2, deadLettered.Loaded)
	assert.Equal(t, 4, deadLettered.Total)
	assert.Contains(t, err.Error(), "2 of 4 artifacts loaded")

	assert.Equal(t, 3, calls["bad.csv"])
	assert.Equal(t, 1, calls["malformed.csv"])
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, []string{"bad.csv", "malformed.csv"}, result.DeadLettered)

	refs, err := manifest.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad.csv", "malformed.csv"}, refs)
}

func TestPipeline_ResumeRetriesOnlyDeadLetters(t *testing.T) {
	path := writeManifest(t, "a.csv", "bad.csv")
	policy := fastPolicy
	policy.MaxAttempts = 1
	healthy := false
	var loaded []string
	importFn := func(ctx *seedcontext.Context, ref string) error {
		if ref == "bad.csv" && !healthy {
			return errors.New("store unavailable")
		}
		loaded = append(loaded, ref)
		return nil
	}

	_, err := NewPipeline(policy).Drain(seedcontext.Background(), path, importFn, "things")
	require.Error(t, err)

	healthy = true
	result, err := NewPipeline(policy).Drain(seedcontext.Background(), path, importFn, "things")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, []string{"a.csv", "bad.csv"}, loaded)
}

func TestPipeline_MissingManifest(t *testing.T) {
	_, err := NewPipeline(fastPolicy).Drain(seedcontext.Background(), manifest.Path(t.TempDir()), func(ctx *seedcontext.Context, ref string) error {
		return nil
	}, "things")
	assert.True(t, seederrors.IsNotFound(err))
}

func TestPipeline_CancellationKeepsOutstanding(t *testing.T) {
	refs := make([]string, 5)
	for i := range refs {
		refs[i] = fmt.Sprintf("%d.csv", i)
	}
	path := writeManifest(t, refs...)
	ctx, cancel := seedcontext.WithCancel(seedcontext.Background())
	defer cancel()

	_, err := NewPipeline(fastPolicy).Drain(ctx, path, func(ctx *seedcontext.Context, ref string) error {
		if ref == "2.csv" {
			cancel()
			return ctx.Err()
		}
		return nil
	}, "things")
	assert.ErrorIs(t, err, ctx.Err())

	remaining, err := manifest.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.csv", "3.csv", "4.csv"}, remaining)
}

func TestPolicy_Attempts(t *testing.T) {
	assert.Equal(t, uint(3), Policy{MaxAttempts: 3}.attempts())
	assert.Greater(t, Policy{}.attempts(), uint(1000000))
}
