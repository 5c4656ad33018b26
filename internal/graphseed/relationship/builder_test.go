package relationship

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialseed/graphseed/internal/common/config"
	"github.com/socialseed/graphseed/internal/common/database"
	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/graphseed/artifact"
	"github.com/socialseed/graphseed/internal/graphseed/generate"
	"github.com/socialseed/graphseed/internal/graphseed/graphstore"
	"github.com/socialseed/graphseed/internal/graphseed/manifest"
)

func newBuilder(t *testing.T) (*Builder, *artifact.Store, string) {
	dir := t.TempDir()
	path := manifest.Path(dir)
	artifacts := artifact.NewStore(filepath.Join(dir, "artifacts"), false)
	return NewBuilder(generate.NewPool(4, path), artifacts, 17, 8, 0), artifacts, path
}

func readEdges(t *testing.T, artifacts *artifact.Store, path string) [][2]int64 {
	refs, err := manifest.Read(path)
	require.NoError(t, err)
	var edges [][2]int64
	for _, ref := range refs {
		header, rows, err := artifacts.Read(ref)
		require.NoError(t, err)
		assert.Equal(t, EdgeHeader, header)
		for _, row := range rows {
			origin, err := strconv.ParseInt(row[0], 10, 64)
			require.NoError(t, err)
			destination, err := strconv.ParseInt(row[1], 10, 64)
			require.NoError(t, err)
			edges = append(edges, [2]int64{origin, destination})
		}
	}
	return edges
}

func TestBuilder_ManyToManyUnique(t *testing.T) {
	b, artifacts, path := newBuilder(t)
	spec := Spec{Name: "FRIEND_OF", Origins: 200, Destinations: 10, Min: 3, Max: 10, Unique: true}

	report, err := b.ManyToMany(seedcontext.Background(), spec)
	require.NoError(t, err)
	assert.True(t, report.Complete())

	perOrigin := map[int64]map[int64]bool{}
	for _, e := range readEdges(t, artifacts, path) {
		assert.GreaterOrEqual(t, e[0], int64(1))
		assert.LessOrEqual(t, e[0], spec.Origins)
		assert.GreaterOrEqual(t, e[1], int64(1))
		assert.LessOrEqual(t, e[1], spec.Destinations)
		if perOrigin[e[0]] == nil {
			perOrigin[e[0]] = map[int64]bool{}
		}
		assert.False(t, perOrigin[e[0]][e[1]], "duplicate edge %v", e)
		perOrigin[e[0]][e[1]] = true
	}
	assert.Len(t, perOrigin, int(spec.Origins))
	for origin, destinations := range perOrigin {
		assert.GreaterOrEqual(t, len(destinations), spec.Min, "origin %d", origin)
		assert.LessOrEqual(t, len(destinations), spec.Max, "origin %d", origin)
	}
}

func TestBuilder_ManyToManyExactCardinality(t *testing.T) {
	for _, unique := range []bool{true, false} {
		b, artifacts, path := newBuilder(t)
		_, err := b.ManyToMany(seedcontext.Background(), Spec{Name: "FRIEND_OF", Origins: 5, Destinations: 5, Min: 2, Max: 2, Unique: unique})
		require.NoError(t, err)

		edges := readEdges(t, artifacts, path)
		assert.Len(t, edges, 10)
		perOrigin := map[int64]map[int64]bool{}
		for _, e := range edges {
			if perOrigin[e[0]] == nil {
				perOrigin[e[0]] = map[int64]bool{}
			}
			perOrigin[e[0]][e[1]] = true
		}
		assert.Len(t, perOrigin, 5)
		if unique {
			for origin, destinations := range perOrigin {
				assert.Len(t, destinations, 2, "origin %d", origin)
			}
		}
	}
}

func TestBuilder_NonUniqueDuplicatesCollapseOnLoad(t *testing.T) {
	b, artifacts, path := newBuilder(t)
	spec := Spec{Name: graphstore.EdgeLikes, Origins: 4, Destinations: 1, Min: 3, Max: 3}

	_, err := b.ManyToMany(seedcontext.Background(), spec)
	require.NoError(t, err)
	edges := readEdges(t, artifacts, path)
	require.Len(t, edges, 12)
	perOrigin := map[int64]int{}
	for _, e := range edges {
		assert.Equal(t, int64(1), e[1])
		perOrigin[e[0]]++
	}
	assert.Equal(t, map[int64]int{1: 3, 2: 3, 3: 3, 4: 3}, perOrigin)

	ctx := context.Background()
	db, err := database.OpenSqlite(ctx, config.SqliteConfig{Path: filepath.Join(t.TempDir(), "graph.db")})
	require.NoError(t, err)
	store := graphstore.NewSqliteStore(db)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))
	users := [][]any{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}}
	require.NoError(t, store.ImportRows(ctx, graphstore.NodeMapping(graphstore.LabelSocialUser), []string{graphstore.IdnColumn}, users))
	require.NoError(t, store.ImportRows(ctx, graphstore.NodeMapping(graphstore.LabelPost), []string{graphstore.IdnColumn}, [][]any{{int64(1)}}))

	refs, err := manifest.Read(path)
	require.NoError(t, err)
	importer := graphstore.NewImporter(store, artifacts, 0)
	for _, ref := range refs {
		require.NoError(t, importer.Import(ctx, ref, graphstore.EdgeMapping(graphstore.EdgeLikes)))
	}
	n, err := store.Count(ctx, graphstore.EdgeLikes)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestBuilder_ManyToManyZeroMin(t *testing.T) {
	b, artifacts, path := newBuilder(t)
	spec := Spec{Name: "LIKES", Origins: 50, Destinations: 5, Min: 0, Max: 0}

	report, err := b.ManyToMany(seedcontext.Background(), spec)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Empty(t, readEdges(t, artifacts, path))
}

func TestBuilder_ManyToOne(t *testing.T) {
	b, artifacts, path := newBuilder(t)
	spec := Spec{Name: "POSTED_BY", Origins: 300, Destinations: 30}

	report, err := b.ManyToOne(seedcontext.Background(), spec)
	require.NoError(t, err)
	assert.True(t, report.Complete())

	seen := map[int64]int{}
	for _, e := range readEdges(t, artifacts, path) {
		seen[e[0]]++
		assert.GreaterOrEqual(t, e[1], int64(1))
		assert.LessOrEqual(t, e[1], spec.Destinations)
	}
	assert.Len(t, seen, 300)
	for origin, n := range seen {
		assert.Equal(t, 1, n, "origin %d", origin)
	}
}

func TestBuilder_RejectsImpossibleUniqueCardinality(t *testing.T) {
	b, _, _ := newBuilder(t)
	_, err := b.ManyToMany(seedcontext.Background(), Spec{Name: "INTERESTED_IN", Origins: 10, Destinations: 3, Min: 1, Max: 4, Unique: true})
	var invalid *seederrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestBuilder_RejectsEmptyOrigins(t *testing.T) {
	b, _, _ := newBuilder(t)
	_, err := b.ManyToOne(seedcontext.Background(), Spec{Name: "POSTED_BY", Origins: 0, Destinations: 3})
	var invalid *seederrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}
