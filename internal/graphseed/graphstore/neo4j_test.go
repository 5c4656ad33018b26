package graphstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialseed/graphseed/internal/common/config"
	"github.com/socialseed/graphseed/internal/common/seederrors"
)

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*Neo4jStore)(nil)
)

func TestNeo4jImportCypher(t *testing.T) {
	tests := map[string]struct {
		mapping  Mapping
		columns  []string
		expected string
	}{
		"nodes": {
			mapping: NodeMapping(LabelHashTag),
			columns: []string{IdnColumn, "name"},
			expected: "UNWIND $rows AS row MERGE (n:`HashTag` {`idn`: row.`idn`}) " +
				"ON CREATE SET n.`post_tagged_in` = 0 SET n.`name` = row.`name`",
		},
		"edges": {
			mapping: EdgeMapping(EdgePostedBy),
			columns: []string{OriginColumn, DestinationColumn},
			expected: "UNWIND $rows AS row MATCH (a:`Post` {`idn`: row.`origin`}) " +
				"MATCH (b:`SocialUser` {`idn`: row.`destination`}) MERGE (a)-[r:`POSTED_BY`]->(b)",
		},
		"edges with properties": {
			mapping: EdgeMapping(EdgeLikes),
			columns: []string{OriginColumn, DestinationColumn, "like_date"},
			expected: "UNWIND $rows AS row MATCH (a:`SocialUser` {`idn`: row.`origin`}) " +
				"MATCH (b:`Post` {`idn`: row.`destination`}) MERGE (a)-[r:`LIKES`]->(b) " +
				"ON CREATE SET r.`like_date` = row.`like_date`",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cypher, err := neo4jImportCypher(tc.mapping, tc.columns)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cypher)
		})
	}
}

func TestNeo4jImportCypher_RejectsNamesOutsideSchema(t *testing.T) {
	for name, tc := range map[string]struct {
		mapping Mapping
		columns []string
	}{
		"unknown label":       {NodeMapping("Account"), []string{IdnColumn}},
		"unknown property":    {NodeMapping(LabelSocialUser), []string{IdnColumn, "password"}},
		"injected property":   {NodeMapping(LabelSocialUser), []string{IdnColumn, "x`) DETACH DELETE n //"}},
		"missing idn":         {NodeMapping(LabelPost), []string{"content"}},
		"missing destination": {EdgeMapping(EdgeLikes), []string{OriginColumn}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := neo4jImportCypher(tc.mapping, tc.columns)
			assert.Error(t, err)
		})
	}
}

func TestNeo4jDegreeCypher(t *testing.T) {
	cypher, err := neo4jDegreeCypher(DegreeCounts[0])
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`SocialUser`) WHERE n.`idn` >= $from AND n.`idn` <= $to "+
		"SET n.`friend_count` = size([(n)-[:`FRIEND_OF`]-() | 1])", cypher)

	cypher, err = neo4jDegreeCypher(DegreeCounts[2])
	require.NoError(t, err)
	assert.Contains(t, cypher, "(n)<-[:`FOLLOWED_BY`]-()")

	_, err = neo4jDegreeCypher(DegreeCount{Label: LabelPost, Property: "friend_count", Edge: EdgeLikes})
	var invalid *seederrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestNeo4jTimestampCypher(t *testing.T) {
	postedBy := TimestampDerivations[2]
	require.Equal(t, TargetOrigin, postedBy.Target)
	cypher, err := neo4jWriteTimestampsCypher(postedBy)
	require.NoError(t, err)
	assert.Equal(t, "UNWIND $updates AS u MATCH (a:`Post` {`idn`: u.`origin`}) SET a.`update_date` = u.value", cypher)

	cypher, err = neo4jWriteTimestampsCypher(TimestampDerivations[0])
	require.NoError(t, err)
	assert.Contains(t, cypher, "-[r:`FRIEND_OF`]->")
	assert.Contains(t, cypher, "SET r.`friendship_date` = u.value")

	cypher, err = neo4jPairsCypher(TimestampDerivations[3])
	require.NoError(t, err)
	assert.Contains(t, cypher, "MATCH (a:`SocialUser`)-[:`LIKES`]->(b:`Post`)")
	assert.Contains(t, cypher, "a.`registration_date` AS a, b.`update_date` AS b")
	assert.Contains(t, cypher, "ORDER BY origin, destination LIMIT $limit")
}

func TestNeo4jTagContentCypher(t *testing.T) {
	assert.Equal(t, "MATCH (p:`Post`) WHERE p.`idn` >= $from AND p.`idn` <= $to "+
		"AND (p.`content` IS NULL OR NOT p.`content` CONTAINS '#') "+
		"MATCH (p)-[:`TAGGED_WITH`]->(h:`HashTag`) WITH p, h ORDER BY h.`idn` "+
		"WITH p, collect(h.`name`) AS tags "+
		"SET p.`content` = trim(coalesce(p.`content`, '') + reduce(s = '', t IN tags | s + ' #' + t))",
		neo4jTagContentCypher())
}

func TestNeo4jConstraints(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"CREATE CONSTRAINT `social_user_idn` IF NOT EXISTS FOR (n:`SocialUser`) REQUIRE n.`idn` IS UNIQUE",
		"CREATE CONSTRAINT `social_user_user_name` IF NOT EXISTS FOR (n:`SocialUser`) REQUIRE n.`user_name` IS UNIQUE",
		"CREATE CONSTRAINT `social_user_email` IF NOT EXISTS FOR (n:`SocialUser`) REQUIRE n.`email` IS UNIQUE",
		"CREATE CONSTRAINT `post_idn` IF NOT EXISTS FOR (n:`Post`) REQUIRE n.`idn` IS UNIQUE",
		"CREATE CONSTRAINT `hashtag_idn` IF NOT EXISTS FOR (n:`HashTag`) REQUIRE n.`idn` IS UNIQUE",
		"CREATE CONSTRAINT `hashtag_name` IF NOT EXISTS FOR (n:`HashTag`) REQUIRE n.`name` IS UNIQUE",
	}, neo4jConstraints())
}

func TestNeo4jRows(t *testing.T) {
	local := time.Date(2015, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	rows := neo4jRows([]string{IdnColumn, "registration_date", "language"}, [][]any{{int64(1), local, nil}})
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		IdnColumn:           int64(1),
		"registration_date": local.UTC(),
		"language":          nil,
	}, rows[0])
}

// Runs against a live server when GRAPHSEED_NEO4J_URI is set, e.g. neo4j://localhost:7687.
func TestNeo4jStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("GRAPHSEED_NEO4J_URI")
	if uri == "" {
		t.Skip("GRAPHSEED_NEO4J_URI not set")
	}
	ctx := context.Background()
	s, err := OpenNeo4j(config.Neo4jConfig{
		Uri:      uri,
		Username: os.Getenv("GRAPHSEED_NEO4J_USERNAME"),
		Password: os.Getenv("GRAPHSEED_NEO4J_PASSWORD"),
	})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.Reset(ctx))

	registered := time.Date(2015, 3, 4, 5, 6, 7, 0, time.UTC)
	rows := [][]any{userRow(1, registered), userRow(2, registered), userRow(3, registered)}
	require.NoError(t, s.ImportRows(ctx, NodeMapping(LabelSocialUser), userColumns, rows))
	require.NoError(t, s.ImportRows(ctx, NodeMapping(LabelSocialUser), userColumns, rows))
	edges := [][]any{{int64(1), int64(2)}, {int64(1), int64(2)}, {int64(2), int64(3)}, {int64(1), int64(9)}}
	require.NoError(t, s.ImportRows(ctx, EdgeMapping(EdgeFriendOf), []string{OriginColumn, DestinationColumn}, edges))

	n, err := s.Count(ctx, LabelSocialUser)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.Count(ctx, EdgeFriendOf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	maxIdn, err := s.MaxIdn(ctx, LabelSocialUser)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxIdn)

	require.NoError(t, s.UpdateDegree(ctx, DegreeCounts[0], 1, 3))
	pairs, last, err := s.TimestampPairs(ctx, TimestampDerivations[0], EdgeKey{}, 10)
	require.NoError(t, err)
	assert.Equal(t, EdgeKey{2, 3}, last)
	require.Len(t, pairs, 2)
	assert.Equal(t, registered, pairs[0].A)
	require.NoError(t, s.WriteTimestamps(ctx, TimestampDerivations[0], []TimestampUpdate{{Key: pairs[0].Key, Value: registered}}))

	err = s.ImportRows(ctx, NodeMapping(LabelSocialUser), []string{IdnColumn, "user_name"}, [][]any{{int64(4), "user1"}})
	assert.True(t, seederrors.IsPermanent(err))
	assert.True(t, seederrors.IsAlreadyExists(err))

	require.NoError(t, s.Reset(ctx))
	n, err = s.Count(ctx, EdgeFriendOf)
	require.NoError(t, err)
	assert.Zero(t, n)
}
