package configuration

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialseed/graphseed/internal/common/config"
)

func validConfig() Configuration {
	return Configuration{
		Store: StoreConfig{
			Driver:       DriverSqlite,
			Sqlite:       config.SqliteConfig{Path: "graphseed.db"},
			ChunkSize:    1000,
			WaitInterval: time.Second,
		},
		Generation: GenerationConfig{WorkDir: "temp"},
		Registry:   RegistryConfig{Backend: RegistryMemory, Shards: 64},
		Load:       LoadConfig{RetryDelay: time.Second, Backoff: BackoffExponential},
		Users: UsersConfig{
			Total:     100,
			Friends:   Cardinality{Min: 1, Max: 5},
			Follows:   Cardinality{Min: 0, Max: 5},
			Likes:     Cardinality{Min: 0, Max: 500},
			Interests: Cardinality{Min: 1, Max: 3},
		},
		Posts: PostsConfig{
			PerUser:  2,
			Words:    Cardinality{Min: 3, Max: 10},
			Hashtags: Cardinality{Min: 0, Max: 3},
		},
		Hashtags: HashtagsConfig{Total: 10},
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(c *Configuration)
		wantErr bool
	}{
		"valid": {
			mutate: func(c *Configuration) {},
		},
		"non-unique likes may exceed the post population": {
			mutate: func(c *Configuration) { c.Users.Likes.Max = 10000 },
		},
		"unknown driver": {
			mutate:  func(c *Configuration) { c.Store.Driver = "mysql" },
			wantErr: true,
		},
		"missing sqlite path": {
			mutate:  func(c *Configuration) { c.Store.Sqlite.Path = "" },
			wantErr: true,
		},
		"postgres without connection": {
			mutate:  func(c *Configuration) { c.Store.Driver = DriverPostgres },
			wantErr: true,
		},
		"neo4j without uri": {
			mutate:  func(c *Configuration) { c.Store.Driver = DriverNeo4j },
			wantErr: true,
		},
		"neo4j with uri": {
			mutate: func(c *Configuration) {
				c.Store.Driver = DriverNeo4j
				c.Store.Neo4j = config.Neo4jConfig{Uri: "neo4j://localhost:7687", Username: "neo4j"}
			},
		},
		"redis without address": {
			mutate:  func(c *Configuration) { c.Registry.Backend = RegistryRedis },
			wantErr: true,
		},
		"redis with address": {
			mutate: func(c *Configuration) {
				c.Registry.Backend = RegistryRedis
				c.Registry.Redis = config.RedisConfig{Addr: "localhost:6379"}
			},
		},
		"max below min": {
			mutate:  func(c *Configuration) { c.Users.Friends = Cardinality{Min: 4, Max: 2} },
			wantErr: true,
		},
		"unique friends exceed population": {
			mutate:  func(c *Configuration) { c.Users.Friends.Max = 101 },
			wantErr: true,
		},
		"unique interests exceed hashtags": {
			mutate:  func(c *Configuration) { c.Users.Interests.Max = 11 },
			wantErr: true,
		},
		"zero users": {
			mutate:  func(c *Configuration) { c.Users.Total = 0 },
			wantErr: true,
		},
		"empty posts": {
			mutate:  func(c *Configuration) { c.Posts.Words = Cardinality{Min: 0, Max: 0} },
			wantErr: true,
		},
		"unknown backoff": {
			mutate:  func(c *Configuration) { c.Load.Backoff = "linear" },
			wantErr: true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_FieldErrorsAreValidatorErrors(t *testing.T) {
	c := validConfig()
	c.Store.ChunkSize = 0
	err := c.Validate()
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
	assert.Equal(t, "ChunkSize", validationErrors[0].Field())
}

func TestBackoff_UnmarshalText(t *testing.T) {
	var b Backoff
	require.NoError(t, b.UnmarshalText([]byte("Exponential")))
	assert.Equal(t, BackoffExponential, b)
	assert.Error(t, b.UnmarshalText([]byte("linear")))
}
