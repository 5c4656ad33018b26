package configuration

import (
	"fmt"
	"strings"
	"time"

	"github.com/socialseed/graphseed/internal/common/config"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNeo4j    = "neo4j"

	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Backoff selects how the delay between import attempts evolves.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

func (b *Backoff) UnmarshalText(text []byte) error {
	switch v := Backoff(strings.ToLower(string(text))); v {
	case BackoffFixed, BackoffExponential:
		*b = v
		return nil
	default:
		return fmt.Errorf("unknown backoff %q, expected %q or %q", text, BackoffFixed, BackoffExponential)
	}
}

type Configuration struct {
	// Where generated data is loaded
	Store StoreConfig
	// How generation tasks are run
	Generation GenerationConfig
	// Where uniqueness reservations are kept during generation
	Registry RegistryConfig
	// Retry policy for imports
	Load LoadConfig
	// SocialUser population and its relationships
	Users UsersConfig
	// Post population
	Posts PostsConfig
	// HashTag population
	Hashtags HashtagsConfig
	// Metrics configuration
	Metrics MetricsConfig
}

type StoreConfig struct {
	// One of sqlite, postgres or neo4j
	Driver string `validate:"oneof=sqlite postgres neo4j"`
	// Checked by Validate only when selected by Driver
	Sqlite   config.SqliteConfig `validate:"-"`
	Postgres config.PostgresConfig
	Neo4j    config.Neo4jConfig `validate:"-"`
	// Rows per import transaction
	ChunkSize int `validate:"gte=1"`
	// Time between availability checks while waiting for the store to come up
	WaitInterval time.Duration `validate:"gt=0"`
}

type GenerationConfig struct {
	// Concurrent generation tasks, zero means one per cpu
	Workers int `validate:"gte=0"`
	// Seed for all random draws, zero means seed from the clock
	Seed int64
	// Directory holding artifacts and the manifest
	WorkDir string `validate:"required"`
	// Snappy-compress artifacts
	CompressArtifacts bool
	// Abort the run instead of loading a partial manifest when a generation task fails
	FailOnIncompleteManifest bool
	// Remove artifacts once they have been imported
	RemoveArtifacts bool
}

type RegistryConfig struct {
	// One of memory or redis
	Backend string `validate:"oneof=memory redis"`
	// Lock shards for the in-memory registries
	Shards int `validate:"gte=1"`
	// Consecutive collisions tolerated per reservation, zero means unbounded
	MaxAttempts int `validate:"gte=0"`
	// Prefix for redis keys
	KeyPrefix string
	// Checked by Validate only when selected by Backend
	Redis config.RedisConfig `validate:"-"`
}

type LoadConfig struct {
	// Delay before the first retry of a failed import
	RetryDelay time.Duration `validate:"gte=0"`
	// Cap on the delay between retries, zero means uncapped
	MaxRetryDelay time.Duration `validate:"gte=0"`
	// One of fixed or exponential
	Backoff Backoff `validate:"oneof=fixed exponential"`
	// Attempts per artifact before it is dead-lettered, zero means retry until it succeeds
	MaxAttempts uint `validate:"gte=0"`
}

// Cardinality is an inclusive [Min, Max] range of relationships per origin.
type Cardinality struct {
	Min int `validate:"gte=0"`
	Max int `validate:"gtefield=Min"`
}

type UsersConfig struct {
	Total     int64 `validate:"gte=1"`
	Friends   Cardinality
	Follows   Cardinality
	Likes     Cardinality
	Interests Cardinality
}

type PostsConfig struct {
	// Posts generated per user
	PerUser  int64 `validate:"gte=1"`
	Words    Cardinality
	Hashtags Cardinality
}

func (p PostsConfig) Total(users int64) int64 {
	return p.PerUser * users
}

type HashtagsConfig struct {
	Total int64 `validate:"gte=1"`
}

type MetricsConfig struct {
	// Port serving /metrics, zero disables it
	Port uint16
}
