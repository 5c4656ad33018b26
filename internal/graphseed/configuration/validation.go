package configuration

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/socialseed/graphseed/internal/common/seederrors"
)

// Validate checks field constraints, then the cross-field rules struct tags can't express. Unique relationships
// need at least Max distinct destinations, or resampling would never terminate.
func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Store.Driver {
	case DriverSqlite:
		if err := validate.Struct(c.Store.Sqlite); err != nil {
			return err
		}
	case DriverPostgres:
		if len(c.Store.Postgres.Connection) == 0 {
			return &seederrors.ErrInvalidArgument{Name: "store.postgres.connection", Value: "", Message: "required for the postgres driver"}
		}
	case DriverNeo4j:
		if err := validate.Struct(c.Store.Neo4j); err != nil {
			return err
		}
	}
	if c.Registry.Backend == RegistryRedis {
		if err := validate.Struct(c.Registry.Redis); err != nil {
			return err
		}
	}

	var result *multierror.Error
	unique := []struct {
		name        string
		cardinality Cardinality
		population  int64
	}{
		{"users.friends", c.Users.Friends, c.Users.Total},
		{"users.follows", c.Users.Follows, c.Users.Total},
		{"users.interests", c.Users.Interests, c.Hashtags.Total},
		{"posts.hashtags", c.Posts.Hashtags, c.Hashtags.Total},
	}
	for _, u := range unique {
		if int64(u.cardinality.Max) > u.population {
			result = multierror.Append(result, &seederrors.ErrInvalidArgument{
				Name:    u.name + ".max",
				Value:   u.cardinality.Max,
				Message: fmt.Sprintf("cannot exceed the %d distinct destinations available", u.population),
			})
		}
	}
	if c.Posts.Words.Min < 1 {
		result = multierror.Append(result, &seederrors.ErrInvalidArgument{Name: "posts.words.min", Value: c.Posts.Words.Min, Message: "posts need at least one word"})
	}
	return result.ErrorOrNil()
}
