package graphstore

import (
	"context"
	"time"

	"github.com/socialseed/graphseed/internal/common/database"
	"github.com/socialseed/graphseed/internal/common/seedcontext"
	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/configuration"
)

// Open connects to the configured backend without waiting for it to be reachable.
func Open(ctx context.Context, config configuration.StoreConfig) (Store, error) {
	switch config.Driver {
	case configuration.DriverPostgres:
		db, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db), nil
	case configuration.DriverSqlite:
		db, err := database.OpenSqlite(ctx, config.Sqlite)
		if err != nil {
			return nil, err
		}
		return NewSqliteStore(db), nil
	case configuration.DriverNeo4j:
		s, err := OpenNeo4j(config.Neo4j)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, &seederrors.ErrInvalidArgument{Name: "store.driver", Value: config.Driver}
	}
}

// WaitUntilAvailable pings the store every interval until it answers or ctx is done.
func WaitUntilAvailable(ctx *seedcontext.Context, store Store, interval time.Duration) error {
	attempts := 0
	util.RetryUntilSuccess(
		ctx,
		func() error {
			attempts++
			return store.Ping(ctx)
		},
		func(err error) {
			ctx.Log.WithError(err).Warnf("Graph store not available yet (attempt %d), waiting %s", attempts, interval)
		},
		interval,
	)
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx.Log.Info("Graph store is available")
	return nil
}
