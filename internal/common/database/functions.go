package database

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/socialseed/graphseed/internal/common/config"
	"github.com/socialseed/graphseed/internal/common/database/postgres"
	"github.com/socialseed/graphseed/internal/common/database/sqlite"
	"github.com/socialseed/graphseed/internal/common/database/types"
)

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

// OpenPgxPool connects to postgres. Unlike sqlite it does not ping; callers wait for availability themselves.
func OpenPgxPool(ctx context.Context, config config.PostgresConfig) (types.DatabasePool, error) {
	poolConfig, err := pgxpool.ParseConfig(CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.LazyConnect = true
	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return postgres.PoolAdapter{Pool: db}, nil
}

// OpenSqlite opens a sqlite database file. A single connection is used so that temporary tables and
// transactions always see the same session.
func OpenSqlite(ctx context.Context, config config.SqliteConfig) (types.DatabasePool, error) {
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.WithMessagef(err, "setting %q", pragma)
		}
	}
	return sqlite.DBAdapter{DB: db}, nil
}

// IsUniqueViolation returns true if err reports a unique constraint violation from postgres or sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}
