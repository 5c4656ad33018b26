package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/socialseed/graphseed/internal/common/database/types"
)

type Migration struct {
	Id   int
	Name string
	Sql  []string
}

// UpdateDatabase applies, in id order, every migration newer than the version recorded in the database.
func UpdateDatabase(ctx context.Context, db types.Querier, migrations []Migration) error {
	log.Info("Updating database schema...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current schema version %v", version)

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Id < sorted[j].Id })

	for _, m := range sorted {
		if m.Id <= version {
			continue
		}
		for _, stmt := range m.Sql {
			if err := db.Exec(ctx, stmt); err != nil {
				return errors.WithMessagef(err, "migration %d (%s)", m.Id, m.Name)
			}
		}
		version = m.Id
		if err := setVersion(ctx, db, version); err != nil {
			return err
		}
		log.Infof("Applied migration %d (%s)", m.Id, m.Name)
	}
	log.Info("Database schema updated.")
	return nil
}

func readVersion(ctx context.Context, db types.Querier) (int, error) {
	err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	result, err := db.Query(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer result.Close()
	var version int
	if result.Next() {
		if err := result.Scan(&version); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return version, errors.WithStack(result.Err())
}

// version is an int, so formatting it into the statement is safe and avoids dialect specific placeholders.
func setVersion(ctx context.Context, db types.Querier, version int) error {
	return errors.WithStack(db.Exec(ctx, fmt.Sprintf(`INSERT INTO schema_version (version) VALUES (%d)`, version)))
}
