package sqlite

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"

	dbtypes "github.com/socialseed/graphseed/internal/common/database/types"
	"github.com/socialseed/graphseed/internal/common/util"
)

// maxVariables stays under SQLITE_MAX_VARIABLE_NUMBER for the bundled sqlite build.
const maxVariables = 32000

var dialect = goqu.Dialect("sqlite3")

type DBAdapter struct {
	*sql.DB
}

func (d DBAdapter) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.DB.ExecContext(ctx, query, args...)
	return err
}

func (d DBAdapter) Query(ctx context.Context, query string, args ...any) (dbtypes.DatabaseRows, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

func (d DBAdapter) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

func (d DBAdapter) BeginTxFunc(ctx context.Context, action func(dbtypes.DatabaseTx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := action(TxAdapter{Tx: tx}); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.WithMessagef(err, "rollback also failed: %s", rollbackErr)
		}
		return err
	}
	return tx.Commit()
}

type TxAdapter struct {
	*sql.Tx
}

func (t TxAdapter) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.Tx.ExecContext(ctx, query, args...)
	return err
}

func (t TxAdapter) Query(ctx context.Context, query string, args ...any) (dbtypes.DatabaseRows, error) {
	rows, err := t.Tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

// CopyFrom emulates a bulk copy with multi-row inserts sized to the variable limit.
func (t TxAdapter) CopyFrom(ctx context.Context, tableName string, columnNames []string, rows [][]any) (int64, error) {
	if len(rows) == 0 || len(columnNames) == 0 {
		return 0, nil
	}
	cols := make([]any, len(columnNames))
	for i, c := range columnNames {
		cols[i] = c
	}
	rowsPerInsert := maxVariables / len(columnNames)
	if rowsPerInsert < 1 {
		rowsPerInsert = 1
	}
	var inserted int64
	for _, batch := range util.Batch(rows, rowsPerInsert) {
		query, args, err := dialect.Insert(tableName).Cols(cols...).Vals(batch...).Prepared(true).ToSQL()
		if err != nil {
			return inserted, errors.WithStack(err)
		}
		res, err := t.Tx.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, errors.WithStack(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, errors.WithStack(err)
		}
		inserted += n
	}
	return inserted, nil
}

type rowsAdapter struct {
	rows *sql.Rows
}

func (r *rowsAdapter) Close() {
	_ = r.rows.Close()
}

func (r *rowsAdapter) Next() bool {
	return r.rows.Next()
}

func (r *rowsAdapter) Err() error {
	return r.rows.Err()
}

func (r *rowsAdapter) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}
