package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	dbtypes "github.com/socialseed/graphseed/internal/common/database/types"
)

type PoolAdapter struct {
	*pgxpool.Pool
}

func (p PoolAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.Pool.Exec(ctx, sql, args...)
	return err
}

func (p PoolAdapter) Query(ctx context.Context, sql string, args ...any) (dbtypes.DatabaseRows, error) {
	return p.Pool.Query(ctx, sql, args...)
}

func (p PoolAdapter) BeginTxFunc(ctx context.Context, action func(dbtypes.DatabaseTx) error) error {
	return p.Pool.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}, func(tx pgx.Tx) error {
		return action(TxAdapter{Tx: tx})
	})
}

func (p PoolAdapter) Close() error {
	p.Pool.Close()
	return nil
}

type TxAdapter struct {
	pgx.Tx
}

func (t TxAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.Tx.Exec(ctx, sql, args...)
	return err
}

func (t TxAdapter) Query(ctx context.Context, sql string, args ...any) (dbtypes.DatabaseRows, error) {
	return t.Tx.Query(ctx, sql, args...)
}

func (t TxAdapter) CopyFrom(ctx context.Context, tableName string, columnNames []string, rows [][]any) (int64, error) {
	return t.Tx.CopyFrom(ctx, pgx.Identifier{tableName}, columnNames, pgx.CopyFromRows(rows))
}
