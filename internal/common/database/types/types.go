package types

import "context"

// Querier executes statements against either a pool or an open transaction.
type Querier interface {
	// Exec executes a query that doesn't return rows. It returns any error encountered.
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a query that returns multiple rows.
	// It returns a DatabaseRows interface that allows you to iterate over the result set, and any error encountered.
	Query(ctx context.Context, sql string, args ...any) (DatabaseRows, error)
}

// DatabaseTx represents a database transaction that can also perform bulk insertions.
type DatabaseTx interface {
	Querier

	// CopyFrom performs a bulk insertion of data into a specified table.
	// It returns the number of rows inserted and any error encountered.
	CopyFrom(ctx context.Context, tableName string, columnNames []string, rows [][]any) (int64, error)
}

// DatabasePool represents a database handle shared by the whole process.
type DatabasePool interface {
	Querier

	// Ping pings the database to check the connection.
	Ping(ctx context.Context) error

	// BeginTxFunc starts a transaction and executes the given function within the transaction.
	// If the function runs successfully, BeginTxFunc commits the transaction, otherwise it rolls back and returns the error.
	BeginTxFunc(ctx context.Context, action func(DatabaseTx) error) error

	// Close releases every connection held by the pool.
	Close() error
}

// DatabaseRows represents an iterator over a result set.
type DatabaseRows interface {
	// Close closes the result set.
	Close()

	// Next moves the iterator to the next row in the result set, it returns false if the result set is exhausted, otherwise true.
	Next() bool

	// Err returns the error, if any, encountered during iteration over the result set.
	Err() error

	// Scan reads the values from the current row into dest values positionally.
	Scan(dest ...any) error
}
