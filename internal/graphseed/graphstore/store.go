// Package graphstore persists the generated property graph in a relational database: one table per node label
// keyed by idn and one table per relationship type keyed by (origin, destination).
package graphstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/socialseed/graphseed/internal/common/database"
	"github.com/socialseed/graphseed/internal/common/database/types"
	"github.com/socialseed/graphseed/internal/common/seederrors"
)

// Mapping describes how the columns of an artifact land in the store. Exactly one of Label and Edge is set.
type Mapping struct {
	Label string
	Edge  string
	// Rename maps artifact header names to property names where the two differ.
	Rename map[string]string
}

func NodeMapping(label string) Mapping {
	return Mapping{Label: label}
}

func EdgeMapping(edge string) Mapping {
	return Mapping{Edge: edge}
}

func (m Mapping) String() string {
	if m.Edge != "" {
		return m.Edge
	}
	return m.Label
}

func (m Mapping) property(header string) string {
	if renamed, ok := m.Rename[header]; ok {
		return renamed
	}
	return header
}

// EdgeKey identifies an edge row, and doubles as a keyset pagination cursor.
type EdgeKey struct {
	Origin      int64
	Destination int64
}

// TimestampPair carries the two endpoint timestamps a derivation interpolates between.
type TimestampPair struct {
	Key EdgeKey
	A   time.Time
	B   time.Time
}

type TimestampUpdate struct {
	Key   EdgeKey
	Value time.Time
}

// Store is the bulk-import and aggregate surface of the target graph.
type Store interface {
	Ping(ctx context.Context) error
	// EnsureSchema creates tables, uniqueness constraints and indexes if they don't yet exist.
	EnsureSchema(ctx context.Context) error
	// Reset removes every node and edge.
	Reset(ctx context.Context) error
	// ImportRows upserts rows in a single transaction. Edges whose endpoints don't exist are skipped and
	// edges that already exist are left untouched.
	ImportRows(ctx context.Context, m Mapping, columns []string, rows [][]any) error
	// Count returns the number of rows stored for a label or edge type.
	Count(ctx context.Context, name string) (int64, error)
	MaxIdn(ctx context.Context, label string) (int64, error)
	// UpdateDegree recomputes d for nodes with idn in [from, to] in a single transaction.
	UpdateDegree(ctx context.Context, d DegreeCount, from, to int64) error
	// TagContent appends a TagMarker token to the content of posts with idn in [from, to] for every hashtag they
	// are tagged with, in hashtag idn order. Posts whose content already holds a TagMarker are left as they are.
	TagContent(ctx context.Context, from, to int64) error
	// TimestampPairs returns up to limit edges of d ordered by key, starting after the given key. Edges where
	// either timestamp is null are skipped.
	TimestampPairs(ctx context.Context, d TimestampDerivation, after EdgeKey, limit int) ([]TimestampPair, EdgeKey, error)
	// WriteTimestamps applies updates in a single transaction.
	WriteTimestamps(ctx context.Context, d TimestampDerivation, updates []TimestampUpdate) error
	Close() error
}

// SQLStore implements Store on top of postgres or sqlite.
type SQLStore struct {
	db      types.DatabasePool
	dialect dialect
}

func NewPostgresStore(db types.DatabasePool) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect}
}

func NewSqliteStore(db types.DatabasePool) *SQLStore {
	return &SQLStore{db: db, dialect: sqliteDialect}
}

func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrations() []database.Migration {
	tables := make([]string, 0, len(labelOrder)+len(edgeOrder))
	indexes := make([]string, 0, len(edgeOrder))
	for _, name := range labelOrder {
		tables = append(tables, s.dialect.createLabelTable(labels[name]))
	}
	for _, name := range edgeOrder {
		tables = append(tables, s.dialect.createEdgeTable(edgeTypes[name]))
		indexes = append(indexes, s.dialect.createDestinationIndex(edgeTypes[name]))
	}
	return []database.Migration{
		{Id: 1, Name: "create node and edge tables", Sql: tables},
		{Id: 2, Name: "index edge destinations", Sql: indexes},
	}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	return database.UpdateDatabase(ctx, s.db, s.migrations())
}

func (s *SQLStore) Reset(ctx context.Context) error {
	return s.db.BeginTxFunc(ctx, func(tx types.DatabaseTx) error {
		for _, name := range edgeOrder {
			if err := tx.Exec(ctx, `DELETE FROM `+quote(edgeTypes[name].Table)); err != nil {
				return errors.WithStack(err)
			}
		}
		for _, name := range labelOrder {
			if err := tx.Exec(ctx, `DELETE FROM `+quote(labels[name].Table)); err != nil {
				return errors.WithStack(err)
			}
		}
		log.Info("Removed every node and edge from the graph store")
		return nil
	})
}

func (s *SQLStore) tableFor(name string) (string, error) {
	if l, ok := labels[name]; ok {
		return l.Table, nil
	}
	if e, ok := edgeTypes[name]; ok {
		return e.Table, nil
	}
	return "", &seederrors.ErrInvalidArgument{Name: "name", Value: name, Message: "neither a label nor an edge type"}
}

func (s *SQLStore) Count(ctx context.Context, name string) (int64, error) {
	table, err := s.tableFor(name)
	if err != nil {
		return 0, err
	}
	return s.queryInt(ctx, `SELECT COUNT(*) FROM `+quote(table))
}

func (s *SQLStore) MaxIdn(ctx context.Context, label string) (int64, error) {
	l, err := LookupLabel(label)
	if err != nil {
		return 0, err
	}
	return s.queryInt(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM %s`, quote(IdnColumn), quote(l.Table)))
}

func (s *SQLStore) queryInt(ctx context.Context, sql string, args ...any) (int64, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return n, errors.WithStack(rows.Err())
}

// resolveTarget resolves a mapping and its columns against the schema.
func resolveTarget(m Mapping, columns []string) (table string, cols []Column, edge *EdgeType, err error) {
	lookup := func(string) (Column, bool) { return Column{}, false }
	switch {
	case m.Label != "" && m.Edge == "":
		l, err := LookupLabel(m.Label)
		if err != nil {
			return "", nil, nil, err
		}
		table, lookup = l.Table, l.Column
	case m.Edge != "" && m.Label == "":
		e, err := LookupEdgeType(m.Edge)
		if err != nil {
			return "", nil, nil, err
		}
		table, lookup, edge = e.Table, e.Column, &e
	default:
		return "", nil, nil, &seederrors.ErrInvalidArgument{Name: "mapping", Value: m, Message: "exactly one of label and edge must be set"}
	}
	cols = make([]Column, len(columns))
	for i, name := range columns {
		c, ok := lookup(name)
		if !ok {
			return "", nil, nil, &seederrors.ErrInvalidArgument{Name: "column", Value: name, Message: fmt.Sprintf("not a property of %s", m)}
		}
		cols[i] = c
	}
	return table, cols, edge, nil
}

func (s *SQLStore) ImportRows(ctx context.Context, m Mapping, columns []string, rows [][]any) error {
	table, cols, edge, err := resolveTarget(m, columns)
	if err != nil {
		return seederrors.Permanent(err)
	}
	if len(rows) == 0 {
		return nil
	}
	encoded := make([][]any, len(rows))
	for i, row := range rows {
		encoded[i] = make([]any, len(row))
		for j, v := range row {
			if t, ok := v.(time.Time); ok {
				encoded[i][j] = s.dialect.encodeTime(t)
			} else {
				encoded[i][j] = v
			}
		}
	}

	stage := "stage_" + table
	var merge string
	if edge != nil {
		merge, err = s.mergeEdges(*edge, stage, columns)
	} else {
		merge, err = s.mergeNodes(table, stage, columns)
	}
	if err != nil {
		return seederrors.Permanent(err)
	}

	err = s.db.BeginTxFunc(ctx, func(tx types.DatabaseTx) error {
		for _, stmt := range s.dialect.stageTable(stage, s.dialect.stageColumns(cols)) {
			if err := tx.Exec(ctx, stmt); err != nil {
				return errors.WithMessage(err, "creating staging table")
			}
		}
		if _, err := tx.CopyFrom(ctx, stage, columns, encoded); err != nil {
			return errors.WithMessagef(err, "staging %d rows into %s", len(encoded), table)
		}
		if err := tx.Exec(ctx, merge); err != nil {
			return errors.WithMessagef(err, "merging into %s", table)
		}
		for _, stmt := range s.dialect.dropStage(stage) {
			if err := tx.Exec(ctx, stmt); err != nil {
				return errors.WithMessage(err, "dropping staging table")
			}
		}
		return nil
	})
	if database.IsUniqueViolation(err) {
		return alreadyExists(m, err)
	}
	return err
}

// alreadyExists reports a row whose unique property is held by another node. Importing it again would collide
// the same way, so it is permanent.
func alreadyExists(m Mapping, err error) error {
	return seederrors.Permanent(&seederrors.ErrAlreadyExists{Type: "unique property", Value: m.String(), Message: err.Error()})
}

// The WHERE clauses below are required by sqlite to tell ON CONFLICT apart from a join constraint.
func (s *SQLStore) mergeNodes(table, stage string, columns []string) (string, error) {
	hasIdn := false
	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == IdnColumn {
			hasIdn = true
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
	}
	if !hasIdn {
		return "", errors.Errorf("node artifact for %s has no %s column", table, IdnColumn)
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	cols := quoteAll(columns)
	return fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s) %s`,
		quote(table), cols, cols, quote(stage), quote(IdnColumn), conflict), nil
}

func (s *SQLStore) mergeEdges(e EdgeType, stage string, columns []string) (string, error) {
	hasOrigin, hasDestination := false, false
	selected := make([]string, len(columns))
	for i, c := range columns {
		hasOrigin = hasOrigin || c == OriginColumn
		hasDestination = hasDestination || c == DestinationColumn
		selected[i] = "s." + quote(c)
	}
	if !hasOrigin || !hasDestination {
		return "", errors.Errorf("edge artifact for %s needs %s and %s columns", e.Name, OriginColumn, DestinationColumn)
	}
	origin, destination := labels[e.Origin], labels[e.Destination]
	return fmt.Sprintf(`INSERT INTO %s (%s) SELECT DISTINCT %s FROM %s s `+
		`WHERE EXISTS (SELECT 1 FROM %s o WHERE o.%s = s.%s) `+
		`AND EXISTS (SELECT 1 FROM %s d WHERE d.%s = s.%s) `+
		`ON CONFLICT (%s, %s) DO NOTHING`,
		quote(e.Table), quoteAll(columns), strings.Join(selected, ", "), quote(stage),
		quote(origin.Table), quote(IdnColumn), quote(OriginColumn),
		quote(destination.Table), quote(IdnColumn), quote(DestinationColumn),
		quote(OriginColumn), quote(DestinationColumn)), nil
}

func resolveDegree(d DegreeCount) (Label, EdgeType, error) {
	l, err := LookupLabel(d.Label)
	if err != nil {
		return Label{}, EdgeType{}, err
	}
	e, err := LookupEdgeType(d.Edge)
	if err != nil {
		return Label{}, EdgeType{}, err
	}
	if _, ok := l.Column(d.Property); !ok {
		return Label{}, EdgeType{}, &seederrors.ErrInvalidArgument{Name: "property", Value: d.Property, Message: "not a property of " + d.Label}
	}
	return l, e, nil
}

func (s *SQLStore) TagContent(ctx context.Context, from, to int64) error {
	post, tagged, hashtag := labels[LabelPost], edgeTypes[EdgeTaggedWith], labels[LabelHashTag]
	self := quote(post.Table) + "." + quote(IdnColumn)
	edges := fmt.Sprintf("%s t WHERE t.%s = %s", quote(tagged.Table), quote(OriginColumn), self)
	names := fmt.Sprintf("%s t JOIN %s h ON h.%s = t.%s WHERE t.%s = %s",
		quote(tagged.Table), quote(hashtag.Table), quote(IdnColumn), quote(DestinationColumn), quote(OriginColumn), self)
	content := fmt.Sprintf("TRIM(COALESCE(%s, '') || %s)", quote(contentColumn), s.dialect.joinTags(names))

	sql, args, err := s.dialect.builder.
		Update(post.Table).
		Set(goqu.Record{contentColumn: goqu.L(content)}).
		Where(
			goqu.C(IdnColumn).Between(goqu.Range(from, to)),
			goqu.Or(goqu.C(contentColumn).IsNull(), goqu.C(contentColumn).NotLike("%"+TagMarker+"%")),
			goqu.L("EXISTS (SELECT 1 FROM "+edges+")"),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return errors.WithStack(err)
	}
	return s.db.BeginTxFunc(ctx, func(tx types.DatabaseTx) error {
		return errors.WithMessagef(tx.Exec(ctx, sql, args...), "tagging %s content", LabelPost)
	})
}

func (s *SQLStore) UpdateDegree(ctx context.Context, d DegreeCount, from, to int64) error {
	l, e, err := resolveDegree(d)
	if err != nil {
		return err
	}
	self := quote(l.Table) + "." + quote(IdnColumn)
	var cond string
	switch d.Direction {
	case Outgoing:
		cond = fmt.Sprintf("e.%s = %s", quote(OriginColumn), self)
	case Incoming:
		cond = fmt.Sprintf("e.%s = %s", quote(DestinationColumn), self)
	default:
		cond = fmt.Sprintf("e.%s = %s OR e.%s = %s", quote(OriginColumn), self, quote(DestinationColumn), self)
	}
	count := fmt.Sprintf("(SELECT COUNT(*) FROM %s e WHERE %s)", quote(e.Table), cond)

	sql, args, err := s.dialect.builder.
		Update(l.Table).
		Set(goqu.Record{d.Property: goqu.L(count)}).
		Where(goqu.C(IdnColumn).Between(goqu.Range(from, to))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return errors.WithStack(err)
	}
	return s.db.BeginTxFunc(ctx, func(tx types.DatabaseTx) error {
		return errors.WithMessagef(tx.Exec(ctx, sql, args...), "updating %s.%s", d.Label, d.Property)
	})
}

func resolveDerivation(d TimestampDerivation) (EdgeType, Label, Label, error) {
	e, err := LookupEdgeType(d.Edge)
	if err != nil {
		return EdgeType{}, Label{}, Label{}, err
	}
	origin, destination := labels[e.Origin], labels[e.Destination]
	if _, ok := origin.Column(d.OriginProperty); !ok {
		return e, origin, destination, &seederrors.ErrInvalidArgument{Name: "originProperty", Value: d.OriginProperty}
	}
	if _, ok := destination.Column(d.DestinationProperty); !ok {
		return e, origin, destination, &seederrors.ErrInvalidArgument{Name: "destinationProperty", Value: d.DestinationProperty}
	}
	var ok bool
	if d.Target == TargetOrigin {
		_, ok = origin.Column(d.Property)
	} else {
		_, ok = e.Column(d.Property)
	}
	if !ok {
		return e, origin, destination, &seederrors.ErrInvalidArgument{Name: "property", Value: d.Property}
	}
	return e, origin, destination, nil
}

func (s *SQLStore) TimestampPairs(ctx context.Context, d TimestampDerivation, after EdgeKey, limit int) ([]TimestampPair, EdgeKey, error) {
	e, origin, destination, err := resolveDerivation(d)
	if err != nil {
		return nil, after, err
	}
	sql, args, err := s.dialect.builder.
		From(goqu.T(e.Table).As("e")).
		Join(goqu.T(origin.Table).As("a"), goqu.On(goqu.I("a."+IdnColumn).Eq(goqu.I("e."+OriginColumn)))).
		Join(goqu.T(destination.Table).As("b"), goqu.On(goqu.I("b."+IdnColumn).Eq(goqu.I("e."+DestinationColumn)))).
		Select(
			goqu.I("e."+OriginColumn),
			goqu.I("e."+DestinationColumn),
			goqu.I("a."+d.OriginProperty),
			goqu.I("b."+d.DestinationProperty),
		).
		Where(goqu.Or(
			goqu.I("e."+OriginColumn).Gt(after.Origin),
			goqu.And(
				goqu.I("e."+OriginColumn).Eq(after.Origin),
				goqu.I("e."+DestinationColumn).Gt(after.Destination),
			),
		)).
		Order(goqu.I("e."+OriginColumn).Asc(), goqu.I("e."+DestinationColumn).Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, after, errors.WithStack(err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, after, errors.WithStack(err)
	}
	defer rows.Close()

	last := after
	pairs := make([]TimestampPair, 0, limit)
	for rows.Next() {
		var key EdgeKey
		var a, b any
		if err := rows.Scan(&key.Origin, &key.Destination, &a, &b); err != nil {
			return nil, after, errors.WithStack(err)
		}
		last = key
		ta, okA, err := decodeTime(a)
		if err != nil {
			return nil, after, err
		}
		tb, okB, err := decodeTime(b)
		if err != nil {
			return nil, after, err
		}
		if okA && okB {
			pairs = append(pairs, TimestampPair{Key: key, A: ta, B: tb})
		}
	}
	return pairs, last, errors.WithStack(rows.Err())
}

func (s *SQLStore) WriteTimestamps(ctx context.Context, d TimestampDerivation, updates []TimestampUpdate) error {
	e, origin, _, err := resolveDerivation(d)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.BeginTxFunc(ctx, func(tx types.DatabaseTx) error {
		for _, u := range updates {
			record := goqu.Record{d.Property: s.dialect.encodeTime(u.Value)}
			var ds *goqu.UpdateDataset
			if d.Target == TargetOrigin {
				ds = s.dialect.builder.Update(origin.Table).Set(record).
					Where(goqu.C(IdnColumn).Eq(u.Key.Origin))
			} else {
				ds = s.dialect.builder.Update(e.Table).Set(record).
					Where(goqu.C(OriginColumn).Eq(u.Key.Origin), goqu.C(DestinationColumn).Eq(u.Key.Destination))
			}
			sql, args, err := ds.Prepared(true).ToSQL()
			if err != nil {
				return errors.WithStack(err)
			}
			if err := tx.Exec(ctx, sql, args...); err != nil {
				return errors.WithMessagef(err, "writing %s.%s", d.Edge, d.Property)
			}
		}
		return nil
	})
}
