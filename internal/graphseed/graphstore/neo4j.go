package graphstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/socialseed/graphseed/internal/common/config"
	"github.com/socialseed/graphseed/internal/common/seederrors"
)

const (
	neo4jConstraintFailed = "Neo.ClientError.Schema.ConstraintValidationFailed"
	neo4jResetBatch       = 10000
)

// Neo4jStore implements Store on a Neo4j database. Labels, relationship types and property names are taken from
// the schema allow-list; every row-level value is a bound parameter.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

// OpenNeo4j creates a driver for the configured server. Connections are made lazily.
func OpenNeo4j(config config.Neo4jConfig) (*Neo4jStore, error) {
	auth := neo4j.NoAuth()
	if config.Username != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(config.Uri, auth)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewNeo4jStore(driver, config.Database), nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	return errors.WithStack(s.driver.VerifyConnectivity(ctx))
}

func (s *Neo4jStore) Close() error {
	return errors.WithStack(s.driver.Close(context.Background()))
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// write runs work in a single managed write transaction.
func (s *Neo4jStore) write(ctx context.Context, work func(tx neo4j.ManagedTransaction) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(tx)
	})
	return err
}

func (s *Neo4jStore) read(ctx context.Context, work func(tx neo4j.ManagedTransaction) error) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(tx)
	})
	return err
}

func runCypher(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func (s *Neo4jStore) queryInt(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	var n int64
	err := s.read(ctx, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return err
		}
		v, _ := record.Get("n")
		n, _ = v.(int64)
		return nil
	})
	return n, errors.WithStack(err)
}

// EnsureSchema creates one uniqueness constraint per idn and per unique property. Schema changes can't share a
// transaction with each other, so every constraint gets its own.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range neo4jConstraints() {
		if err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
			return runCypher(ctx, tx, stmt, nil)
		}); err != nil {
			return errors.WithMessagef(err, "running %q", stmt)
		}
	}
	return nil
}

func (s *Neo4jStore) Reset(ctx context.Context) error {
	for _, name := range labelOrder {
		cypher := fmt.Sprintf("MATCH (n:%s) WITH n LIMIT %d DETACH DELETE n RETURN count(*) AS n", cypherName(name), neo4jResetBatch)
		for {
			var deleted int64
			err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
				result, err := tx.Run(ctx, cypher, nil)
				if err != nil {
					return err
				}
				record, err := result.Single(ctx)
				if err != nil {
					return err
				}
				v, _ := record.Get("n")
				deleted, _ = v.(int64)
				return nil
			})
			if err != nil {
				return errors.WithMessagef(err, "removing %s nodes", name)
			}
			if deleted == 0 {
				break
			}
		}
	}
	log.Info("Removed every node and edge from the graph store")
	return nil
}

func (s *Neo4jStore) Count(ctx context.Context, name string) (int64, error) {
	if _, ok := labels[name]; ok {
		return s.queryInt(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS n", cypherName(name)), nil)
	}
	if _, ok := edgeTypes[name]; ok {
		return s.queryInt(ctx, fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS n", cypherName(name)), nil)
	}
	return 0, &seederrors.ErrInvalidArgument{Name: "name", Value: name, Message: "neither a label nor an edge type"}
}

func (s *Neo4jStore) MaxIdn(ctx context.Context, label string) (int64, error) {
	if _, err := LookupLabel(label); err != nil {
		return 0, err
	}
	return s.queryInt(ctx, fmt.Sprintf("MATCH (n:%s) RETURN coalesce(max(n.%s), 0) AS n", cypherName(label), cypherName(IdnColumn)), nil)
}

func (s *Neo4jStore) ImportRows(ctx context.Context, m Mapping, columns []string, rows [][]any) error {
	cypher, err := neo4jImportCypher(m, columns)
	if err != nil {
		return seederrors.Permanent(err)
	}
	if len(rows) == 0 {
		return nil
	}
	err = s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		return runCypher(ctx, tx, cypher, map[string]any{"rows": neo4jRows(columns, rows)})
	})
	if isNeo4jConstraintViolation(err) {
		return alreadyExists(m, err)
	}
	return errors.WithMessagef(err, "merging into %s", m)
}

func (s *Neo4jStore) UpdateDegree(ctx context.Context, d DegreeCount, from, to int64) error {
	cypher, err := neo4jDegreeCypher(d)
	if err != nil {
		return err
	}
	err = s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		return runCypher(ctx, tx, cypher, map[string]any{"from": from, "to": to})
	})
	return errors.WithMessagef(err, "updating %s.%s", d.Label, d.Property)
}

func (s *Neo4jStore) TagContent(ctx context.Context, from, to int64) error {
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		return runCypher(ctx, tx, neo4jTagContentCypher(), map[string]any{"from": from, "to": to})
	})
	return errors.WithMessagef(err, "tagging %s content", LabelPost)
}

func (s *Neo4jStore) TimestampPairs(ctx context.Context, d TimestampDerivation, after EdgeKey, limit int) ([]TimestampPair, EdgeKey, error) {
	cypher, err := neo4jPairsCypher(d)
	if err != nil {
		return nil, after, err
	}
	params := map[string]any{"origin": after.Origin, "destination": after.Destination, "limit": int64(limit)}

	last := after
	pairs := make([]TimestampPair, 0, limit)
	err = s.read(ctx, func(tx neo4j.ManagedTransaction) error {
		// A retried transaction starts over.
		last, pairs = after, pairs[:0]
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		for result.Next(ctx) {
			record := result.Record()
			origin, _ := record.Get("origin")
			destination, _ := record.Get("destination")
			key := EdgeKey{Origin: origin.(int64), Destination: destination.(int64)}
			last = key
			a, _ := record.Get("a")
			b, _ := record.Get("b")
			ta, okA, err := decodeTime(a)
			if err != nil {
				return err
			}
			tb, okB, err := decodeTime(b)
			if err != nil {
				return err
			}
			if okA && okB {
				pairs = append(pairs, TimestampPair{Key: key, A: ta, B: tb})
			}
		}
		return result.Err()
	})
	if err != nil {
		return nil, after, errors.WithStack(err)
	}
	return pairs, last, nil
}

func (s *Neo4jStore) WriteTimestamps(ctx context.Context, d TimestampDerivation, updates []TimestampUpdate) error {
	cypher, err := neo4jWriteTimestampsCypher(d)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	params := make([]any, len(updates))
	for i, u := range updates {
		params[i] = map[string]any{
			OriginColumn:      u.Key.Origin,
			DestinationColumn: u.Key.Destination,
			"value":           u.Value.UTC(),
		}
	}
	err = s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		return runCypher(ctx, tx, cypher, map[string]any{"updates": params})
	})
	return errors.WithMessagef(err, "writing %s.%s", d.Edge, d.Property)
}

func isNeo4jConstraintViolation(err error) bool {
	var neo4jErr *neo4j.Neo4jError
	return errors.As(err, &neo4jErr) && neo4jErr.Code == neo4jConstraintFailed
}

// cypherName renders an allow-listed identifier.
func cypherName(name string) string {
	return "`" + name + "`"
}

func neo4jConstraints() []string {
	var stmts []string
	for _, name := range labelOrder {
		l := labels[name]
		for _, c := range l.Columns {
			if c.Name != IdnColumn && !c.Unique {
				continue
			}
			stmts = append(stmts, fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
				cypherName(l.Table+"_"+c.Name), cypherName(l.Name), cypherName(c.Name)))
		}
	}
	return stmts
}

// neo4jRows turns positional rows into the maps UNWIND binds as row.
func neo4jRows(columns []string, rows [][]any) []any {
	maps := make([]any, len(rows))
	for i, row := range rows {
		props := make(map[string]any, len(columns))
		for j, c := range columns {
			if t, ok := row[j].(time.Time); ok {
				props[c] = t.UTC()
			} else {
				props[c] = row[j]
			}
		}
		maps[i] = props
	}
	return maps
}

// neo4jImportCypher merges nodes on idn, or edges on their endpoints. Edges whose endpoints don't match a node are
// dropped by the MATCH, and existing edges are left untouched.
func neo4jImportCypher(m Mapping, columns []string) (string, error) {
	_, _, edge, err := resolveTarget(m, columns)
	if err != nil {
		return "", err
	}
	if edge == nil {
		return neo4jMergeNodes(m.Label, columns)
	}
	return neo4jMergeEdges(*edge, columns)
}

func neo4jMergeNodes(label string, columns []string) (string, error) {
	hasIdn := false
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == IdnColumn {
			hasIdn = true
			continue
		}
		sets = append(sets, fmt.Sprintf("n.%s = row.%s", cypherName(c), cypherName(c)))
	}
	if !hasIdn {
		return "", errors.Errorf("node artifact for %s has no %s column", label, IdnColumn)
	}
	var defaults []string
	for _, c := range labels[label].Columns {
		if c.Derived && c.Type == Integer {
			defaults = append(defaults, fmt.Sprintf("n.%s = 0", cypherName(c.Name)))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "UNWIND $rows AS row MERGE (n:%s {%s: row.%s})", cypherName(label), cypherName(IdnColumn), cypherName(IdnColumn))
	if len(defaults) > 0 {
		b.WriteString(" ON CREATE SET " + strings.Join(defaults, ", "))
	}
	if len(sets) > 0 {
		b.WriteString(" SET " + strings.Join(sets, ", "))
	}
	return b.String(), nil
}

func neo4jMergeEdges(e EdgeType, columns []string) (string, error) {
	hasOrigin, hasDestination := false, false
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		switch c {
		case OriginColumn:
			hasOrigin = true
		case DestinationColumn:
			hasDestination = true
		default:
			sets = append(sets, fmt.Sprintf("r.%s = row.%s", cypherName(c), cypherName(c)))
		}
	}
	if !hasOrigin || !hasDestination {
		return "", errors.Errorf("edge artifact for %s needs %s and %s columns", e.Name, OriginColumn, DestinationColumn)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "UNWIND $rows AS row MATCH (a:%s {%s: row.%s}) MATCH (b:%s {%s: row.%s}) MERGE (a)-[r:%s]->(b)",
		cypherName(e.Origin), cypherName(IdnColumn), cypherName(OriginColumn),
		cypherName(e.Destination), cypherName(IdnColumn), cypherName(DestinationColumn),
		cypherName(e.Name))
	if len(sets) > 0 {
		b.WriteString(" ON CREATE SET " + strings.Join(sets, ", "))
	}
	return b.String(), nil
}

func neo4jDegreeCypher(d DegreeCount) (string, error) {
	l, e, err := resolveDegree(d)
	if err != nil {
		return "", err
	}
	var pattern string
	switch d.Direction {
	case Outgoing:
		pattern = fmt.Sprintf("(n)-[:%s]->()", cypherName(e.Name))
	case Incoming:
		pattern = fmt.Sprintf("(n)<-[:%s]-()", cypherName(e.Name))
	default:
		pattern = fmt.Sprintf("(n)-[:%s]-()", cypherName(e.Name))
	}
	idn := cypherName(IdnColumn)
	return fmt.Sprintf("MATCH (n:%s) WHERE n.%s >= $from AND n.%s <= $to SET n.%s = size([%s | 1])",
		cypherName(l.Name), idn, idn, cypherName(d.Property), pattern), nil
}

func neo4jTagContentCypher() string {
	idn, content, name := cypherName(IdnColumn), cypherName(contentColumn), cypherName(tagNameColumn)
	return fmt.Sprintf("MATCH (p:%s) WHERE p.%s >= $from AND p.%s <= $to AND (p.%s IS NULL OR NOT p.%s CONTAINS '%s') "+
		"MATCH (p)-[:%s]->(h:%s) WITH p, h ORDER BY h.%s "+
		"WITH p, collect(h.%s) AS tags "+
		"SET p.%s = trim(coalesce(p.%s, '') + reduce(s = '', t IN tags | s + ' %s' + t))",
		cypherName(LabelPost), idn, idn, content, content, TagMarker,
		cypherName(EdgeTaggedWith), cypherName(LabelHashTag), idn,
		name,
		content, content, TagMarker)
}

// neo4jPairsCypher pages through the edges of a derivation in (origin, destination) order.
func neo4jPairsCypher(d TimestampDerivation) (string, error) {
	e, origin, destination, err := resolveDerivation(d)
	if err != nil {
		return "", err
	}
	idn := cypherName(IdnColumn)
	return fmt.Sprintf("MATCH (a:%s)-[:%s]->(b:%s) "+
		"WHERE a.%s > $origin OR (a.%s = $origin AND b.%s > $destination) "+
		"RETURN a.%s AS origin, b.%s AS destination, a.%s AS a, b.%s AS b "+
		"ORDER BY origin, destination LIMIT $limit",
		cypherName(origin.Name), cypherName(e.Name), cypherName(destination.Name),
		idn, idn, idn,
		idn, idn, cypherName(d.OriginProperty), cypherName(d.DestinationProperty)), nil
}

func neo4jWriteTimestampsCypher(d TimestampDerivation) (string, error) {
	e, origin, destination, err := resolveDerivation(d)
	if err != nil {
		return "", err
	}
	idn := cypherName(IdnColumn)
	if d.Target == TargetOrigin {
		return fmt.Sprintf("UNWIND $updates AS u MATCH (a:%s {%s: u.%s}) SET a.%s = u.value",
			cypherName(origin.Name), idn, cypherName(OriginColumn), cypherName(d.Property)), nil
	}
	return fmt.Sprintf("UNWIND $updates AS u MATCH (a:%s {%s: u.%s})-[r:%s]->(b:%s {%s: u.%s}) SET r.%s = u.value",
		cypherName(origin.Name), idn, cypherName(OriginColumn), cypherName(e.Name),
		cypherName(destination.Name), idn, cypherName(DestinationColumn), cypherName(d.Property)), nil
}
