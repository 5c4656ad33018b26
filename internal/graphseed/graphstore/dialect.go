package graphstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
)

// timeLayout is how timestamps are stored where the database has no native type, and how they travel in artifacts.
const timeLayout = time.RFC3339

type dialect struct {
	name        string
	builder     goqu.DialectWrapper
	columnTypes map[ColumnType]string
	// stageTable returns the statements creating an empty, session local staging table.
	stageTable func(table, columns string) []string
	// dropStage returns the statements removing a staging table at the end of a transaction, if any are needed.
	dropStage  func(table string) []string
	encodeTime func(t time.Time) any
	// joinTags concatenates " #name" for the hashtags selected by from, a FROM clause aliasing hashtags as h.
	joinTags func(from string) string
}

var postgresDialect = dialect{
	name:    "postgres",
	builder: goqu.Dialect("postgres"),
	columnTypes: map[ColumnType]string{
		Integer:   "BIGINT",
		Text:      "TEXT",
		Boolean:   "BOOLEAN",
		Timestamp: "TIMESTAMP",
	},
	stageTable: func(table, columns string) []string {
		return []string{fmt.Sprintf(`CREATE TEMPORARY TABLE %s (%s) ON COMMIT DROP`, quote(table), columns)}
	},
	dropStage: func(string) []string { return nil },
	encodeTime: func(t time.Time) any {
		return t.UTC()
	},
	joinTags: func(from string) string {
		return fmt.Sprintf(`(SELECT string_agg(' %s' || h.%s, '' ORDER BY h.%s) FROM %s)`,
			TagMarker, quote(tagNameColumn), quote(IdnColumn), from)
	},
}

var sqliteDialect = dialect{
	name:    "sqlite3",
	builder: goqu.Dialect("sqlite3"),
	columnTypes: map[ColumnType]string{
		Integer:   "INTEGER",
		Text:      "TEXT",
		Boolean:   "BOOLEAN",
		Timestamp: "TEXT",
	},
	stageTable: func(table, columns string) []string {
		return []string{
			fmt.Sprintf(`DROP TABLE IF EXISTS temp.%s`, quote(table)),
			fmt.Sprintf(`CREATE TEMP TABLE %s (%s)`, quote(table), columns),
		}
	},
	dropStage: func(table string) []string {
		return []string{fmt.Sprintf(`DROP TABLE IF EXISTS temp.%s`, quote(table))}
	},
	encodeTime: func(t time.Time) any {
		return t.UTC().Format(timeLayout)
	},
	joinTags: func(from string) string {
		return fmt.Sprintf(`(SELECT group_concat(tag, '') FROM (SELECT ' %s' || h.%s AS tag FROM %s ORDER BY h.%s))`,
			TagMarker, quote(tagNameColumn), from, quote(IdnColumn))
	},
}

// quote renders an allow-listed identifier.
func quote(name string) string {
	return `"` + name + `"`
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

func (d dialect) columnDDL(c Column) string {
	ddl := quote(c.Name) + " " + d.columnTypes[c.Type]
	if c.Derived && c.Type == Integer {
		ddl += " NOT NULL DEFAULT 0"
	}
	if c.Unique {
		ddl += " UNIQUE"
	}
	return ddl
}

func (d dialect) createLabelTable(l Label) string {
	defs := make([]string, 0, len(l.Columns))
	for _, c := range l.Columns {
		if c.Name == IdnColumn {
			defs = append(defs, quote(c.Name)+" "+d.columnTypes[Integer]+" PRIMARY KEY")
			continue
		}
		defs = append(defs, d.columnDDL(c))
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quote(l.Table), strings.Join(defs, ", "))
}

func (d dialect) createEdgeTable(e EdgeType) string {
	defs := []string{
		quote(OriginColumn) + " " + d.columnTypes[Integer] + " NOT NULL",
		quote(DestinationColumn) + " " + d.columnTypes[Integer] + " NOT NULL",
	}
	for _, c := range e.Properties {
		defs = append(defs, d.columnDDL(c))
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s, %s)", quote(OriginColumn), quote(DestinationColumn)))
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quote(e.Table), strings.Join(defs, ", "))
}

func (d dialect) createDestinationIndex(e EdgeType) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
		quote(e.Table+"_destination_idx"), quote(e.Table), quote(DestinationColumn))
}

func (d dialect) stageColumns(columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c.Name) + " " + d.columnTypes[c.Type]
	}
	return strings.Join(defs, ", ")
}

// decodeTime accepts whatever the driver hands back for a timestamp column.
func decodeTime(src any) (time.Time, bool, error) {
	switch v := src.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v.UTC(), true, nil
	case string:
		t, err := time.Parse(timeLayout, v)
		return t.UTC(), err == nil, errors.WithStack(err)
	case []byte:
		t, err := time.Parse(timeLayout, string(v))
		return t.UTC(), err == nil, errors.WithStack(err)
	default:
		return time.Time{}, false, errors.Errorf("cannot decode %T as a timestamp", src)
	}
}
