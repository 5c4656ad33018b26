package graphstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/socialseed/graphseed/internal/common/seederrors"
	"github.com/socialseed/graphseed/internal/common/util"
	"github.com/socialseed/graphseed/internal/graphseed/artifact"
)

const DefaultChunkSize = 1000

// Importer bulk-loads artifacts into a Store, one chunk per transaction.
type Importer struct {
	store     Store
	artifacts *artifact.Store
	chunkSize int
}

func NewImporter(store Store, artifacts *artifact.Store, chunkSize int) *Importer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Importer{store: store, artifacts: artifacts, chunkSize: chunkSize}
}

// Import loads the artifact at ref. Problems with the artifact itself are returned as *seederrors.ErrPermanent;
// anything the store reports is left retryable. Chunks committed before a failure are upserted again on retry.
func (i *Importer) Import(ctx context.Context, ref string, m Mapping) error {
	header, records, err := i.artifacts.Read(ref)
	if err != nil {
		return seederrors.Permanent(err)
	}
	columns, types, err := resolveColumns(m, header)
	if err != nil {
		return seederrors.Permanent(errors.WithMessagef(err, "artifact %s", ref))
	}
	rows := make([][]any, len(records))
	for r, record := range records {
		if len(record) != len(columns) {
			return seederrors.Permanent(errors.Errorf("artifact %s row %d has %d fields, expected %d", ref, r+1, len(record), len(columns)))
		}
		row := make([]any, len(record))
		for c, field := range record {
			v, err := parseField(field, types[c])
			if err != nil {
				return seederrors.Permanent(errors.WithMessagef(err, "artifact %s row %d column %s", ref, r+1, columns[c]))
			}
			row[c] = v
		}
		rows[r] = row
	}
	for n, chunk := range util.Batch(rows, i.chunkSize) {
		if err := i.store.ImportRows(ctx, m, columns, chunk); err != nil {
			return errors.WithMessagef(err, "importing chunk %d of %s", n, ref)
		}
	}
	return nil
}

func resolveColumns(m Mapping, header []string) ([]string, []ColumnType, error) {
	var lookup func(string) (Column, bool)
	switch {
	case m.Label != "" && m.Edge == "":
		l, err := LookupLabel(m.Label)
		if err != nil {
			return nil, nil, err
		}
		lookup = l.Column
	case m.Edge != "" && m.Label == "":
		e, err := LookupEdgeType(m.Edge)
		if err != nil {
			return nil, nil, err
		}
		lookup = e.Column
	default:
		return nil, nil, &seederrors.ErrInvalidArgument{Name: "mapping", Value: m, Message: "exactly one of label and edge must be set"}
	}
	columns := make([]string, len(header))
	types := make([]ColumnType, len(header))
	for i, h := range header {
		columns[i] = m.property(h)
		c, ok := lookup(columns[i])
		if !ok {
			return nil, nil, &seederrors.ErrInvalidArgument{Name: "column", Value: h, Message: "not a property of " + m.String()}
		}
		types[i] = c.Type
	}
	return columns, types, nil
}

// An empty field is a null.
func parseField(field string, t ColumnType) (any, error) {
	if field == "" && t != Text {
		return nil, nil
	}
	switch t {
	case Integer:
		return strconv.ParseInt(field, 10, 64)
	case Boolean:
		return strconv.ParseBool(field)
	case Timestamp:
		return time.Parse(timeLayout, field)
	default:
		return field, nil
	}
}

// FormatTime renders a timestamp the way artifacts store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
