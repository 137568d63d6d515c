// Package flatten converts heterogeneous nested incident records into a
// uniform tabular representation. Nested objects expand into flat columns
// named by joining the key path with a separator; the output column set
// is the union of everything observed, with explicit absence markers for
// cells a record never had.
package flatten

import (
	"fmt"
	"log/slog"
	"sort"

	"stopsearch/internal/types"
)

// Separator joins nested key paths into flat column names, e.g.
// "location.street.name".
const Separator = "."

// MaxDepth is the deepest tolerated object nesting. The upstream schema
// nests at most three levels (record, outcome/location, street); anything
// deeper is treated as a schema violation.
const MaxDepth = 3

// Strictness selects the malformed-record policy.
type Strictness int

const (
	// SkipAndWarn drops the offending record with a logged warning and
	// keeps flattening. Other rows are never affected. This is the
	// default.
	SkipAndWarn Strictness = iota
	// FailFast aborts the whole flatten on the first malformed record.
	FailFast
)

// ParseStrictness maps the config strings "skip" and "fail" onto a
// Strictness. Unknown values fall back to SkipAndWarn.
func ParseStrictness(s string) Strictness {
	if s == "fail" {
		return FailFast
	}
	return SkipAndWarn
}

// Flattener expands incident records into a ResultTable.
type Flattener struct {
	strictness Strictness
	logger     *slog.Logger
}

// New creates a Flattener with the given strictness.
func New(strictness Strictness, logger *slog.Logger) *Flattener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flattener{
		strictness: strictness,
		logger:     logger,
	}
}

// Flatten expands every record and assembles the result table. Columns
// are registered in first-seen order (keys within a record are walked in
// sorted order, so the result is deterministic); rows preserve input
// order. Every row carries every column, with AbsentValue filling cells
// the record never had.
//
// A record whose shape violates the tolerated nesting (an array value, or
// objects deeper than MaxDepth) is either skipped with a warning or fails
// the whole call, depending on strictness.
func (f *Flattener) Flatten(records []types.IncidentRecord) (*types.ResultTable, error) {
	table := &types.ResultTable{}
	seen := make(map[string]struct{})

	for i, record := range records {
		row := make(types.FlatRow)
		if err := flattenInto(row, "", map[string]any(record), 1); err != nil {
			if f.strictness == FailFast {
				return nil, wrapMalformed(err, i)
			}
			f.logger.Warn("dropping malformed record",
				"record_index", i,
				"error", err,
			)
			continue
		}

		for _, col := range sortedKeys(row) {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				table.Columns = append(table.Columns, col)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	// Uniform row shape: fill the union columns a record lacked.
	for _, row := range table.Rows {
		for _, col := range table.Columns {
			if _, ok := row[col]; !ok {
				row[col] = types.AbsentValue()
			}
		}
	}

	return table, nil
}

// flattenInto is the recursive descent over the scalar/null/object union.
// prefix carries the joined key path of enclosing objects.
func flattenInto(row types.FlatRow, prefix string, obj map[string]any, depth int) error {
	for _, key := range sortedMapKeys(obj) {
		name := key
		if prefix != "" {
			name = prefix + Separator + key
		}

		switch v := obj[key].(type) {
		case map[string]any:
			if depth >= MaxDepth {
				return fmt.Errorf("field %q nests deeper than %d levels", name, MaxDepth)
			}
			if err := flattenInto(row, name, v, depth+1); err != nil {
				return err
			}
		default:
			value, ok := types.ValueOf(v)
			if !ok {
				return fmt.Errorf("field %q has unsupported shape %T", name, v)
			}
			row[name] = value
		}
	}
	return nil
}

func wrapMalformed(err error, index int) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeMalformedRecord,
		"record violates the tolerated nesting shape",
		err,
		map[string]any{"record_index": index},
	)
}

func sortedKeys(row types.FlatRow) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
