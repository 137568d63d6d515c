package flatten

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopsearch/internal/types"
)

func newTestFlattener(strictness Strictness) *Flattener {
	return New(strictness, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFlattenFlatRecordPassesThrough(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten([]types.IncidentRecord{{
		"type":            "Person search",
		"involved_person": true,
		"age_range":       "18-24",
		"legislation":     nil,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, table.NumRows())

	assert.True(t, types.StringValue("Person search").Equal(table.Get(0, "type")))
	assert.True(t, types.BoolValue(true).Equal(table.Get(0, "involved_person")))
	assert.True(t, types.StringValue("18-24").Equal(table.Get(0, "age_range")))
	assert.True(t, table.Get(0, "legislation").IsNull(), "present null stays null, not absent")
}

func TestFlattenExpandsNestedRecords(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten([]types.IncidentRecord{{
		"type": "Person search",
		"outcome": map[string]any{
			"id":   "bu-no-further-action",
			"name": "A no further action disposal",
		},
		"location": map[string]any{
			"latitude":  "52.1",
			"longitude": "-1.9",
			"street": map[string]any{
				"id":   float64(883345),
				"name": "On or near Shopping Area",
			},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, table.NumRows())

	assert.True(t, types.StringValue("bu-no-further-action").Equal(table.Get(0, "outcome.id")))
	assert.True(t, types.NumberValue(883345).Equal(table.Get(0, "location.street.id")))
	assert.True(t, types.StringValue("On or near Shopping Area").Equal(table.Get(0, "location.street.name")))
	assert.NotContains(t, table.Columns, "outcome", "expanded objects do not keep their own column")
}

func TestFlattenColumnUnionWithAbsentSubRecord(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	// One record has an outcome sub-record, the other lacks it entirely.
	table, err := f.Flatten([]types.IncidentRecord{
		{
			"type":    "Person search",
			"outcome": map[string]any{"name": "Arrest"},
		},
		{
			"type": "Vehicle search",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, table.NumRows())
	require.Contains(t, table.Columns, "outcome.name")

	// Both rows carry the full column set; the missing cell is marked
	// absent, never omitted.
	for _, row := range table.Rows {
		assert.Len(t, row, len(table.Columns))
	}
	assert.True(t, types.StringValue("Arrest").Equal(table.Get(0, "outcome.name")))
	assert.True(t, table.Get(1, "outcome.name").IsAbsent())
}

func TestFlattenHeterogeneousOutcomeKeys(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten([]types.IncidentRecord{
		{"outcome": map[string]any{"id": "arrest"}},
		{"outcome": map[string]any{"name": "Caution"}},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"outcome.id", "outcome.name"}, table.Columns)
	assert.True(t, table.Get(0, "outcome.name").IsAbsent())
	assert.True(t, table.Get(1, "outcome.id").IsAbsent())
}

func TestFlattenIdempotentOnFlatInput(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	records := []types.IncidentRecord{
		{"a": "1", "b": float64(2)},
		{"a": "3", "b": float64(4)},
	}

	once, err := f.Flatten(records)
	require.NoError(t, err)

	// Re-flattening the flat output yields the same table.
	again := make([]types.IncidentRecord, 0, once.NumRows())
	for _, row := range once.Rows {
		rec := types.IncidentRecord{}
		for col, v := range row {
			rec[col] = v.Interface()
		}
		again = append(again, rec)
	}
	twice, err := f.Flatten(again)
	require.NoError(t, err)

	assert.Equal(t, once.Columns, twice.Columns)
	require.Equal(t, once.NumRows(), twice.NumRows())
	for i := range once.Rows {
		for _, col := range once.Columns {
			assert.True(t, once.Get(i, col).Equal(twice.Get(i, col)),
				"row %d column %s", i, col)
		}
	}
}

func TestFlattenRowOrderMatchesInput(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten([]types.IncidentRecord{
		{"seq": float64(0)},
		{"seq": float64(1)},
		{"seq": float64(2)},
	})
	require.NoError(t, err)
	require.Equal(t, 3, table.NumRows())
	for i := 0; i < 3; i++ {
		assert.True(t, types.NumberValue(float64(i)).Equal(table.Get(i, "seq")))
	}
}

func TestFlattenDeterministicColumnOrder(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	records := []types.IncidentRecord{
		{"b": "1", "a": "2"},
		{"c": "3"},
	}

	first, err := f.Flatten(records)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := f.Flatten(records)
		require.NoError(t, err)
		require.Equal(t, first.Columns, next.Columns)
	}
	// Columns from later records append after earlier ones.
	assert.Equal(t, []string{"a", "b", "c"}, first.Columns)
}

func TestFlattenMalformedRecordSkipAndWarn(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten([]types.IncidentRecord{
		{"type": "Person search"},
		{"operation_ids": []any{"a", "b"}}, // arrays violate the tolerated shape
		{"type": "Vehicle search"},
	})
	require.NoError(t, err)

	// The malformed record is dropped; the surrounding rows are intact.
	require.Equal(t, 2, table.NumRows())
	assert.True(t, types.StringValue("Person search").Equal(table.Get(0, "type")))
	assert.True(t, types.StringValue("Vehicle search").Equal(table.Get(1, "type")))
}

func TestFlattenMalformedRecordFailFast(t *testing.T) {
	f := newTestFlattener(FailFast)

	_, err := f.Flatten([]types.IncidentRecord{
		{"type": "Person search"},
		{"operation_ids": []any{"a"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeMalformedRecord, types.CodeOf(err))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.Details["record_index"])
}

func TestFlattenRejectsExcessiveNesting(t *testing.T) {
	f := newTestFlattener(FailFast)

	_, err := f.Flatten([]types.IncidentRecord{{
		"location": map[string]any{
			"street": map[string]any{
				"district": map[string]any{"name": "too deep"},
			},
		},
	}})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeMalformedRecord, types.CodeOf(err))
}

func TestFlattenEmptyInput(t *testing.T) {
	f := newTestFlattener(SkipAndWarn)

	table, err := f.Flatten(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, table.NumRows())
	assert.Empty(t, table.Columns)
}

func TestParseStrictness(t *testing.T) {
	assert.Equal(t, FailFast, ParseStrictness("fail"))
	assert.Equal(t, SkipAndWarn, ParseStrictness("skip"))
	assert.Equal(t, SkipAndWarn, ParseStrictness(""))
}
