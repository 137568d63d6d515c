package types

// FlatRow maps a flattened column name (nested paths joined by ".") to a
// scalar Value. Rows produced by the flattener carry every table column,
// with AbsentValue filling the cells a record never had.
type FlatRow map[string]Value

// ResultTable is the accumulated tabular output of one retrieval call.
// Columns hold the union of all columns observed across all records, in
// first-seen order; Rows preserve input record order.
type ResultTable struct {
	Columns []string
	Rows    []FlatRow
}

// NumRows returns the number of rows.
func (t *ResultTable) NumRows() int {
	return len(t.Rows)
}

// Get returns the cell at row i for the named column. Cells a row does
// not carry come back as the absence marker.
func (t *ResultTable) Get(i int, column string) Value {
	if i < 0 || i >= len(t.Rows) {
		return AbsentValue()
	}
	if v, ok := t.Rows[i][column]; ok {
		return v
	}
	return AbsentValue()
}
