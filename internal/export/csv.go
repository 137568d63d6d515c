// Package export serializes a ResultTable to a delimited tabular file.
// String coercion of scalar values happens here and nowhere earlier; the
// in-memory table keeps original JSON types.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"stopsearch/internal/types"
)

// Options controls tabular output.
type Options struct {
	// AbsentMarker is written for cells whose column the record never
	// had. Present-but-null fields always render as the empty string.
	AbsentMarker string
	// IncludeIndex prepends a zero-based row-index column.
	IncludeIndex bool
}

// indexColumn is the header of the optional row-index column.
const indexColumn = "index"

// WriteCSV writes the table as comma-separated values: one header row,
// then one row per incident in table order.
func WriteCSV(w io.Writer, table *types.ResultTable, opts Options) error {
	cw := csv.NewWriter(w)

	header := table.Columns
	if opts.IncludeIndex {
		header = append([]string{indexColumn}, table.Columns...)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, 0, len(header))
	for i, row := range table.Rows {
		record = record[:0]
		if opts.IncludeIndex {
			record = append(record, strconv.Itoa(i))
		}
		for _, col := range table.Columns {
			record = append(record, row[col].Render(opts.AbsentMarker))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to the file at path, creating or
// truncating it.
func WriteCSVFile(path string, table *types.ResultTable, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := WriteCSV(f, table, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
