package tabularsource

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// XLSXReader adapts the first worksheet of an XLSX workbook to Reader,
// with the first row treated as the header — the same "header row
// required" convention CSVReader uses. excelize loads a sheet's rows
// fully into memory, so there is no streaming path to parallel the
// CSV/Parquet readers' incremental Rows. Nothing is cached: Schema and
// Rows each open the workbook and read the sheet in full.
type XLSXReader struct {
	Path  string
	Sheet string // empty means the workbook's first sheet
}

func NewXLSXReader(path string) *XLSXReader {
	return &XLSXReader{Path: path}
}

func (r *XLSXReader) readSheet() ([][]string, error) {
	f, err := excelize.OpenFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", r.Path, err)
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx: sheet %q has no header row", sheet)
	}
	return rows, nil
}

func (r *XLSXReader) Schema(ctx context.Context) (tabular.Schema, error) {
	rows, err := r.readSheet()
	if err != nil {
		return nil, err
	}
	header := rows[0]
	schema := make(tabular.Schema, len(header))
	for i, name := range header {
		schema[i] = tabular.Column{Name: name, DataType: "string", Nullable: true}
	}
	return schema, nil
}

func (r *XLSXReader) Rows(ctx context.Context, emit func(tabular.Row) error) error {
	rows, err := r.readSheet()
	if err != nil {
		return err
	}
	width := len(rows[0])

	for _, record := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make(tabular.Row, width)
		for i := 0; i < width; i++ {
			if i < len(record) {
				row[i] = record[i]
			}
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}
