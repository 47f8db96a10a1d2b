package tabularsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// CSVReader adapts a CSV file (header row required) to Reader. Every cell
// is surfaced to tabular.Canon as a string, so CSV sources never carry
// richer typing than "string" — that's the nature of the format, not a
// limitation this adapter introduces.
type CSVReader struct {
	Path  string
	Comma rune
}

func NewCSVReader(path string) *CSVReader {
	return &CSVReader{Path: path, Comma: ','}
}

func (r *CSVReader) open() (*csv.Reader, *os.File, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("csv: open %s: %w", r.Path, err)
	}

	// Strip a leading UTF-8 BOM, if present, instead of letting it land in
	// the first header cell's name — a BOM-emitting source (spreadsheet
	// exports especially) must not rename a workspace's first column.
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	if r.Comma != 0 {
		cr.Comma = r.Comma
	}
	cr.FieldsPerRecord = -1
	return cr, f, nil
}

func (r *CSVReader) Schema(ctx context.Context) (tabular.Schema, error) {
	cr, f, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	schema := make(tabular.Schema, len(header))
	for i, name := range header {
		schema[i] = tabular.Column{Name: name, DataType: "string", Nullable: true}
	}
	return schema, nil
}

func (r *CSVReader) Rows(ctx context.Context, emit func(tabular.Row) error) error {
	cr, f, err := r.open()
	if err != nil {
		return err
	}
	defer f.Close()

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("csv: read header: %w", err)
	}
	width := len(header)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv: read row: %w", err)
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
}

// WriteCSV rewrites path with schema's column names as a header followed
// by rows, always as CSV regardless of the original source format — the
// rollback command's target state, per the original implementation, is
// always materialized as CSV content on disk.
func WriteCSV(path string, schema tabular.Schema, rows []tabular.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(schema.Names()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, r := range rows {
		record := make([]string, len(schema))
		for i := range schema {
			if i < len(r) {
				record[i] = r[i]
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
