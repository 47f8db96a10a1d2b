package tabularsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// JSONLReader adapts a newline-delimited JSON file (one object per line) to
// Reader. A plain JSON array of objects is also accepted: the decoder
// detects which shape it's looking at from the first non-whitespace byte.
//
// The schema is inferred from the UNION of keys across every row, sorted
// for determinism, since JSON objects carry no declared column order and
// rows may have missing keys.
type JSONLReader struct {
	Path string
}

func NewJSONLReader(path string) *JSONLReader {
	return &JSONLReader{Path: path}
}

func (r *JSONLReader) decodeAll() ([]map[string]interface{}, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open %s: %w", r.Path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var rows []map[string]interface{}

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}

	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		for dec.More() {
			var row map[string]interface{}
			if err := dec.Decode(&row); err != nil {
				return nil, fmt.Errorf("jsonl: decode array element: %w", err)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	// Not an array: the token already consumed is the first line's first
	// token, so re-open and decode line-delimited objects fresh.
	f2, err := os.Open(r.Path)
	if err != nil {
		return nil, err
	}
	defer f2.Close()
	dec2 := json.NewDecoder(f2)
	dec2.UseNumber()
	for {
		var row map[string]interface{}
		if err := dec2.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("jsonl: decode line: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *JSONLReader) columns(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (r *JSONLReader) Schema(ctx context.Context) (tabular.Schema, error) {
	rows, err := r.decodeAll()
	if err != nil {
		return nil, err
	}
	cols := r.columns(rows)
	schema := make(tabular.Schema, len(cols))
	for i, name := range cols {
		schema[i] = tabular.Column{Name: name, DataType: "json", Nullable: true}
	}
	return schema, nil
}

func (r *JSONLReader) Rows(ctx context.Context, emit func(tabular.Row) error) error {
	rows, err := r.decodeAll()
	if err != nil {
		return err
	}
	cols := r.columns(rows)

	for _, raw := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make(tabular.Row, len(cols))
		for i, col := range cols {
			row[i] = tabular.Canon(raw[col])
		}
		if err := emit(row); err != nil {
			return err
		}
	}
	return nil
}
