// Package tabularsource is the external tabular reader the rest of the
// engine treats as a collaborator: it turns a file path or a SQL query
// into a schema plus a stream of canonicalized rows. The core never
// depends on a specific format; it only depends on this interface.
package tabularsource

import (
	"context"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// Reader opens one tabular source and yields its schema and rows. Rows
// are returned already canonicalized via tabular.Canon, so everything
// downstream (hasher, change detector) only ever deals in strings.
type Reader interface {
	// Schema returns the column descriptors in source order.
	Schema(ctx context.Context) (tabular.Schema, error)
	// Rows streams every row, in source order, calling emit once per row.
	// emit returning an error stops iteration and is propagated.
	Rows(ctx context.Context, emit func(tabular.Row) error) error
}

// ReadAll drains a Reader's schema and full row stream into memory. The
// builder uses this when full_data is requested; hash-only snapshots may
// prefer Rows directly to avoid materializing everything at once.
func ReadAll(ctx context.Context, r Reader) (tabular.Schema, []tabular.Row, error) {
	schema, err := r.Schema(ctx)
	if err != nil {
		return nil, nil, err
	}

	var rows []tabular.Row
	if err := r.Rows(ctx, func(row tabular.Row) error {
		rows = append(rows, row)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return schema, rows, nil
}
