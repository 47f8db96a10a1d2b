// Package hashing computes the deterministic content digests the snapshot
// and diff engine uses as the definition of value, row, column and schema
// equality. Blake3 is used throughout: it is fast enough to hash full
// datasets on every snapshot and collision-resistant enough that hash
// equality can stand in for a full value comparison.
package hashing

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"

	"lukechampine.com/blake3"

	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/pkg/workerpool"
)

// Digest is a fixed-width content hash rendered as lowercase hex.
type Digest string

const (
	// fieldSep separates fields within one hashed record (a row's cells, a
	// column's name/type/nullable triple). It is a control byte that
	// ordinary text does not contain; Canon does not escape it, so a value
	// that itself holds a raw 0x1f byte is not excluded.
	fieldSep = "\x1f"
	// recordSep separates whole records (columns within a schema hash).
	recordSep = "\x1e"
)

func digestOf(parts ...string) Digest {
	h := blake3.New(32, nil)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte(fieldSep))
		}
		h.Write([]byte(p))
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// HashValue hashes a single canonicalized cell value.
func HashValue(v string) Digest {
	return digestOf(v)
}

// HashRow hashes a row's cells joined by fieldSep. Two rows with identical
// canonicalized content hash identically regardless of source position.
func HashRow(row tabular.Row) Digest {
	h := blake3.New(32, nil)
	for i, cell := range row {
		if i > 0 {
			h.Write([]byte(fieldSep))
		}
		h.Write([]byte(cell))
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// HashColumn hashes every value of a column, in source order.
func HashColumn(name string, values []string) Digest {
	h := blake3.New(32, nil)
	h.Write([]byte(name))
	for _, v := range values {
		h.Write([]byte(fieldSep))
		h.Write([]byte(v))
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// HashSchema hashes the columns sorted by name, so the digest is invariant
// under pure column reordering. Reordering is surfaced separately via the
// column-order field of a schema change, never through schema-hash
// inequality.
func HashSchema(schema tabular.Schema) Digest {
	sorted := make(tabular.Schema, len(schema))
	copy(sorted, schema)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	records := make([]string, len(sorted))
	for i, c := range sorted {
		nullable := "0"
		if c.Nullable {
			nullable = "1"
		}
		records[i] = strings.Join([]string{c.Name, c.DataType, nullable}, fieldSep)
	}
	return digestOf(strings.Join(records, recordSep))
}

// HashRowsParallel hashes every row concurrently and returns the digests in
// input order, identical to hashing serially. Parallelism is only ever over
// disjoint rows: each row is indexed before dispatch and its digest is
// written into a pre-sized slot by position, so worker scheduling never
// leaks into the output order.
func HashRowsParallel(rows []tabular.Row, workers int) ([]Digest, error) {
	out := make([]Digest, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	if workers <= 1 || len(rows) == 1 {
		for i, r := range rows {
			out[i] = HashRow(r)
		}
		return out, nil
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	pool, err := workerpool.NewWithSize(workers)
	if err != nil {
		return nil, err
	}
	if err := pool.Start(); err != nil {
		return nil, err
	}
	defer pool.Close()

	ctx := context.Background()
	channels := make([]<-chan workerpool.Result, len(rows))
	for i, r := range rows {
		row := r
		ch, err := pool.SubmitFunc(ctx, func(context.Context) (interface{}, error) {
			return HashRow(row), nil
		})
		if err != nil {
			return nil, err
		}
		channels[i] = ch
	}
	for i, ch := range channels {
		res := <-ch
		if res.Error != nil {
			return nil, res.Error
		}
		out[i] = res.Value.(Digest)
	}
	return out, nil
}

// CollisionRate reports the fraction of rows on one side whose row hash
// collides with a hash produced by a structurally different row — here
// approximated as duplicate-hash density: duplicates divided by total. A
// rate above 1% is a quality warning, never an error.
func CollisionRate(digests []Digest) float64 {
	if len(digests) == 0 {
		return 0
	}
	seen := make(map[Digest]int, len(digests))
	for _, d := range digests {
		seen[d]++
	}
	dup := 0
	for _, n := range seen {
		if n > 1 {
			dup += n - 1
		}
	}
	return float64(dup) / float64(len(digests))
}
