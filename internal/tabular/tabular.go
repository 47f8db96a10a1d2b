// Package tabular holds the shared data model used across the snapshot and
// diff engine: canonicalized values, column/schema descriptors and rows.
package tabular

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Column describes a single column of a schema. Names are compared
// case-sensitively; DataType is whatever string the external reader
// surfaces and is treated as opaque by the engine.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Schema is an ordered sequence of columns. Order is significant: it drives
// positional rename/type-change inference in the diff engine.
type Schema []Column

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// IndexOf returns the position of the named column, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// CommonColumns returns the names present in both schemas, in the order they
// appear in a.
func CommonColumns(a, b Schema) []string {
	inB := make(map[string]bool, len(b))
	for _, c := range b {
		inB[c.Name] = true
	}
	common := make([]string, 0, len(a))
	for _, c := range a {
		if inB[c.Name] {
			common = append(common, c.Name)
		}
	}
	return common
}

// SamePermutation reports whether a and b contain exactly the same column
// names (possibly reordered) and hold equal length.
func SamePermutation(a, b Schema) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, c := range a {
		counts[c.Name]++
	}
	for _, c := range b {
		counts[c.Name]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// Row is an ordered sequence of canonicalized cell strings, one per column
// of its schema, in schema order.
type Row []string

// RawValue is any value the external reader can yield for a cell. Canon
// converts it to its canonical string form.
type RawValue = interface{}

// Canon is the total canonicalization function from a source value to the
// string used for hashing and comparison. Every value a reader yields maps
// to exactly one canonical string; that string's equality is the
// definition of cell equality.
func Canon(v RawValue) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case []byte:
		return fmt.Sprintf("<blob:%d bytes>", len(t))
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return canonFloat(float64(t))
	case float64:
		return canonFloat(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// canonFloat renders the shortest decimal that round-trips to f.
func canonFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// CanonRow canonicalizes a raw row (one value per column) into a Row. It
// errors if the value count does not match the schema's column count,
// matching the detector's structural-violation contract.
func CanonRow(schema Schema, values []RawValue) (Row, error) {
	if len(values) != len(schema) {
		return nil, fmt.Errorf("tabular: row has %d values, schema has %d columns", len(values), len(schema))
	}
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = Canon(v)
	}
	return row, nil
}

// Value returns the cell at the named column, or ("", false) if the schema
// has no such column.
func (r Row) Value(schema Schema, name string) (string, bool) {
	idx := schema.IndexOf(name)
	if idx < 0 || idx >= len(r) {
		return "", false
	}
	return r[idx], true
}

// AsMap renders the row as a column-name-to-value map, used when a change
// set entry needs to carry full row data (additions and removals).
func (r Row) AsMap(schema Schema) map[string]string {
	out := make(map[string]string, len(schema))
	for i, c := range schema {
		if i < len(r) {
			out[c.Name] = r[i]
		}
	}
	return out
}
