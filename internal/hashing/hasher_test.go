package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

func TestHashRowStable(t *testing.T) {
	row := tabular.Row{"1", "Apple", "1.50"}
	assert.Equal(t, HashRow(row), HashRow(row))
}

func TestHashRowIgnoresPosition(t *testing.T) {
	a := tabular.Row{"x", "y"}
	b := tabular.Row{"x", "y"}
	assert.Equal(t, HashRow(a), HashRow(b))
}

func TestHashSchemaInvariantUnderReorder(t *testing.T) {
	base := tabular.Schema{{Name: "id", DataType: "int"}, {Name: "name", DataType: "text"}}
	reordered := tabular.Schema{{Name: "name", DataType: "text"}, {Name: "id", DataType: "int"}}
	assert.Equal(t, HashSchema(base), HashSchema(reordered))
}

func TestHashSchemaDetectsTypeChange(t *testing.T) {
	base := tabular.Schema{{Name: "id", DataType: "int"}}
	changed := tabular.Schema{{Name: "id", DataType: "text"}}
	assert.NotEqual(t, HashSchema(base), HashSchema(changed))
}

func TestHashRowsParallelMatchesSerial(t *testing.T) {
	rows := make([]tabular.Row, 0, 64)
	for i := 0; i < 64; i++ {
		rows = append(rows, tabular.Row{string(rune('a' + i%26)), tabular.Canon(i)})
	}

	serial, err := HashRowsParallel(rows, 1)
	assert.NoError(t, err)
	parallel, err := HashRowsParallel(rows, 8)
	assert.NoError(t, err)
	assert.Equal(t, serial, parallel)
}

func TestCollisionRate(t *testing.T) {
	digests := []Digest{"a", "a", "b", "c"}
	assert.InDelta(t, 0.25, CollisionRate(digests), 1e-9)

	assert.Equal(t, float64(0), CollisionRate(nil))
}
