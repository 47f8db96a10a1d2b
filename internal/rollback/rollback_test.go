package rollback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/tabdiff/internal/snapshot"
)

func TestSynthesizeSingleCellChange(t *testing.T) {
	cs := snapshot.ChangeSet{
		RowChanges: snapshot.RowChange{
			Modified: []snapshot.ModifiedRow{
				{RowIndex: 0, Changes: map[string]snapshot.CellChange{
					"price": {Before: "1.50", After: "1.75"},
				}},
			},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 1)
	assert.Equal(t, snapshot.OpUpdateCell, ops[0].Kind)
	assert.Equal(t, 0, ops[0].Parameters["row_index"])
	assert.Equal(t, "price", ops[0].Parameters["column"])
	assert.Equal(t, "1.50", ops[0].Parameters["value"])
}

func TestSynthesizeRowRemoved(t *testing.T) {
	cs := snapshot.ChangeSet{
		RowChanges: snapshot.RowChange{
			Removed: []snapshot.RemovedRow{
				{RowIndex: 1, Data: map[string]string{"letter": "B", "n": "2"}},
			},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 1)
	assert.Equal(t, snapshot.OpRestoreRow, ops[0].Kind)
	assert.Equal(t, map[string]string{"letter": "B", "n": "2"}, ops[0].Parameters["data"])
}

func TestSynthesizeColumnAdded(t *testing.T) {
	cs := snapshot.ChangeSet{
		SchemaChanges: snapshot.SchemaChange{
			Added: []snapshot.AddedColumn{{Name: "email", Type: "text", Position: 2}},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 1)
	assert.Equal(t, snapshot.OpRemoveColumn, ops[0].Kind)
	assert.Equal(t, "email", ops[0].Parameters["name"])
}

func TestSynthesizeColumnRename(t *testing.T) {
	cs := snapshot.ChangeSet{
		SchemaChanges: snapshot.SchemaChange{
			Renamed: []snapshot.RenamedColumn{{From: "name", To: "product_name"}},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 1)
	assert.Equal(t, snapshot.OpRenameColumn, ops[0].Kind)
	assert.Equal(t, "product_name", ops[0].Parameters["from"])
	assert.Equal(t, "name", ops[0].Parameters["to"])
}

func TestSynthesizeColumnReorder(t *testing.T) {
	cs := snapshot.ChangeSet{
		SchemaChanges: snapshot.SchemaChange{
			ColumnOrder: &snapshot.ColumnOrderChange{
				Before: []string{"id", "name", "price"},
				After:  []string{"price", "id", "name"},
			},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 1)
	assert.Equal(t, snapshot.OpReorderColumns, ops[0].Kind)
	assert.Equal(t, []string{"id", "name", "price"}, ops[0].Parameters["order"])
}

// TestSynthesizeMixedOrdering mirrors the S6 scenario: an added row, a
// modified row, a removed row and an added column all in one change set.
// The emitted order must follow §4.F exactly: RemoveRow, then UpdateCell,
// then RestoreRow, then RemoveColumn.
func TestSynthesizeMixedOrdering(t *testing.T) {
	cs := snapshot.ChangeSet{
		SchemaChanges: snapshot.SchemaChange{
			Added: []snapshot.AddedColumn{{Name: "category", Type: "text", Position: 3}},
		},
		RowChanges: snapshot.RowChange{
			Modified: []snapshot.ModifiedRow{
				{RowIndex: 0, Changes: map[string]snapshot.CellChange{
					"name":  {Before: "Apple", After: "Green Apple"},
					"price": {Before: "1.50", After: "1.75"},
				}},
			},
			Added: []snapshot.AddedRow{
				{RowIndex: 2, Data: map[string]string{"id": "4", "name": "Date", "price": "3.00", "category": "Fruit"}},
			},
			Removed: []snapshot.RemovedRow{
				{RowIndex: 1, Data: map[string]string{"id": "2", "name": "Banana", "price": "0.75"}},
			},
		},
	}

	ops := Synthesize(cs)
	require.Len(t, ops, 5)
	assert.Equal(t, snapshot.OpRemoveRow, ops[0].Kind)
	assert.Equal(t, 2, ops[0].Parameters["row_index"])
	assert.Equal(t, snapshot.OpUpdateCell, ops[1].Kind)
	assert.Equal(t, snapshot.OpUpdateCell, ops[2].Kind)
	assert.Equal(t, snapshot.OpRestoreRow, ops[3].Kind)
	assert.Equal(t, 1, ops[3].Parameters["row_index"])
}

// TestSynthesizeReplayRestoresBaseCellValues is property P5: for a change
// set with only row modifications, applying the emitted UpdateCell ops in
// order to the current row values reproduces the base row bytes exactly.
func TestSynthesizeReplayRestoresBaseCellValues(t *testing.T) {
	cs := snapshot.ChangeSet{
		RowChanges: snapshot.RowChange{
			Modified: []snapshot.ModifiedRow{
				{RowIndex: 0, Changes: map[string]snapshot.CellChange{
					"a": {Before: "1", After: "9"},
					"b": {Before: "2", After: "8"},
				}},
				{RowIndex: 1, Changes: map[string]snapshot.CellChange{
					"a": {Before: "3", After: "7"},
				}},
			},
		},
	}

	current := map[int]map[string]string{
		0: {"a": "9", "b": "8"},
		1: {"a": "7"},
	}

	for _, op := range Synthesize(cs) {
		require.Equal(t, snapshot.OpUpdateCell, op.Kind)
		rowIndex := op.Parameters["row_index"].(int)
		column := op.Parameters["column"].(string)
		value := op.Parameters["value"].(string)
		current[rowIndex][column] = value
	}

	assert.Equal(t, "1", current[0]["a"])
	assert.Equal(t, "2", current[0]["b"])
	assert.Equal(t, "3", current[1]["a"])
}

func TestSynthesizeEmptyChangeSetYieldsNoOps(t *testing.T) {
	assert.Empty(t, Synthesize(snapshot.ChangeSet{}))
}
