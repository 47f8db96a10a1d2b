// Package rollback synthesizes an ordered inverse-operation program from a
// change set: the list that, applied in sequence to the newer state,
// reproduces the older state.
package rollback

import (
	"sort"

	"github.com/kasuganosora/tabdiff/internal/snapshot"
)

// Synthesize builds the rollback program for a change set, per §4.F's
// eight-step total order. Every step operates in reverse of the order the
// change was originally observed, since replaying inverses must undo the
// most recent change first.
func Synthesize(cs snapshot.ChangeSet) []snapshot.RollbackOperation {
	var ops []snapshot.RollbackOperation

	ops = append(ops, removeRowOps(cs.RowChanges.Added)...)
	ops = append(ops, updateCellOps(cs.RowChanges.Modified)...)
	ops = append(ops, restoreRowOps(cs.RowChanges.Removed)...)
	ops = append(ops, changeColumnTypeOps(cs.SchemaChanges.TypeChanges)...)
	ops = append(ops, renameColumnOps(cs.SchemaChanges.Renamed)...)
	ops = append(ops, removeColumnOps(cs.SchemaChanges.Added)...)
	ops = append(ops, addColumnOps(cs.SchemaChanges.Removed)...)
	ops = append(ops, reorderColumnsOp(cs.SchemaChanges.ColumnOrder)...)

	return ops
}

// 1. Row additions → RemoveRow, reverse insertion order.
func removeRowOps(added []snapshot.AddedRow) []snapshot.RollbackOperation {
	ordered := append([]snapshot.AddedRow(nil), added...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RowIndex > ordered[j].RowIndex })

	ops := make([]snapshot.RollbackOperation, 0, len(ordered))
	for _, row := range ordered {
		ops = append(ops, snapshot.RollbackOperation{
			Kind: snapshot.OpRemoveRow,
			Parameters: map[string]interface{}{
				"row_index": row.RowIndex,
			},
		})
	}
	return ops
}

// 2. Row modifications → UpdateCell per changed cell, modifications
// reversed outer, columns in a deterministic (sorted) inner order.
func updateCellOps(modified []snapshot.ModifiedRow) []snapshot.RollbackOperation {
	ordered := append([]snapshot.ModifiedRow(nil), modified...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RowIndex > ordered[j].RowIndex })

	var ops []snapshot.RollbackOperation
	for _, row := range ordered {
		columns := make([]string, 0, len(row.Changes))
		for col := range row.Changes {
			columns = append(columns, col)
		}
		sort.Strings(columns)
		for _, col := range columns {
			ops = append(ops, snapshot.RollbackOperation{
				Kind: snapshot.OpUpdateCell,
				Parameters: map[string]interface{}{
					"row_index": row.RowIndex,
					"column":    col,
					"value":     row.Changes[col].Before,
				},
			})
		}
	}
	return ops
}

// 3. Row removals from base → RestoreRow, reverse order, with the full
// original row data.
func restoreRowOps(removed []snapshot.RemovedRow) []snapshot.RollbackOperation {
	ordered := append([]snapshot.RemovedRow(nil), removed...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RowIndex > ordered[j].RowIndex })

	ops := make([]snapshot.RollbackOperation, 0, len(ordered))
	for _, row := range ordered {
		ops = append(ops, snapshot.RollbackOperation{
			Kind: snapshot.OpRestoreRow,
			Parameters: map[string]interface{}{
				"row_index": row.RowIndex,
				"data":      row.Data,
			},
		})
	}
	return ops
}

// 4. Type changes → ChangeColumnType(column, to: original_type), reverse
// order of detection.
func changeColumnTypeOps(changes []snapshot.TypeChange) []snapshot.RollbackOperation {
	ops := make([]snapshot.RollbackOperation, len(changes))
	for i := range changes {
		c := changes[len(changes)-1-i]
		ops[i] = snapshot.RollbackOperation{
			Kind: snapshot.OpChangeColumnType,
			Parameters: map[string]interface{}{
				"column": c.Column,
				"to":     c.From,
			},
		}
	}
	return ops
}

// 5. Column renames → RenameColumn(from: new_name, to: original_name),
// reverse order.
func renameColumnOps(renames []snapshot.RenamedColumn) []snapshot.RollbackOperation {
	ops := make([]snapshot.RollbackOperation, len(renames))
	for i := range renames {
		r := renames[len(renames)-1-i]
		ops[i] = snapshot.RollbackOperation{
			Kind: snapshot.OpRenameColumn,
			Parameters: map[string]interface{}{
				"from": r.To,
				"to":   r.From,
			},
		}
	}
	return ops
}

// 6. Column additions → RemoveColumn(name), reverse order.
func removeColumnOps(added []snapshot.AddedColumn) []snapshot.RollbackOperation {
	ops := make([]snapshot.RollbackOperation, len(added))
	for i := range added {
		c := added[len(added)-1-i]
		ops[i] = snapshot.RollbackOperation{
			Kind: snapshot.OpRemoveColumn,
			Parameters: map[string]interface{}{
				"name": c.Name,
			},
		}
	}
	return ops
}

// 7. Column removals → AddColumn(name, type, position, nullable), reverse
// order.
func addColumnOps(removed []snapshot.RemovedColumn) []snapshot.RollbackOperation {
	ops := make([]snapshot.RollbackOperation, len(removed))
	for i := range removed {
		c := removed[len(removed)-1-i]
		ops[i] = snapshot.RollbackOperation{
			Kind: snapshot.OpAddColumn,
			Parameters: map[string]interface{}{
				"name":     c.Name,
				"type":     c.Type,
				"position": c.Position,
				"nullable": c.Nullable,
			},
		}
	}
	return ops
}

// 8. Column-order change → a single ReorderColumns(order: original_order).
func reorderColumnsOp(change *snapshot.ColumnOrderChange) []snapshot.RollbackOperation {
	if change == nil {
		return nil
	}
	return []snapshot.RollbackOperation{{
		Kind: snapshot.OpReorderColumns,
		Parameters: map[string]interface{}{
			"order": change.Before,
		},
	}}
}
