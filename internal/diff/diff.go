// Package diff implements the two-phase change detector: a hash filter
// that isolates the changed row subset, followed by position- and
// content-based classification into modifications, additions and
// removals, and finally per-cell diff extraction for every modification.
package diff

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/rollback"
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// Options configures the detector's parallel stages.
type Options struct {
	// Workers bounds the worker pool used for row hashing, content
	// similarity and cell-diff extraction. Zero means runtime.NumCPU().
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Detect compares a base and current schema+rows pair and returns the full
// change set, including the rollback program's inputs (row_changes and
// schema_changes); the rollback program itself is synthesized by the
// rollback package from this change set. The detector never errors on
// data contents — only on the internal structural violation of a row
// whose length does not match its schema's column count.
func Detect(baseSchema, curSchema tabular.Schema, baseRows, curRows []tabular.Row, opts Options) (snapshot.ChangeSet, error) {
	if err := validateShape(baseSchema, baseRows); err != nil {
		return snapshot.ChangeSet{}, err
	}
	if err := validateShape(curSchema, curRows); err != nil {
		return snapshot.ChangeSet{}, err
	}

	schemaChanges := diffSchema(baseSchema, curSchema)

	if len(baseRows) == 0 && len(curRows) == 0 {
		cs := snapshot.ChangeSet{SchemaChanges: schemaChanges}
		cs.RollbackOperations = rollback.Synthesize(cs)
		return cs, nil
	}

	workers := opts.workers()
	modifiedPairs, addedIdx, removedIdx, err := classifyRows(baseSchema, curSchema, baseRows, curRows, workers)
	if err != nil {
		return snapshot.ChangeSet{}, err
	}

	common := tabular.CommonColumns(baseSchema, curSchema)
	modified, err := buildModifications(baseSchema, curSchema, baseRows, curRows, modifiedPairs, common, workers)
	if err != nil {
		return snapshot.ChangeSet{}, err
	}

	added := make([]snapshot.AddedRow, 0, len(addedIdx))
	for _, idx := range addedIdx {
		added = append(added, snapshot.AddedRow{RowIndex: idx, Data: curRows[idx].AsMap(curSchema)})
	}
	removed := make([]snapshot.RemovedRow, 0, len(removedIdx))
	for _, idx := range removedIdx {
		removed = append(removed, snapshot.RemovedRow{RowIndex: idx, Data: baseRows[idx].AsMap(baseSchema)})
	}
	sort.Slice(added, func(i, j int) bool { return added[i].RowIndex < added[j].RowIndex })
	sort.Slice(removed, func(i, j int) bool { return removed[i].RowIndex < removed[j].RowIndex })

	cs := snapshot.ChangeSet{
		SchemaChanges: schemaChanges,
		RowChanges: snapshot.RowChange{
			Modified: modified,
			Added:    added,
			Removed:  removed,
		},
	}
	cs.RollbackOperations = rollback.Synthesize(cs)
	return cs, nil
}

func validateShape(schema tabular.Schema, rows []tabular.Row) error {
	for i, r := range rows {
		if len(r) != len(schema) {
			return fmt.Errorf("diff: row %d has %d cells, schema has %d columns", i, len(r), len(schema))
		}
	}
	return nil
}
