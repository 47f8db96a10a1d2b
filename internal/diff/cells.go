package diff

import (
	"context"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/pkg/workerpool"
)

// cellDiff extracts the per-column before/after pairs for one modification
// candidate over the common-column set. It returns ok=false when no common
// column differs — §4.E.3's "omit, don't reclassify" rule for a content
// match that turned out to share every cell.
func cellDiff(baseSchema, curSchema tabular.Schema, base, cur tabular.Row, common []string) (map[string]snapshot.CellChange, bool) {
	changes := make(map[string]snapshot.CellChange)
	for _, col := range common {
		bv, _ := base.Value(baseSchema, col)
		cv, _ := cur.Value(curSchema, col)
		if bv != cv {
			changes[col] = snapshot.CellChange{Before: bv, After: cv}
		}
	}
	if len(changes) == 0 {
		return nil, false
	}
	return changes, true
}

// buildModifications runs cellDiff over every candidate pair in parallel,
// indexing by position before dispatch and gathering by position after so
// the emitted order is stable regardless of worker scheduling, then drops
// any pair with no surviving cell difference.
func buildModifications(baseSchema, curSchema tabular.Schema, baseRows, curRows []tabular.Row, pairs []pair, common []string, workers int) ([]snapshot.ModifiedRow, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	type result struct {
		row snapshot.ModifiedRow
		ok  bool
	}
	results := make([]result, len(pairs))

	compute := func(p pair) result {
		changes, ok := cellDiff(baseSchema, curSchema, baseRows[p.baseIdx], curRows[p.curIdx], common)
		if !ok {
			return result{}
		}
		return result{row: snapshot.ModifiedRow{RowIndex: p.curIdx, Changes: changes}, ok: true}
	}

	if workers <= 1 || len(pairs) == 1 {
		for i, p := range pairs {
			results[i] = compute(p)
		}
	} else {
		w := workers
		if w > len(pairs) {
			w = len(pairs)
		}
		pool, err := workerpool.NewWithSize(w)
		if err != nil {
			return nil, err
		}
		if err := pool.Start(); err != nil {
			return nil, err
		}
		defer pool.Close()

		ctx := context.Background()
		channels := make([]<-chan workerpool.Result, len(pairs))
		for i, p := range pairs {
			pp := p
			ch, err := pool.SubmitFunc(ctx, func(context.Context) (interface{}, error) {
				return compute(pp), nil
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
			results[i] = res.Value.(result)
		}
	}

	out := make([]snapshot.ModifiedRow, 0, len(results))
	for _, r := range results {
		if r.ok {
			out = append(out, r.row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}
