package diff

import (
	"context"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/hashing"
	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/pkg/workerpool"
)

// pair links a removed-candidate base index to an added-candidate current
// index, either by position match or by content similarity.
type pair struct {
	baseIdx int
	curIdx  int
}

// classifyRows runs the two-phase algorithm of §4.E.2: a hash filter that
// isolates the changed subset, followed by position- then content-based
// pairing that turns the raw candidate lists into modifications, and
// leaves the rest as genuine additions/removals.
func classifyRows(baseSchema, curSchema tabular.Schema, baseRows, curRows []tabular.Row, workers int) (modified []pair, addedIdx, removedIdx []int, err error) {
	// Phase 1 compares rows across two potentially different schemas, so
	// the hash filter is computed over each row's projection onto the
	// common-column set: a schema change (e.g. a trailing column addition)
	// must not by itself make every row look changed.
	common := tabular.CommonColumns(baseSchema, curSchema)
	baseProjected := projectRows(baseSchema, baseRows, common)
	curProjected := projectRows(curSchema, curRows, common)

	baseHashes, err := hashing.HashRowsParallel(baseProjected, workers)
	if err != nil {
		return nil, nil, nil, err
	}
	curHashes, err := hashing.HashRowsParallel(curProjected, workers)
	if err != nil {
		return nil, nil, nil, err
	}

	baseByHash := indexByHash(baseHashes)
	curByHash := indexByHash(curHashes)

	removedCandidates := map[int]bool{}
	addedCandidates := map[int]bool{}

	allHashes := map[hashing.Digest]bool{}
	for h := range baseByHash {
		allHashes[h] = true
	}
	for h := range curByHash {
		allHashes[h] = true
	}

	for h := range allHashes {
		bIdxs := baseByHash[h]
		cIdxs := curByHash[h]
		overlap := len(bIdxs)
		if len(cIdxs) < overlap {
			overlap = len(cIdxs)
		}
		for _, idx := range bIdxs[overlap:] {
			removedCandidates[idx] = true
		}
		for _, idx := range cIdxs[overlap:] {
			addedCandidates[idx] = true
		}
	}

	// Phase 2(a): position match. An index present in both candidate sets
	// pairs with itself as a modification.
	for idx := range removedCandidates {
		if addedCandidates[idx] {
			modified = append(modified, pair{baseIdx: idx, curIdx: idx})
			delete(removedCandidates, idx)
			delete(addedCandidates, idx)
		}
	}

	// Phase 2(b): content match, greedy best match over common columns.
	contentPairs, err := matchByContent(baseSchema, curSchema, baseRows, curRows, common, removedCandidates, addedCandidates, workers)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, p := range contentPairs {
		modified = append(modified, p)
		delete(removedCandidates, p.baseIdx)
		delete(addedCandidates, p.curIdx)
	}

	for idx := range removedCandidates {
		removedIdx = append(removedIdx, idx)
	}
	for idx := range addedCandidates {
		addedIdx = append(addedIdx, idx)
	}

	sort.Slice(modified, func(i, j int) bool { return modified[i].curIdx < modified[j].curIdx })
	sort.Ints(removedIdx)
	sort.Ints(addedIdx)
	return modified, addedIdx, removedIdx, nil
}

// projectRows restricts every row to the given common-column set, in that
// set's order, so that rows from differing schemas can be hashed and
// compared on equal footing.
func projectRows(schema tabular.Schema, rows []tabular.Row, common []string) []tabular.Row {
	out := make([]tabular.Row, len(rows))
	for i, r := range rows {
		projected := make(tabular.Row, len(common))
		for j, col := range common {
			projected[j], _ = r.Value(schema, col)
		}
		out[i] = projected
	}
	return out
}

func indexByHash(digests []hashing.Digest) map[hashing.Digest][]int {
	out := make(map[hashing.Digest][]int, len(digests))
	for i, d := range digests {
		out[d] = append(out[d], i)
	}
	return out
}

// similarity is the fraction of common columns whose canonicalized values
// are equal between a base row and a current row.
func similarity(baseSchema, curSchema tabular.Schema, base, cur tabular.Row, common []string) float64 {
	if len(common) == 0 {
		return 0
	}
	equal := 0
	for _, col := range common {
		bv, _ := base.Value(baseSchema, col)
		cv, _ := cur.Value(curSchema, col)
		if bv == cv {
			equal++
		}
	}
	return float64(equal) / float64(len(common))
}

// bestMatch is one removed-candidate's highest-similarity added-candidate,
// computed independently of every other removed-candidate.
type bestMatch struct {
	baseIdx int
	addIdx  int
	sim     float64
	found   bool
}

// matchByContent pairs each remaining removed-candidate with its
// highest-similarity added-candidate, strictly above the 0.5 threshold,
// ties broken by the lower added index. Each removed-candidate's best
// match is computed independently against the full added-candidate set —
// the work the spec calls out as parallelizable, dispatched to the worker
// pool — and there is no cross-removed-row exclusivity: this is a greedy
// local best match, not a globally optimal assignment, so two distinct
// removed rows may legitimately match the same added row (§4.E.2(b)).
func matchByContent(baseSchema, curSchema tabular.Schema, baseRows, curRows []tabular.Row, common []string, removed, added map[int]bool, workers int) ([]pair, error) {
	if len(removed) == 0 || len(added) == 0 {
		return nil, nil
	}

	removedIdxs := make([]int, 0, len(removed))
	for idx := range removed {
		removedIdxs = append(removedIdxs, idx)
	}
	sort.Ints(removedIdxs)
	addedIdxs := make([]int, 0, len(added))
	for idx := range added {
		addedIdxs = append(addedIdxs, idx)
	}
	sort.Ints(addedIdxs)

	bestFor := func(baseIdx int) bestMatch {
		bestSim := 0.5
		bestAdded := -1
		for _, ci := range addedIdxs {
			sim := similarity(baseSchema, curSchema, baseRows[baseIdx], curRows[ci], common)
			if sim > bestSim {
				bestSim = sim
				bestAdded = ci
			}
		}
		return bestMatch{baseIdx: baseIdx, addIdx: bestAdded, sim: bestSim, found: bestAdded >= 0}
	}

	matches := make([]bestMatch, len(removedIdxs))
	if workers <= 1 || len(removedIdxs) == 1 {
		for i, baseIdx := range removedIdxs {
			matches[i] = bestFor(baseIdx)
		}
	} else {
		w := workers
		if w > len(removedIdxs) {
			w = len(removedIdxs)
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
		channels := make([]<-chan workerpool.Result, len(removedIdxs))
		for i, baseIdx := range removedIdxs {
			bi := baseIdx
			ch, err := pool.SubmitFunc(ctx, func(context.Context) (interface{}, error) {
				return bestFor(bi), nil
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
			matches[i] = res.Value.(bestMatch)
		}
	}

	var out []pair
	for _, m := range matches {
		if !m.found {
			continue
		}
		out = append(out, pair{baseIdx: m.baseIdx, curIdx: m.addIdx})
	}
	return out, nil
}
