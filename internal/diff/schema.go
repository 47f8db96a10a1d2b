package diff

import (
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// diffSchema implements §4.E.1: pure reordering is detected first (and
// short-circuits rename/add/remove inference); otherwise trailing columns
// of the longer schema are added/removed, and overlapping positions are
// compared name-wise (rename) and type-wise (type change).
func diffSchema(base, cur tabular.Schema) snapshot.SchemaChange {
	var out snapshot.SchemaChange

	if !sameOrder(base, cur) && tabular.SamePermutation(base, cur) {
		out.ColumnOrder = &snapshot.ColumnOrderChange{
			Before: base.Names(),
			After:  cur.Names(),
		}
		return out
	}

	overlap := len(base)
	if len(cur) < overlap {
		overlap = len(cur)
	}

	if len(cur) > len(base) {
		for i := len(base); i < len(cur); i++ {
			c := cur[i]
			out.Added = append(out.Added, snapshot.AddedColumn{
				Name: c.Name, Type: c.DataType, Position: i, Nullable: c.Nullable,
			})
		}
	} else if len(base) > len(cur) {
		for i := len(cur); i < len(base); i++ {
			c := base[i]
			out.Removed = append(out.Removed, snapshot.RemovedColumn{
				Name: c.Name, Type: c.DataType, Position: i, Nullable: c.Nullable,
			})
		}
	}

	for i := 0; i < overlap; i++ {
		b, c := base[i], cur[i]
		if b.Name != c.Name {
			out.Renamed = append(out.Renamed, snapshot.RenamedColumn{From: b.Name, To: c.Name})
		}
		if b.DataType != c.DataType {
			out.TypeChanges = append(out.TypeChanges, snapshot.TypeChange{
				Column: c.Name, From: b.DataType, To: c.DataType,
			})
		}
	}

	return out
}

func sameOrder(a, b tabular.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
