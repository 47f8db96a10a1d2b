package build

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/tabdiff/internal/store"
	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/pkg/utils"
)

type fakeReader struct {
	schema tabular.Schema
	rows   []tabular.Row
}

func (f *fakeReader) Schema(ctx context.Context) (tabular.Schema, error) { return f.schema, nil }
func (f *fakeReader) Rows(ctx context.Context, emit func(tabular.Row) error) error {
	for _, r := range f.rows {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

func TestBuildFirstSnapshotHasNoDelta(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	b := New(s)

	src := &fakeReader{
		schema: tabular.Schema{{Name: "name"}, {Name: "qty"}},
		rows:   []tabular.Row{{"Apple", "3"}, {"Banana", "5"}},
	}

	md, err := b.Build(context.Background(), src, "fruit.csv", "snap-1", Options{FullData: true})
	require.NoError(t, err)
	assert.Equal(t, 0, md.SequenceNumber)
	assert.False(t, md.CanReconstructParent)
	assert.Equal(t, 2, md.RowCount)

	r := NewReader(s)
	a, err := r.LoadArchive("snap-1")
	require.NoError(t, err)
	rows, err := a.RequireRows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestBuildSecondSnapshotCarriesDeltaFromParent(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	b := New(s)

	schema := tabular.Schema{{Name: "name"}, {Name: "qty"}}
	base := &fakeReader{schema: schema, rows: []tabular.Row{{"Apple", "3"}, {"Banana", "5"}}}
	_, err := b.Build(context.Background(), base, "fruit.csv", "snap-1", Options{FullData: true})
	require.NoError(t, err)

	current := &fakeReader{schema: schema, rows: []tabular.Row{{"Apple", "4"}, {"Banana", "5"}, {"Cherry", "1"}}}
	md, err := b.Build(context.Background(), current, "fruit.csv", "snap-2", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, md.SequenceNumber)
	assert.Equal(t, "snap-1", md.ParentSnapshot)
	assert.True(t, md.CanReconstructParent)
	require.NotNil(t, md.DeltaFromParent)
	assert.Len(t, md.DeltaFromParent.RowChanges.Modified, 1)
	assert.Len(t, md.DeltaFromParent.RowChanges.Added, 1)
}

func TestBuildStampsCreatedFromClock(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewWithClock(s, utils.NewFixedTimeProvider(fixed))

	src := &fakeReader{schema: tabular.Schema{{Name: "a"}}, rows: []tabular.Row{{"1"}}}
	md, err := b.Build(context.Background(), src, "x.csv", "snap-clock", Options{})
	require.NoError(t, err)
	assert.True(t, md.Created.Equal(fixed))
}

func TestBuildRejectsExistingName(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	b := New(s)

	src := &fakeReader{schema: tabular.Schema{{Name: "a"}}, rows: []tabular.Row{{"1"}}}
	_, err := b.Build(context.Background(), src, "x.csv", "dup", Options{})
	require.NoError(t, err)

	_, err = b.Build(context.Background(), src, "x.csv", "dup", Options{})
	assert.Error(t, err)
}
