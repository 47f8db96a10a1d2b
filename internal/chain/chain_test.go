package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/store"
)

func write(t *testing.T, s *store.Store, name, fingerprint, parent string, seq int, created time.Time, hasFullData, canReconstruct bool) {
	t.Helper()
	m := &snapshot.Metadata{
		FormatVersion:        snapshot.FormatVersion,
		Name:                 name,
		Created:              created,
		SourceFingerprint:    fingerprint,
		ParentSnapshot:       parent,
		SequenceNumber:       seq,
		HasFullData:          hasFullData,
		CanReconstructParent: canReconstruct,
	}
	require.NoError(t, s.Write(name, m, nil))
}

func TestBuildChainOrdersBySequence(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)
	write(t, s, "s2", "fp", "s1", 2, now.Add(2*time.Minute), true, true)

	m := New(s)
	c, err := m.BuildChainForSource("fp")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1", "s2"}, c.Names)
	assert.Equal(t, "s2", c.HeadName())
}

func TestBuildChainNoArgErrorsOnMultipleSources(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "a", "fp-a", "", 0, now, true, false)
	write(t, s, "b", "fp-b", "", 0, now, true, false)

	m := New(s)
	_, err := m.BuildChain()
	assert.Error(t, err)
}

func TestParentAndChildrenOf(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)

	m := New(s)
	parent, ok, err := m.ParentOf("s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s0", parent)

	_, ok, err = m.ParentOf("s0")
	require.NoError(t, err)
	assert.False(t, ok)

	children, err := m.ChildrenOf("s0")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, children)
}

func TestPathTo(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now, true, true)
	write(t, s, "s2", "fp", "s1", 2, now, true, true)

	m := New(s)
	path, err := m.PathTo("s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1", "s2"}, path)
}

func TestValidateReportsMissingParent(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "orphan", "fp", "ghost-parent", 1, now, true, true)

	m := New(s)
	issues, err := m.Validate()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "missing_parent", issues[0].Kind)
	assert.Equal(t, "orphan", issues[0].Snapshot)
}

func TestValidateReportsNonMonotonicSequence(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 5, now.Add(time.Minute), true, true)

	m := New(s)
	issues, err := m.Validate()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "non_monotonic_sequence", issues[0].Kind)
}

func TestValidateReportsDivergentParentStructure(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1a", "fp", "s0", 1, now.Add(time.Minute), true, true)
	write(t, s, "s1b", "fp", "s0", 1, now.Add(2*time.Minute), true, true)

	m := New(s)
	issues, err := m.Validate()
	require.NoError(t, err)

	var found bool
	for _, iss := range issues {
		if iss.Kind == "divergent_parent_structure" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateCleanChainReportsNoIssues(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)

	m := New(s)
	issues, err := m.Validate()
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestHeadIsEssentialAndCannotBeDeleted(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)

	m := New(s)
	canDelete, err := m.CanSafelyDelete("s1")
	require.NoError(t, err)
	assert.False(t, canDelete, "chain head must never be a deletion candidate")
}

func TestMiddleSnapshotWithNonReconstructingChildIsEssential(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	// s1 cannot reconstruct its parent (no delta), so s0's data is load-bearing.
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, false)

	m := New(s)
	canDelete, err := m.CanSafelyDelete("s0")
	require.NoError(t, err)
	assert.False(t, canDelete)
}

func TestMiddleSnapshotWithReconstructingChildIsDeletable(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)
	write(t, s, "s2", "fp", "s1", 2, now.Add(2*time.Minute), true, true)

	m := New(s)
	canDelete, err := m.CanSafelyDelete("s1")
	require.NoError(t, err)
	assert.True(t, canDelete, "s1 is reconstructible via s2's delta and is not the head")
}

func TestDeletionCandidatesRespectsKeepFull(t *testing.T) {
	root := t.TempDir()
	s := store.Open(root)
	now := time.Now()

	write(t, s, "s0", "fp", "", 0, now, true, false)
	write(t, s, "s1", "fp", "s0", 1, now.Add(time.Minute), true, true)
	write(t, s, "s2", "fp", "s1", 2, now.Add(2*time.Minute), true, true)

	m := New(s)
	candidates, err := m.DeletionCandidates(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s0"}, candidates)
}
