// Package chain implements the per-source chain model of §4.D: parent
// pointers and sequence numbers group a workspace's snapshots into chains
// sharing a source_fingerprint, and expose reachability queries used by
// the cleanup policy.
package chain

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/store"
)

// Chain is every snapshot sharing one source_fingerprint, ordered by
// sequence_number then creation time.
type Chain struct {
	Fingerprint string
	Names       []string
	Snapshots   []*snapshot.Metadata
}

// Head is the chain's last element, or nil for an empty chain.
func (c Chain) Head() *snapshot.Metadata {
	if len(c.Snapshots) == 0 {
		return nil
	}
	return c.Snapshots[len(c.Snapshots)-1]
}

// HeadName is the name of Head(), or "" for an empty chain.
func (c Chain) HeadName() string {
	if len(c.Names) == 0 {
		return ""
	}
	return c.Names[len(c.Names)-1]
}

// Issue is one chain-validation finding. Validation is read-only and
// never rejects a chain; it only ever reports a list of these.
type Issue struct {
	Kind     string
	Snapshot string
	Detail   string
}

// Manager answers chain queries against a snapshot store.
type Manager struct {
	store *store.Store
}

// New returns a chain Manager backed by s.
func New(s *store.Store) *Manager {
	return &Manager{store: s}
}

// fingerprintKey is the grouping key for a snapshot: its recorded
// source_fingerprint, or — for legacy snapshots lacking one — the
// canonicalized source path.
func fingerprintKey(md *snapshot.Metadata) string {
	if md.SourceFingerprint != "" {
		return md.SourceFingerprint
	}
	if md.SourcePath != "" {
		return filepath.Clean(md.SourcePath)
	}
	return filepath.Clean(md.Source)
}

// allMetadata loads every listed snapshot's sidecar, skipping any that the
// store already skipped during List (unreadable sidecars).
func (m *Manager) allMetadata() (map[string]*snapshot.Metadata, error) {
	names, _, err := m.store.List()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*snapshot.Metadata, len(names))
	for _, name := range names {
		md, err := m.store.LoadMetadata(name)
		if err != nil {
			// Corrupt JSON at this point is a contradiction (List already
			// parsed it successfully); treat defensively as fatal per
			// §4.D's "corrupt sidecar JSON: chain building fails fatally".
			return nil, fmt.Errorf("chain: %s: %w", name, err)
		}
		out[name] = md
	}
	return out, nil
}

func sortChain(names []string, byName map[string]*snapshot.Metadata) {
	sort.Slice(names, func(i, j int) bool {
		a, b := byName[names[i]], byName[names[j]]
		if a.SequenceNumber != b.SequenceNumber {
			return a.SequenceNumber < b.SequenceNumber
		}
		return a.Created.Before(b.Created)
	})
}

// Chains builds every chain in the workspace, grouped by fingerprint key.
func (m *Manager) Chains() (map[string]Chain, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}

	grouped := map[string][]string{}
	for name, md := range byName {
		key := fingerprintKey(md)
		grouped[key] = append(grouped[key], name)
	}

	chains := make(map[string]Chain, len(grouped))
	for key, names := range grouped {
		sortChain(names, byName)
		snaps := make([]*snapshot.Metadata, len(names))
		for i, n := range names {
			snaps[i] = byName[n]
		}
		chains[key] = Chain{Fingerprint: key, Names: names, Snapshots: snaps}
	}
	return chains, nil
}

// BuildChain is the no-argument convenience form for workspaces tracking
// exactly one source: it returns that source's chain, erroring if the
// workspace actually holds more than one distinct fingerprint (use
// BuildChainForSource in that case).
func (m *Manager) BuildChain() (Chain, error) {
	chains, err := m.Chains()
	if err != nil {
		return Chain{}, err
	}
	if len(chains) == 0 {
		return Chain{}, nil
	}
	if len(chains) > 1 {
		return Chain{}, fmt.Errorf("chain: workspace tracks %d distinct sources; use BuildChainForSource", len(chains))
	}
	for _, c := range chains {
		return c, nil
	}
	return Chain{}, nil
}

// BuildChainForSource returns the chain for one source fingerprint.
func (m *Manager) BuildChainForSource(fingerprint string) (Chain, error) {
	chains, err := m.Chains()
	if err != nil {
		return Chain{}, err
	}
	return chains[fingerprint], nil
}

// ParentOf returns name's parent snapshot name, or ok=false for a root.
func (m *Manager) ParentOf(name string) (parent string, ok bool, err error) {
	md, err := m.store.LoadMetadata(name)
	if err != nil {
		return "", false, err
	}
	return md.ParentSnapshot, md.ParentSnapshot != "", nil
}

// ChildrenOf returns every snapshot whose parent_snapshot is name.
func (m *Manager) ChildrenOf(name string) ([]string, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}

	var children []string
	for n, md := range byName {
		if md.ParentSnapshot == name {
			children = append(children, n)
		}
	}
	sort.Strings(children)
	return children, nil
}

// PathTo returns the ancestor chain from the chain root through name,
// inclusive, in root-to-name order.
func (m *Manager) PathTo(name string) ([]string, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}

	var path []string
	cur := name
	seen := map[string]bool{}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("chain: cycle detected reaching %s", name)
		}
		seen[cur] = true
		path = append([]string{cur}, path...)

		md, ok := byName[cur]
		if !ok {
			return nil, fmt.Errorf("chain: %s not found", cur)
		}
		cur = md.ParentSnapshot
	}
	return path, nil
}

// Validate reports chain-consistency issues across the whole workspace.
// It never errors on inconsistency — only on the fatal I/O-level failures
// already surfaced by allMetadata.
func (m *Manager) Validate() ([]Issue, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}

	var issues []Issue

	for name, md := range byName {
		if md.ParentSnapshot != "" {
			if _, ok := byName[md.ParentSnapshot]; !ok {
				issues = append(issues, Issue{
					Kind: "missing_parent", Snapshot: name,
					Detail: fmt.Sprintf("references non-existent parent %q", md.ParentSnapshot),
				})
			}
		}
	}

	chains, err := m.Chains()
	if err != nil {
		return nil, err
	}
	for _, c := range chains {
		expected := 0
		if len(c.Snapshots) > 0 && c.Snapshots[0].ParentSnapshot != "" {
			// The chain's first member has a parent outside the chain
			// (already reported as missing_parent); its own sequence
			// number is the starting point.
			expected = c.Snapshots[0].SequenceNumber
		}
		for _, md := range c.Snapshots {
			if md.SequenceNumber != expected {
				issues = append(issues, Issue{
					Kind: "non_monotonic_sequence", Snapshot: md.Name,
					Detail: fmt.Sprintf("expected sequence_number %d, got %d", expected, md.SequenceNumber),
				})
			}
			expected = md.SequenceNumber + 1
		}

		childrenByParent := map[string][]string{}
		for _, name := range c.Names {
			md := byName[name]
			if md.ParentSnapshot != "" {
				childrenByParent[md.ParentSnapshot] = append(childrenByParent[md.ParentSnapshot], name)
			}
		}
		for parent, kids := range childrenByParent {
			if len(kids) > 1 {
				sort.Strings(kids)
				issues = append(issues, Issue{
					Kind: "divergent_parent_structure", Snapshot: parent,
					Detail: fmt.Sprintf("multiple children reference this parent: %v", kids),
				})
			}
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Snapshot != issues[j].Snapshot {
			return issues[i].Snapshot < issues[j].Snapshot
		}
		return issues[i].Kind < issues[j].Kind
	})
	return issues, nil
}

// essential reports whether md is a chain head, or has a child that
// cannot reconstruct its parent without md's own data.
func (m *Manager) essential(name string, byName map[string]*snapshot.Metadata, chains map[string]Chain) (bool, error) {
	md := byName[name]
	if c, ok := chains[fingerprintKey(md)]; ok && c.HeadName() == name {
		return true, nil
	}

	children, err := m.childrenOfIn(name, byName)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if !byName[child].CanReconstructParent {
			return true, nil
		}
	}
	return false, nil
}

// reconstructible reports whether md can be rebuilt from some descendant
// chain of deltas even if it is thinned.
func (m *Manager) reconstructible(name string, byName map[string]*snapshot.Metadata, chains map[string]Chain) (bool, error) {
	md := byName[name]
	if c, ok := chains[fingerprintKey(md)]; ok && c.HeadName() == name {
		return true, nil
	}

	children, err := m.childrenOfIn(name, byName)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if byName[child].CanReconstructParent {
			if ok, err := m.reconstructible(child, byName, chains); err == nil && ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *Manager) childrenOfIn(name string, byName map[string]*snapshot.Metadata) ([]string, error) {
	var children []string
	for n, md := range byName {
		if md.ParentSnapshot == name {
			children = append(children, n)
		}
	}
	sort.Strings(children)
	return children, nil
}

// CanSafelyDelete reports whether name is non-essential, i.e. a deletion
// of its archive would not strand any descendant's reconstruction path.
func (m *Manager) CanSafelyDelete(name string) (bool, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return false, err
	}
	if _, ok := byName[name]; !ok {
		return false, fmt.Errorf("chain: %s not found", name)
	}
	chains, err := m.Chains()
	if err != nil {
		return false, err
	}
	essential, err := m.essential(name, byName, chains)
	if err != nil {
		return false, err
	}
	return !essential, nil
}

// DeletionCandidates returns, oldest-first, non-essential snapshots in
// every chain beyond the keepFull most recent archives in that chain.
func (m *Manager) DeletionCandidates(keepFull int) ([]string, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}
	chains, err := m.Chains()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range chains {
		older := olderThanMostRecent(c, keepFull)
		for _, name := range older {
			essential, err := m.essential(name, byName, chains)
			if err != nil {
				return nil, err
			}
			if !essential {
				out = append(out, name)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byName[out[i]].Created.Before(byName[out[j]].Created)
	})
	return out, nil
}

// DataCleanupCandidates returns, oldest-first, snapshots in every chain
// beyond the keepFull most recent archives whose row data may be dropped
// (thinned) while the chain remains reconstructible.
func (m *Manager) DataCleanupCandidates(keepFull int) ([]string, error) {
	byName, err := m.allMetadata()
	if err != nil {
		return nil, err
	}
	chains, err := m.Chains()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range chains {
		older := olderThanMostRecent(c, keepFull)
		for _, name := range older {
			if !byName[name].HasFullData {
				continue
			}
			reconstructible, err := m.reconstructible(name, byName, chains)
			if err != nil {
				return nil, err
			}
			if reconstructible {
				out = append(out, name)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byName[out[i]].Created.Before(byName[out[j]].Created)
	})
	return out, nil
}

// olderThanMostRecent returns a chain's snapshot names excluding its
// keepFull most recently created entries, oldest-first.
func olderThanMostRecent(c Chain, keepFull int) []string {
	if keepFull < 0 {
		keepFull = 0
	}
	byCreated := append([]*snapshot.Metadata(nil), c.Snapshots...)
	sort.Slice(byCreated, func(i, j int) bool { return byCreated[i].Created.After(byCreated[j].Created) })

	if keepFull >= len(byCreated) {
		return nil
	}
	older := byCreated[keepFull:]
	sort.Slice(older, func(i, j int) bool { return older[i].Created.Before(older[j].Created) })

	names := make([]string, len(older))
	for i, md := range older {
		names[i] = md.Name
	}
	return names
}
