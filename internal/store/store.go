// Package store maps a snapshot name to its {sidecar, archive} file pair
// on disk within a workspace's .tabdiff directory, and enumerates them.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kasuganosora/tabdiff/internal/archive"
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/pkg/config"
)

// sidecarExt and archiveExt are the two per-snapshot file suffixes under
// .tabdiff, per §6.1.
const (
	sidecarExt = ".json"
	archiveExt = ".tabdiff"
)

// Store is a filesystem-backed snapshot store rooted at one workspace's
// .tabdiff directory.
type Store struct {
	dir string
}

// Open returns a Store for the given workspace root (the directory that
// directly contains .tabdiff, not .tabdiff itself).
func Open(workspaceRoot string) *Store {
	return &Store{dir: filepath.Join(workspaceRoot, config.WorkspaceDir)}
}

// Paths returns the sidecar and archive file paths for a snapshot name.
// Neither file is required to exist.
func (s *Store) Paths(name string) (sidecarPath, archivePath string) {
	return filepath.Join(s.dir, name+sidecarExt), filepath.Join(s.dir, name+archiveExt)
}

// Exists reports whether a sidecar file exists for name. Per §4.C, the
// sidecar is the source of truth for chain queries; an archive without a
// sidecar is an orphan, not a snapshot.
func (s *Store) Exists(name string) bool {
	sidecarPath, _ := s.Paths(name)
	_, err := os.Stat(sidecarPath)
	return err == nil
}

// Write atomically writes both the sidecar metadata and the archive bytes
// for name (write to temp + rename, per file). The archive is written
// first and the sidecar last, so a reader never observes a sidecar
// without its archive.
func (s *Store) Write(name string, metadata *snapshot.Metadata, archiveBytes []byte) error {
	if name+sidecarExt == config.ReservedConfigName {
		return fmt.Errorf("store: %q is a reserved name", name)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: create workspace directory: %w", err)
	}

	sidecarPath, archivePath := s.Paths(name)

	if archiveBytes != nil {
		if err := atomicWrite(archivePath, archiveBytes); err != nil {
			return fmt.Errorf("store: write archive: %w", err)
		}
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	if err := atomicWrite(sidecarPath, data); err != nil {
		return fmt.Errorf("store: write sidecar: %w", err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// List enumerates every snapshot name with a readable sidecar, excluding
// the reserved config name. Sidecars that fail to parse are skipped with
// a warning returned alongside the list rather than failing the call —
// matching §4.D's "missing sidecar: skip with a warning" recovery path,
// generalized to any unreadable sidecar.
func (s *Store) List() (names []string, warnings []string, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("store: read workspace directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != sidecarExt {
			continue
		}
		name := e.Name()[:len(e.Name())-len(sidecarExt)]
		if name+sidecarExt == config.ReservedConfigName {
			continue
		}
		if _, err := s.LoadMetadata(name); err != nil {
			warnings = append(warnings, fmt.Sprintf("skipping %q: %v", name, err))
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, warnings, nil
}

// ListForSource returns every known snapshot name whose metadata carries
// the given source fingerprint (or, for legacy snapshots lacking a
// fingerprint, whose canonicalized source path matches).
func (s *Store) ListForSource(fingerprint string) ([]string, error) {
	names, _, err := s.List()
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, name := range names {
		md, err := s.LoadMetadata(name)
		if err != nil {
			continue
		}
		if md.SourceFingerprint == fingerprint || (md.SourceFingerprint == "" && md.SourcePath == fingerprint) {
			matched = append(matched, name)
		}
	}
	return matched, nil
}

// Latest returns the name of the snapshot with the most recent creation
// timestamp across the whole workspace, ties broken by sequence number
// then name.
func (s *Store) Latest() (string, bool, error) {
	names, _, err := s.List()
	if err != nil {
		return "", false, err
	}
	return s.latestOf(names)
}

// LatestForSource is Latest scoped to one source fingerprint's snapshots.
func (s *Store) LatestForSource(fingerprint string) (string, bool, error) {
	names, err := s.ListForSource(fingerprint)
	if err != nil {
		return "", false, err
	}
	return s.latestOf(names)
}

func (s *Store) latestOf(names []string) (string, bool, error) {
	if len(names) == 0 {
		return "", false, nil
	}

	type candidate struct {
		name string
		md   *snapshot.Metadata
	}
	candidates := make([]candidate, 0, len(names))
	for _, name := range names {
		md, err := s.LoadMetadata(name)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: name, md: md})
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.md.Created.Equal(b.md.Created) {
			return a.md.Created.After(b.md.Created)
		}
		if a.md.SequenceNumber != b.md.SequenceNumber {
			return a.md.SequenceNumber > b.md.SequenceNumber
		}
		return a.name < b.name
	})
	return candidates[0].name, true, nil
}

// thinArchive repacks an archive's entries, dropping data.json.
func thinArchive(raw []byte) ([]byte, error) {
	entries, err := archive.Unpack(raw)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Name == "data.json" {
			continue
		}
		kept = append(kept, e)
	}
	return archive.Pack(kept)
}

// LoadMetadata reads and parses the sidecar for name.
func (s *Store) LoadMetadata(name string) (*snapshot.Metadata, error) {
	sidecarPath, _ := s.Paths(name)
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, fmt.Errorf("store: read sidecar %s: %w", name, err)
	}

	var md snapshot.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("store: parse sidecar %s: %w", name, err)
	}
	return &md, nil
}

// LoadArchive reads the raw archive bytes for name. A missing archive
// file (e.g. one that was never written) returns an error; thinning
// rewrites the archive without data.json rather than removing it. Callers
// that only need metadata should use LoadMetadata instead.
func (s *Store) LoadArchive(name string) ([]byte, error) {
	_, archivePath := s.Paths(name)
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("store: read archive %s: %w", name, err)
	}
	return data, nil
}

// Delete removes both files of a snapshot. Removing a snapshot that chain
// validation still considers essential is the caller's mistake to avoid —
// Delete itself performs no reachability check.
func (s *Store) Delete(name string) error {
	sidecarPath, archivePath := s.Paths(name)
	if err := os.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove sidecar %s: %w", name, err)
	}
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove archive %s: %w", name, err)
	}
	return nil
}

// ThinData removes only the archive's row payload by rewriting it without
// data.json, keeping schema/delta/metadata intact. Used by cleanup to drop
// a reconstructible snapshot's full row data while the rest of its chain
// still needs its sidecar and delta.
func (s *Store) ThinData(name string) error {
	md, err := s.LoadMetadata(name)
	if err != nil {
		return err
	}
	if !md.HasFullData {
		return nil
	}

	raw, err := s.LoadArchive(name)
	if err != nil {
		return err
	}

	thinned, err := thinArchive(raw)
	if err != nil {
		return fmt.Errorf("store: thin archive %s: %w", name, err)
	}

	md.HasFullData = false
	if err := s.Write(name, md, thinned); err != nil {
		return fmt.Errorf("store: write thinned snapshot: %w", err)
	}
	return nil
}
