// Package build orchestrates taking a snapshot: read the source, hash it,
// find the current chain head, diff against it if one exists, pack the
// archive, and persist metadata — the six steps of §4.G.
package build

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"lukechampine.com/blake3"

	"github.com/kasuganosora/tabdiff/internal/archive"
	"github.com/kasuganosora/tabdiff/internal/chain"
	"github.com/kasuganosora/tabdiff/internal/diff"
	"github.com/kasuganosora/tabdiff/internal/hashing"
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/store"
	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/internal/tabularsource"
	"github.com/kasuganosora/tabdiff/pkg/utils"
)

// Options controls how a snapshot is built, mirroring the CLI flags of
// §6.4's snapshot verb.
type Options struct {
	// FullData embeds the complete row set in the archive (data.json).
	// Without it, a snapshot only carries schema + hashes + (if its parent
	// has embedded row data) the delta, and cannot itself serve as a
	// rollback base.
	FullData bool
	// Workers bounds the diff engine's worker pool; zero means the
	// detector's own default (runtime.NumCPU()).
	Workers int
}

// Builder takes snapshots into one workspace's store.
type Builder struct {
	store *store.Store
	chain *chain.Manager
	clock utils.TimeProvider
}

func New(s *store.Store) *Builder {
	return &Builder{store: s, chain: chain.New(s), clock: utils.NewSystemTimeProvider()}
}

// NewWithClock is New with an injectable time source, so tests can pin the
// "created" timestamp instead of racing the wall clock.
func NewWithClock(s *store.Store, clock utils.TimeProvider) *Builder {
	return &Builder{store: s, chain: chain.New(s), clock: clock}
}

// Build reads source, computes its fingerprint, diffs it against the
// current head of its chain (if any), and writes a new snapshot named
// name. It fails before writing anything if name already exists.
func (b *Builder) Build(ctx context.Context, source tabularsource.Reader, sourceLabel, name string, opts Options) (*snapshot.Metadata, error) {
	if b.store.Exists(name) {
		return nil, fmt.Errorf("build: snapshot %q already exists", name)
	}

	schema, rows, err := tabularsource.ReadAll(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("build: read source: %w", err)
	}

	schemaHash := hashing.HashSchema(schema)
	fingerprint := fingerprintOf(sourceLabel)

	c, err := b.chain.BuildChainForSource(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("build: find chain head: %w", err)
	}
	parentName, hasParent := c.HeadName(), c.Head() != nil

	md := &snapshot.Metadata{
		FormatVersion:     snapshot.FormatVersion,
		Name:              name,
		Created:           b.clock.Now().UTC(),
		Source:            sourceLabel,
		SourcePath:        filepath.Clean(sourceLabel),
		SourceFingerprint: fingerprint,
		RowCount:          len(rows),
		Columns:           schema,
		HasFullData:       opts.FullData,
	}

	entries := []archive.Entry{
		{Name: "metadata.json"},
		{Name: "schema.json", Bytes: mustJSON(schema)},
	}

	var parentMD *snapshot.Metadata
	if hasParent {
		parentMD, err = b.store.LoadMetadata(parentName)
		if err != nil {
			return nil, fmt.Errorf("build: load parent metadata: %w", err)
		}
		md.ParentSnapshot = parentName
		md.SequenceNumber = parentMD.SequenceNumber + 1

		parentRows, parentSchema, err := loadParentRows(b.store, parentName, parentMD)
		if err != nil {
			return nil, fmt.Errorf("build: reconstruct parent rows: %w", err)
		}
		if parentRows != nil {
			cs, err := diff.Detect(parentSchema, schema, parentRows, rows, diff.Options{Workers: opts.Workers})
			if err != nil {
				return nil, fmt.Errorf("build: diff against parent: %w", err)
			}
			md.DeltaFromParent = &cs
			md.CanReconstructParent = true
			entries = append(entries, archive.Entry{Name: "delta.json", Bytes: mustJSON(cs)})
		}
	}

	if opts.FullData {
		entries = append(entries, archive.Entry{Name: "data.json", Bytes: mustJSON(rows)})
	}

	md.Refresh(string(schemaHash))

	// metadata.json is embedded in the archive as a convenience copy for
	// tooling that only has the .tabdiff archive file and not its sidecar;
	// the sidecar written by store.Write remains the source of truth.
	for i := range entries {
		if entries[i].Name == "metadata.json" {
			entries[i].Bytes = mustJSON(md)
		}
	}

	archiveBytes, err := archive.Pack(entries)
	if err != nil {
		return nil, fmt.Errorf("build: pack archive: %w", err)
	}
	md.ArchiveSize = int64(len(archiveBytes))

	if err := b.store.Write(name, md, archiveBytes); err != nil {
		return nil, fmt.Errorf("build: write snapshot: %w", err)
	}
	return md, nil
}

// fingerprintOf derives a source fingerprint from its canonical path, so
// repeated snapshots of the same file land in the same chain regardless of
// how its row count drifts between them.
func fingerprintOf(sourceLabel string) string {
	clean := filepath.Clean(sourceLabel)
	h := blake3.New(16, nil)
	h.Write([]byte(clean))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func mustJSON(v interface{}) []byte {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		// Every value passed here is one of our own types; a marshal
		// failure indicates a programming error, not a runtime condition.
		panic(fmt.Sprintf("build: marshal: %v", err))
	}
	return b
}

// loadParentRows reads the parent's full row set directly from its own
// archive when the parent still has full data. Deltas of older ancestors
// are not replayed: a parent without full data yields (nil, nil, nil), in
// which case the caller proceeds without a delta.
func loadParentRows(s *store.Store, name string, md *snapshot.Metadata) ([]tabular.Row, tabular.Schema, error) {
	if md.HasFullData {
		rows, err := readEmbeddedRows(s, name)
		if err != nil {
			return nil, nil, err
		}
		return rows, md.Columns, nil
	}
	return nil, nil, nil
}

func readEmbeddedRows(s *store.Store, name string) ([]tabular.Row, error) {
	archiveBytes, err := s.LoadArchive(name)
	if err != nil {
		return nil, err
	}
	data, err := archive.ExtractOne(archiveBytes, "data.json")
	if err != nil {
		return nil, nil
	}
	var rows []tabular.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("build: decode embedded rows: %w", err)
	}
	return rows, nil
}
