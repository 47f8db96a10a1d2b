package build

import (
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/tabdiff/internal/archive"
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/store"
	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// Archive is one snapshot's fully decoded contents. Rows and Delta are
// both optional: a snapshot taken without --full-data has neither an
// embedded row set beyond what a delta carries, and a chain root (or any
// snapshot whose parent had no embedded rows) has no delta at all.
type Archive struct {
	Metadata *snapshot.Metadata
	Schema   tabular.Schema
	Rows     []tabular.Row
	Delta    *snapshot.ChangeSet
}

// Reader loads snapshots back out of a store.
type Reader struct {
	store *store.Store
}

func NewReader(s *store.Store) *Reader {
	return &Reader{store: s}
}

// LoadMetadata reads a snapshot's sidecar without touching its archive.
func (r *Reader) LoadMetadata(name string) (*snapshot.Metadata, error) {
	return r.store.LoadMetadata(name)
}

// LoadArchive decodes a snapshot's full archive, tolerating the absence of
// optional entries (schema.json is the only entry a well-formed archive
// must always carry, since metadata.json duplicates the sidecar and
// data.json/delta.json are conditional on how the snapshot was taken).
func (r *Reader) LoadArchive(name string) (*Archive, error) {
	md, err := r.store.LoadMetadata(name)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.LoadArchive(name)
	if err != nil {
		return nil, fmt.Errorf("reader: %q has no archive: %w", name, err)
	}

	out := &Archive{Metadata: md}

	if schemaBytes, serr := archive.ExtractOne(raw, "schema.json"); serr == nil {
		var schema tabular.Schema
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return nil, fmt.Errorf("reader: decode schema: %w", err)
		}
		out.Schema = schema
	} else {
		out.Schema = md.Columns
	}

	if rowBytes, rerr := archive.ExtractOne(raw, "data.json"); rerr == nil && rowBytes != nil {
		var rows []tabular.Row
		if err := json.Unmarshal(rowBytes, &rows); err != nil {
			return nil, fmt.Errorf("reader: decode rows: %w", err)
		}
		out.Rows = rows
	}

	if deltaBytes, derr := archive.ExtractOne(raw, "delta.json"); derr == nil && deltaBytes != nil {
		var cs snapshot.ChangeSet
		if err := json.Unmarshal(deltaBytes, &cs); err != nil {
			return nil, fmt.Errorf("reader: decode delta: %w", err)
		}
		out.Delta = &cs
	}

	return out, nil
}

// RequireRows is the helper every row-data consumer (rollback replay,
// manual inspection) funnels through: it turns "rows absent" into an
// explicit, named error instead of a nil-slice surprise.
func (a *Archive) RequireRows() ([]tabular.Row, error) {
	if a.Rows == nil {
		return nil, fmt.Errorf("reader: snapshot %q lacks full row data", a.Metadata.Name)
	}
	return a.Rows, nil
}
