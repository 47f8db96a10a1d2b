// Package snapshot defines the sidecar metadata record, archive contents and
// change-set shapes shared by the store, chain manager, change detector,
// rollback synthesizer, builder and reader.
package snapshot

import (
	"time"

	"github.com/kasuganosora/tabdiff/internal/tabular"
)

// FormatVersion is the sidecar/archive format version written by this
// build. Bump it when the metadata shape changes incompatibly.
const FormatVersion = 1

// Metadata is the sidecar record for one snapshot: everything needed to
// answer chain and reconstruction queries without opening the archive.
type Metadata struct {
	FormatVersion int       `json:"format_version"`
	Name          string    `json:"name"`
	Created       time.Time `json:"created"`

	Source           string `json:"source"`
	SourcePath       string `json:"source_path,omitempty"`
	SourceFingerprint string `json:"source_fingerprint,omitempty"`

	RowCount    int             `json:"row_count"`
	ColumnCount int             `json:"column_count"`
	SchemaHash  string          `json:"schema_hash"`
	Columns     tabular.Schema  `json:"columns"`

	ArchiveSize  int64 `json:"archive_size,omitempty"`
	HasFullData  bool  `json:"has_full_data"`

	ParentSnapshot string     `json:"parent_snapshot,omitempty"`
	SequenceNumber int        `json:"sequence_number"`
	DeltaFromParent *ChangeSet `json:"delta_from_parent,omitempty"`
	CanReconstructParent bool  `json:"can_reconstruct_parent"`
}

// Refresh stores the given schema hash and recomputes the derived fields
// (column count and reconstructibility) from the metadata's own content.
// Calling Refresh twice with the same hash leaves SchemaHash unchanged.
func (m *Metadata) Refresh(schemaHash string) {
	m.SchemaHash = schemaHash
	m.ColumnCount = len(m.Columns)
	m.CanReconstructParent = m.DeltaFromParent != nil
}

// SchemaChange describes column-level differences between two schemas.
type SchemaChange struct {
	ColumnOrder *ColumnOrderChange `json:"column_order,omitempty"`
	Added       []AddedColumn      `json:"added,omitempty"`
	Removed     []RemovedColumn    `json:"removed,omitempty"`
	Renamed     []RenamedColumn    `json:"renamed,omitempty"`
	TypeChanges []TypeChange       `json:"type_changes,omitempty"`
}

// IsEmpty reports whether no schema-level change was detected.
func (s SchemaChange) IsEmpty() bool {
	return s.ColumnOrder == nil && len(s.Added) == 0 && len(s.Removed) == 0 &&
		len(s.Renamed) == 0 && len(s.TypeChanges) == 0
}

// ColumnOrderChange records a pure reordering of the same column set.
type ColumnOrderChange struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// AddedColumn is a column present in the current schema but not the base.
type AddedColumn struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Position int         `json:"position"`
	Nullable bool        `json:"nullable"`
	Default  interface{} `json:"default,omitempty"`
}

// RemovedColumn is a column present in the base schema but not the current.
type RemovedColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	Nullable bool   `json:"nullable"`
}

// RenamedColumn is a positional name change.
type RenamedColumn struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TypeChange is a positional data-type change.
type TypeChange struct {
	Column string `json:"column"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// CellChange is the before/after pair for one modified cell.
type CellChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// ModifiedRow is a row present on both sides with at least one cell change.
type ModifiedRow struct {
	RowIndex int                   `json:"row_index"`
	Changes  map[string]CellChange `json:"changes"`
}

// AddedRow is a row present only in the current dataset.
type AddedRow struct {
	RowIndex int               `json:"row_index"`
	Data     map[string]string `json:"data"`
}

// RemovedRow is a row present only in the base dataset.
type RemovedRow struct {
	RowIndex int               `json:"row_index"`
	Data     map[string]string `json:"data"`
}

// RowChange groups the three classes of row-level change.
type RowChange struct {
	Modified []ModifiedRow `json:"modified,omitempty"`
	Added    []AddedRow    `json:"added,omitempty"`
	Removed  []RemovedRow  `json:"removed,omitempty"`
}

// IsEmpty reports whether no row-level change was detected.
func (r RowChange) IsEmpty() bool {
	return len(r.Modified) == 0 && len(r.Added) == 0 && len(r.Removed) == 0
}

// RollbackOperation is one inverse operation in a rollback program.
type RollbackOperation struct {
	Kind       OperationKind          `json:"kind"`
	Parameters map[string]interface{} `json:"parameters"`
}

// OperationKind enumerates the rollback operation vocabulary.
type OperationKind string

const (
	OpUpdateCell      OperationKind = "UpdateCell"
	OpRestoreRow      OperationKind = "RestoreRow"
	OpRemoveRow       OperationKind = "RemoveRow"
	OpRenameColumn    OperationKind = "RenameColumn"
	OpChangeColumnType OperationKind = "ChangeColumnType"
	OpAddColumn       OperationKind = "AddColumn"
	OpRemoveColumn    OperationKind = "RemoveColumn"
	OpReorderColumns  OperationKind = "ReorderColumns"
)

// ChangeSet is the full result of comparing a base and current schema+rows
// pair: schema diff, row diff and the rollback program that inverts both.
type ChangeSet struct {
	SchemaChanges       SchemaChange         `json:"schema_changes"`
	RowChanges          RowChange            `json:"row_changes"`
	RollbackOperations  []RollbackOperation  `json:"rollback_operations"`
}

// IsEmpty reports whether the change set carries no detected change.
func (c ChangeSet) IsEmpty() bool {
	return c.SchemaChanges.IsEmpty() && c.RowChanges.IsEmpty()
}
