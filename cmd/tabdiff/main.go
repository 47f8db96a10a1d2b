package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kasuganosora/tabdiff/internal/build"
	"github.com/kasuganosora/tabdiff/internal/chain"
	"github.com/kasuganosora/tabdiff/internal/diff"
	"github.com/kasuganosora/tabdiff/internal/snapshot"
	"github.com/kasuganosora/tabdiff/internal/store"
	"github.com/kasuganosora/tabdiff/internal/tabular"
	"github.com/kasuganosora/tabdiff/internal/tabularsource"
	"github.com/kasuganosora/tabdiff/pkg/api"
	"github.com/kasuganosora/tabdiff/pkg/config"
	"github.com/kasuganosora/tabdiff/pkg/utils"
)

// The subcommands mirror §6.4's verb table: init, snapshot, diff, show,
// status, list, rollback, chain, cleanup. Each parses its own flag.FlagSet
// and returns a *api.Error so main can apply §7's "kind: message" prefix
// and non-zero exit code uniformly.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	verb := os.Args[1]
	args := os.Args[2:]

	var err error
	switch verb {
	case "init":
		err = runInit(args)
	case "snapshot":
		err = runSnapshot(args)
	case "diff":
		err = runDiff(args)
	case "show":
		err = runShow(args)
	case "status":
		err = runStatus(args)
	case "list":
		err = runList(args)
	case "rollback":
		err = runRollback(args)
	case "chain":
		err = runChain(args)
	case "cleanup":
		err = runCleanup(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		reportAndExit(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tabdiff <init|snapshot|diff|show|status|list|rollback|chain|cleanup> [flags]")
}

// reportAndExit prints the §7 "kind: message (hint)" line and exits
// non-zero. A plain (non-api.Error) error is reported under INTERNAL so
// every exit still carries a kind.
func reportAndExit(err error) {
	// An *api.Error already renders as "[KIND] message".
	msg := "tabdiff: " + err.Error()
	apiErr, ok := err.(*api.Error)
	if !ok {
		code := api.GetErrorCode(err)
		if code == "" {
			code = api.ErrCodeInternal
		}
		msg = fmt.Sprintf("tabdiff: [%s] %s", code, err)
	}
	if ok && apiErr.Hint != "" {
		msg += "\nhint: " + apiErr.Hint
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func workspaceRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", api.WrapError(err, api.ErrCodeIO, "read working directory")
	}
	root, found, err := config.Discover(cwd)
	if err != nil {
		return "", api.WrapError(err, api.ErrCodeConfiguration, "discover workspace")
	}
	if !found {
		return "", api.NewError(api.ErrCodeConfiguration,
			fmt.Sprintf("no .tabdiff workspace found above %s", cwd), nil).
			WithHint("run 'tabdiff init' first")
	}
	return root, nil
}

// resolveSnapshot maps a name to its metadata, or a SNAPSHOT_NOT_FOUND
// error with an actionable hint — every verb that takes a snapshot
// reference funnels through this.
func resolveSnapshot(s *store.Store, name string) (*snapshot.Metadata, error) {
	if !s.Exists(name) {
		return nil, api.NewError(api.ErrCodeSnapshotNotFound,
			fmt.Sprintf("snapshot %q not found", name), nil).
			WithHint("run 'tabdiff list' to see available snapshots")
	}
	md, err := s.LoadMetadata(name)
	if err != nil {
		return nil, api.WrapError(err, api.ErrCodeInvalidSnapshot, fmt.Sprintf("load snapshot %q", name))
	}
	return md, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Parse(args)

	cwd, err := os.Getwd()
	if err != nil {
		return api.WrapError(err, api.ErrCodeIO, "read working directory")
	}
	if err := config.EnsureWorkspace(cwd); err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "create workspace")
	}
	fmt.Printf("initialized workspace at %s\n", filepath.Join(cwd, config.WorkspaceDir))
	return nil
}

// envWorkers reads TABDIFF_WORKERS as a fallback default for -workers when
// the flag is left at zero, the same override-by-environment pattern the
// rest of the CLI surface uses for everything else via config.json.
func envWorkers(flagValue int) int {
	if flagValue != 0 {
		return flagValue
	}
	return utils.ParseInt(os.Getenv("TABDIFF_WORKERS"), 0)
}

// envFullDataDefault reads TABDIFF_FULL_DATA as a fallback for
// -full-data when neither the flag nor the workspace config turned it on,
// so a workspace can be switched to always-embed-rows without touching
// every snapshot invocation or config.json.
func envFullDataDefault(flagSet bool) bool {
	if flagSet {
		return true
	}
	return utils.ParseBool(os.Getenv("TABDIFF_FULL_DATA"), false)
}

func runSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	source := fs.String("source", "", "path to the source file (csv, json/jsonl, parquet)")
	name := fs.String("name", "", "snapshot name (required)")
	fullData := fs.Bool("full-data", false, "embed the full row set in the archive")
	batchSize := fs.Int("batch-size", 0, "row batch size hint for the external reader")
	workers := fs.Int("workers", 0, "worker count for the diff engine (0 = TABDIFF_WORKERS, then the workspace config, then runtime.NumCPU())")
	fs.Parse(args)
	_ = batchSize // reserved for the external columnar reader; not used by the built-in adapters

	if *source == "" {
		return api.NewError(api.ErrCodeInvalidInput, "-source is required", nil)
	}
	if *name == "" {
		return api.NewError(api.ErrCodeInvalidInput, "-name is required", nil)
	}

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(config.ConfigPath(root))
	if err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "load workspace config")
	}

	reader, err := openSource(*source)
	if err != nil {
		return err
	}

	w := envWorkers(*workers)
	if w == 0 {
		w = cfg.Workers
	}

	b := build.New(store.Open(root))
	md, err := b.Build(context.Background(), reader, *source, *name, build.Options{
		FullData: envFullDataDefault(*fullData || cfg.FullData),
		Workers:  w,
	})
	if err != nil {
		return classifyBuildError(err)
	}

	fmt.Printf("snapshot %q: %d rows, %d columns, sequence %d\n", md.Name, md.RowCount, md.ColumnCount, md.SequenceNumber)
	if md.CanReconstructParent {
		fmt.Printf("  delta from parent %q recorded\n", md.ParentSnapshot)
	}
	return nil
}

// classifyBuildError maps the builder's plain errors onto the §7 taxonomy:
// a duplicate name is INVALID_INPUT (the documented "fails before any
// write" case), anything else is DATA_PROCESSING (the external reader's
// concern).
func classifyBuildError(err error) error {
	if strings.Contains(err.Error(), "already exists") {
		return api.WrapError(err, api.ErrCodeInvalidInput, "build snapshot")
	}
	return api.WrapError(err, api.ErrCodeDataProcessing, "build snapshot")
}

// openSource picks an adapter by file extension. Query-backed sources
// (SQL) aren't reachable from this flag alone — callers needing those
// construct a tabularsource.SQLReader directly via the library API, per
// Open Question 1: ATTACH handling is the caller's concern, not the
// core's.
func openSource(path string) (tabularsource.Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		r := tabularsource.NewCSVReader(path)
		if strings.ToLower(filepath.Ext(path)) == ".tsv" {
			r.Comma = '\t'
		}
		return r, nil
	case ".json", ".jsonl", ".ndjson":
		return tabularsource.NewJSONLReader(path), nil
	case ".parquet":
		return tabularsource.NewParquetReader(path), nil
	case ".xlsx":
		return tabularsource.NewXLSXReader(path), nil
	default:
		return nil, api.NewError(api.ErrCodeInvalidInput,
			fmt.Sprintf("unrecognized source extension for %s", path), nil)
	}
}

// loadSnapshotData loads a snapshot's schema and rows, requiring full row
// data — the shared path for diff, status and rollback, each of which
// needs to compare against materialized rows rather than just hashes.
func loadSnapshotData(root, name string) (tabular.Schema, []tabular.Row, *snapshot.Metadata, error) {
	s := store.Open(root)
	md, err := resolveSnapshot(s, name)
	if err != nil {
		return nil, nil, nil, err
	}
	if !md.HasFullData {
		return nil, nil, nil, api.NewError(api.ErrCodeInvalidSnapshot,
			fmt.Sprintf("snapshot %q lacks full data", name), nil).
			WithHint("use --full-data when creating snapshots for rollback/diff capability")
	}

	r := build.NewReader(s)
	a, err := r.LoadArchive(name)
	if err != nil {
		return nil, nil, nil, api.WrapError(err, api.ErrCodeInvalidSnapshot, fmt.Sprintf("load archive %q", name))
	}
	rows, err := a.RequireRows()
	if err != nil {
		return nil, nil, nil, api.NewError(api.ErrCodeInvalidSnapshot, err.Error(), nil).
			WithHint("use --full-data when creating snapshots for rollback/diff capability")
	}
	return a.Schema, rows, md, nil
}

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	mode := fs.String("mode", "auto", "quick|detailed|auto (accepted and ignored: all modes run the same detector and print the same output)")
	output := fs.String("output", "", "write the change set as JSON to this path instead of stdout")
	fs.Parse(args)
	_ = mode

	rest := fs.Args()
	if len(rest) != 2 {
		return api.NewError(api.ErrCodeInvalidInput, "usage: tabdiff diff <snapshot-a> <snapshot-b>", nil)
	}
	nameA, nameB := rest[0], rest[1]

	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	schemaA, rowsA, _, err := loadSnapshotData(root, nameA)
	if err != nil {
		return err
	}
	schemaB, rowsB, mdB, err := loadSnapshotData(root, nameB)
	if err != nil {
		return err
	}

	cs, err := diff.Detect(schemaA, schemaB, rowsA, rowsB, diff.Options{})
	if err != nil {
		return api.WrapError(err, api.ErrCodeDataProcessing, "detect changes")
	}

	if err := cacheDiff(root, nameA, nameB, cs); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return api.WrapError(err, api.ErrCodeInternal, "marshal change set")
	}

	if *output != "" {
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			return api.WrapError(err, api.ErrCodeIO, "write diff output")
		}
		fmt.Printf("diff %s -> %s (%d rows) written to %s\n", nameA, nameB, mdB.RowCount, *output)
		return nil
	}
	fmt.Println(string(data))
	return nil
}

// cacheDiff writes the computed change set under .tabdiff/diffs per §6.1's
// workspace layout, named deterministically by the two snapshot names so
// a repeat diff hits the cache file at the same path.
func cacheDiff(root, nameA, nameB string, cs snapshot.ChangeSet) error {
	dir := filepath.Join(root, config.WorkspaceDir, config.DiffsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return api.WrapError(err, api.ErrCodeIO, "create diffs cache directory")
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", nameA, nameB))
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return api.WrapError(err, api.ErrCodeInternal, "marshal cached diff")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return api.WrapError(err, api.ErrCodeIO, "write cached diff")
	}
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	detailed := fs.Bool("detailed", false, "also load and include archive schema/rows")
	format := fs.String("format", "pretty", "pretty|json")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 1 {
		return api.NewError(api.ErrCodeInvalidInput, "usage: tabdiff show <name> [--detailed] [--format pretty|json]", nil)
	}
	name := rest[0]

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	s := store.Open(root)
	md, err := resolveSnapshot(s, name)
	if err != nil {
		return err
	}

	if *format == "json" {
		payload := map[string]interface{}{"metadata": md}
		if *detailed && md.HasFullData {
			r := build.NewReader(s)
			a, err := r.LoadArchive(name)
			if err != nil {
				return api.WrapError(err, api.ErrCodeInvalidSnapshot, "load archive")
			}
			payload["schema"] = a.Schema
			payload["rows"] = a.Rows
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return api.WrapError(err, api.ErrCodeInternal, "marshal snapshot")
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("name:              %s\n", md.Name)
	fmt.Printf("created:           %s\n", md.Created.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("source:            %s\n", md.Source)
	fmt.Printf("rows:              %d\n", md.RowCount)
	fmt.Printf("columns:           %d\n", md.ColumnCount)
	fmt.Printf("schema_hash:       %s\n", md.SchemaHash)
	fmt.Printf("has_full_data:     %t\n", md.HasFullData)
	fmt.Printf("sequence_number:   %d\n", md.SequenceNumber)
	if md.ParentSnapshot != "" {
		fmt.Printf("parent_snapshot:   %s\n", md.ParentSnapshot)
	}
	fmt.Printf("can_reconstruct:   %t\n", md.CanReconstructParent)
	if *detailed {
		for _, c := range md.Columns {
			fmt.Printf("  column: %-20s type=%-12s nullable=%t\n", c.Name, c.DataType, c.Nullable)
		}
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	compareTo := fs.String("compare-to", "", "snapshot to compare against (defaults to the workspace's latest)")
	jsonOut := fs.Bool("json", false, "emit the change set as JSON")
	quiet := fs.Bool("quiet", false, "accepted and ignored; the output is the same with or without it")
	fs.Parse(args)
	_ = quiet

	rest := fs.Args()
	if len(rest) != 1 {
		return api.NewError(api.ErrCodeInvalidInput, "usage: tabdiff status <input> [--compare-to NAME] [--json] [--quiet]", nil)
	}
	input := rest[0]

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	s := store.Open(root)

	baseline := *compareTo
	if baseline == "" {
		name, ok, err := s.Latest()
		if err != nil {
			return api.WrapError(err, api.ErrCodeIO, "find latest snapshot")
		}
		if !ok {
			return api.NewError(api.ErrCodeSnapshotNotFound, "no snapshots found to compare against", nil)
		}
		baseline = name
	}

	baseSchema, baseRows, _, err := loadSnapshotData(root, baseline)
	if err != nil {
		return err
	}

	reader, err := openSource(input)
	if err != nil {
		return err
	}
	curSchema, curRows, err := tabularsource.ReadAll(context.Background(), reader)
	if err != nil {
		return api.WrapError(err, api.ErrCodeDataProcessing, "read current source")
	}

	cs, err := diff.Detect(baseSchema, curSchema, baseRows, curRows, diff.Options{})
	if err != nil {
		return api.WrapError(err, api.ErrCodeDataProcessing, "detect changes")
	}

	if *jsonOut {
		data, err := json.MarshalIndent(cs, "", "  ")
		if err != nil {
			return api.WrapError(err, api.ErrCodeInternal, "marshal change set")
		}
		fmt.Println(string(data))
		return nil
	}

	if cs.IsEmpty() {
		fmt.Printf("%s is unchanged relative to %q\n", input, baseline)
		return nil
	}
	fmt.Printf("%s differs from %q:\n", input, baseline)
	fmt.Printf("  modified: %d, added: %d, removed: %d\n",
		len(cs.RowChanges.Modified), len(cs.RowChanges.Added), len(cs.RowChanges.Removed))
	if !cs.SchemaChanges.IsEmpty() {
		fmt.Printf("  schema changes: %d added, %d removed, %d renamed, %d type changes, reordered=%t\n",
			len(cs.SchemaChanges.Added), len(cs.SchemaChanges.Removed),
			len(cs.SchemaChanges.Renamed), len(cs.SchemaChanges.TypeChanges),
			cs.SchemaChanges.ColumnOrder != nil)
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "emit the snapshot names as a JSON array")
	fs.Parse(args)

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	names, warnings, err := store.Open(root).List()
	if err != nil {
		return api.WrapError(err, api.ErrCodeIO, "list snapshots")
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	if *jsonOut {
		data, err := json.MarshalIndent(names, "", "  ")
		if err != nil {
			return api.WrapError(err, api.ErrCodeInternal, "marshal snapshot list")
		}
		fmt.Println(string(data))
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	to := fs.String("to", "", "snapshot name to roll back to (required)")
	dryRun := fs.Bool("dry-run", false, "show what would change without writing")
	force := fs.Bool("force", false, "required to write the input file; without it (and without --dry-run) the rollback is refused")
	backup := fs.Bool("backup", false, "copy the input file to <input>.backup before writing")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 1 {
		return api.NewError(api.ErrCodeInvalidInput, "usage: tabdiff rollback <input> --to NAME [--dry-run] [--force] [--backup]", nil)
	}
	input := rest[0]
	if *to == "" {
		return api.NewError(api.ErrCodeInvalidInput, "-to is required", nil)
	}

	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	// Per Open Question 2, a hash-only target is a hard error — never a
	// silent header-only write.
	targetSchema, targetRows, targetMD, err := loadSnapshotData(root, *to)
	if err != nil {
		return err
	}

	reader, err := openSource(input)
	if err != nil {
		return err
	}
	curSchema, curRows, err := tabularsource.ReadAll(context.Background(), reader)
	if err != nil {
		return api.WrapError(err, api.ErrCodeDataProcessing, "read current source")
	}

	cs, err := diff.Detect(targetSchema, curSchema, targetRows, curRows, diff.Options{})
	if err != nil {
		return api.WrapError(err, api.ErrCodeDataProcessing, "detect changes")
	}
	if cs.IsEmpty() {
		fmt.Printf("%s is already at the state of snapshot %q; nothing to roll back\n", input, *to)
		return nil
	}

	fmt.Printf("rolling back %s to %q: %d modified, %d added, %d removed, %d rollback operations\n",
		input, *to, len(cs.RowChanges.Modified), len(cs.RowChanges.Added), len(cs.RowChanges.Removed),
		len(cs.RollbackOperations))

	if *dryRun {
		fmt.Println("dry-run: no files were written")
		return nil
	}
	if !*force {
		return api.NewError(api.ErrCodeInvalidInput, "rollback requires --force (or --dry-run to preview)", nil)
	}

	if *backup {
		if err := copyFile(input, input+".backup"); err != nil {
			return api.WrapError(err, api.ErrCodeIO, "write backup")
		}
		fmt.Printf("backup written to %s.backup\n", input)
	}

	if err := tabularsource.WriteCSV(input, targetSchema, targetRows); err != nil {
		return api.WrapError(err, api.ErrCodeIO, "rewrite input with target snapshot state")
	}
	fmt.Printf("%s rolled back to snapshot %q (sequence %d)\n", input, targetMD.Name, targetMD.SequenceNumber)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func runChain(args []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	source := fs.String("source", "", "source fingerprint (defaults to the workspace's single source)")
	jsonOut := fs.Bool("json", false, "emit the chain as JSON")
	fs.Parse(args)

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	m := chain.New(store.Open(root))

	var c chain.Chain
	if *source == "" {
		c, err = m.BuildChain()
	} else {
		c, err = m.BuildChainForSource(*source)
	}
	if err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "build chain")
	}

	if *jsonOut {
		data, err := json.MarshalIndent(c.Names, "", "  ")
		if err != nil {
			return api.WrapError(err, api.ErrCodeInternal, "marshal chain")
		}
		fmt.Println(string(data))
		return nil
	}
	for _, n := range c.Names {
		fmt.Println(n)
	}
	return nil
}

func runCleanup(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	keepFull := fs.Int("keep-full", -1, "how many of the most recent archives per chain to keep full (defaults to the workspace config)")
	dryRun := fs.Bool("dry-run", true, "only list what would be deleted")
	force := fs.Bool("force", false, "required alongside a false --dry-run to actually apply")
	fs.Parse(args)

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(config.ConfigPath(root))
	if err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "load workspace config")
	}
	k := *keepFull
	if k < 0 {
		k = cfg.KeepFull
	}

	if !*dryRun && !*force {
		return api.NewError(api.ErrCodeInvalidInput, "cleanup requires --force (or leave --dry-run on to preview)", nil)
	}

	s := store.Open(root)
	m := chain.New(s)

	deletable, err := m.DeletionCandidates(k)
	if err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "compute deletion candidates")
	}
	thinnable, err := m.DataCleanupCandidates(k)
	if err != nil {
		return api.WrapError(err, api.ErrCodeConfiguration, "compute thinning candidates")
	}

	for _, n := range deletable {
		if *dryRun {
			fmt.Println("would delete:", n)
			continue
		}
		if err := s.Delete(n); err != nil {
			return api.WrapError(err, api.ErrCodeIO, fmt.Sprintf("delete %q", n))
		}
		fmt.Println("deleted:", n)
	}
	for _, n := range thinnable {
		if *dryRun {
			fmt.Println("would thin row data from:", n)
			continue
		}
		if err := s.ThinData(n); err != nil {
			return api.WrapError(err, api.ErrCodeIO, fmt.Sprintf("thin %q", n))
		}
		fmt.Println("thinned:", n)
	}
	return nil
}
