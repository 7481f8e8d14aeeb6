// Package romshelf is the single public facade over the catalogue-and-
// match core: importing DAT catalogues, scanning filesystem trees against
// them, and querying the resulting collection summary. A future CLI or
// GUI is expected to import only this package; everything under
// internal/ is an implementation detail.
package romshelf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"romshelf/internal/catalogue"
	"romshelf/internal/category"
	"romshelf/internal/dat"
	"romshelf/internal/events"
	"romshelf/internal/model"
	"romshelf/internal/romerrors"
	"romshelf/internal/rollup"
	"romshelf/internal/scanner"
)

// Core is an open collection: a catalogue store, its search index, and
// the event buses its long-running operations publish to. Construct one
// with Open and Close it when done.
type Core struct {
	store  *catalogue.Store
	search *catalogue.SearchIndex
	log    *zap.Logger

	scanBus *events.Bus[events.ScanEvent]
	datBus  *events.Bus[events.DatImportEvent]
}

// Options configures Open.
type Options struct {
	// DBPath is the SQLite database file, or ":memory:" for tests.
	DBPath string
	// SearchIndexPath is the on-disk bleve index directory. Required —
	// SearchCatalogue has no in-memory fallback.
	SearchIndexPath string
	Log             *zap.Logger
}

// Open opens (creating if absent) the catalogue database and its search
// index, and wires the progress buses every Scan/ImportDat call publishes
// to.
func Open(opts Options) (*Core, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	store, err := catalogue.Open(opts.DBPath, log)
	if err != nil {
		return nil, err
	}
	search, err := catalogue.OpenSearchIndex(opts.SearchIndexPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Core{
		store:   store,
		search:  search,
		log:     log,
		scanBus: events.NewScanBus(),
		datBus:  events.NewDatImportBus(),
	}, nil
}

// Close releases the database connection and search index.
func (c *Core) Close() error {
	searchErr := c.search.Close()
	storeErr := c.store.Close()
	if storeErr != nil {
		return storeErr
	}
	return searchErr
}

// SubscribeScan returns a channel of ScanEvent for every Scan call made on
// this Core from now on, and an unsubscribe function. Progress events may
// be dropped for a slow subscriber; Started/Completed/Summary/Error
// events never are (spec §4.9).
func (c *Core) SubscribeScan() (<-chan events.ScanEvent, func()) {
	return c.scanBus.Subscribe()
}

// SubscribeDatImport is SubscribeScan's counterpart for ImportDat and
// ImportDatDirectory.
func (c *Core) SubscribeDatImport() (<-chan events.DatImportEvent, func()) {
	return c.datBus.Subscribe()
}

// Scan walks root, hashing every loose file and archive member it finds
// and resolving each against the catalogue. workers <= 0 uses the
// available parallelism. Progress is reported on SubscribeScan's channel.
func (c *Core) Scan(ctx context.Context, root string, workers int) error {
	s := scanner.New(c.store, c.scanBus, c.log)
	return s.Scan(ctx, root, workers)
}

// Stats returns the aggregate snapshot (DAT/entry/file/matched counts and
// total bytes) consumed by UI/CLI collaborators.
func (c *Core) Stats(ctx context.Context) (catalogue.Stats, error) {
	return c.store.Stats(ctx)
}

// RebuildRollup discards and recomputes the entire directory rollup tree
// from the files and matches tables, in one transaction. This is the
// authoritative reconciliation path spec §4.8 and §8's cancellation
// scenario call for: a caller recovering from a crash or a cancelled
// scan runs this to bring the rollup tree back in sync with persisted
// file/match state, rather than trusting the incremental walk to have
// left no orphaned increments.
func (c *Core) RebuildRollup(ctx context.Context) error {
	tx, err := c.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning rebuild transaction: %w", romerrors.ErrStorage, err)
	}
	if err := rollup.Rebuild(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing rebuild transaction: %w", romerrors.ErrStorage, err)
	}
	return nil
}

// DirectoryNode is one node of the rollup tree returned by DirectoryTree,
// with its children already attached.
type DirectoryNode struct {
	model.Directory
	Children []*DirectoryNode
}

// DirectoryTree returns the full rollup tree, rooted at every directory
// with no parent (the longest common ancestors of whatever has been
// scanned so far).
func (c *Core) DirectoryTree(ctx context.Context) ([]*DirectoryNode, error) {
	roots, err := c.store.Roots(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*DirectoryNode, 0, len(roots))
	for _, r := range roots {
		node, err := c.buildDirectoryNode(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (c *Core) buildDirectoryNode(ctx context.Context, d model.Directory) (*DirectoryNode, error) {
	node := &DirectoryNode{Directory: d}
	children, err := c.store.ChildrenOf(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childNode, err := c.buildDirectoryNode(ctx, child)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

// FilesInDirectory returns the files directly contained in dirPath, the
// leaf-level counterpart to DirectoryTree's aggregate counters.
func (c *Core) FilesInDirectory(ctx context.Context, dirPath string) ([]model.ScannedFile, error) {
	return c.store.FilesIn(ctx, dirPath)
}

// DatTree returns every imported DAT grouped by category path.
func (c *Core) DatTree(ctx context.Context) ([]catalogue.DatCategory, error) {
	return c.store.DatTree(ctx)
}

// SearchCatalogue runs a free-text query over DAT/set/entry names and
// category paths.
func (c *Core) SearchCatalogue(query string) ([]catalogue.SearchHit, error) {
	return c.search.SearchCatalogue(query)
}

// ImportOptions controls one ImportDat call.
type ImportOptions struct {
	// ImportRoot is the directory an ImportDatDirectory walk started
	// from, so Derive can compute a directory-based category. Leave ""
	// for a standalone import.
	ImportRoot string
	// Category, if non-empty, overrides category derivation entirely.
	Category string
}

// ImportResult reports the outcome of one ImportDat call.
type ImportResult struct {
	Dat        model.Dat
	Outcome    catalogue.UpsertOutcome
	EntryCount int
	Duration   time.Duration
}

// ImportDat parses the DAT XML file at path and persists it, skipping a
// byte-identical re-import. Per-entry filtering (dropping ROMs with no
// usable hash, dropping sets left with zero entries) happens inside the
// parser; a DAT that ends up with zero surviving entries is reported as
// romerrors.ErrEmptyCatalogue, not persisted.
func (c *Core) ImportDat(ctx context.Context, path string, opts ImportOptions) (ImportResult, error) {
	runID := newRunID()
	start := time.Now()
	c.datBus.Publish(events.DatImportEvent{Type: events.DatImportStarted, RunID: runID, Path: path})

	info, err := os.Stat(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", romerrors.ErrIO, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", romerrors.ErrIO, err)
	}
	sha1sum, err := dat.FileSHA1(bytes.NewReader(raw))
	if err != nil {
		return ImportResult{}, err
	}

	v := &importVisitor{bus: c.datBus, runID: runID, path: path}
	if err := dat.Parse(bytes.NewReader(raw), path, v); err != nil {
		return ImportResult{}, err
	}

	d := model.Dat{
		Name:     v.header.Name,
		Format:   v.header.Format,
		FilePath: path,
		FileSHA1: sha1sum,
		FileSize: info.Size(),
		FileMod:  info.ModTime(),
		Category: category.Derive(path, opts.ImportRoot, opts.Category),
	}

	outcome, err := c.store.UpsertDat(ctx, d, v.sets)
	if err != nil {
		return ImportResult{}, err
	}

	elapsed := time.Since(start)
	if outcome.Skipped {
		c.datBus.Publish(events.DatImportEvent{Type: events.DatImportSkipped, RunID: runID, Path: path, Reason: outcome.Reason})
		return ImportResult{Dat: d, Outcome: outcome, Duration: elapsed}, nil
	}

	if err := c.indexEntries(ctx, d, outcome.VersionID); err != nil {
		c.log.Warn("indexing imported dat", zap.String("path", path), zap.Error(err))
	}

	var perSec float64
	if secs := elapsed.Seconds(); secs > 0 {
		perSec = float64(v.totalEntries) / secs
	}
	c.datBus.Publish(events.DatImportEvent{
		Type:          events.DatImportCompleted,
		RunID:         runID,
		Path:          path,
		Name:          d.Name,
		Format:        string(d.Format),
		EntryCount:    v.totalEntries,
		DurationMS:    elapsed.Milliseconds(),
		EntriesPerSec: perSec,
	})
	return ImportResult{Dat: d, Outcome: outcome, EntryCount: v.totalEntries, Duration: elapsed}, nil
}

// indexEntries keeps the search index in sync with a successful import,
// one document per surviving entry keyed by its real database ID (spec
// §3.10). Each import inserts fresh entry rows with new IDs, so documents
// indexed for an earlier import of the same DAT are not replaced or
// removed.
func (c *Core) indexEntries(ctx context.Context, d model.Dat, versionID int64) error {
	sets, err := c.store.ListSets(ctx, versionID)
	if err != nil {
		return err
	}
	setNames := make(map[int64]string, len(sets))
	for _, s := range sets {
		setNames[s.ID] = s.Name
	}

	return c.store.IterEntries(ctx, versionID, func(e model.Entry) bool {
		if err := c.search.IndexEntry(e.ID, e.Name, setNames[e.SetID], d.Name, d.Category); err != nil {
			c.log.Warn("indexing entry", zap.Int64("entry_id", e.ID), zap.Error(err))
		}
		return true
	})
}

// importVisitor drains a dat.Parse stream into the (set, entries) tree
// catalogue.UpsertDat wants, publishing progress events as it goes.
type importVisitor struct {
	bus   *events.Bus[events.DatImportEvent]
	runID string
	path  string

	header       dat.Header
	sets         []catalogue.SetWithEntries
	currentSet   string
	currentRoms  []catalogue.EntryInput
	totalEntries int
}

func (v *importVisitor) DatStart(h dat.Header) error {
	v.header = h
	v.bus.Publish(events.DatImportEvent{Type: events.DatImportDatDetected, RunID: v.runID, Path: v.path, Name: h.Name, Format: string(h.Format)})
	return nil
}

func (v *importVisitor) DatEnd() error { return nil }

func (v *importVisitor) SetStart(s dat.SetInfo) error {
	v.currentSet = s.Name
	v.currentRoms = nil
	v.bus.Publish(events.DatImportEvent{Type: events.DatImportSetStarted, RunID: v.runID, Path: v.path, Name: s.Name})
	return nil
}

func (v *importVisitor) ROM(e dat.Entry) error {
	v.currentRoms = append(v.currentRoms, catalogue.EntryInput{
		Name: e.Name, Size: e.Size, CRC32: e.CRC32, MD5: e.MD5, SHA1: e.SHA1,
	})
	v.totalEntries++
	if v.totalEntries%500 == 0 {
		v.bus.Publish(events.DatImportEvent{Type: events.DatImportRomProgress, RunID: v.runID, Path: v.path, TotalEntries: v.totalEntries})
	}
	return nil
}

func (v *importVisitor) SetEnd(s dat.SetInfo) error {
	v.sets = append(v.sets, catalogue.SetWithEntries{Name: v.currentSet, Entries: v.currentRoms})
	v.currentSet = ""
	v.currentRoms = nil
	return nil
}

// BatchResult reports the per-file outcome of an ImportDatDirectory call.
type BatchResult struct {
	Imported []ImportResult
	Skipped  []ImportResult
	Failed   []FailedImport
}

// FailedImport is one file an ImportDatDirectory batch could not import,
// isolated from the rest of the batch (spec §7).
type FailedImport struct {
	Path string
	Err  error
}

const checkpointKindDatImport = "dat_import"

// ImportDatDirectory walks root for *.dat/*.xml files and imports each
// one, checkpointing after every top-level entry the same way Scan does
// so a repeat call after an interruption skips already-completed
// entries. One file's XmlError or EmptyCatalogue never aborts the batch
// (spec §3.12, §7).
func (c *Core) ImportDatDirectory(ctx context.Context, root string) (BatchResult, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return BatchResult{}, fmt.Errorf("%w: %w", romerrors.ErrIO, err)
	}

	resumeAfter := ""
	if cp, ok, err := c.store.GetCheckpoint(ctx, checkpointKindDatImport, root); err == nil && ok {
		resumeAfter = cp.Token
	}

	var result BatchResult
	cleanFinish := true
	for _, e := range entries {
		if ctx.Err() != nil {
			cleanFinish = false
			break
		}
		if resumeAfter != "" && e.Name() <= resumeAfter {
			continue
		}

		c.importDatTreeEntry(ctx, filepath.Join(root, e.Name()), root, &result)

		if ctx.Err() != nil {
			cleanFinish = false
			break
		}
		cp := model.Checkpoint{JobKind: checkpointKindDatImport, Source: root, Token: e.Name(), UpdatedAt: time.Now()}
		if err := c.store.UpsertCheckpoint(ctx, cp); err != nil {
			c.log.Warn("checkpointing dat import batch", zap.String("root", root), zap.Error(err))
		}
	}
	if cleanFinish {
		if err := c.store.DeleteCheckpoint(ctx, checkpointKindDatImport, root); err != nil {
			c.log.Warn("clearing dat import checkpoint", zap.String("root", root), zap.Error(err))
		}
	}
	return result, nil
}

// importDatTreeEntry imports every *.dat/*.xml file under entryPath,
// recording each outcome on result without letting one file's failure
// stop the walk.
func (c *Core) importDatTreeEntry(ctx context.Context, entryPath, root string, result *BatchResult) {
	filepath.WalkDir(entryPath, func(p string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			result.Failed = append(result.Failed, FailedImport{Path: p, Err: err})
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".dat" && ext != ".xml" {
			return nil
		}

		res, err := c.ImportDat(ctx, p, ImportOptions{ImportRoot: root})
		switch {
		case err != nil:
			result.Failed = append(result.Failed, FailedImport{Path: p, Err: err})
		case res.Outcome.Skipped:
			result.Skipped = append(result.Skipped, res)
		default:
			result.Imported = append(result.Imported, res)
		}
		return nil
	})
}
