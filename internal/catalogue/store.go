// Package catalogue persists DATs, versions, sets, and entries, and
// exposes the query surface consumed by UI/CLI collaborators (spec §4.5,
// §6). It owns the single *sql.DB connection; the scanner's writer
// goroutine and the rollup/resolver packages operate through the
// transactions it opens.
package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"romshelf/internal/catalogue/migrations"
	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

// Store is the database-backed catalogue: DATs, versions, sets, entries,
// scanned files, matches, the rollup tree, and checkpoints all live in one
// SQLite file, migrated forward-only (§6).
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if absent) the SQLite database at path and brings
// its schema up to date. path may be ":memory:" for tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", romerrors.ErrStorage, path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling foreign keys: %w", romerrors.ErrStorage, err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for packages (rollup, resolver,
// scanner) that need to participate in the same transaction as a store
// write. Outside of those packages, prefer the typed Store methods.
func (s *Store) DB() *sql.DB { return s.db }

// UpsertOutcome reports what upsertDat actually did, mirroring the
// Inserted/Skipped outcome pair from spec §4.5 and §7.
type UpsertOutcome struct {
	Inserted  bool
	Skipped   bool
	Reason    string // set iff Skipped
	DatID     int64  // set iff Inserted
	VersionID int64  // set iff Inserted
}

// UpsertDat inserts a new Dat/DatVersion/Set/Entry tree in one
// transaction, or reports Skipped{duplicate sha1} if a Dat with the same
// file SHA1 already exists. Re-importing identical bytes is a no-op
// (spec §3's DAT invariant).
func (s *Store) UpsertDat(ctx context.Context, dat model.Dat, sets []SetWithEntries) (UpsertOutcome, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM dats WHERE file_sha1 = ?`, dat.FileSHA1).Scan(&existing)
	switch {
	case err == nil:
		return UpsertOutcome{Skipped: true, Reason: "duplicate sha1"}, nil
	case err != sql.ErrNoRows:
		return UpsertOutcome{}, fmt.Errorf("%w: checking for duplicate: %w", romerrors.ErrStorage, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO dats (name, format, file_path, file_sha1, file_size, file_mod, category) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dat.Name, string(dat.Format), dat.FilePath, dat.FileSHA1, dat.FileSize, dat.FileMod, dat.Category)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: inserting dat: %w", romerrors.ErrStorage, err)
	}
	datID, err := res.LastInsertId()
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}

	entryCount := 0
	for _, s := range sets {
		entryCount += len(s.Entries)
	}

	var version model.DatVersion
	version.DatID = datID
	version.LoadedAt = time.Now()
	version.EntryCount = int64(entryCount)
	res, err = tx.ExecContext(ctx,
		`INSERT INTO dat_versions (dat_id, version, date, loaded_at, entry_count) VALUES (?, ?, ?, ?, ?)`,
		datID, version.Version, version.Date, version.LoadedAt, version.EntryCount)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: inserting version: %w", romerrors.ErrStorage, err)
	}
	versionID, err := res.LastInsertId()
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}

	setStmt, err := tx.PrepareContext(ctx, `INSERT INTO sets (dat_version_id, name) VALUES (?, ?)`)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer setStmt.Close()

	entryStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dat_entries (dat_version_id, set_id, name, size, crc32, md5, sha1) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer entryStmt.Close()

	for _, set := range sets {
		setRes, err := setStmt.ExecContext(ctx, versionID, set.Name)
		if err != nil {
			return UpsertOutcome{}, fmt.Errorf("%w: inserting set %s: %w", romerrors.ErrStorage, set.Name, err)
		}
		setID, err := setRes.LastInsertId()
		if err != nil {
			return UpsertOutcome{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
		}
		for _, e := range set.Entries {
			if _, err := entryStmt.ExecContext(ctx, versionID, setID, e.Name, e.Size, e.CRC32, e.MD5, e.SHA1); err != nil {
				return UpsertOutcome{}, fmt.Errorf("%w: inserting entry %s: %w", romerrors.ErrStorage, e.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertOutcome{}, fmt.Errorf("%w: committing dat import: %w", romerrors.ErrStorage, err)
	}
	return UpsertOutcome{Inserted: true, DatID: datID, VersionID: versionID}, nil
}

// SetWithEntries is a set and its surviving entries, as built by the
// importer while draining a dat.Visitor stream.
type SetWithEntries struct {
	Name    string
	Entries []EntryInput
}

// EntryInput is one ROM record ready to persist; hashes are already
// lowercased by the dat package.
type EntryInput struct {
	Name  string
	Size  uint64
	CRC32 string
	MD5   string
	SHA1  string
}

// DatSummary is the row shape returned by ListDats.
type DatSummary struct {
	Dat            model.Dat
	LatestVersion  model.DatVersion
}

// ListDats returns every imported Dat paired with its newest version —
// only the newest version per DAT participates in resolution (spec §3).
func (s *Store) ListDats(ctx context.Context) ([]DatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.format, d.file_path, d.file_sha1, d.file_size, d.file_mod, d.category,
		       v.id, v.version, v.date, v.loaded_at, v.entry_count
		FROM dats d
		JOIN dat_versions v ON v.dat_id = d.id
		WHERE v.id = (SELECT id FROM dat_versions WHERE dat_id = d.id ORDER BY id DESC LIMIT 1)
		ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []DatSummary
	for rows.Next() {
		var sm DatSummary
		var format string
		if err := rows.Scan(&sm.Dat.ID, &sm.Dat.Name, &format, &sm.Dat.FilePath, &sm.Dat.FileSHA1,
			&sm.Dat.FileSize, &sm.Dat.FileMod, &sm.Dat.Category,
			&sm.LatestVersion.ID, &sm.LatestVersion.Version, &sm.LatestVersion.Date,
			&sm.LatestVersion.LoadedAt, &sm.LatestVersion.EntryCount); err != nil {
			return nil, fmt.Errorf("%w: scanning dat row: %w", romerrors.ErrStorage, err)
		}
		sm.Dat.Format = model.Format(format)
		sm.LatestVersion.DatID = sm.Dat.ID
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return out, nil
}

// ListSets returns every set belonging to versionID, for callers (search
// indexing) that need the set name alongside each entry.
func (s *Store) ListSets(ctx context.Context, versionID int64) ([]model.Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, dat_version_id, name FROM sets WHERE dat_version_id = ?`, versionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []model.Set
	for rows.Next() {
		var set model.Set
		if err := rows.Scan(&set.ID, &set.DatVersionID, &set.Name); err != nil {
			return nil, fmt.Errorf("%w: scanning set: %w", romerrors.ErrStorage, err)
		}
		out = append(out, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return out, nil
}

// GetVersion fetches the newest DatVersion of the Dat with ID datID.
func (s *Store) GetVersion(ctx context.Context, datID int64) (model.DatVersion, error) {
	var v model.DatVersion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dat_id, version, date, loaded_at, entry_count FROM dat_versions WHERE dat_id = ? ORDER BY id DESC LIMIT 1`,
		datID).Scan(&v.ID, &v.DatID, &v.Version, &v.Date, &v.LoadedAt, &v.EntryCount)
	if err == sql.ErrNoRows {
		return model.DatVersion{}, fmt.Errorf("%w: no version for dat %d", romerrors.ErrStorage, datID)
	}
	if err != nil {
		return model.DatVersion{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return v, nil
}

// IterEntries streams every entry of versionID to yield, in insertion
// order. yield returning false stops iteration early. Entries are read a
// page at a time so that large DATs do not require buffering the whole
// result set in memory.
func (s *Store) IterEntries(ctx context.Context, versionID int64, yield func(model.Entry) bool) error {
	const pageSize = 500
	lastID := int64(0)
	for {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, dat_version_id, set_id, name, size, crc32, md5, sha1
			FROM dat_entries WHERE dat_version_id = ? AND id > ? ORDER BY id LIMIT ?`,
			versionID, lastID, pageSize)
		if err != nil {
			return fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
		}

		n := 0
		for rows.Next() {
			var e model.Entry
			if err := rows.Scan(&e.ID, &e.DatVersionID, &e.SetID, &e.Name, &e.Size, &e.CRC32, &e.MD5, &e.SHA1); err != nil {
				rows.Close()
				return fmt.Errorf("%w: scanning entry: %w", romerrors.ErrStorage, err)
			}
			lastID = e.ID
			n++
			if !yield(e) {
				rows.Close()
				return nil
			}
		}
		closeErr := rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
		}
		if closeErr != nil {
			return fmt.Errorf("%w: %w", romerrors.ErrStorage, closeErr)
		}
		if n < pageSize {
			return nil
		}
	}
}

// UpsertCheckpoint records or updates a resumable-job marker.
func (s *Store) UpsertCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (job_kind, source, token, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(job_kind, source) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		cp.JobKind, cp.Source, cp.Token, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return nil
}

// GetCheckpoint returns the current checkpoint for (jobKind, source), and
// false if none exists.
func (s *Store) GetCheckpoint(ctx context.Context, jobKind, source string) (model.Checkpoint, bool, error) {
	var cp model.Checkpoint
	cp.JobKind, cp.Source = jobKind, source
	err := s.db.QueryRowContext(ctx,
		`SELECT token, updated_at FROM checkpoints WHERE job_kind = ? AND source = ?`, jobKind, source).
		Scan(&cp.Token, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Checkpoint{}, false, nil
	}
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return cp, true, nil
}

// DeleteCheckpoint removes a checkpoint once a job completes.
func (s *Store) DeleteCheckpoint(ctx context.Context, jobKind, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE job_kind = ? AND source = ?`, jobKind, source)
	if err != nil {
		return fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return nil
}

// Stats is the aggregate summary consumed by UI/CLI collaborators
// (spec §6).
type Stats struct {
	DatCount     int64
	EntryCount   int64
	FileCount    int64
	MatchedCount int64
	TotalBytes   int64
}

// Stats computes the aggregate snapshot in one read transaction, so
// callers observe a consistent point-in-time view (spec §6, "snapshot-
// consistent at transaction granularity").
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer tx.Rollback()

	var st Stats
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dats`).Scan(&st.DatCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dat_entries`).Scan(&st.EntryCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&st.FileCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&st.MatchedCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM files`).Scan(&st.TotalBytes); err != nil {
		return Stats{}, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return st, tx.Commit()
}

// DatCategory groups DAT summaries by category path, for the "categories
// → DATs" navigation view (spec §6).
type DatCategory struct {
	Category string
	Dats     []DatSummary
}

// DatTree returns every imported DAT grouped by its category path.
func (s *Store) DatTree(ctx context.Context) ([]DatCategory, error) {
	summaries, err := s.ListDats(ctx)
	if err != nil {
		return nil, err
	}
	order := []string{}
	byCategory := map[string][]DatSummary{}
	for _, sm := range summaries {
		if _, ok := byCategory[sm.Dat.Category]; !ok {
			order = append(order, sm.Dat.Category)
		}
		byCategory[sm.Dat.Category] = append(byCategory[sm.Dat.Category], sm)
	}
	out := make([]DatCategory, 0, len(order))
	for _, cat := range order {
		out = append(out, DatCategory{Category: cat, Dats: byCategory[cat]})
	}
	return out, nil
}
