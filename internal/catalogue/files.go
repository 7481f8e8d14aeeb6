package catalogue

import (
	"context"
	"database/sql"
	"fmt"

	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

// UpsertScannedFile inserts or replaces the scanned-file row at
// f.Path. A rescan of an existing path replaces its record in place
// (same ID); the caller is responsible for reconciling rollup counters
// and any prior match against the previous size, since those live in
// different packages (spec §3, "a rescan of a path replaces its
// scanned record and invalidates any prior match").
func UpsertScannedFile(ctx context.Context, tx *sql.Tx, f model.ScannedFile) (id int64, previousSize int64, hadPrevious bool, err error) {
	err = tx.QueryRowContext(ctx, `SELECT id, size FROM files WHERE path = ?`, f.Path).Scan(&id, &previousSize)
	switch {
	case err == nil:
		_, updateErr := tx.ExecContext(ctx,
			`UPDATE files SET filename = ?, size = ?, mod_time = ?, crc32 = ?, md5 = ?, sha1 = ? WHERE id = ?`,
			f.Filename, f.Size, f.ModTime, f.CRC32, f.MD5, f.SHA1, id)
		if updateErr != nil {
			return 0, 0, false, fmt.Errorf("%w: updating file %s: %w", romerrors.ErrStorage, f.Path, updateErr)
		}
		return id, previousSize, true, nil

	case err == sql.ErrNoRows:
		res, insertErr := tx.ExecContext(ctx,
			`INSERT INTO files (path, filename, size, mod_time, crc32, md5, sha1) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.Path, f.Filename, f.Size, f.ModTime, f.CRC32, f.MD5, f.SHA1)
		if insertErr != nil {
			return 0, 0, false, fmt.Errorf("%w: inserting file %s: %w", romerrors.ErrStorage, f.Path, insertErr)
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			return 0, 0, false, fmt.Errorf("%w: %w", romerrors.ErrStorage, idErr)
		}
		return newID, 0, false, nil

	default:
		return 0, 0, false, fmt.Errorf("%w: looking up file %s: %w", romerrors.ErrStorage, f.Path, err)
	}
}

// HasMatch reports whether fileID currently has a recorded match.
func HasMatch(ctx context.Context, tx *sql.Tx, fileID int64) (bool, error) {
	var dummy int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE file_id = ?`, fileID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return true, nil
}
