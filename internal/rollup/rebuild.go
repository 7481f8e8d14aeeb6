package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"sort"
	"strings"

	"romshelf/internal/romerrors"
)

// Rebuild discards every directory row and recomputes the tree and its
// counters from the files and matches tables in one transaction. This is
// the authoritative reconciliation path after a crash or a cancelled
// scan (spec §4.8, §4.9): counters produced here must match what the
// incremental walk would have produced.
//
// The two-phase approach (direct stats, then a recursive-CTE rollup to
// ancestors) mirrors recompute_directory_stats in the system this module
// was modelled on; it differs in rebuilding the directory rows themselves
// first, since this schema derives a file's directory from its path
// rather than storing a directory_id foreign key.
func Rebuild(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM directories`); err != nil {
		return fmt.Errorf("%w: clearing directories: %v", romerrors.ErrStorage, err)
	}
	if err := insertDirectRows(ctx, tx); err != nil {
		return err
	}
	return rollupToAncestors(ctx, tx)
}

type directStats struct {
	parent                             string
	name                               string
	fileCount, matchedCount, totalSize int64
}

// insertDirectRows creates one directory row per distinct ancestor
// directory seen across all file paths, with counters reflecting only
// the files directly inside that directory (not yet rolled up to
// ancestors).
func insertDirectRows(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT f.path, f.size, CASE WHEN m.file_id IS NULL THEN 0 ELSE 1 END
		FROM files f LEFT JOIN matches m ON m.file_id = f.id`)
	if err != nil {
		return fmt.Errorf("%w: reading files: %v", romerrors.ErrStorage, err)
	}

	direct := map[string]*directStats{}
	ensure := func(dir string) *directStats {
		if c, ok := direct[dir]; ok {
			return c
		}
		parent := path.Dir(dir)
		if parent == "." || parent == dir {
			parent = ""
		}
		c := &directStats{parent: parent, name: path.Base(dir)}
		direct[dir] = c
		return c
	}

	// Ensure every ancestor directory has a row even if it contains no
	// files directly (only descendants), so the tree stays connected.
	var rowsErr error
	for rows.Next() {
		var filePath string
		var size int64
		var matched int
		if err := rows.Scan(&filePath, &size, &matched); err != nil {
			rowsErr = err
			break
		}
		dir := containingDirectory(filePath)
		for _, ancestor := range splitPath(dir) {
			ensure(ancestor)
		}
		c := ensure(dir)
		c.fileCount++
		c.totalSize += size
		if matched == 1 {
			c.matchedCount++
		}
	}
	closeErr := rows.Close()
	if rowsErr != nil {
		return fmt.Errorf("%w: scanning file row: %v", romerrors.ErrStorage, rowsErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", romerrors.ErrStorage, closeErr)
	}

	dirs := make([]string, 0, len(direct))
	for d := range direct {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	ids := map[string]int64{}
	for _, d := range dirs {
		c := direct[d]
		var parentID sql.NullInt64
		if c.parent != "" {
			if pid, ok := ids[c.parent]; ok {
				parentID = sql.NullInt64{Int64: pid, Valid: true}
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO directories (path, name, parent_id, file_count, matched_count, total_size) VALUES (?, ?, ?, ?, ?, ?)`,
			d, c.name, parentID, c.fileCount, c.matchedCount, c.totalSize)
		if err != nil {
			return fmt.Errorf("%w: inserting directory %s: %v", romerrors.ErrStorage, d, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
		}
		ids[d] = id
	}
	return nil
}

// rollupToAncestors propagates each directory's direct stats up through
// its ancestors via a recursive CTE, then overwrites every row's
// counters with the summed total — direct contribution plus every
// descendant's.
func rollupToAncestors(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS temp_dir_rollup`); err != nil {
		return fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}
	_, err := tx.ExecContext(ctx, `
		CREATE TEMP TABLE temp_dir_rollup AS
		WITH RECURSIVE rollup(id, file_count, matched_count, total_size) AS (
			SELECT id, file_count, matched_count, total_size FROM directories
			UNION ALL
			SELECT d.parent_id, r.file_count, r.matched_count, r.total_size
			FROM rollup r
			JOIN directories d ON d.id = r.id
			WHERE d.parent_id IS NOT NULL
		)
		SELECT id, SUM(file_count) AS file_count, SUM(matched_count) AS matched_count, SUM(total_size) AS total_size
		FROM rollup
		GROUP BY id`)
	if err != nil {
		return fmt.Errorf("%w: rolling up directory stats: %v", romerrors.ErrStorage, err)
	}
	defer tx.ExecContext(ctx, `DROP TABLE IF EXISTS temp_dir_rollup`)

	_, err = tx.ExecContext(ctx, `
		UPDATE directories SET
			file_count = (SELECT file_count FROM temp_dir_rollup WHERE temp_dir_rollup.id = directories.id),
			matched_count = (SELECT matched_count FROM temp_dir_rollup WHERE temp_dir_rollup.id = directories.id),
			total_size = (SELECT total_size FROM temp_dir_rollup WHERE temp_dir_rollup.id = directories.id)`)
	if err != nil {
		return fmt.Errorf("%w: applying rollup: %v", romerrors.ErrStorage, err)
	}
	return nil
}

// containingDirectory returns the directory portion of a canonical file
// path. Archive members (spec §6's "<archive>//<member>" format) belong
// to the directory containing the archive itself, not a synthetic
// directory for the archive's contents.
func containingDirectory(filePath string) string {
	if idx := strings.Index(filePath, "//"); idx >= 0 {
		filePath = filePath[:idx]
	}
	return path.Dir(filepathToSlash(filePath))
}
