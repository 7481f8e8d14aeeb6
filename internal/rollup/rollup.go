// Package rollup maintains the directory-tree counters (file count,
// matched count, total size) that back collection-completeness summaries
// (spec §4.8). All mutation happens inside the caller's transaction —
// typically the scanner's single writer goroutine — so counter updates
// are serialised with the file/match inserts they reflect.
package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	"romshelf/internal/romerrors"
)

// InsertFile walks from filePath's containing directory up to the root,
// lazily creating any missing ancestor directories, and increments
// file_count/total_size on every ancestor. Archive members contribute to
// the directory of their containing archive, not a synthetic directory
// for the archive's contents (spec §4.8).
func InsertFile(ctx context.Context, tx *sql.Tx, filePath string, size int64) error {
	return walk(ctx, tx, containingDirectory(filePath), func(id int64) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE directories SET file_count = file_count + 1, total_size = total_size + ? WHERE id = ?`,
			size, id)
		return err
	})
}

// DeleteFile is the symmetric decrement for a file removed at filePath.
func DeleteFile(ctx context.Context, tx *sql.Tx, filePath string, size int64) error {
	return walk(ctx, tx, containingDirectory(filePath), func(id int64) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE directories SET file_count = file_count - 1, total_size = total_size - ? WHERE id = ?`,
			size, id)
		return err
	})
}

// InsertMatch increments matched_count from filePath's directory to the
// root, on match creation.
func InsertMatch(ctx context.Context, tx *sql.Tx, filePath string) error {
	return walk(ctx, tx, containingDirectory(filePath), func(id int64) error {
		_, err := tx.ExecContext(ctx, `UPDATE directories SET matched_count = matched_count + 1 WHERE id = ?`, id)
		return err
	})
}

// DeleteMatch is the symmetric decrement for a match removed at filePath.
func DeleteMatch(ctx context.Context, tx *sql.Tx, filePath string) error {
	return walk(ctx, tx, containingDirectory(filePath), func(id int64) error {
		_, err := tx.ExecContext(ctx, `UPDATE directories SET matched_count = matched_count - 1 WHERE id = ?`, id)
		return err
	})
}

// walk ensures every directory from root to dirPath exists (creating
// absent ones with zero counters) and applies apply to each, from
// dirPath up to the root inclusive.
func walk(ctx context.Context, tx *sql.Tx, dirPath string, apply func(id int64) error) error {
	segments := splitPath(dirPath)
	ids := make([]int64, 0, len(segments))

	var parentID sql.NullInt64
	for _, seg := range segments {
		id, err := ensureDirectory(ctx, tx, seg, path.Base(seg), parentID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		parentID = sql.NullInt64{Int64: id, Valid: true}
	}

	for i := len(ids) - 1; i >= 0; i-- {
		if err := apply(ids[i]); err != nil {
			return fmt.Errorf("%w: updating directory counters: %w", romerrors.ErrStorage, err)
		}
	}
	return nil
}

func ensureDirectory(ctx context.Context, tx *sql.Tx, fullPath, name string, parentID sql.NullInt64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM directories WHERE path = ?`, fullPath).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO directories (path, name, parent_id) VALUES (?, ?, ?)`,
		fullPath, name, parentID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating directory %s: %w", romerrors.ErrStorage, fullPath, err)
	}
	return res.LastInsertId()
}

// splitPath breaks an absolute path into its ancestor segments, e.g.
// "/a/b/c" -> ["/a", "/a/b", "/a/b/c"] on a unix-style path, preserving
// whatever separator the path already uses after ToSlash normalisation.
func splitPath(p string) []string {
	p = path.Clean(filepathToSlash(p))
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")

	out := make([]string, 0, len(parts))
	prefix := ""
	if strings.HasPrefix(p, "/") {
		prefix = "/"
	}
	acc := prefix
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			acc = prefix + part
		} else {
			acc = acc + "/" + part
		}
		out = append(out, acc)
	}
	return out
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
