package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

// Roots returns every directory row with no parent — the longest common
// ancestors of whatever trees have been scanned (spec §3's Directory
// definition).
func (s *Store) Roots(ctx context.Context) ([]model.Directory, error) {
	return s.queryDirectories(ctx, `SELECT id, path, name, parent_id, file_count, matched_count, total_size
		FROM directories WHERE parent_id IS NULL ORDER BY path`)
}

// ChildrenOf returns the direct children of parentID, for incremental tree
// navigation (spec §6's "children by parent").
func (s *Store) ChildrenOf(ctx context.Context, parentID int64) ([]model.Directory, error) {
	return s.queryDirectories(ctx,
		`SELECT id, path, name, parent_id, file_count, matched_count, total_size
		FROM directories WHERE parent_id = ? ORDER BY path`, parentID)
}

func (s *Store) queryDirectories(ctx context.Context, query string, args ...any) ([]model.Directory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []model.Directory
	for rows.Next() {
		var d model.Directory
		var parentID sql.NullInt64
		if err := rows.Scan(&d.ID, &d.Path, &d.Name, &parentID, &d.FileCount, &d.MatchedCount, &d.TotalSize); err != nil {
			return nil, fmt.Errorf("%w: scanning directory: %w", romerrors.ErrStorage, err)
		}
		if parentID.Valid {
			d.ParentID = parentID.Int64
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return out, nil
}

// FilesIn returns every scanned file directly contained in dirPath — a
// loose file living in dirPath itself, or an archive (and every member of
// that archive) living in dirPath — for the "files by directory" leg of
// the query surface (spec §6). It does not descend into subdirectories.
func (s *Store) FilesIn(ctx context.Context, dirPath string) ([]model.ScannedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, size, mod_time, crc32, md5, sha1
		FROM files WHERE path LIKE ? || '/%' ORDER BY filename`, dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []model.ScannedFile
	for rows.Next() {
		var f model.ScannedFile
		if err := rows.Scan(&f.ID, &f.Path, &f.Filename, &f.Size, &f.ModTime, &f.CRC32, &f.MD5, &f.SHA1); err != nil {
			return nil, fmt.Errorf("%w: scanning file: %w", romerrors.ErrStorage, err)
		}
		if containingDirectory(f.Path) == dirPath {
			out = append(out, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", romerrors.ErrStorage, err)
	}
	return out, nil
}

// containingDirectory mirrors rollup's own definition of "the directory a
// scanned file contributes to": an archive member's containing directory
// is the directory holding the archive itself, not a synthetic directory
// for the archive's contents. Matches rollup.containingDirectory's use of
// path.Dir exactly, including its "/" result for a file at filesystem
// root, so the two packages never disagree on a directory's path.
func containingDirectory(filePath string) string {
	if idx := strings.Index(filePath, "//"); idx != -1 {
		filePath = filePath[:idx]
	}
	return path.Dir(strings.ReplaceAll(filePath, "\\", "/"))
}
