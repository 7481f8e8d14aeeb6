// Package resolver associates a newly scanned file with at most one
// catalogue entry, by a deterministic hash-priority tie-break (spec
// §4.7).
package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

// candidate is one dat_entries row considered as a match target.
type candidate struct {
	id           int64
	name         string
	datVersionID int64
}

// Resolve attempts to associate file with exactly one catalogue entry,
// using the three-tier hash priority (SHA1+size, then MD5+size, then
// CRC32+size — first non-empty tier wins). Ties within a tier are broken
// by exact filename match, then by lowest entry ID. Resolution is
// idempotent: any prior match for this file is replaced. Returns the new
// match, or nil if no tier produced a candidate.
func Resolve(ctx context.Context, tx *sql.Tx, file model.ScannedFile) (*model.Match, error) {
	winner, err := pickCandidate(ctx, tx, file)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE file_id = ?`, file.ID); err != nil {
		return nil, fmt.Errorf("%w: clearing prior match: %v", romerrors.ErrStorage, err)
	}
	if winner == nil {
		return nil, nil
	}

	nameCorrect := winner.name == file.Filename
	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO matches (file_id, entry_id, name_correct, created_at) VALUES (?, ?, ?, ?)`,
		file.ID, winner.id, nameCorrect, now)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting match: %v", romerrors.ErrStorage, err)
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}

	return &model.Match{
		ID:          matchID,
		FileID:      file.ID,
		EntryID:     winner.id,
		NameCorrect: nameCorrect,
		CreatedAt:   now,
	}, nil
}

func pickCandidate(ctx context.Context, tx *sql.Tx, file model.ScannedFile) (*candidate, error) {
	tiers := []struct {
		hashColumn string
		hashValue  string
	}{
		{"sha1", file.SHA1},
		{"md5", file.MD5},
		{"crc32", file.CRC32},
	}

	for _, tier := range tiers {
		if tier.hashValue == "" {
			continue
		}
		cands, err := candidatesForTier(ctx, tx, tier.hashColumn, tier.hashValue, file.Size)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			continue
		}
		return tieBreak(cands, file.Filename), nil
	}
	return nil, nil
}

func candidatesForTier(ctx context.Context, tx *sql.Tx, column, value string, size uint64) ([]candidate, error) {
	query := fmt.Sprintf(`SELECT id, name, dat_version_id FROM dat_entries WHERE %s = ? AND size = ?`, column)
	rows, err := tx.QueryContext(ctx, query, value, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.name, &c.datVersionID); err != nil {
			return nil, fmt.Errorf("%w: scanning candidate: %v", romerrors.ErrStorage, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}
	return out, nil
}

// tieBreak picks the entry whose canonical name matches leafName,
// case-sensitive; if none or more than one still qualifies, picks the
// lowest entry ID (spec §4.7).
func tieBreak(cands []candidate, leafName string) *candidate {
	var nameMatches []candidate
	for _, c := range cands {
		if c.name == leafName {
			nameMatches = append(nameMatches, c)
		}
	}
	pool := cands
	if len(nameMatches) > 0 {
		pool = nameMatches
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.id < best.id {
			best = c
		}
	}
	return &best
}
