package scanner

import (
	"context"
	"fmt"

	"romshelf/internal/catalogue"
	"romshelf/internal/events"
	"romshelf/internal/model"
	"romshelf/internal/resolver"
	"romshelf/internal/rollup"
	"romshelf/internal/romerrors"
)

// writeLoop applies every writeJob in arrival order on a single goroutine,
// so the rollup counters it maintains are never touched concurrently.
func (s *Scanner) writeLoop(ctx context.Context, writes <-chan writeJob, processed, totalBytes *int64) {
	for wj := range writes {
		matched, err := s.applyWrite(ctx, wj)
		if err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: wj.path, Message: err.Error()})
			continue
		}
		*processed++
		*totalBytes += int64(wj.size)
		s.emit(events.ScanEvent{
			Type: events.ScanFileCompleted,
			Path: wj.path,
			Size: int64(wj.size),
		})
		_ = matched
	}
}

// applyWrite performs one file's store/rollup/resolver update as a single
// transaction: upsert the scanned-file row, reconcile rollup counters
// against any previous record, resolve a catalogue match, and update
// matched_count if one was found. Reports whether a match was found.
func (s *Scanner) applyWrite(ctx context.Context, wj writeJob) (bool, error) {
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}
	defer tx.Rollback()

	sf := model.ScannedFile{
		Path:     wj.path,
		Filename: wj.filename,
		Size:     wj.size,
		ModTime:  wj.modTime,
		CRC32:    wj.crc32,
		MD5:      wj.md5,
		SHA1:     wj.sha1,
	}

	id, prevSize, hadPrevious, err := catalogue.UpsertScannedFile(ctx, tx, sf)
	if err != nil {
		return false, err
	}

	if hadPrevious {
		hadMatch, err := catalogue.HasMatch(ctx, tx, id)
		if err != nil {
			return false, err
		}
		if hadMatch {
			if err := rollup.DeleteMatch(ctx, tx, wj.path); err != nil {
				return false, err
			}
		}
		if err := rollup.DeleteFile(ctx, tx, wj.path, prevSize); err != nil {
			return false, err
		}
	}

	if err := rollup.InsertFile(ctx, tx, wj.path, int64(sf.Size)); err != nil {
		return false, err
	}

	sf.ID = id
	match, err := resolver.Resolve(ctx, tx, sf)
	if err != nil {
		return false, err
	}
	if match != nil {
		if err := rollup.InsertMatch(ctx, tx, wj.path); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %v", romerrors.ErrStorage, err)
	}
	return match != nil, nil
}
