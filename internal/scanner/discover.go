package scanner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"romshelf/internal/archivescan"
	"romshelf/internal/events"
	"romshelf/internal/model"
	"romshelf/internal/romerrors"
)

// checkpointKindScan identifies scan checkpoints in the checkpoints table
// (spec §3.11): one row per root path, keyed to the last top-level entry
// whose discovery fully completed.
const checkpointKindScan = "scan"

// discover walks root one top-level entry at a time, emitting a Discovery
// event per directory and one job per loose file or archive member, then
// closes jobs. It mirrors the teacher's indexMedia: a single discovery
// goroutine that owns the job channel's lifetime. Progress is checkpointed
// after each top-level entry finishes, so a cancelled scan can resume
// without re-walking entries already discovered.
func (s *Scanner) discover(ctx context.Context, root string, jobs chan<- job, discovered *int64) {
	defer close(jobs)
	seen := make(map[string]bool)

	entries, err := os.ReadDir(root)
	if err != nil {
		s.emit(events.ScanEvent{Type: events.ScanError, Path: root, Message: err.Error()})
		return
	}

	resumeAfter := ""
	if cp, ok, err := s.store.GetCheckpoint(ctx, checkpointKindScan, root); err == nil && ok {
		resumeAfter = cp.Token
	}

	cleanFinish := true
	for _, e := range entries {
		if ctx.Err() != nil {
			cleanFinish = false
			break
		}
		if resumeAfter != "" && e.Name() <= resumeAfter {
			continue
		}

		s.walkEntry(ctx, filepath.Join(root, e.Name()), jobs, seen, discovered)

		if ctx.Err() != nil {
			cleanFinish = false
			break
		}
		cp := model.Checkpoint{JobKind: checkpointKindScan, Source: root, Token: e.Name(), UpdatedAt: time.Now()}
		if err := s.store.UpsertCheckpoint(ctx, cp); err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: root, Message: err.Error()})
		}
	}

	if cleanFinish {
		if err := s.store.DeleteCheckpoint(ctx, checkpointKindScan, root); err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: root, Message: err.Error()})
		}
	}
}

// walkEntry discovers everything under one top-level entry of the scan
// root (itself a file or a directory).
func (s *Scanner) walkEntry(ctx context.Context, entryPath string, jobs chan<- job, seen map[string]bool, discovered *int64) {
	filepath.WalkDir(entryPath, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: p, Message: err.Error()})
			return nil
		}
		if d.IsDir() {
			s.emit(events.ScanEvent{Type: events.ScanDiscovery, Directory: p})
			return nil
		}
		// Symlinks are recorded as directory entries but never followed.
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: p, Message: err.Error()})
			return nil
		}

		if archivescan.IsCandidate(p) {
			s.discoverArchive(ctx, p, info.ModTime(), jobs, seen, discovered)
			return nil
		}

		if seen[p] {
			return nil
		}
		seen[p] = true
		atomic.AddInt64(discovered, 1)

		fp := p
		select {
		case jobs <- job{canonicalPath: fp, size: info.Size(), modTime: info.ModTime(), open: func() (io.ReadCloser, error) { return os.Open(fp) }}:
		case <-ctx.Done():
		}
		return nil
	})
}

func (s *Scanner) discoverArchive(ctx context.Context, archivePath string, modTime time.Time, jobs chan<- job, seen map[string]bool, discovered *int64) {
	arc, err := archivescan.Open(archivePath)
	if err != nil {
		s.emit(events.ScanEvent{Type: events.ScanError, Path: archivePath, Message: err.Error()})
		return
	}
	// Member.Open closures read lazily through arc's underlying file handle
	// and are consumed by worker goroutines well after this function
	// returns, so arc must stay open for the life of the scan rather than
	// being closed here; Scan closes every opened archive once all workers
	// have drained.
	s.trackArchive(arc)

	for {
		if ctx.Err() != nil {
			return
		}
		m, err := arc.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: archivePath, Message: err.Error()})
			if errors.Is(err, romerrors.ErrUnsupportedMember) {
				continue
			}
			return
		}

		canonical := archivePath + "//" + m.Name
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		atomic.AddInt64(discovered, 1)

		member := m
		select {
		case jobs <- job{canonicalPath: canonical, size: member.Size, modTime: modTime, open: member.Open}:
		case <-ctx.Done():
			return
		}
	}
}
