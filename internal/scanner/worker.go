package scanner

import (
	"context"
	"errors"
	"fmt"

	"romshelf/internal/events"
	"romshelf/internal/hashengine"
	"romshelf/internal/romerrors"
)

// work pulls jobs until the channel closes. Once ctx is cancelled it
// drains remaining jobs without processing them, so the discovery and
// writer goroutines can still observe a clean channel close.
func (s *Scanner) work(ctx context.Context, jobs <-chan job, writes chan<- writeJob) {
	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		s.processJob(ctx, j, writes)
	}
}

func (s *Scanner) processJob(ctx context.Context, j job, writes chan<- writeJob) {
	s.emit(events.ScanEvent{Type: events.ScanFileStarted, Path: j.canonicalPath, Size: j.size})

	rc, err := j.open()
	if err != nil {
		s.emit(events.ScanEvent{Type: events.ScanError, Path: j.canonicalPath, Message: err.Error()})
		return
	}
	defer rc.Close()

	prog := newProgressThrottle(s, j.canonicalPath, j.size)
	result, err := hashengine.HashChunked(rc, func(n int, total uint64) error {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: scan cancelled", romerrors.ErrCancelled)
		}
		prog.onChunk(n, total)
		return nil
	})
	if err != nil {
		if !errors.Is(err, romerrors.ErrCancelled) {
			s.emit(events.ScanEvent{Type: events.ScanError, Path: j.canonicalPath, Message: err.Error()})
		}
		return
	}

	wj := writeJob{
		path:     j.canonicalPath,
		filename: leafName(j.canonicalPath),
		size:     result.Size,
		modTime:  j.modTime,
		crc32:    result.CRC32,
		md5:      result.MD5,
		sha1:     result.SHA1,
	}

	select {
	case writes <- wj:
	case <-ctx.Done():
	}
}
