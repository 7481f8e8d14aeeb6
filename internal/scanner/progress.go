package scanner

import (
	"time"

	"romshelf/internal/events"
)

// progress event emission is throttled to at most once per 250ms or once
// per 64MiB of additional bytes hashed, whichever comes first (spec §4.9).
const (
	progressMaxInterval = 250 * time.Millisecond
	progressMaxBytes    = 64 << 20
)

type progressThrottle struct {
	scanner        *Scanner
	path           string
	total          int64
	lastEmit       time.Time
	bytesSinceEmit int64
}

func newProgressThrottle(s *Scanner, path string, total int64) *progressThrottle {
	return &progressThrottle{scanner: s, path: path, total: total, lastEmit: time.Now()}
}

func (p *progressThrottle) onChunk(n int, cumulative uint64) {
	p.bytesSinceEmit += int64(n)
	if p.bytesSinceEmit < progressMaxBytes && time.Since(p.lastEmit) < progressMaxInterval {
		return
	}
	p.scanner.emit(events.ScanEvent{
		Type:       events.ScanFileProgress,
		Path:       p.path,
		BytesDone:  int64(cumulative),
		BytesTotal: p.total,
	})
	p.bytesSinceEmit = 0
	p.lastEmit = time.Now()
}
