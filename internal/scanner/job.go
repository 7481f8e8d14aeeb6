package scanner

import (
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// job is one unit of scan work: a loose file or a single archive member,
// already resolved to its canonical path.
type job struct {
	canonicalPath string
	size          int64 // best-known size before hashing; uncompressed for archive members
	modTime       time.Time
	open          func() (io.ReadCloser, error)
}

// writeJob carries a job's hashed result to the writer goroutine.
type writeJob struct {
	path     string
	filename string
	size     uint64
	modTime  time.Time
	crc32    string
	md5      string
	sha1     string
}

// leafName extracts the name the resolver compares against a catalogue
// entry's canonical name: the member name for an archive member, the base
// name for a loose file.
func leafName(canonicalPath string) string {
	if idx := strings.Index(canonicalPath, "//"); idx >= 0 {
		member := canonicalPath[idx+2:]
		return path.Base(member)
	}
	return path.Base(filepath.ToSlash(canonicalPath))
}
