package catalogue

import "go.uber.org/zap"

// Options configures Open as a typed, defaulted struct — the in-process
// "configuration" surface that remains once config files, flags, and
// terminal UX are out of scope.
type Options struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string
	Log  *zap.Logger
}

// DefaultOptions returns Options for path with no logger (Open installs a
// no-op logger in that case).
func DefaultOptions(path string) Options {
	return Options{Path: path}
}

// OpenWithOptions is Open with its knobs supplied as a struct.
func OpenWithOptions(opts Options) (*Store, error) {
	return Open(opts.Path, opts.Log)
}
