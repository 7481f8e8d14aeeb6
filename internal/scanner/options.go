package scanner

import (
	"context"
	"runtime"
)

// Options configures a Scan invocation: the knobs spec's "configuration"
// ambient concern calls for, as a defaulted struct rather than bare
// positional arguments.
type Options struct {
	// Workers is the size of the hashing worker pool. <= 0 means use
	// runtime.GOMAXPROCS(0).
	Workers int
}

// DefaultOptions returns the Options Scan itself falls back to when
// called with workers <= 0.
func DefaultOptions() Options {
	return Options{Workers: runtime.GOMAXPROCS(0)}
}

// ScanWithOptions is Scan with its knobs supplied as a typed, defaulted
// struct instead of a bare worker count.
func (s *Scanner) ScanWithOptions(ctx context.Context, root string, opts Options) error {
	return s.Scan(ctx, root, opts.Workers)
}
