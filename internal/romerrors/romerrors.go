// Package romerrors defines the error kinds carried through the event
// stream and returned to callers, per the error handling design: per-file
// and per-DAT failures are isolated and reported, never fatal to the
// enclosing operation; storage failures abort the current logical unit.
package romerrors

import "errors"

var (
	// ErrIO is a disk or network I/O failure.
	ErrIO = errors.New("io error")
	// ErrFormat is a malformed archive or XML container.
	ErrFormat = errors.New("format error")
	// ErrUnsupportedMember is an archive member whose encoding cannot be
	// decoded; it does not terminate iteration over remaining members.
	ErrUnsupportedMember = errors.New("unsupported archive member")
	// ErrXML is an XML parse failure while reading a DAT.
	ErrXML = errors.New("xml error")
	// ErrDuplicateDat means a DAT with this SHA1 already exists; it is
	// reported as a Skipped outcome, not surfaced as a hard failure.
	ErrDuplicateDat = errors.New("duplicate dat")
	// ErrEmptyCatalogue means a DAT parsed cleanly but kept zero entries
	// after filtering.
	ErrEmptyCatalogue = errors.New("empty catalogue")
	// ErrCancelled is returned when cooperative cancellation was observed.
	// It is a distinct outcome, not treated as an error by callers.
	ErrCancelled = errors.New("cancelled")
	// ErrStorage is a SQL failure. The triggering transaction is rolled
	// back before this is returned.
	ErrStorage = errors.New("storage error")
)
