// Package obslog wires structured logging for the core. Components take a
// *zap.Logger explicitly through their constructors rather than reaching
// for a package-level global, the way the rest of this module threads its
// other dependencies.
package obslog

import "go.uber.org/zap"

// New returns a production JSON logger.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// Nop returns a logger that discards everything, for callers that don't
// want logging wired up.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// NewTest returns a development-formatted logger suitable for test output.
func NewTest() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
