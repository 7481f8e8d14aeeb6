package romshelf

import "github.com/google/uuid"

// newRunID mints a correlation identifier for one ImportDat invocation,
// the facade-level counterpart to Scanner's per-Scan run ID.
func newRunID() string {
	return uuid.New().String()
}
