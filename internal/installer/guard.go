package installer

import (
	"sync/atomic"

	"wan24setup/internal/errors"
)

// running enforces the "exactly one RunSetupAsync in flight" contract: a
// process-wide flag, not per-handle state, since two installer drivers in
// the same process genuinely must not interleave (§5's documented
// undefined-behavior case is two separate *processes*; within one process
// we fail closed instead of leaving it undefined).
var running atomic.Bool

// acquireGuard claims the re-entry guard, returning a release func to be
// deferred, or ErrAlreadyRunning if another RunSetupAsync is in flight.
func acquireGuard() (release func(), err error) {
	if !running.CompareAndSwap(false, true) {
		return nil, errors.ErrAlreadyRunning
	}
	return func() { running.Store(false) }, nil
}
