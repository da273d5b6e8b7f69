// ABOUTME: Error taxonomy for the playback engine
// ABOUTME: Sentinel values callers discriminate with errors.Is
package sampler

import "errors"

var (
	// ErrNotFound means the handle does not map to a live session. It is
	// also returned for operations racing a concurrent close.
	ErrNotFound = errors.New("sampler: session not found")

	// ErrHandleInUse means Initialize was called with a handle that
	// already maps to a live session.
	ErrHandleInUse = errors.New("sampler: handle already in use")

	// ErrInvalidArgument means a parameter is degenerate: zero sample
	// rate or channels, non-positive speed, out-of-range volume, or an
	// empty or misaligned sample buffer.
	ErrInvalidArgument = errors.New("sampler: invalid argument")

	// ErrDisposed means the registry has been torn down.
	ErrDisposed = errors.New("sampler: registry disposed")
)
