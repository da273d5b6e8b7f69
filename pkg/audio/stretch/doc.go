// ABOUTME: Time-stretch processor package
// ABOUTME: Provides Processor interface and interpolating default implementation
// Package stretch provides the time-stretch processing stage of the playback
// pipeline.
//
// A Processor converts N input frames into round(N/speed) output frames,
// carrying internal look-ahead state across calls so consecutive blocks join
// without discontinuities. Reset clears that state; it is required after a
// stop so stale audio does not blend into the next block.
//
// Example:
//
//	p := stretch.NewInterp()
//	err := p.Configure(2, 48000)
//	out, err := p.Process(planes, 1.5)
package stretch
