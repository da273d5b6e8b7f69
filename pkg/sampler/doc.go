// ABOUTME: Core playback engine package
// ABOUTME: Session registry, per-session state machine and buffer pipeline
// Package sampler is a real-time audio playback engine. It accepts raw
// interleaved float32 PCM blocks, time-stretches them to an arbitrary speed
// factor without altering the effective sample rate handling, and feeds the
// result to an output device voice under strict buffering limits.
//
// Sessions are identified by caller-supplied 64-bit handles and managed by a
// Registry. Each session owns one stretch processor and one device voice,
// and moves through created → playing → paused/stopped → closed. Play
// applies backpressure (returns false, no error) when the device already
// holds its full buffer capacity.
//
// Example:
//
//	reg := sampler.New()
//	err := reg.Initialize(1, 48000, 2, 3)
//	ok, err := reg.Play(1, block)   // ok=false means retry later
//	err = reg.SetPlaybackSpeed(1, 1.5)
//	err = reg.Close(1)
package sampler
