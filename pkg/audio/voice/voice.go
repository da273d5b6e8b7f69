// ABOUTME: Output device voice interface definitions
// ABOUTME: Common contract plus queued-buffer and continuous-stream shapes
package voice

import (
	"time"

	"github.com/varispeed/sampler-go/pkg/audio"
)

// Voice is one playback lane on an output device. A session owns exactly one
// voice for its entire lifetime; implementations are not safe for concurrent
// use and rely on the owning session for serialization.
type Voice interface {
	// Start begins or restarts consumption of submitted audio.
	Start() error

	// Pause halts the device without discarding queued audio.
	Pause() error

	// Resume restarts a paused device from where it halted.
	Resume() error

	// Stop halts the device and discards all queued audio.
	Stop() error

	// Playing reports whether the device is currently consuming audio.
	Playing() bool

	// Position returns the device playback position, or ok=false when the
	// position is unknown.
	Position() (pos time.Duration, ok bool)

	// Format is the wire encoding this voice accepts.
	Format() audio.SampleFormat

	// Close releases the device lane. The voice is unusable afterwards.
	Close() error
}

// Queued is a voice on a queued-buffer device: the caller submits discrete
// buffers which the device drains at its own pace, and must reclaim
// processed buffers before reusing their slots.
type Queued interface {
	Voice

	// Submit transfers ownership of one encoded buffer to the device.
	Submit(pcm []byte) error

	// Queued returns the number of buffers currently held by the device.
	Queued() int

	// Reclaim releases buffers the device has finished with and returns
	// how many were reclaimed.
	Reclaim() int
}

// Stream is a voice on a continuous-stream device: writes block until the
// device accepts the data, which is the backend's backpressure mechanism.
type Stream interface {
	Voice

	// Write submits encoded frames, blocking until accepted.
	Write(pcm []byte) error
}

// Opener opens a voice for a new session. capacity is the maximum queue
// depth for queued-buffer devices; stream devices ignore it.
type Opener func(sampleRate, channels, capacity int) (Voice, error)
