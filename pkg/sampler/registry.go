// ABOUTME: Session registry mapping handles to playback sessions
// ABOUTME: Owns creation, dispatch and teardown of every session
package sampler

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/varispeed/sampler-go/pkg/audio"
	"github.com/varispeed/sampler-go/pkg/audio/stretch"
	"github.com/varispeed/sampler-go/pkg/audio/voice"
)

// UnknownTimeMicros is the sentinel CurrentTimeMicros returns when the
// playback position is unknown or the handle does not exist.
const UnknownTimeMicros int64 = -1

// StretchFactory builds a stretch processor for a new session.
type StretchFactory func() stretch.Processor

// Registry is the single source of truth mapping handles to playback
// sessions. All per-handle operations dispatch through it; callers never
// hold session references. The registry lock covers only map access, so
// long-running calls on one session do not block operations on another.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*session
	disposed bool

	opener  voice.Opener
	stretch StretchFactory
	logger  *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithVoiceOpener sets the output device backend used for new sessions.
func WithVoiceOpener(opener voice.Opener) Option {
	return func(r *Registry) { r.opener = opener }
}

// WithStretchFactory sets the stretch processor used for new sessions.
func WithStretchFactory(f StretchFactory) Option {
	return func(r *Registry) { r.stretch = f }
}

// WithLogger sets the registry logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates a session registry. By default sessions play through the oto
// continuous-stream backend with the interpolating stretch processor.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[uint64]*session),
		opener:   voice.OpenOto,
		stretch:  func() stretch.Processor { return stretch.NewInterp() },
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize creates a playback session for handle. It fails if the handle
// is already live or the parameters are degenerate. On any failure every
// partially acquired resource is rolled back.
func (r *Registry) Initialize(handle uint64, sampleRate, channels, capacity int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidArgument, sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("%w: channel count must be > 0, got %d", ErrInvalidArgument, channels)
	}
	if capacity <= 0 {
		return fmt.Errorf("%w: buffer capacity must be > 0, got %d", ErrInvalidArgument, capacity)
	}

	r.mu.RLock()
	disposed := r.disposed
	_, exists := r.sessions[handle]
	r.mu.RUnlock()
	if disposed {
		return ErrDisposed
	}
	if exists {
		return fmt.Errorf("%w: %d", ErrHandleInUse, handle)
	}

	// Open the device and configure the processor outside the registry
	// lock; construction may touch hardware and must not stall lookups.
	vc, err := r.opener(sampleRate, channels, capacity)
	if err != nil {
		return fmt.Errorf("failed to open device voice: %w", err)
	}

	proc := r.stretch()
	if err := proc.Configure(channels, sampleRate); err != nil {
		_ = vc.Close()
		return fmt.Errorf("failed to configure stretch processor: %w", err)
	}

	format := audio.Format{SampleRate: sampleRate, Channels: channels}
	sess, err := newSession(handle, format, capacity, vc, proc, r.logger)
	if err != nil {
		_ = vc.Close()
		return err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		_ = sess.close()
		return ErrDisposed
	}
	if _, exists := r.sessions[handle]; exists {
		r.mu.Unlock()
		_ = sess.close()
		return fmt.Errorf("%w: %d", ErrHandleInUse, handle)
	}
	r.sessions[handle] = sess
	r.mu.Unlock()

	r.logger.Debug("session initialized",
		"handle", handle, "rate", sampleRate, "channels", channels, "capacity", capacity)
	return nil
}

// lookup fetches the session for handle.
func (r *Registry) lookup(handle uint64) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, handle)
	}
	return sess, nil
}

// Play stretches one raw block of interleaved little-endian float32 PCM by
// the session's current speed factor and submits it to the device. It
// returns false with a nil error on backpressure; the caller retries with
// the same or the next block.
func (r *Registry) Play(handle uint64, data []byte) (bool, error) {
	sess, err := r.lookup(handle)
	if err != nil {
		return false, err
	}
	return sess.play(data)
}

// Pause halts the session's device voice, retaining queued audio. No-op
// unless the session is playing.
func (r *Registry) Pause(handle uint64) error {
	sess, err := r.lookup(handle)
	if err != nil {
		return err
	}
	return sess.pause()
}

// Resume restarts a paused session. No-op unless the session is paused.
func (r *Registry) Resume(handle uint64) error {
	sess, err := r.lookup(handle)
	if err != nil {
		return err
	}
	return sess.resume()
}

// Stop halts the session, discards in-flight audio and resets its stretch
// state.
func (r *Registry) Stop(handle uint64) error {
	sess, err := r.lookup(handle)
	if err != nil {
		return err
	}
	return sess.stop()
}

// SetPlaybackSpeed updates the speed factor applied to subsequent Play
// calls. In-flight stretch state is not reset.
func (r *Registry) SetPlaybackSpeed(handle uint64, factor float64) error {
	sess, err := r.lookup(handle)
	if err != nil {
		return err
	}
	return sess.setSpeed(factor)
}

// SetVolume updates the linear gain in [0, 1] applied to subsequent Play
// calls.
func (r *Registry) SetVolume(handle uint64, value float64) error {
	sess, err := r.lookup(handle)
	if err != nil {
		return err
	}
	return sess.setVolume(value)
}

// CurrentTime returns the device playback position. ok is false when the
// handle does not exist or the position is unknown.
func (r *Registry) CurrentTime(handle uint64) (pos time.Duration, ok bool) {
	sess, err := r.lookup(handle)
	if err != nil {
		return 0, false
	}
	return sess.position()
}

// CurrentTimeMicros returns the device playback position in microseconds,
// or UnknownTimeMicros when it is unknown or the handle does not exist.
func (r *Registry) CurrentTimeMicros(handle uint64) int64 {
	pos, ok := r.CurrentTime(handle)
	if !ok {
		return UnknownTimeMicros
	}
	return pos.Microseconds()
}

// Close tears down the session and removes the handle. Closing an absent
// handle is a silent no-op so cleanup paths can always call it.
func (r *Registry) Close(handle uint64) error {
	r.mu.Lock()
	sess, ok := r.sessions[handle]
	delete(r.sessions, handle)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	err := sess.close()
	r.logger.Debug("session closed", "handle", handle)
	return err
}

// Dispose closes every remaining session and marks the registry disposed.
// Idempotent.
func (r *Registry) Dispose() error {
	r.mu.Lock()
	remaining := make([]*session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		remaining = append(remaining, sess)
	}
	r.sessions = make(map[uint64]*session)
	r.disposed = true
	r.mu.Unlock()

	var firstErr error
	for _, sess := range remaining {
		if err := sess.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if len(remaining) > 0 {
		r.logger.Debug("registry disposed", "sessions_closed", len(remaining))
	}
	return firstErr
}
