// ABOUTME: Playback session state machine and buffer pipeline
// ABOUTME: Stretches raw float32 blocks and feeds them to the device voice
package sampler

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/varispeed/sampler-go/pkg/audio"
	"github.com/varispeed/sampler-go/pkg/audio/stretch"
	"github.com/varispeed/sampler-go/pkg/audio/voice"
)

type sessionState int

const (
	stateCreated sessionState = iota
	statePlaying
	statePaused
	stateStopped
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case statePlaying:
		return "playing"
	case statePaused:
		return "paused"
	case stateStopped:
		return "stopped"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// session owns one stretch processor and one device voice for its entire
// lifetime. All methods are serialized by mu; the voice and processor are
// not reentrant.
type session struct {
	mu sync.Mutex

	handle   uint64
	format   audio.Format
	capacity int

	speed float64
	gain  float32
	state sessionState

	vc     voice.Voice
	queued voice.Queued // non-nil for queued-buffer backends
	stream voice.Stream // non-nil for continuous-stream backends

	proc stretch.Processor

	planes [][]float32 // scratch: de-interleaved input
	mix    []float32   // scratch: re-interleaved stretch output

	logger *log.Logger
}

func newSession(handle uint64, format audio.Format, capacity int, vc voice.Voice, proc stretch.Processor, logger *log.Logger) (*session, error) {
	s := &session{
		handle:   handle,
		format:   format,
		capacity: capacity,
		speed:    1.0,
		gain:     1.0,
		state:    stateCreated,
		vc:       vc,
		proc:     proc,
		logger:   logger,
	}

	// The backend shape is fixed at construction; nothing else in the
	// session special-cases it except the admission step.
	switch b := vc.(type) {
	case voice.Queued:
		s.queued = b
	case voice.Stream:
		s.stream = b
		s.capacity = 1
	default:
		return nil, fmt.Errorf("%w: voice %T is neither queued nor stream", ErrInvalidArgument, vc)
	}
	return s, nil
}

// play runs the buffer pipeline: de-interleave, stretch, re-interleave,
// gain, format-convert, then admit to the device. It returns false without
// an error on backpressure and on a play attempted while paused.
func (s *session) play(data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		return false, ErrNotFound
	case statePaused:
		// Audio fed while paused would queue past capacity or vanish,
		// so reject instead.
		s.logger.Debug("play rejected while paused", "handle", s.handle)
		return false, nil
	}

	if len(data) == 0 {
		return false, fmt.Errorf("%w: empty sample buffer", ErrInvalidArgument)
	}

	samples, err := audio.DecodeFloat32(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(samples)%s.format.Channels != 0 {
		return false, fmt.Errorf("%w: %d samples not divisible by %d channels",
			ErrInvalidArgument, len(samples), s.format.Channels)
	}

	out := samples
	if s.speed != 1.0 {
		s.planes = audio.Deinterleave(samples, s.format.Channels, s.planes)
		stretched, err := s.proc.Process(s.planes, s.speed)
		if err != nil {
			return false, fmt.Errorf("stretch processing failed: %w", err)
		}
		s.mix = audio.Interleave(stretched, s.mix)
		out = s.mix
	}

	audio.ApplyGain(out, s.gain)

	pcm, err := audio.EncodePCM(out, s.vc.Format())
	if err != nil {
		return false, fmt.Errorf("format conversion failed: %w", err)
	}

	// A sub-frame block at high speed can stretch to zero output frames.
	// The samples were consumed into the processor's carried history, so
	// accept without handing the device an empty buffer.
	if len(pcm) == 0 {
		return true, nil
	}

	if s.queued != nil {
		s.queued.Reclaim()
		if s.queued.Queued() >= s.capacity {
			s.logger.Debug("device queue full", "handle", s.handle, "capacity", s.capacity)
			return false, nil
		}
		if err := s.queued.Submit(pcm); err != nil {
			return false, s.failBackend(fmt.Errorf("buffer submit failed: %w", err))
		}
		if !s.vc.Playing() {
			if err := s.vc.Start(); err != nil {
				return false, s.failBackend(fmt.Errorf("device start failed: %w", err))
			}
		}
	} else {
		if !s.vc.Playing() {
			if err := s.vc.Start(); err != nil {
				return false, s.failBackend(fmt.Errorf("device start failed: %w", err))
			}
		}
		if err := s.stream.Write(pcm); err != nil {
			return false, s.failBackend(fmt.Errorf("stream write failed: %w", err))
		}
	}

	s.state = statePlaying
	return true, nil
}

// failBackend quiesces the session after a device fault so it is never left
// half-playing, then passes the error through.
func (s *session) failBackend(err error) error {
	s.logger.Error("backend failure, stopping session", "handle", s.handle, "err", err)
	_ = s.vc.Stop()
	s.proc.Reset()
	s.state = stateStopped
	return err
}

// pause halts the device voice without discarding queued buffers. No-op
// unless playing.
func (s *session) pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrNotFound
	}
	if s.state != statePlaying {
		return nil
	}
	if err := s.vc.Pause(); err != nil {
		return s.failBackend(fmt.Errorf("device pause failed: %w", err))
	}
	s.state = statePaused
	return nil
}

// resume restarts the device voice from where it halted. No-op unless paused.
func (s *session) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrNotFound
	}
	if s.state != statePaused {
		return nil
	}
	if err := s.vc.Resume(); err != nil {
		return s.failBackend(fmt.Errorf("device resume failed: %w", err))
	}
	s.state = statePlaying
	return nil
}

// stop halts the device, discards everything in flight and resets the
// stretch state so the next play starts fresh.
func (s *session) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrNotFound
	}
	if s.state != statePlaying && s.state != statePaused {
		return nil
	}
	if err := s.vc.Stop(); err != nil {
		return s.failBackend(fmt.Errorf("device stop failed: %w", err))
	}
	s.proc.Reset()
	s.state = stateStopped
	return nil
}

// close tears the session down: voice stop, buffer discard, processor reset,
// voice close. Terminal and idempotent.
func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}

	if err := s.vc.Stop(); err != nil {
		s.logger.Warn("device stop during close failed", "handle", s.handle, "err", err)
	}
	s.proc.Reset()
	err := s.vc.Close()
	s.state = stateClosed
	if err != nil {
		return fmt.Errorf("device close failed: %w", err)
	}
	return nil
}

func (s *session) setSpeed(factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrNotFound
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("%w: speed factor %f must be > 0", ErrInvalidArgument, factor)
	}
	s.speed = factor
	return nil
}

func (s *session) setVolume(value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return ErrNotFound
	}
	if value < 0 || value > 1 || math.IsNaN(value) {
		return fmt.Errorf("%w: volume %f must be in [0, 1]", ErrInvalidArgument, value)
	}
	s.gain = float32(value)
	return nil
}

func (s *session) position() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, false
	}
	return s.vc.Position()
}
