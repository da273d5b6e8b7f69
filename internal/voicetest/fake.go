// ABOUTME: Resource-counting fake voices and stretch spy for tests
// ABOUTME: Simulates queued-buffer and continuous-stream devices in memory
// Package voicetest provides fake playback backends for tests.
//
// The fakes count open device lanes so leak checks can assert every voice
// opened during a test was closed, and record submitted audio so pipeline
// output can be inspected.
package voicetest

import (
	"fmt"
	"time"

	"github.com/varispeed/sampler-go/pkg/audio"
	"github.com/varispeed/sampler-go/pkg/audio/stretch"
	"github.com/varispeed/sampler-go/pkg/audio/voice"
)

// Counter tracks open device lanes across fake voices.
type Counter struct {
	Opened int
	Closed int
}

// Live returns the number of lanes currently open.
func (c *Counter) Live() int { return c.Opened - c.Closed }

// FakeQueued simulates a queued-buffer device. The device never consumes on
// its own; tests call Drain to mark queued buffers processed.
type FakeQueued struct {
	SampleRate   int
	Channels     int
	WireFormat   audio.SampleFormat
	FailStart    bool // next Start returns an error
	FailSubmit   bool // next Submit returns an error
	Submitted    [][]byte
	queued       [][]byte
	processed    int
	playedFrames int64
	playing      bool
	closed       bool
	counter      *Counter
}

// OpenFakeQueued returns a voice.Opener producing fake queued voices that
// report to counter. Each opened voice is appended to *voices when non-nil.
func OpenFakeQueued(counter *Counter, voices *[]*FakeQueued) voice.Opener {
	return func(sampleRate, channels, capacity int) (voice.Voice, error) {
		v := &FakeQueued{
			SampleRate: sampleRate,
			Channels:   channels,
			WireFormat: audio.FormatInt16,
			counter:    counter,
		}
		if counter != nil {
			counter.Opened++
		}
		if voices != nil {
			*voices = append(*voices, v)
		}
		return v, nil
	}
}

func (v *FakeQueued) Format() audio.SampleFormat { return v.WireFormat }

func (v *FakeQueued) Submit(pcm []byte) error {
	if v.closed {
		return fmt.Errorf("fake voice closed")
	}
	if len(pcm) == 0 {
		return fmt.Errorf("empty buffer")
	}
	if v.FailSubmit {
		v.FailSubmit = false
		return fmt.Errorf("simulated submit failure")
	}
	v.queued = append(v.queued, pcm)
	v.Submitted = append(v.Submitted, pcm)
	return nil
}

func (v *FakeQueued) Queued() int { return len(v.queued) }

func (v *FakeQueued) Reclaim() int {
	n := v.processed
	v.queued = v.queued[n:]
	v.processed = 0
	return n
}

// Drain marks the next n queued buffers as processed by the device.
func (v *FakeQueued) Drain(n int) {
	if n > len(v.queued)-v.processed {
		n = len(v.queued) - v.processed
	}
	for i := 0; i < n; i++ {
		pcm := v.queued[v.processed+i]
		v.playedFrames += int64(len(pcm) / (v.WireFormat.BytesPerSample() * v.Channels))
	}
	v.processed += n
}

func (v *FakeQueued) Start() error {
	if v.closed {
		return fmt.Errorf("fake voice closed")
	}
	if v.FailStart {
		v.FailStart = false
		return fmt.Errorf("simulated start failure")
	}
	v.playing = true
	return nil
}

func (v *FakeQueued) Pause() error {
	v.playing = false
	return nil
}

func (v *FakeQueued) Resume() error { return v.Start() }

func (v *FakeQueued) Stop() error {
	v.playing = false
	v.queued = nil
	v.processed = 0
	return nil
}

func (v *FakeQueued) Playing() bool { return v.playing }

func (v *FakeQueued) Position() (time.Duration, bool) {
	if v.closed || v.SampleRate == 0 {
		return 0, false
	}
	return time.Duration(v.playedFrames) * time.Second / time.Duration(v.SampleRate), true
}

func (v *FakeQueued) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	if v.counter != nil {
		v.counter.Closed++
	}
	return nil
}

// Closed reports whether the voice was closed.
func (v *FakeQueued) Closed() bool { return v.closed }

// FakeStream simulates a continuous-stream device. Writes never block; the
// device accepts everything immediately.
type FakeStream struct {
	SampleRate int
	Channels   int
	WireFormat audio.SampleFormat
	Written    [][]byte
	frames     int64
	playing    bool
	closed     bool
	counter    *Counter
}

// OpenFakeStream returns a voice.Opener producing fake stream voices.
func OpenFakeStream(counter *Counter, voices *[]*FakeStream) voice.Opener {
	return func(sampleRate, channels, capacity int) (voice.Voice, error) {
		v := &FakeStream{
			SampleRate: sampleRate,
			Channels:   channels,
			WireFormat: audio.FormatFloat32,
			counter:    counter,
		}
		if counter != nil {
			counter.Opened++
		}
		if voices != nil {
			*voices = append(*voices, v)
		}
		return v, nil
	}
}

func (v *FakeStream) Format() audio.SampleFormat { return v.WireFormat }

func (v *FakeStream) Write(pcm []byte) error {
	if v.closed {
		return fmt.Errorf("fake voice closed")
	}
	v.Written = append(v.Written, pcm)
	v.frames += int64(len(pcm) / (v.WireFormat.BytesPerSample() * v.Channels))
	return nil
}

func (v *FakeStream) Start() error {
	if v.closed {
		return fmt.Errorf("fake voice closed")
	}
	v.playing = true
	return nil
}

func (v *FakeStream) Pause() error {
	v.playing = false
	return nil
}

func (v *FakeStream) Resume() error { return v.Start() }

func (v *FakeStream) Stop() error {
	v.playing = false
	v.Written = nil
	v.frames = 0
	return nil
}

func (v *FakeStream) Playing() bool { return v.playing }

func (v *FakeStream) Position() (time.Duration, bool) {
	if v.closed || v.SampleRate == 0 {
		return 0, false
	}
	return time.Duration(v.frames) * time.Second / time.Duration(v.SampleRate), true
}

func (v *FakeStream) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	if v.counter != nil {
		v.counter.Closed++
	}
	return nil
}

// Closed reports whether the voice was closed.
func (v *FakeStream) Closed() bool { return v.closed }

// SpyStretch wraps a Processor and records how it was driven.
type SpyStretch struct {
	Inner      stretch.Processor
	Configures int
	Processes  int
	Resets     int
	LastSpeed  float64
}

// NewSpyStretch wraps inner; a nil inner defaults to stretch.NewInterp().
func NewSpyStretch(inner stretch.Processor) *SpyStretch {
	if inner == nil {
		inner = stretch.NewInterp()
	}
	return &SpyStretch{Inner: inner}
}

func (s *SpyStretch) Configure(channels, sampleRate int) error {
	s.Configures++
	return s.Inner.Configure(channels, sampleRate)
}

func (s *SpyStretch) Process(input [][]float32, speed float64) ([][]float32, error) {
	s.Processes++
	s.LastSpeed = speed
	return s.Inner.Process(input, speed)
}

func (s *SpyStretch) Reset() {
	s.Resets++
	s.Inner.Reset()
}
