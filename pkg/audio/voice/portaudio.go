//go:build portaudio

// ABOUTME: PortAudio continuous-stream voice implementation
// ABOUTME: Blocking chunked writes through a default PortAudio stream
package voice

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/varispeed/sampler-go/pkg/audio"
)

const portAudioChunkFrames = 512

// PortAudio is a continuous-stream voice using PortAudio blocking writes.
type PortAudio struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	channels   int
	written    int64 // frames written
	started    bool
	closed     bool
}

// OpenPortAudio opens a continuous-stream PortAudio voice. capacity is
// ignored: a stream device holds at most one in-flight write.
func OpenPortAudio(sampleRate, channels, capacity int) (Voice, error) {
	_ = capacity

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	v := &PortAudio{
		buf:        make([]int16, portAudioChunkFrames*channels),
		sampleRate: sampleRate,
		channels:   channels,
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), portAudioChunkFrames, &v.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	v.stream = stream
	return v, nil
}

// Format returns the wire encoding the voice accepts.
func (v *PortAudio) Format() audio.SampleFormat { return audio.FormatInt16 }

// Start begins stream playback.
func (v *PortAudio) Start() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if v.started {
		return nil
	}
	if err := v.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	v.started = true
	return nil
}

// Pause halts the stream; PortAudio keeps its internal buffer.
func (v *PortAudio) Pause() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if !v.started {
		return nil
	}
	if err := v.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	v.started = false
	return nil
}

// Resume restarts a paused stream.
func (v *PortAudio) Resume() error {
	return v.Start()
}

// Stop aborts the stream, discarding buffered audio.
func (v *PortAudio) Stop() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if v.started {
		if err := v.stream.Abort(); err != nil {
			return fmt.Errorf("failed to abort stream: %w", err)
		}
		v.started = false
	}
	v.written = 0
	return nil
}

// Playing reports whether the stream is started.
func (v *PortAudio) Playing() bool {
	return !v.closed && v.started
}

// Write blocks until the stream accepts all frames, one chunk at a time.
func (v *PortAudio) Write(pcm []byte) error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}

	samples := len(pcm) / 2
	for off := 0; off < samples; off += len(v.buf) {
		n := min(len(v.buf), samples-off)
		for i := 0; i < n; i++ {
			v.buf[i] = int16(binary.LittleEndian.Uint16(pcm[(off+i)*2:]))
		}
		for i := n; i < len(v.buf); i++ {
			v.buf[i] = 0
		}
		if err := v.stream.Write(); err != nil {
			return fmt.Errorf("stream write failed: %w", err)
		}
		v.written += int64(len(v.buf) / v.channels)
	}
	return nil
}

// Position returns the frames written to the stream so far.
func (v *PortAudio) Position() (time.Duration, bool) {
	if v.closed {
		return 0, false
	}
	return time.Duration(v.written) * time.Second / time.Duration(v.sampleRate), true
}

// Close stops the stream and terminates PortAudio.
func (v *PortAudio) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	if err := v.stream.Stop(); err != nil {
		_ = v.stream.Abort()
	}
	if err := v.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return portaudio.Terminate()
}
