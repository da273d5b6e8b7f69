// ABOUTME: Oto-based continuous-stream voice implementation
// ABOUTME: Streams s16le PCM through a persistent oto player fed by a pipe
package voice

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/varispeed/sampler-go/pkg/audio"
)

// oto permits a single context per process, so every Oto voice shares one,
// initialized on first use with the first session's format.
var otoShared struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoShared.mu.Lock()
	defer otoShared.mu.Unlock()

	if otoShared.ctx != nil {
		if otoShared.sampleRate != sampleRate || otoShared.channels != channels {
			log.Warn("oto context already initialized with a different format, reusing",
				"have_rate", otoShared.sampleRate, "have_channels", otoShared.channels,
				"want_rate", sampleRate, "want_channels", channels)
		}
		return otoShared.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoShared.ctx = ctx
	otoShared.sampleRate = sampleRate
	otoShared.channels = channels
	return ctx, nil
}

// Oto is a continuous-stream voice backed by the oto library. Frames written
// to the pipe block until the persistent player drains them, which is the
// backend's backpressure mechanism.
type Oto struct {
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	written    int64 // encoded bytes handed to the player
	closed     bool
}

// OpenOto opens a continuous-stream oto voice. capacity is ignored: a stream
// device holds at most one in-flight write.
func OpenOto(sampleRate, channels, capacity int) (Voice, error) {
	_ = capacity

	ctx, err := sharedOtoContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	v := &Oto{
		otoCtx:     ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}
	v.pipeReader, v.pipeWriter = io.Pipe()
	v.player = ctx.NewPlayer(v.pipeReader)

	log.Debug("oto voice opened", "rate", sampleRate, "channels", channels)
	return v, nil
}

// Format returns the wire encoding the voice accepts.
func (v *Oto) Format() audio.SampleFormat { return audio.FormatInt16 }

// Start begins consuming piped audio.
func (v *Oto) Start() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	v.player.Play()
	return nil
}

// Pause halts playback, retaining buffered audio.
func (v *Oto) Pause() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	v.player.Pause()
	return nil
}

// Resume restarts a paused player.
func (v *Oto) Resume() error {
	return v.Start()
}

// Stop halts playback and discards everything in flight by replacing the
// pipe and player pair.
func (v *Oto) Stop() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}

	v.pipeWriter.Close()
	v.player.Close()
	v.pipeReader.Close()

	v.pipeReader, v.pipeWriter = io.Pipe()
	v.player = v.otoCtx.NewPlayer(v.pipeReader)
	v.written = 0
	return nil
}

// Playing reports whether the player is consuming audio.
func (v *Oto) Playing() bool {
	return !v.closed && v.player.IsPlaying()
}

// Write blocks until the player accepts the frames.
func (v *Oto) Write(pcm []byte) error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	n, err := v.pipeWriter.Write(pcm)
	v.written += int64(n)
	if err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Position estimates the playback position from bytes handed to the player
// minus what it still holds unplayed.
func (v *Oto) Position() (time.Duration, bool) {
	if v.closed {
		return 0, false
	}
	played := v.written - int64(v.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	frames := played / int64(audio.FormatInt16.BytesPerSample()*v.channels)
	return time.Duration(frames) * time.Second / time.Duration(v.sampleRate), true
}

// Close releases the player and pipe. The shared oto context stays alive for
// other voices; oto cannot tear it down per-voice.
func (v *Oto) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	v.pipeWriter.Close()
	if err := v.player.Close(); err != nil {
		log.Warn("oto player close failed", "err", err)
	}
	v.pipeReader.Close()

	log.Debug("oto voice closed")
	return nil
}
