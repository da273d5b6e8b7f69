// ABOUTME: Malgo-based queued-buffer voice implementation
// ABOUTME: Tracks discrete submitted buffers drained by the miniaudio callback
package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
	"github.com/varispeed/sampler-go/pkg/audio"
)

// Malgo is a queued-buffer voice backed by malgo/miniaudio. Submitted buffers
// are drained by the device data callback; the device plays silence when it
// starves. A buffer counts as held by the device from Submit until every one
// of its bytes has been consumed and Reclaim has released its slot.
type Malgo struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	closed     bool

	mu        sync.Mutex // guards the queue against the device callback
	blocks    [][]byte   // submitted buffers, oldest first
	headOff   int        // consumed bytes within blocks[0]
	processed [][]byte   // fully consumed, awaiting Reclaim
	consumed  int64      // total frames the callback has played
}

// OpenMalgo opens a queued-buffer malgo voice. capacity is enforced by the
// session's admission control, not here.
func OpenMalgo(sampleRate, channels, capacity int) (Voice, error) {
	_ = capacity

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	v := &Malgo{
		malgoCtx:   ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			v.dataCallback(pOutput)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	v.device = device

	log.Debug("malgo voice opened", "rate", sampleRate, "channels", channels)
	return v, nil
}

// dataCallback fills the device output from the queued buffers, zero-filling
// on starvation.
func (v *Malgo) dataCallback(out []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()

	filled := 0
	for filled < len(out) && len(v.blocks) > 0 {
		head := v.blocks[0]
		n := copy(out[filled:], head[v.headOff:])
		filled += n
		v.headOff += n

		if v.headOff == len(head) {
			v.processed = append(v.processed, head)
			v.blocks = v.blocks[1:]
			v.headOff = 0
		}
	}

	for i := filled; i < len(out); i++ {
		out[i] = 0
	}

	v.consumed += int64(filled / (audio.FormatInt16.BytesPerSample() * v.channels))
}

// Format returns the wire encoding the voice accepts.
func (v *Malgo) Format() audio.SampleFormat { return audio.FormatInt16 }

// Submit transfers ownership of one encoded buffer to the device.
func (v *Malgo) Submit(pcm []byte) error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if len(pcm) == 0 {
		return fmt.Errorf("empty buffer")
	}

	v.mu.Lock()
	v.blocks = append(v.blocks, pcm)
	v.mu.Unlock()
	return nil
}

// Queued returns the number of buffers held by the device: still queued plus
// processed but not yet reclaimed.
func (v *Malgo) Queued() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.blocks) + len(v.processed)
}

// Reclaim releases buffers the callback has fully consumed.
func (v *Malgo) Reclaim() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.processed)
	v.processed = v.processed[:0]
	return n
}

// Start begins draining queued buffers.
func (v *Malgo) Start() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if v.device.IsStarted() {
		return nil
	}
	if err := v.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Pause halts the device, retaining queued buffers.
func (v *Malgo) Pause() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if !v.device.IsStarted() {
		return nil
	}
	if err := v.device.Stop(); err != nil {
		return fmt.Errorf("failed to pause device: %w", err)
	}
	return nil
}

// Resume restarts a paused device.
func (v *Malgo) Resume() error {
	return v.Start()
}

// Stop halts the device and discards all queued and processed buffers.
func (v *Malgo) Stop() error {
	if v.closed {
		return fmt.Errorf("voice closed")
	}
	if v.device.IsStarted() {
		if err := v.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop device: %w", err)
		}
	}

	v.mu.Lock()
	v.blocks = nil
	v.processed = nil
	v.headOff = 0
	v.mu.Unlock()
	return nil
}

// Playing reports whether the device is started.
func (v *Malgo) Playing() bool {
	return !v.closed && v.device.IsStarted()
}

// Position returns the playback position derived from frames the callback
// has consumed.
func (v *Malgo) Position() (time.Duration, bool) {
	if v.closed {
		return 0, false
	}
	v.mu.Lock()
	frames := v.consumed
	v.mu.Unlock()
	return time.Duration(frames) * time.Second / time.Duration(v.sampleRate), true
}

// Close stops the device and releases the malgo context.
func (v *Malgo) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	if v.device.IsStarted() {
		if err := v.device.Stop(); err != nil {
			log.Warn("malgo device stop failed", "err", err)
		}
	}
	v.device.Uninit()

	if err := v.malgoCtx.Uninit(); err != nil {
		log.Warn("malgo context uninit failed", "err", err)
	}
	v.malgoCtx.Free()

	log.Debug("malgo voice closed")
	return nil
}
