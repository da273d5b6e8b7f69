// ABOUTME: Tests for the playback session state machine and pipeline
// ABOUTME: Covers stretching, admission control, gain and state transitions
package sampler

import (
	"errors"
	"testing"

	"github.com/varispeed/sampler-go/internal/voicetest"
	"github.com/varispeed/sampler-go/pkg/audio"
	"github.com/varispeed/sampler-go/pkg/audio/stretch"
)

// queuedFrames returns the frame count of a submitted s16le stereo buffer.
func queuedFrames(t *testing.T, pcm []byte, channels int) int {
	t.Helper()
	return len(pcm) / (audio.FormatInt16.BytesPerSample() * channels)
}

func TestPlayUnitSpeedIdentityLength(t *testing.T) {
	for channels := 1; channels <= 8; channels++ {
		reg, _, voices := newQueuedRegistry(t)

		if err := reg.Initialize(1, 48000, channels, 4); err != nil {
			t.Fatalf("Initialize failed (channels=%d): %v", channels, err)
		}

		for _, frames := range []int{1, 480, 960, 1000} {
			ok, err := reg.Play(1, block(frames, channels, 0.25))
			if err != nil {
				t.Fatalf("Play failed (channels=%d frames=%d): %v", channels, frames, err)
			}
			if !ok {
				t.Fatalf("Play rejected (channels=%d frames=%d)", channels, frames)
			}

			v := (*voices)[0]
			got := queuedFrames(t, v.Submitted[len(v.Submitted)-1], channels)
			if got != frames {
				t.Errorf("channels=%d: expected %d output frames at speed 1.0, got %d",
					channels, frames, got)
			}
			v.Drain(1)
		}

		if err := reg.Dispose(); err != nil {
			t.Fatalf("Dispose failed: %v", err)
		}
	}
}

func TestPlayStretchedLengths(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		want  int // for 960 input frames
	}{
		{"double speed halves", 2.0, 480},
		{"half speed doubles", 0.5, 1920},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _, voices := newQueuedRegistry(t)
			if err := reg.Initialize(1, 48000, 2, 4); err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}
			if err := reg.SetPlaybackSpeed(1, tt.speed); err != nil {
				t.Fatalf("SetPlaybackSpeed failed: %v", err)
			}

			ok, err := reg.Play(1, block(960, 2, 0.25))
			if err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			if !ok {
				t.Fatal("Play rejected")
			}

			got := queuedFrames(t, (*voices)[0].Submitted[0], 2)
			if got < tt.want-1 || got > tt.want+1 {
				t.Errorf("expected %d±1 output frames, got %d", tt.want, got)
			}
		})
	}
}

func TestPlaySubFrameBlockAtHighSpeed(t *testing.T) {
	reg, _, voices := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 4); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := reg.SetPlaybackSpeed(1, 3.0); err != nil {
		t.Fatalf("SetPlaybackSpeed failed: %v", err)
	}

	// One input frame at 3.0x rounds to zero output frames. The block is
	// still valid input: it must be accepted into the stretch history, not
	// handed to the device as an empty buffer.
	ok, err := reg.Play(1, block(1, 2, 0.25))
	if err != nil {
		t.Fatalf("sub-frame Play: expected accepted, got error %v", err)
	}
	if !ok {
		t.Fatal("sub-frame Play rejected")
	}

	v := (*voices)[0]
	if got := len(v.Submitted); got != 0 {
		t.Fatalf("expected no device submission for zero output frames, got %d", got)
	}

	// The session must remain playable afterward.
	ok, err = reg.Play(1, block(960, 2, 0.25))
	if err != nil || !ok {
		t.Fatalf("follow-up Play: expected accepted, got ok=%v err=%v", ok, err)
	}
	if got := len(v.Submitted); got != 1 {
		t.Fatalf("expected 1 submitted buffer after follow-up, got %d", got)
	}
}

func TestPlayBackpressure(t *testing.T) {
	reg, _, voices := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 2); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := reg.Play(1, block(480, 2, 0.25))
		if err != nil || !ok {
			t.Fatalf("Play %d: expected accepted, got ok=%v err=%v", i, ok, err)
		}
	}

	for i := 0; i < 3; i++ {
		ok, err := reg.Play(1, block(480, 2, 0.25))
		if err != nil {
			t.Fatalf("excess Play %d: backpressure must not be an error, got %v", i, err)
		}
		if ok {
			t.Fatalf("excess Play %d: expected rejection", i)
		}
	}

	// Queue accounting must survive the rejected calls.
	v := (*voices)[0]
	if got := v.Queued(); got != 2 {
		t.Errorf("expected 2 buffers queued, got %d", got)
	}

	// After the device drains one, the next play is admitted again.
	v.Drain(1)
	ok, err := reg.Play(1, block(480, 2, 0.25))
	if err != nil || !ok {
		t.Fatalf("post-drain Play: expected accepted, got ok=%v err=%v", ok, err)
	}
}

func TestPlayEmptyBlockRejected(t *testing.T) {
	reg, _, _ := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := reg.Play(1, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty block: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := reg.Play(1, []byte{1, 2, 3}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("misaligned block: expected ErrInvalidArgument, got %v", err)
	}
}

func TestPauseResumeRetainsBuffers(t *testing.T) {
	reg, _, voices := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if ok, err := reg.Play(1, block(480, 2, 0.25)); err != nil || !ok {
			t.Fatalf("Play %d failed: ok=%v err=%v", i, ok, err)
		}
	}

	v := (*voices)[0]
	if err := reg.Pause(1); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if v.Playing() {
		t.Error("device should be halted while paused")
	}
	if got := v.Queued(); got != 2 {
		t.Errorf("pause must retain queued buffers, got %d", got)
	}

	if err := reg.Resume(1); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !v.Playing() {
		t.Error("device should be playing after resume")
	}
	if got := v.Queued(); got != 2 {
		t.Errorf("resume must retain queued buffers, got %d", got)
	}
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	reg, _, _ := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Nothing is playing yet; none of these may fail.
	if err := reg.Pause(1); err != nil {
		t.Errorf("Pause before playing: expected no-op, got %v", err)
	}
	if err := reg.Resume(1); err != nil {
		t.Errorf("Resume while not paused: expected no-op, got %v", err)
	}
	if err := reg.Stop(1); err != nil {
		t.Errorf("Stop while not playing: expected no-op, got %v", err)
	}
}

func TestPlayWhilePausedRejected(t *testing.T) {
	reg, _, _ := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if ok, err := reg.Play(1, block(480, 2, 0.25)); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}
	if err := reg.Pause(1); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	ok, err := reg.Play(1, block(480, 2, 0.25))
	if err != nil {
		t.Fatalf("Play while paused must not error, got %v", err)
	}
	if ok {
		t.Error("Play while paused must be rejected")
	}
}

func TestStopResetsStretchState(t *testing.T) {
	spy := voicetest.NewSpyStretch(nil)
	counter := &voicetest.Counter{}
	voices := &[]*voicetest.FakeQueued{}
	reg := New(
		WithVoiceOpener(voicetest.OpenFakeQueued(counter, voices)),
		WithStretchFactory(func() stretch.Processor { return spy }),
	)

	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := reg.SetPlaybackSpeed(1, 1.5); err != nil {
		t.Fatalf("SetPlaybackSpeed failed: %v", err)
	}
	if ok, err := reg.Play(1, block(480, 2, 0.5)); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}

	if err := reg.Stop(1); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if spy.Resets == 0 {
		t.Error("stop must reset the stretch processor")
	}
	if got := (*voices)[0].Queued(); got != 0 {
		t.Errorf("stop must discard queued buffers, got %d", got)
	}

	// A subsequent play starts a fresh stretch.
	resets := spy.Resets
	if ok, err := reg.Play(1, block(480, 2, 0.5)); err != nil || !ok {
		t.Fatalf("post-stop Play failed: ok=%v err=%v", ok, err)
	}
	if spy.Resets != resets {
		t.Error("play must not reset stretch state on its own")
	}
}

func TestSetPlaybackSpeedValidation(t *testing.T) {
	reg, _, _ := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, factor := range []float64{0, -0.5} {
		if err := reg.SetPlaybackSpeed(1, factor); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("factor %f: expected ErrInvalidArgument, got %v", factor, err)
		}
	}
	if err := reg.SetPlaybackSpeed(1, 0.05); err != nil {
		t.Errorf("small positive factor must be accepted, got %v", err)
	}
}

func TestSetVolumeValidationAndGain(t *testing.T) {
	reg, _, voices := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, value := range []float64{1.5, -0.1} {
		if err := reg.SetVolume(1, value); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("volume %f: expected ErrInvalidArgument, got %v", value, err)
		}
	}

	// Volume 0 produces exact silence on the wire.
	if err := reg.SetVolume(1, 0.0); err != nil {
		t.Fatalf("SetVolume(0) failed: %v", err)
	}
	if ok, err := reg.Play(1, block(480, 2, 0.9)); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}
	v := (*voices)[0]
	for i, b := range v.Submitted[0] {
		if b != 0 {
			t.Fatalf("byte %d: expected silence, got %d", i, b)
		}
	}

	// Volume 1 leaves samples unscaled.
	if err := reg.SetVolume(1, 1.0); err != nil {
		t.Fatalf("SetVolume(1) failed: %v", err)
	}
	if ok, err := reg.Play(1, block(480, 2, 0.5)); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}
	pcm := v.Submitted[len(v.Submitted)-1]
	half := float32(0.5)
	want := int16(half * 32767) // 16383
	got := int16(uint16(pcm[0]) | uint16(pcm[1])<<8)
	if got != want {
		t.Errorf("expected first sample %d, got %d", want, got)
	}
}

func TestStreamBackendAlwaysAccepts(t *testing.T) {
	counter := &voicetest.Counter{}
	voices := &[]*voicetest.FakeStream{}
	reg := New(WithVoiceOpener(voicetest.OpenFakeStream(counter, voices)))

	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		ok, err := reg.Play(1, block(480, 2, 0.25))
		if err != nil {
			t.Fatalf("Play %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("Play %d: stream backend must accept every write", i)
		}
	}

	v := (*voices)[0]
	if len(v.Written) != 10 {
		t.Errorf("expected 10 writes, got %d", len(v.Written))
	}
	if !v.Playing() {
		t.Error("stream device should have been started")
	}

	if err := reg.Close(1); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if counter.Live() != 0 {
		t.Errorf("expected stream voice closed, %d live", counter.Live())
	}
}

func TestBackendFailureQuiescesSession(t *testing.T) {
	reg, _, voices := newQueuedRegistry(t)
	if err := reg.Initialize(1, 48000, 2, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if ok, err := reg.Play(1, block(480, 2, 0.25)); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}

	(*voices)[0].FailSubmit = true
	if ok, err := reg.Play(1, block(480, 2, 0.25)); err == nil || ok {
		t.Fatalf("expected backend failure to surface, got ok=%v err=%v", ok, err)
	}

	// The session is left stopped and recovers on the next play.
	if (*voices)[0].Playing() {
		t.Error("device should be halted after a backend failure")
	}
	if ok, err := reg.Play(1, block(480, 2, 0.25)); err != nil || !ok {
		t.Fatalf("recovery Play failed: ok=%v err=%v", ok, err)
	}
}

func TestPlayConvertsToVoiceFormat(t *testing.T) {
	counter := &voicetest.Counter{}
	voices := &[]*voicetest.FakeStream{}
	reg := New(WithVoiceOpener(voicetest.OpenFakeStream(counter, voices)))

	if err := reg.Initialize(1, 48000, 1, 1); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	raw := block(16, 1, 0.5)
	if ok, err := reg.Play(1, raw); err != nil || !ok {
		t.Fatalf("Play failed: ok=%v err=%v", ok, err)
	}

	// The fake stream voice takes native float32: bytes pass through intact.
	v := (*voices)[0]
	if len(v.Written[0]) != len(raw) {
		t.Fatalf("expected %d bytes, got %d", len(raw), len(v.Written[0]))
	}
	got, err := audio.DecodeFloat32(v.Written[0])
	if err != nil {
		t.Fatalf("DecodeFloat32 failed: %v", err)
	}
	for i, s := range got {
		if s != 0.5 {
			t.Errorf("sample %d: expected 0.5, got %f", i, s)
		}
	}
}
