// ABOUTME: Output device voice package
// ABOUTME: Provides Voice interfaces and oto, malgo, PortAudio adapters
// Package voice abstracts one playback lane on an audio output device.
//
// Two backend shapes exist. A Queued voice takes discrete buffers the device
// drains at its own pace, with explicit reclaim of processed buffers. A
// Stream voice takes blocking writes and buffers internally. The playback
// session behaves identically against either; only its admission-control
// step differs.
//
// Example:
//
//	v, err := voice.OpenOto(48000, 2, 3)
//	err = v.Start()
//	err = v.(voice.Stream).Write(pcm)
package voice
