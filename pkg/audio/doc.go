// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, SampleFormat and float32 PCM conversion functions
// Package audio provides fundamental audio types and utilities for the
// playback engine.
//
// The engine works internally on interleaved float32 samples in [-1, 1].
// This package defines the stream Format, the wire SampleFormat a device
// voice accepts, and the conversions between them:
//   - DecodeFloat32: raw little-endian bytes → float32 samples
//   - Deinterleave / Interleave: interleaved ↔ per-channel planes
//   - ApplyGain: linear volume multiply
//   - EncodePCM: float32 → f32le, s16le or u8 with clamping
//
// Example:
//
//	samples, _ := audio.DecodeFloat32(raw)
//	audio.ApplyGain(samples, 0.5)
//	pcm, _ := audio.EncodePCM(samples, audio.FormatInt16)
package audio
