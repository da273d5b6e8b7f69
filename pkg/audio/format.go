// ABOUTME: Sample format model and PCM conversion helpers
// ABOUTME: Converts float32 frames to the wire encodings device voices accept
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleFormat identifies the wire encoding an output device accepts.
type SampleFormat int

const (
	// FormatFloat32 is native little-endian float32, no conversion.
	FormatFloat32 SampleFormat = iota
	// FormatInt16 is signed 16-bit little-endian PCM.
	FormatInt16
	// FormatUint8 is unsigned 8-bit PCM (bias 128).
	FormatUint8
)

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatFloat32:
		return 4
	case FormatInt16:
		return 2
	case FormatUint8:
		return 1
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "f32le"
	case FormatInt16:
		return "s16le"
	case FormatUint8:
		return "u8"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DecodeFloat32 reinterprets little-endian float32 bytes as samples.
func DecodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("pcm data length %d is not aligned to 4-byte float32 samples", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// Deinterleave splits interleaved samples (L,R,L,R,...) into one plane per
// channel. planes is reused when it has the right shape, otherwise reallocated.
func Deinterleave(samples []float32, channels int, planes [][]float32) [][]float32 {
	frames := len(samples) / channels

	if len(planes) != channels {
		planes = make([][]float32, channels)
	}
	for ch := range planes {
		if cap(planes[ch]) < frames {
			planes[ch] = make([]float32, frames)
		}
		planes[ch] = planes[ch][:frames]
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			planes[ch][i] = samples[i*channels+ch]
		}
	}
	return planes
}

// Interleave merges per-channel planes back into a single buffer in channel
// order. All planes must have equal length.
func Interleave(planes [][]float32, dst []float32) []float32 {
	channels := len(planes)
	if channels == 0 {
		return dst[:0]
	}
	frames := len(planes[0])

	if cap(dst) < frames*channels {
		dst = make([]float32, frames*channels)
	}
	dst = dst[:frames*channels]

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = planes[ch][i]
		}
	}
	return dst
}

// ApplyGain multiplies every sample by gain in place.
func ApplyGain(samples []float32, gain float32) {
	if gain == 1.0 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}

// Clamp limits a sample to the [-1, 1] range.
func Clamp(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// EncodePCM converts float32 samples to the given wire format, clamping each
// sample to [-1, 1] first. Integer formats are packed little-endian.
func EncodePCM(samples []float32, format SampleFormat) ([]byte, error) {
	switch format {
	case FormatFloat32:
		out := make([]byte, len(samples)*4)
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(Clamp(s)))
		}
		return out, nil

	case FormatInt16:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			v := int16(Clamp(s) * 32767.0)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		}
		return out, nil

	case FormatUint8:
		out := make([]byte, len(samples))
		for i, s := range samples {
			out[i] = uint8(int16(Clamp(s)*127.0) + 128)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported sample format: %s", format)
	}
}
