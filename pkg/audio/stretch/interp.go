// ABOUTME: Default interpolating stretch processor
// ABOUTME: Cubic interpolation over per-channel planes with carried history
package stretch

import (
	"fmt"
	"math"

	"github.com/ik5/audpbx/utils"
)

// historyFrames is the per-channel look-ahead window carried between calls
// so interpolation stays continuous across block boundaries.
const historyFrames = 3

// Interp is the default Processor. It hits the target output length exactly
// by mapping every output frame onto a fractional input position and
// interpolating with a Catmull-Rom spline. The last few input frames of each
// call are retained as interpolation history for the next call; Reset clears
// them.
type Interp struct {
	channels   int
	sampleRate int
	history    [][]float32
	ext        [][]float32 // scratch: history + current input
	out        [][]float32 // scratch: output planes
}

// NewInterp creates an unconfigured interpolating stretch processor.
func NewInterp() *Interp {
	return &Interp{}
}

// Configure sets the fixed channel count and sample rate.
func (p *Interp) Configure(channels, sampleRate int) error {
	if channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	p.channels = channels
	p.sampleRate = sampleRate
	p.history = make([][]float32, channels)
	p.ext = make([][]float32, channels)
	p.out = make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		p.history[ch] = make([]float32, historyFrames)
	}
	return nil
}

// Process stretches the per-channel input planes by the speed factor.
func (p *Interp) Process(input [][]float32, speed float64) ([][]float32, error) {
	if p.channels == 0 {
		return nil, fmt.Errorf("processor not configured")
	}
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("invalid speed factor: %f", speed)
	}
	if len(input) != p.channels {
		return nil, fmt.Errorf("expected %d input planes, got %d", p.channels, len(input))
	}

	frames := len(input[0])
	for ch, plane := range input {
		if len(plane) != frames {
			return nil, fmt.Errorf("plane %d has %d frames, plane 0 has %d", ch, len(plane), frames)
		}
	}
	if frames == 0 {
		return nil, fmt.Errorf("empty input block")
	}

	outFrames := OutputFrames(frames, speed)

	// Effective step so the last output frame lands at the end of this
	// block regardless of rounding in the target length.
	step := float64(frames) / float64(max(outFrames, 1))

	for ch := 0; ch < p.channels; ch++ {
		ext := p.ext[ch]
		if cap(ext) < historyFrames+frames {
			ext = make([]float32, historyFrames+frames)
		}
		ext = ext[:historyFrames+frames]
		copy(ext, p.history[ch])
		copy(ext[historyFrames:], input[ch])
		p.ext[ch] = ext

		out := p.out[ch]
		if cap(out) < outFrames {
			out = make([]float32, outFrames)
		}
		out = out[:outFrames]

		for i := 0; i < outFrames; i++ {
			pos := float64(i) * step
			idx := int(pos)
			if idx > len(ext)-4 {
				idx = len(ext) - 4
			}
			frac := float32(pos - float64(idx))
			out[i] = utils.CubicInterpolate(ext[idx], ext[idx+1], ext[idx+2], ext[idx+3], frac)
		}
		p.out[ch] = out

		copy(p.history[ch], ext[len(ext)-historyFrames:])
	}

	return p.out, nil
}

// Reset clears the carried interpolation history.
func (p *Interp) Reset() {
	for ch := range p.history {
		for i := range p.history[ch] {
			p.history[ch][i] = 0
		}
	}
}
