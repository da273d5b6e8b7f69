// ABOUTME: Stretch processor capability definition
// ABOUTME: Contract for per-session time-stretch DSP units
package stretch

import "math"

// Processor is a stateful per-session DSP unit. It converts input frames at
// the configured rate into variable-length output frames at the effective
// rate divided by the speed factor, holding look-ahead state across calls.
//
// A Processor is configured exactly once per session; speed is a per-call
// parameter to Process, not a reconfiguration. Implementations are not safe
// for concurrent use; the owning session serializes all calls.
type Processor interface {
	// Configure sets the fixed channel count and sample rate.
	Configure(channels, sampleRate int) error

	// Process stretches the per-channel input planes by the speed factor
	// and returns per-channel output planes of OutputFrames(n, speed)
	// frames each. The returned planes are valid until the next call.
	Process(input [][]float32, speed float64) ([][]float32, error)

	// Reset clears all carried look-ahead state so the next Process call
	// starts a fresh stretch.
	Reset()
}

// OutputFrames returns the output frame count Process must produce for the
// given input frame count and speed factor.
func OutputFrames(inputFrames int, speed float64) int {
	return int(math.Round(float64(inputFrames) / speed))
}
