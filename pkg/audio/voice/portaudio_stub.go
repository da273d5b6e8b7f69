//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package voice

import (
	"fmt"
)

// OpenPortAudio reports that PortAudio support is not compiled in.
func OpenPortAudio(sampleRate, channels, capacity int) (Voice, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
