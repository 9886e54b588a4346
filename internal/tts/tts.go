package tts

import "context"

// Synthesizer defines the interface for speech synthesis providers.
type Synthesizer interface {
	// Synthesize converts text into linear 16-bit PCM audio at the rate
	// reported by SampleRate. The buffer is complete or absent: any
	// mid-stream failure returns an error and no audio.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SampleRate returns the fixed sample rate of the provider's
	// configured output format.
	SampleRate() int
}
