package stt

import "context"

// TranscriptResult represents a speech-to-text transcription result.
type TranscriptResult struct {
	Text        string  // The transcribed text
	Confidence  float64 // Confidence score (0-1)
	IsFinal     bool    // Whether this segment will not change anymore
	SpeechFinal bool    // Whether the provider detected end of utterance
}

// Client defines the interface for streaming speech-to-text providers.
type Client interface {
	// Send pushes audio to the STT service in the provider's native
	// encoding. Audio sent after Close is silently dropped.
	Send(ctx context.Context, audio []byte) error

	// Results returns a channel that receives transcription results.
	Results() <-chan TranscriptResult

	// Errors returns a channel that receives connection errors.
	Errors() <-chan error

	// Close requests a graceful shutdown. Idempotent.
	Close() error
}
