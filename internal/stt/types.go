package stt

import "time"

// TranscriptEvent is one interim or final transcription fragment.
// Empty or whitespace-only fragments are discarded at the source and never
// reach this type.
type TranscriptEvent struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates a fragment the provider will not revise further
	IsFinal bool

	// Timestamp is when the event was received
	Timestamp time.Time

	// Confidence is the provider confidence score (0.0 to 1.0) if available
	Confidence float64
}

// Transcriber is the interface for streaming speech-to-text clients.
// One Transcriber instance corresponds to one provider stream; restarts
// mean constructing a fresh instance.
type Transcriber interface {
	// Start opens the provider stream
	Start() error

	// SendAudio forwards one audio frame to the provider
	SendAudio(frame []byte) error

	// Events returns the channel on which transcript events arrive.
	// The producer never blocks on it; consumers drain it non-blockingly.
	Events() <-chan TranscriptEvent

	// Stop signals end-of-stream to the provider
	Stop() error

	// Close releases all resources
	Close() error

	// Alive reports whether the underlying stream is still functioning
	Alive() bool
}

// Factory constructs a fresh Transcriber for each session start
type Factory func() Transcriber
