package tts

import "context"

// Synthesizer converts text into 16-bit mono PCM. The returned buffer may
// still be wrapped in a container format (e.g. RIFF/WAVE); callers strip
// it before frame-splitting. sampleRate is the native rate of the payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}
