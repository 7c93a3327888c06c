// Package reply produces the system's half of a turn: generate text, speak
// it, and stream the audio back to the client.
package reply

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/audio"
	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/llm"
	"github.com/voximind/voice-bridge/internal/observability"
	"github.com/voximind/voice-bridge/internal/tts"
)

// Sender delivers outbound messages to the client. Implemented by the
// connection; writes after disconnect fail without crashing anything.
type Sender interface {
	// SendFrame sends one base64-encoded PCM audio frame
	SendFrame(frame []byte) error

	// SendText sends the reply transcript as a structured message
	SendText(text string) error
}

// Pipeline runs one reply turn end to end. It is dispatched fire-and-forget
// by the turn controller; done is always called, success or not, so the
// connection returns to listening.
type Pipeline struct {
	cfg       *config.Config
	generator llm.Generator
	synth     tts.Synthesizer
	sender    Sender
	history   *History
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewPipeline constructs a reply pipeline for one connection
func NewPipeline(cfg *config.Config, generator llm.Generator, synth tts.Synthesizer, sender Sender, history *History, logger zerolog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		generator: generator,
		synth:     synth,
		sender:    sender,
		history:   history,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run generates a reply to utterance, synthesizes it, and streams the audio
// to the client frame by frame. done fires on every exit path.
func (p *Pipeline) Run(ctx context.Context, utterance string, done func()) {
	defer done()

	p.metrics.RecordLLMStart()
	replyText, err := p.generator.Reply(ctx, p.history.Messages(), utterance)
	p.metrics.RecordLLMEnd()
	if err != nil {
		p.logger.Error().Err(err).Msg("Text generation failed, aborting reply turn")
		p.metrics.RecordError("llm_error", "reply")
		return
	}
	if replyText == "" {
		p.logger.Debug().Msg("Empty reply text, nothing to speak")
		return
	}

	p.history.Append(utterance, replyText)

	// Deliver the transcript ahead of the audio so the client can render
	// it while synthesis is still in flight.
	if err := p.sender.SendText(replyText); err != nil {
		p.logger.Debug().Err(err).Msg("Reply text send failed, client likely gone")
		return
	}

	p.metrics.RecordTTSStart()
	raw, nativeRate, err := p.synth.Synthesize(ctx, replyText)
	p.metrics.RecordTTSEnd()
	if err != nil {
		p.logger.Error().Err(err).Msg("Synthesis failed, aborting reply turn")
		p.metrics.RecordError("tts_error", "reply")
		return
	}

	pcm := audio.ExtractPCM(raw)
	if nativeRate != p.cfg.SampleRate {
		pcm = audio.Resample(pcm, nativeRate, p.cfg.SampleRate)
	}

	frames := audio.SplitFrames(pcm, p.cfg.FrameBytes())
	p.logger.Info().
		Int("bytes", len(pcm)).
		Int("frames", len(frames)).
		Msg("Streaming reply audio")

	for _, frame := range frames {
		if ctx.Err() != nil {
			p.logger.Debug().Msg("Reply emission cancelled")
			return
		}
		if err := p.sender.SendFrame(frame); err != nil {
			p.logger.Debug().Err(err).Msg("Reply frame send failed, stopping emission")
			return
		}
		p.metrics.RecordFrame("out")
	}
}
