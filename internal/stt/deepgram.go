package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/observability"
	"github.com/voximind/voice-bridge/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramTranscriber implements Transcriber using Deepgram's streaming API.
// One instance is one provider stream; the session layer constructs a fresh
// instance for every start and restart.
type DeepgramTranscriber struct {
	config  *config.Config
	client  *listenClient.WSCallback
	events  chan TranscriptEvent
	logger  zerolog.Logger
	mu      sync.RWMutex
	active  bool
	dead    bool
	ctx     context.Context
	cancel  context.CancelFunc
	breaker *resilience.Breaker
}

// NewDeepgramTranscriber creates a Deepgram streaming transcriber. The
// breaker must outlive the instance: one stream's failures have to count
// against the next stream's breaker budget.
func NewDeepgramTranscriber(cfg *config.Config, logger zerolog.Logger, breaker *resilience.Breaker) *DeepgramTranscriber {
	ctx, cancel := context.WithCancel(context.Background())

	return &DeepgramTranscriber{
		config:  cfg,
		events:  make(chan TranscriptEvent, 100),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		breaker: breaker,
	}
}

// NewFactory returns a Factory that builds Deepgram transcribers for a
// connection's transcription sessions. All instances the factory hands out
// share one circuit breaker, so failure history survives session restarts.
func NewFactory(cfg *config.Config, logger zerolog.Logger) Factory {
	breaker := resilience.NewBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	return func() Transcriber {
		return NewDeepgramTranscriber(cfg, logger, breaker)
	}
}

// Start opens a new Deepgram streaming connection
func (d *DeepgramTranscriber) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Warn().
				Str("component", "deepgram").
				Interface("error", errorResponse).
				Msg("Transcriber stream error, treating as stream end")

			d.breaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			// The session layer notices via Alive() and restarts with a
			// fresh instance; nothing propagates to the connection.
			d.mu.Lock()
			d.active = false
			d.dead = true
			d.mu.Unlock()
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		d.dead = true
		return fmt.Errorf("failed to create deepgram client: %w", err)
	}

	d.client = client
	d.active = true
	d.dead = false

	d.breaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))

	d.logger.Debug().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Msg("Deepgram stream opened")
	return nil
}

// handleMessage converts Deepgram results into TranscriptEvents
func (d *DeepgramTranscriber) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			return
		}

		event := TranscriptEvent{
			Text:       text,
			IsFinal:    msg.IsFinal,
			Timestamp:  time.Now(),
			Confidence: alt.Confidence,
		}

		select {
		case d.events <- event:
		default:
			d.logger.Warn().Msg("Transcript channel full, dropping event")
		}

	case "Metadata", "SpeechStarted", "UtteranceEnd":
		// Informational only; turn decisions come from our own VAD.

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Unhandled Deepgram message type")
	}
}

// SendAudio forwards one audio frame to Deepgram
func (d *DeepgramTranscriber) SendAudio(frame []byte) error {
	err := d.breaker.Call(func() error {
		d.mu.RLock()
		active := d.active
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram stream is not active")
		}

		if _, err := client.Write(frame); err != nil {
			d.mu.Lock()
			d.active = false
			d.dead = true
			d.mu.Unlock()
			return fmt.Errorf("failed to send audio to deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

// Events returns the transcript event channel
func (d *DeepgramTranscriber) Events() <-chan TranscriptEvent {
	return d.events
}

// Stop signals end-of-stream to Deepgram
func (d *DeepgramTranscriber) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	d.client.Finish()
	d.active = false
	d.logger.Debug().Msg("Deepgram stream stopped")
	return nil
}

// Close releases resources. The events channel is never closed: the SDK
// callback goroutine can deliver a late final after Finish, and the session
// layer drains buffered events without needing a close. The channel is
// garbage collected with the instance.
func (d *DeepgramTranscriber) Close() error {
	d.cancel()
	return d.Stop()
}

// Alive reports whether the stream is still functioning
func (d *DeepgramTranscriber) Alive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.dead
}
