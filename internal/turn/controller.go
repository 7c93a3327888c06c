// Package turn implements the turn-taking state machine: it fuses
// frame-level voice activity with asynchronous transcript events to decide
// when the user has finished talking and a reply should be produced.
package turn

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/audio"
	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/observability"
	"github.com/voximind/voice-bridge/internal/session"
)

// State is the connection's turn-taking state. Exactly one is active.
type State int

const (
	// StateListening: no transcription session, accumulating a speech
	// streak toward the onset threshold while buffering pre-roll.
	StateListening State = iota

	// StateTranscribing: session open, accumulating a silence streak
	// toward the stop threshold and finalized text toward a trigger.
	StateTranscribing

	// StateSpeaking: synthesized audio streaming out; inbound audio is
	// ignored so the system never reacts to its own voice looping back
	// through the microphone.
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Pipeline produces the reply for a completed turn. Run must call done on
// every exit path.
type Pipeline interface {
	Run(ctx context.Context, utterance string, done func())
}

// Controller drives the state machine. All methods run on the connection's
// frame loop; the only cross-goroutine signal is the buffered replyDone
// channel the pipeline completion callback posts to.
type Controller struct {
	cfg      *config.Config
	session  *session.Session
	detector *audio.Detector
	pipeline Pipeline
	logger   zerolog.Logger
	metrics  *observability.Metrics
	ctx      context.Context

	state           State
	speechStreakMs  int
	silenceStreakMs int
	pending         []string
	lastFinal       time.Time
	haveFinal       bool
	lastFrameAt     time.Time

	rxFrames int64
	rxStart  time.Time

	replyDone chan struct{}
	nowFn     func() time.Time
}

// NewController creates a controller in the listening state. The session
// starts only once the speech onset threshold is crossed, so neither
// pre-onset noise nor synthesized output ever reaches the transcriber as
// attributable speech.
func NewController(ctx context.Context, cfg *config.Config, sess *session.Session, detector *audio.Detector, pipeline Pipeline, logger zerolog.Logger, metrics *observability.Metrics) *Controller {
	now := time.Now()
	return &Controller{
		cfg:         cfg,
		session:     sess,
		detector:    detector,
		pipeline:    pipeline,
		logger:      logger,
		metrics:     metrics,
		ctx:         ctx,
		state:       StateListening,
		lastFrameAt: now,
		rxStart:     now,
		replyDone:   make(chan struct{}, 1),
		nowFn:       time.Now,
	}
}

// State returns the current turn state
func (c *Controller) State() State {
	return c.state
}

// HandleFrame processes one inbound audio frame
func (c *Controller) HandleFrame(frame []byte) {
	now := c.nowFn()
	c.lastFrameAt = now
	c.recordFrameRate(now)
	c.drainReplyDone()

	if c.state == StateSpeaking {
		// Consumed for diagnostics only; anything buffered ahead of the
		// reply is stale by the time we listen again.
		c.session.ClearPreRoll()
		return
	}

	isSpeech := c.detector.Classify(frame)
	if isSpeech {
		c.speechStreakMs += c.cfg.FrameMs
		c.silenceStreakMs = 0
	} else {
		c.silenceStreakMs += c.cfg.FrameMs
		c.speechStreakMs = 0
	}
	if c.rxFrames%25 == 0 {
		c.logger.Debug().
			Float64("rms", c.detector.Energy(frame)).
			Int("silence_ms", c.silenceStreakMs).
			Msg("Frame energy")
	}

	c.session.Feed(frame)

	if c.state == StateListening && c.speechStreakMs >= c.cfg.VADStartSpeechMs {
		if err := c.session.Start(); err != nil {
			c.logger.Warn().Err(err).Msg("Session start failed, staying in listening")
			c.metrics.RecordError("session_start_error", "turn")
		} else {
			c.state = StateTranscribing
			c.metrics.RecordSTTStart()
			c.logger.Debug().Int("speech_ms", c.speechStreakMs).Msg("Speech onset, transcribing")
		}
	}

	if c.state == StateTranscribing && c.silenceStreakMs >= c.cfg.VADStopSilenceMs {
		// Resource hygiene, independent of reply triggering: stop talking
		// to the provider when nobody is speaking.
		c.session.Stop()
		c.session.ClearPreRoll()
		c.state = StateListening
		c.logger.Debug().Int("silence_ms", c.silenceStreakMs).Msg("Silence, session stopped")
	}

	c.evaluate(now)
	c.maintain(now)
}

// Tick runs the time-driven work: reply completion, idle stop, rollover,
// dead-stream recovery, and the final-wait trigger which can fire without
// any inbound frame.
func (c *Controller) Tick() {
	now := c.nowFn()
	c.drainReplyDone()
	c.evaluate(now)
	c.maintain(now)
}

// Close stops any active session during connection teardown
func (c *Controller) Close() {
	c.session.Stop()
}

// drainReplyDone applies a pending reply-completion signal. The pipeline
// goroutine never mutates controller state directly; it posts to the
// channel and the frame loop picks it up here.
func (c *Controller) drainReplyDone() {
	select {
	case <-c.replyDone:
		if c.state == StateSpeaking {
			c.state = StateListening
			c.speechStreakMs = 0
			c.silenceStreakMs = 0
			c.logger.Debug().Msg("Reply complete, listening again")
		}
	default:
	}
}

// evaluate drains transcript events and fires at most one reply trigger
func (c *Controller) evaluate(now time.Time) {
	gotNewFinal := c.collectEvents()

	if c.state == StateSpeaking || len(c.pending) == 0 {
		return
	}

	var reason string
	switch {
	case gotNewFinal:
		// Dominant path: a final result just arrived this cycle.
		reason = "final-immediate"
	case c.silenceStreakMs >= c.cfg.SilenceMs:
		reason = "silence"
	case c.haveFinal && now.Sub(c.lastFinal) >= time.Duration(c.cfg.FinalWaitMs)*time.Millisecond:
		reason = "final-wait"
	default:
		return
	}

	c.trigger(reason)
}

// collectEvents moves pending transcript events into the utterance buffer,
// reporting whether a new final arrived.
func (c *Controller) collectEvents() bool {
	gotNewFinal := false
	for _, ev := range c.session.Drain() {
		if !ev.IsFinal {
			c.logger.Debug().Str("text", ev.Text).Msg("Interim transcript")
			continue
		}
		c.logger.Info().Str("text", ev.Text).Msg("Final transcript")
		c.pending = append(c.pending, ev.Text)
		c.lastFinal = ev.Timestamp
		c.haveFinal = true
		gotNewFinal = true
		c.metrics.RecordSTTFinal()
	}
	return gotNewFinal
}

// trigger completes the turn: the accumulated fragments become one
// utterance and the reply pipeline takes over.
func (c *Controller) trigger(reason string) {
	utterance := strings.TrimSpace(strings.Join(c.pending, " "))
	c.pending = c.pending[:0]
	c.haveFinal = false

	// The provider session must not idle open while the reply is being
	// produced.
	c.session.Stop()
	c.session.ClearPreRoll()
	c.speechStreakMs = 0
	c.silenceStreakMs = 0

	c.logger.Info().Str("reason", reason).Str("utterance", utterance).Msg("Turn triggered")

	if utterance == "" {
		c.state = StateListening
		return
	}

	c.metrics.RecordTurn(reason)

	// Speaking must be set before the pipeline goroutine exists, or a
	// frame racing in right after the trigger would still be treated as
	// user speech.
	c.state = StateSpeaking
	go c.pipeline.Run(c.ctx, utterance, c.signalReplyDone)
}

func (c *Controller) signalReplyDone() {
	select {
	case c.replyDone <- struct{}{}:
	default:
	}
}

// maintain handles session upkeep: recovery of a dead stream, proactive
// rollover, and the idle stop.
func (c *Controller) maintain(now time.Time) {
	if c.state == StateTranscribing && !c.session.Alive() {
		c.logger.Warn().Msg("Transcriber stream died, restarting session")
		observability.RecordSessionRestart("stream-dead")
		c.speechStreakMs = 0
		c.silenceStreakMs = 0
		if err := c.session.Restart(); err != nil {
			c.logger.Warn().Err(err).Msg("Session restart failed, dropping to listening")
			c.session.Stop()
			c.state = StateListening
		}
		return
	}

	if c.session.Expired(time.Duration(c.cfg.StreamMaxSec) * time.Second) {
		// The provider goes quiet past its maximum stream length, so roll
		// over before that, not after.
		c.evaluateRolloverDrain()
		c.logger.Info().Msg("Session rollover")
		observability.RecordSessionRestart("rollover")
		if err := c.session.Restart(); err != nil {
			c.logger.Warn().Err(err).Msg("Session rollover failed, dropping to listening")
			c.state = StateListening
		}
		return
	}

	if c.session.Running() && now.Sub(c.lastFrameAt) >= time.Duration(c.cfg.IdleStopMs)*time.Millisecond {
		// A client that stops sending without closing would otherwise pin
		// a provider session open until the provider times it out.
		c.logger.Info().Msg("Inbound audio idle, stopping session")
		c.session.Stop()
		c.session.ClearPreRoll()
		if c.state == StateTranscribing {
			c.state = StateListening
		}
		c.speechStreakMs = 0
		c.silenceStreakMs = 0
	}
}

// evaluateRolloverDrain pulls any already-delivered fragments into the
// utterance buffer before the stream is replaced, so a rollover never
// loses finalized text.
func (c *Controller) evaluateRolloverDrain() {
	c.collectEvents()
}

// recordFrameRate keeps the inbound frame-rate diagnostics
func (c *Controller) recordFrameRate(now time.Time) {
	c.rxFrames++
	c.metrics.RecordFrame("in")
	if c.rxFrames%50 == 0 {
		dt := now.Sub(c.rxStart).Seconds()
		fps := 0.0
		if dt > 0 {
			fps = float64(c.rxFrames) / dt
		}
		c.logger.Debug().
			Int64("frames", c.rxFrames).
			Float64("fps", fps).
			Msg("Inbound frame rate")
	}
}
