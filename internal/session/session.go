// Package session manages the lifecycle of one streaming transcriber at a
// time: start, stop, proactive rollover, and pre-roll buffering so speech
// onsets are not clipped.
package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/audio"
	"github.com/voximind/voice-bridge/internal/stt"
)

// Session owns at most one live transcriber stream. All methods are called
// from the connection's frame loop only; the transcriber's worker delivers
// events through a channel that Drain empties non-blockingly.
type Session struct {
	factory  stt.Factory
	stopWait time.Duration
	logger   zerolog.Logger

	tr        stt.Transcriber
	events    <-chan stt.TranscriptEvent
	running   bool
	startedAt time.Time
	preroll   *audio.PreRoll

	nowFn func() time.Time
}

// New creates a stopped session. prerollFrames bounds the pre-roll buffer;
// stopWait bounds how long Stop waits for the provider stream to wind down.
func New(factory stt.Factory, prerollFrames int, stopWait time.Duration, logger zerolog.Logger) *Session {
	return &Session{
		factory:  factory,
		stopWait: stopWait,
		logger:   logger,
		preroll:  audio.NewPreRoll(prerollFrames),
		nowFn:    time.Now,
	}
}

// Start opens a new transcriber stream and primes it with the buffered
// pre-roll in arrival order. Idempotent: a no-op when already running.
func (s *Session) Start() error {
	if s.running {
		return nil
	}

	tr := s.factory()
	if err := tr.Start(); err != nil {
		s.preroll.Clear()
		return fmt.Errorf("failed to start transcriber: %w", err)
	}

	s.tr = tr
	s.events = tr.Events()
	s.running = true
	s.startedAt = s.nowFn()

	flushed := s.preroll.Len()
	if err := s.preroll.Flush(tr.SendAudio); err != nil {
		s.logger.Warn().Err(err).Msg("Pre-roll flush interrupted")
	} else if flushed > 0 {
		s.logger.Debug().Int("frames", flushed).Msg("Pre-roll flushed into session")
	}

	return nil
}

// Stop signals end-of-stream and waits up to stopWait for the provider
// stream to wind down, then treats the session as stopped regardless. A
// stuck provider must never stall the connection loop. Idempotent.
func (s *Session) Stop() {
	if !s.running {
		return
	}

	tr := s.tr
	done := make(chan struct{})
	go func() {
		if err := tr.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Transcriber stop failed")
		}
		_ = tr.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.stopWait):
		s.logger.Warn().Dur("wait", s.stopWait).Msg("Transcriber stop timed out, abandoning stream")
	}

	// Keep the event channel so fragments already delivered by the worker
	// can still be drained; it is replaced on the next Start.
	s.tr = nil
	s.running = false
	s.startedAt = time.Time{}
}

// Feed forwards a frame to the live stream, or buffers it in the pre-roll
// when no stream is running.
func (s *Session) Feed(frame []byte) {
	if !s.running {
		s.preroll.Push(frame)
		return
	}
	if err := s.tr.SendAudio(frame); err != nil {
		// The stream marks itself dead; the controller restarts it.
		s.logger.Warn().Err(err).Msg("Failed to feed transcriber")
	}
}

// Drain empties the pending transcript events without blocking.
func (s *Session) Drain() []stt.TranscriptEvent {
	var out []stt.TranscriptEvent
	for s.events != nil {
		select {
		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// Expired reports whether the stream has been open for maxDuration or
// longer. Streaming providers cap continuous session length and go quiet
// past it, so rollover has to happen proactively.
func (s *Session) Expired(maxDuration time.Duration) bool {
	return s.running && s.nowFn().Sub(s.startedAt) >= maxDuration
}

// Alive reports whether the underlying stream is still functioning. A
// stopped session is trivially alive.
func (s *Session) Alive() bool {
	if !s.running {
		return true
	}
	return s.tr.Alive()
}

// Restart stops the current stream and immediately opens a fresh one.
// Transparent to the caller apart from the renewed start time.
func (s *Session) Restart() error {
	s.Stop()
	return s.Start()
}

// Running reports whether a stream is currently open
func (s *Session) Running() bool {
	return s.running
}

// ClearPreRoll discards any buffered pre-roll frames
func (s *Session) ClearPreRoll() {
	s.preroll.Clear()
}

// PreRollLen returns the number of buffered pre-roll frames
func (s *Session) PreRollLen() int {
	return s.preroll.Len()
}
