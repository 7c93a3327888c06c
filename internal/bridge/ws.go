// Package bridge exposes the /ws_chat endpoint: one WebSocket connection,
// one turn controller, one conversation.
package bridge

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voximind/voice-bridge/internal/audio"
	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/llm"
	"github.com/voximind/voice-bridge/internal/observability"
	"github.com/voximind/voice-bridge/internal/reply"
	"github.com/voximind/voice-bridge/internal/session"
	"github.com/voximind/voice-bridge/internal/stt"
	"github.com/voximind/voice-bridge/internal/tts"
	"github.com/voximind/voice-bridge/internal/turn"
)

// historyMaxTurns bounds the conversation history passed to the generator.
const historyMaxTurns = 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins during
		// development; lock this down in production deployments.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleChatWS is the entry point for voice conversation connections
func HandleChatWS(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			lg := observability.GetLogger()
			lg.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		connID := observability.NewConnectionID()
		logger := observability.WithConnectionID(connID)
		metrics := observability.NewConnectionMetrics(connID)
		metrics.RecordConnectionStart()
		logger.Info().Msg("Voice connection established")

		c := newConn(ws, cfg, logger, metrics)

		sess := session.New(
			stt.NewFactory(cfg, logger),
			cfg.PreRollFrames(),
			time.Duration(cfg.StopWaitMs)*time.Millisecond,
			logger,
		)
		detector := audio.NewDetector(&audio.VADConfig{
			SampleRate:     cfg.SampleRate,
			FrameMs:        cfg.FrameMs,
			Aggressiveness: cfg.VADAggressiveness,
		})
		generator := llm.NewOpenAIClient(cfg, logger)
		synth := tts.NewCartesiaClient(cfg, logger)
		history := reply.NewHistory(historyMaxTurns)
		pipeline := reply.NewPipeline(cfg, generator, synth, c, history, logger, metrics)

		c.controller = turn.NewController(c.Context(), cfg, sess, detector, pipeline, logger, metrics)

		c.run()
	}
}
