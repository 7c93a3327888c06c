package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/observability"
	"github.com/voximind/voice-bridge/internal/turn"
)

// textMessage is the structured out-of-band message carrying the reply
// transcript ahead of its audio.
type textMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Conn ties one WebSocket connection to one turn controller. A reader
// goroutine decodes frames into a channel; the engine loop consumes them
// strictly in order and is the sole mutator of turn state.
type Conn struct {
	ws      *websocket.Conn
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	controller *turn.Controller

	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	closed  bool
}

// newConn wires a connection around an upgraded WebSocket. The controller
// is attached afterwards because it needs the Conn as its reply sender.
func newConn(ws *websocket.Conn, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:      ws,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		frames:  make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context returns the connection's lifetime context
func (c *Conn) Context() context.Context {
	return c.ctx
}

// run drives the connection until the client disconnects. It owns all turn
// state mutation; the ticker keeps idle-timeout and final-wait logic moving
// even when no frames arrive.
func (c *Conn) run() {
	go c.readLoop()

	ticker := time.NewTicker(time.Duration(c.cfg.TickMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.frames:
			c.controller.HandleFrame(frame)
		case <-ticker.C:
			c.controller.Tick()
		case <-c.ctx.Done():
			c.teardown()
			return
		}
	}
}

// readLoop reads base64 PCM frames off the socket and queues them for the
// engine loop, dropping (with a warning) rather than blocking when the
// queue is full.
func (c *Conn) readLoop() {
	defer c.cancel()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			} else {
				c.logger.Info().Msg("Client disconnected")
			}
			return
		}

		select {
		case c.frames <- c.decodeFrame(msg):
		default:
			c.logger.Warn().Msg("Frame queue full, dropping frame")
			c.metrics.RecordFrameDropped("in")
		}
	}
}

// decodeFrame decodes one base64 wire message. A message that does not
// decode still has to advance the silence streak, so it becomes a frame of
// digital silence rather than disappearing from the VAD's view.
func (c *Conn) decodeFrame(msg []byte) []byte {
	frame, err := base64.StdEncoding.DecodeString(string(msg))
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode frame, treating as silence")
		c.metrics.RecordError("frame_decode_error", "bridge")
		return make([]byte, c.cfg.FrameBytes())
	}
	return frame
}

// SendFrame sends one PCM frame to the client as a base64 text message
func (c *Conn) SendFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	encoded := base64.StdEncoding.EncodeToString(frame)
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(encoded)); err != nil {
		c.cancel()
		return fmt.Errorf("frame write failed: %w", err)
	}
	return nil
}

// SendText sends the reply transcript as a structured message
func (c *Conn) SendText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	payload, err := json.Marshal(textMessage{Type: "text", Message: text})
	if err != nil {
		return fmt.Errorf("failed to marshal text message: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.cancel()
		return fmt.Errorf("text write failed: %w", err)
	}
	return nil
}

// teardown stops the transcription session (bounded wait inside) and marks
// the connection closed so an in-flight reply's writes fail quietly instead
// of hitting a dead socket.
func (c *Conn) teardown() {
	c.controller.Close()

	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()

	c.ws.Close()
	c.metrics.RecordConnectionEnd()
	c.logger.Info().Msg("Connection closed")
}
