package bridge

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/observability"
)

func bridgeTestConfig() *config.Config {
	return &config.Config{
		SampleRate:        16000,
		FrameMs:           20,
		VADAggressiveness: 2,
		VADStartSpeechMs:  100,
		VADStopSilenceMs:  500,
		PreRollMs:         300,
		SilenceMs:         600,
		FinalWaitMs:       500,
		StreamMaxSec:      240,
		IdleStopMs:        30000,
		StopWaitMs:        100,
		TickMs:            50,
		DeepgramModel:     "nova-2",
		DeepgramLanguage:  "en",
		OpenAIModel:       "gpt-4.1-nano",
		OpenAIMaxTokens:   160,
	}
}

func dialTestServer(t *testing.T) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(HandleChatWS(bridgeTestConfig()))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Failed to dial test server: %v", err)
	}
	return ws, func() {
		ws.Close()
		srv.Close()
	}
}

func encodedSilenceFrame() []byte {
	frame := make([]byte, 640) // one 20ms frame of digital silence
	return []byte(base64.StdEncoding.EncodeToString(frame))
}

func TestHandleChatWS_AcceptsFrames(t *testing.T) {
	ws, cleanup := dialTestServer(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		if err := ws.WriteMessage(websocket.TextMessage, encodedSilenceFrame()); err != nil {
			t.Fatalf("Frame %d: write failed: %v", i, err)
		}
	}

	// Silence produces no reply; the connection simply stays open.
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("Expected no server message for silence")
	} else if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
		t.Errorf("Expected the connection to stay open, got close: %v", err)
	}
}

func TestHandleChatWS_ToleratesMalformedFrames(t *testing.T) {
	ws, cleanup := dialTestServer(t)
	defer cleanup()

	if err := ws.WriteMessage(websocket.TextMessage, []byte("!!not base64!!")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// The bad frame degrades to silence, not a fatal error: further frames
	// still go through.
	if err := ws.WriteMessage(websocket.TextMessage, encodedSilenceFrame()); err != nil {
		t.Fatalf("Write after malformed frame failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	if nerr, ok := err.(net.Error); !ok || !nerr.Timeout() {
		t.Errorf("Expected the connection to stay open after a malformed frame, got %v", err)
	}
}

func TestHandleChatWS_RejectsPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(HandleChatWS(bridgeTestConfig()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == 200 {
		t.Error("Expected a plain HTTP request to fail the upgrade")
	}
}

func TestDecodeFrame_ValidPayload(t *testing.T) {
	c := newConn(nil, bridgeTestConfig(), zerolog.Nop(), observability.NewConnectionMetrics("test"))

	payload := []byte{1, 2, 3, 4}
	encoded := []byte(base64.StdEncoding.EncodeToString(payload))
	if got := c.decodeFrame(encoded); !bytes.Equal(got, payload) {
		t.Errorf("Expected decoded payload %v, got %v", payload, got)
	}
}

func TestDecodeFrame_MalformedBecomesSilence(t *testing.T) {
	cfg := bridgeTestConfig()
	c := newConn(nil, cfg, zerolog.Nop(), observability.NewConnectionMetrics("test"))

	got := c.decodeFrame([]byte("!!not base64!!"))
	if len(got) != cfg.FrameBytes() {
		t.Fatalf("Expected a full silence frame of %d bytes, got %d", cfg.FrameBytes(), len(got))
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("Expected digital silence, got byte %d at %d", b, i)
		}
	}
}

func TestTextMessageShape(t *testing.T) {
	payload, err := json.Marshal(textMessage{Type: "text", Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"text","message":"hello"}`
	if string(payload) != want {
		t.Errorf("Expected %s, got %s", want, payload)
	}
}
