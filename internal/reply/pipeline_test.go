package reply

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/llm"
	"github.com/voximind/voice-bridge/internal/observability"
)

type fakeGenerator struct {
	reply       string
	err         error
	calls       int
	lastHistory []llm.Message
	lastUser    string
}

func (g *fakeGenerator) Reply(ctx context.Context, history []llm.Message, userText string) (string, error) {
	g.calls++
	g.lastHistory = history
	g.lastUser = userText
	return g.reply, g.err
}

type fakeSynth struct {
	pcm   []byte
	rate  int
	err   error
	calls int
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	s.calls++
	return s.pcm, s.rate, s.err
}

type fakeSender struct {
	texts   []string
	frames  [][]byte
	textErr error
	sendErr error
}

func (s *fakeSender) SendFrame(frame []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *fakeSender) SendText(text string) error {
	if s.textErr != nil {
		return s.textErr
	}
	s.texts = append(s.texts, text)
	return nil
}

func pipelineConfig() *config.Config {
	return &config.Config{SampleRate: 16000, FrameMs: 20}
}

func constPCM(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

// wavWrap wraps PCM in a minimal RIFF/WAVE container the way synthesis
// providers sometimes deliver audio.
func wavWrap(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(payload)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func newTestPipeline(gen *fakeGenerator, synth *fakeSynth, sender *fakeSender) (*Pipeline, *History) {
	history := NewHistory(20)
	p := NewPipeline(pipelineConfig(), gen, synth, sender, history, zerolog.Nop(), observability.NewConnectionMetrics("test"))
	return p, history
}

func TestPipeline_SuccessfulTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "hi there"}
	synth := &fakeSynth{pcm: constPCM(1000, 640), rate: 16000} // 1280 bytes, two frames
	sender := &fakeSender{}
	p, history := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called on success")
	}
	if gen.lastUser != "hello" {
		t.Errorf("Expected generator given the utterance, got %q", gen.lastUser)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "hi there" {
		t.Fatalf("Expected reply text sent once, got %v", sender.texts)
	}
	if len(sender.frames) != 2 {
		t.Fatalf("Expected 2 audio frames, got %d", len(sender.frames))
	}
	for i, f := range sender.frames {
		if len(f) != 640 {
			t.Errorf("Frame %d: expected 640 bytes, got %d", i, len(f))
		}
	}
	if history.Len() != 2 {
		t.Errorf("Expected user and assistant messages in history, got %d", history.Len())
	}
}

func TestPipeline_GeneratorFailureCallsDone(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	synth := &fakeSynth{}
	sender := &fakeSender{}
	p, history := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called despite generation failure")
	}
	if len(sender.texts) != 0 || len(sender.frames) != 0 {
		t.Error("Expected nothing sent after generation failure")
	}
	if synth.calls != 0 {
		t.Error("Expected no synthesis after generation failure")
	}
	if history.Len() != 0 {
		t.Error("Expected failed turn kept out of history")
	}
}

func TestPipeline_EmptyReplySkipsSpeech(t *testing.T) {
	gen := &fakeGenerator{reply: ""}
	synth := &fakeSynth{}
	sender := &fakeSender{}
	p, history := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called for an empty reply")
	}
	if synth.calls != 0 || len(sender.texts) != 0 {
		t.Error("Expected nothing spoken for an empty reply")
	}
	if history.Len() != 0 {
		t.Error("Expected empty reply kept out of history")
	}
}

func TestPipeline_SynthesisFailureStillSendsText(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{err: errors.New("provider down")}
	sender := &fakeSender{}
	p, _ := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called despite synthesis failure")
	}
	if len(sender.texts) != 1 {
		t.Error("Expected reply text delivered before synthesis was attempted")
	}
	if len(sender.frames) != 0 {
		t.Error("Expected no audio after synthesis failure")
	}
}

func TestPipeline_TextSendFailureAbortsTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{pcm: constPCM(1000, 320), rate: 16000}
	sender := &fakeSender{textErr: errors.New("connection closed")}
	p, _ := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called after text send failure")
	}
	if synth.calls != 0 {
		t.Error("Expected no synthesis for a gone client")
	}
}

func TestPipeline_UnwrapsWAVContainer(t *testing.T) {
	payload := constPCM(500, 320) // exactly one frame
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{pcm: wavWrap(payload), rate: 16000}
	sender := &fakeSender{}
	p, _ := newTestPipeline(gen, synth, sender)

	p.Run(context.Background(), "hello", func() {})

	if len(sender.frames) != 1 {
		t.Fatalf("Expected 1 frame from the unwrapped payload, got %d", len(sender.frames))
	}
	if !bytes.Equal(sender.frames[0], payload) {
		t.Error("Expected the container header stripped from the audio")
	}
}

func TestPipeline_ResamplesProviderRate(t *testing.T) {
	// 480 samples at 24kHz is 20ms, which resamples to one 640-byte frame.
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{pcm: constPCM(1000, 480), rate: 24000}
	sender := &fakeSender{}
	p, _ := newTestPipeline(gen, synth, sender)

	p.Run(context.Background(), "hello", func() {})

	if len(sender.frames) != 1 {
		t.Fatalf("Expected 1 frame after resampling, got %d", len(sender.frames))
	}
	if len(sender.frames[0]) != 640 {
		t.Errorf("Expected a 640-byte frame at the wire rate, got %d bytes", len(sender.frames[0]))
	}
}

func TestPipeline_CancelledContextStopsEmission(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{pcm: constPCM(1000, 3200), rate: 16000}
	sender := &fakeSender{}
	p, _ := newTestPipeline(gen, synth, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doneCalled := false
	p.Run(ctx, "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called after cancellation")
	}
	if len(sender.frames) != 0 {
		t.Errorf("Expected no frames after cancellation, got %d", len(sender.frames))
	}
}

func TestPipeline_FrameSendFailureStopsEmission(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	synth := &fakeSynth{pcm: constPCM(1000, 3200), rate: 16000}
	sender := &fakeSender{sendErr: errors.New("connection closed")}
	p, _ := newTestPipeline(gen, synth, sender)

	doneCalled := false
	p.Run(context.Background(), "hello", func() { doneCalled = true })

	if !doneCalled {
		t.Error("Expected done called after frame send failure")
	}
	if len(sender.frames) != 0 {
		t.Errorf("Expected emission stopped at the failed frame, got %d frames", len(sender.frames))
	}
}

func TestPipeline_HistoryFlowsIntoNextTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "first answer"}
	synth := &fakeSynth{pcm: constPCM(1000, 320), rate: 16000}
	sender := &fakeSender{}
	p, _ := newTestPipeline(gen, synth, sender)

	p.Run(context.Background(), "first question", func() {})

	gen.reply = "second answer"
	p.Run(context.Background(), "second question", func() {})

	if len(gen.lastHistory) != 2 {
		t.Fatalf("Expected the first exchange in the second turn's history, got %d messages", len(gen.lastHistory))
	}
	if gen.lastHistory[0].Content != "first question" || gen.lastHistory[1].Content != "first answer" {
		t.Errorf("Expected prior exchange carried forward, got %v", gen.lastHistory)
	}
}
