package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("CARTESIA_API_KEY", "test-cartesia-key")
	t.Setenv("OPENAI_API_KEY", "test-openai-key")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.OpenAIAPIKey != "test-openai-key" {
		t.Errorf("Expected OpenAIAPIKey 'test-openai-key', got '%s'", cfg.OpenAIAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("CARTESIA_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}
	if cfg.FrameMs != 20 {
		t.Errorf("Expected default FrameMs 20, got %d", cfg.FrameMs)
	}
	if cfg.VADStartSpeechMs != 100 {
		t.Errorf("Expected default VADStartSpeechMs 100, got %d", cfg.VADStartSpeechMs)
	}
	if cfg.SilenceMs != 600 {
		t.Errorf("Expected default SilenceMs 600, got %d", cfg.SilenceMs)
	}
	if cfg.FinalWaitMs != 500 {
		t.Errorf("Expected default FinalWaitMs 500, got %d", cfg.FinalWaitMs)
	}
	if cfg.StreamMaxSec != 240 {
		t.Errorf("Expected default StreamMaxSec 240, got %d", cfg.StreamMaxSec)
	}
}

func TestFrameBytes(t *testing.T) {
	cfg := &Config{SampleRate: 16000, FrameMs: 20}
	if got := cfg.FrameBytes(); got != 640 {
		t.Errorf("Expected FrameBytes 640 for 16kHz/20ms, got %d", got)
	}

	cfg = &Config{SampleRate: 8000, FrameMs: 20}
	if got := cfg.FrameBytes(); got != 320 {
		t.Errorf("Expected FrameBytes 320 for 8kHz/20ms, got %d", got)
	}
}

func TestPreRollFrames(t *testing.T) {
	cfg := &Config{PreRollMs: 300, FrameMs: 20}
	if got := cfg.PreRollFrames(); got != 15 {
		t.Errorf("Expected PreRollFrames 15, got %d", got)
	}
}

func TestLoad_InvalidAggressiveness(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VAD_AGGRESSIVENESS", "7")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for out-of-range VAD_AGGRESSIVENESS")
	}
}
