package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice bridge service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio framing. The wire protocol carries exactly FrameMs of 16-bit
	// mono PCM per message, so FrameBytes() = SampleRate * 2 * FrameMs/1000.
	SampleRate int `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameMs    int `envconfig:"FRAME_MS" default:"20"`

	// Voice activity detection
	VADAggressiveness int `envconfig:"VAD_AGGRESSIVENESS" default:"2"`    // 0 (loose) .. 3 (conservative)
	VADStartSpeechMs  int `envconfig:"VAD_START_SPEECH_MS" default:"100"` // Speech streak before session start
	VADStopSilenceMs  int `envconfig:"VAD_STOP_SILENCE_MS" default:"500"` // Silence streak before session stop
	PreRollMs         int `envconfig:"PREROLL_MS" default:"300"`          // Audio buffered ahead of speech onset

	// Turn triggering
	SilenceMs   int `envconfig:"SILENCE_MS" default:"600"`    // Silence fallback trigger
	FinalWaitMs int `envconfig:"FINAL_WAIT_MS" default:"500"` // Quiet time after a final result before triggering

	// Transcription session lifecycle
	StreamMaxSec int `envconfig:"STREAM_MAX_SEC" default:"240"`        // Proactive rollover interval
	IdleStopMs   int `envconfig:"IDLE_STOP_MS" default:"30000"`        // Stop session when no frames arrive
	StopWaitMs   int `envconfig:"SESSION_STOP_WAIT_MS" default:"2000"` // Bounded graceful-stop wait
	TickMs       int `envconfig:"TICK_MS" default:"500"`               // Engine poll interval

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Cartesia TTS API configuration
	CartesiaAPIKey     string  `envconfig:"CARTESIA_API_KEY" required:"true"`
	CartesiaVoiceID    string  `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID    string  `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`
	CartesiaSampleRate int     `envconfig:"CARTESIA_SAMPLE_RATE" default:"24000"` // Native output rate, resampled to SampleRate
	TTSSpeed           float64 `envconfig:"TTS_SPEED" default:"1.0"`
	TTSVolumeGainDb    float64 `envconfig:"TTS_VOLUME_GAIN_DB" default:"0.0"`

	// OpenAI text generation configuration
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel     string `envconfig:"OPENAI_MODEL" default:"gpt-4.1-nano"`
	OpenAIMaxTokens int    `envconfig:"OPENAI_MAX_TOKENS" default:"160"`
	SystemPrompt    string `envconfig:"SYSTEM_PROMPT" default:"You are a voice conversation assistant. Keep replies short and natural."`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// FrameBytes returns the exact byte length of one wire frame.
func (c *Config) FrameBytes() int {
	return c.SampleRate * 2 * c.FrameMs / 1000
}

// PreRollFrames returns the pre-roll buffer capacity in frames.
func (c *Config) PreRollFrames() int {
	return c.PreRollMs / c.FrameMs
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if c.CartesiaAPIKey == "" {
		return fmt.Errorf("CARTESIA_API_KEY is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.SampleRate <= 0 || c.FrameMs <= 0 {
		return fmt.Errorf("SAMPLE_RATE and FRAME_MS must be positive")
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("VAD_AGGRESSIVENESS must be in 0..3, got %d", c.VADAggressiveness)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
