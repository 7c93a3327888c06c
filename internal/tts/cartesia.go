package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
	"github.com/voximind/voice-bridge/internal/resilience"
)

const cartesiaURL = "https://api.cartesia.ai/v1/tts"

// CartesiaClient implements Synthesizer using Cartesia's TTS API
type CartesiaClient struct {
	config     *config.Config
	apiKey     string
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// cartesiaRequest is the request payload for the Cartesia TTS API
type cartesiaRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	ModelID      string  `json:"model_id,omitempty"`
	OutputFormat string  `json:"output_format,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	VolumeGainDb float64 `json:"volume_gain_db,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		config:     cfg,
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     cartesiaURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Synthesize converts text to PCM at the provider's native sample rate.
// Transient HTTP failures are retried with backoff; the caller treats a
// final error as an aborted reply turn, never a connection failure.
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	reqBody := cartesiaRequest{
		Text:         text,
		VoiceID:      c.config.CartesiaVoiceID,
		ModelID:      c.config.CartesiaModelID,
		OutputFormat: "pcm_s16le",
		SampleRate:   c.config.CartesiaSampleRate,
		Speed:        c.config.TTSSpeed,
		VolumeGainDb: c.config.TTSVolumeGainDb,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var audioData []byte
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:    c.config.RetryMaxAttempts,
		InitialBackoff: time.Duration(c.config.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}

	err = resilience.Retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call cartesia: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("cartesia API returned status %d", resp.StatusCode)
		}

		audioData, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read cartesia response: %w", err)
		}
		return nil
	}, retryCfg)
	if err != nil {
		return nil, 0, err
	}

	c.logger.Debug().Int("bytes", len(audioData)).Msg("Synthesis complete")
	return audioData, c.config.CartesiaSampleRate, nil
}
