package audio

import "math"

// Energy thresholds indexed by aggressiveness level. Higher levels demand
// more energy before a frame counts as speech, so ambiguous frames fall
// through to non-speech.
var aggressivenessThresholds = [4]float64{250.0, 500.0, 1000.0, 2000.0}

// VADConfig holds configuration for voice activity detection
type VADConfig struct {
	SampleRate     int // Audio sample rate in Hz
	FrameMs        int // Frame duration in milliseconds
	Aggressiveness int // 0 (loose) .. 3 (most conservative)
}

// DefaultVADConfig returns a default VAD configuration for 16kHz/20ms frames
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		SampleRate:     16000,
		FrameMs:        20,
		Aggressiveness: 2,
	}
}

// Detector classifies fixed-size audio frames as speech or non-speech.
// Classification is stateless and deterministic for a given configuration;
// streak accounting lives with the caller.
type Detector struct {
	config     *VADConfig
	frameBytes int
	threshold  float64
}

// NewDetector creates a new voice activity detector
func NewDetector(config *VADConfig) *Detector {
	if config == nil {
		config = DefaultVADConfig()
	}
	level := config.Aggressiveness
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	return &Detector{
		config:     config,
		frameBytes: config.SampleRate * 2 * config.FrameMs / 1000,
		threshold:  aggressivenessThresholds[level],
	}
}

// FrameBytes returns the exact frame length the detector accepts.
func (d *Detector) FrameBytes() int {
	return d.frameBytes
}

// Classify reports whether a frame contains speech. A frame that cannot be
// classified (wrong length, not 16-bit aligned) is non-speech: a spurious
// silence costs at most a short gap in the pre-roll, while a spurious
// speech frame would start a transcription session for nothing.
func (d *Detector) Classify(frame []byte) bool {
	if len(frame) != d.frameBytes || len(frame)%2 != 0 {
		return false
	}
	return RMS(decodeSamples(frame)) > d.threshold
}

// Energy returns the RMS energy of a frame for diagnostics. Malformed
// frames report zero.
func (d *Detector) Energy(frame []byte) float64 {
	if len(frame)%2 != 0 {
		return 0
	}
	return RMS(decodeSamples(frame))
}

// RMS calculates the root-mean-square energy of 16-bit samples
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// decodeSamples converts little-endian PCM bytes to 16-bit samples
func decodeSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}
