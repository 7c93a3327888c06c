package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_bridge_active_connections",
		Help: "Number of active voice connections",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_bridge_connections_total",
		Help: "Total number of connections handled",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_bridge_connection_duration_seconds",
		Help:    "Duration of voice connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Audio frame metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_frames_total",
		Help: "Total audio frames processed",
	}, []string{"direction"}) // "in" or "out"

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_frames_dropped_total",
		Help: "Audio frames dropped because a queue was full",
	}, []string{"direction"})

	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_turns_total",
		Help: "Reply turns triggered, labelled by trigger reason",
	}, []string{"reason"})

	sessionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_session_restarts_total",
		Help: "Transcription session restarts, labelled by cause",
	}, []string{"cause"}) // "rollover" or "stream-dead"

	// Collaborator latency metrics
	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_bridge_stt_latency_seconds",
		Help:    "Time from session start to first final result",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	llmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_bridge_llm_latency_seconds",
		Help:    "Text generation latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_bridge_tts_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_bridge_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// UpdateCircuitBreakerState sets the circuit breaker state gauge for a service
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the failure counter for a service
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// RecordSessionRestart records a transcription session restart
func RecordSessionRestart(cause string) {
	sessionRestarts.WithLabelValues(cause).Inc()
}

// Metrics tracks metrics for a single connection
type Metrics struct {
	connID       string
	startTime    time.Time
	sttStartTime time.Time
	llmStartTime time.Time
	ttsStartTime time.Time
	mu           sync.Mutex
}

// NewConnectionMetrics creates a new metrics tracker for a connection
func NewConnectionMetrics(connID string) *Metrics {
	return &Metrics{
		connID:    connID,
		startTime: time.Now(),
	}
}

// RecordConnectionStart records the start of a connection
func (m *Metrics) RecordConnectionStart() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionEnd records the end of a connection
func (m *Metrics) RecordConnectionEnd() {
	activeConnections.Dec()
	connectionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFrame records one processed audio frame
func (m *Metrics) RecordFrame(direction string) {
	framesTotal.WithLabelValues(direction).Inc()
}

// RecordFrameDropped records a dropped audio frame
func (m *Metrics) RecordFrameDropped(direction string) {
	framesDropped.WithLabelValues(direction).Inc()
}

// RecordTurn records a triggered reply turn with its trigger reason
func (m *Metrics) RecordTurn(reason string) {
	turnsTotal.WithLabelValues(reason).Inc()
}

// RecordSTTStart marks the start of a transcription session
func (m *Metrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTFinal records the latency to the first final result of a session
func (m *Metrics) RecordSTTFinal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sttStartTime.IsZero() {
		sttLatency.Observe(time.Since(m.sttStartTime).Seconds())
		m.sttStartTime = time.Time{}
	}
}

// RecordLLMStart marks the start of a text generation call
func (m *Metrics) RecordLLMStart() {
	m.mu.Lock()
	m.llmStartTime = time.Now()
	m.mu.Unlock()
}

// RecordLLMEnd records the end of a text generation call
func (m *Metrics) RecordLLMEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.llmStartTime.IsZero() {
		llmLatency.Observe(time.Since(m.llmStartTime).Seconds())
	}
}

// RecordTTSStart marks the start of a synthesis call
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of a synthesis call
func (m *Metrics) RecordTTSEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
	}
}

// RecordError records an error by type and component
func (m *Metrics) RecordError(errType, component string) {
	errorsTotal.WithLabelValues(errType, component).Inc()
}
