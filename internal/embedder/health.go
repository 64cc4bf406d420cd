package embedder

import (
	"math"
	"sync"
	"time"
)

// Health status labels, ordered from best to worst.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	// DefaultHealthWindow is the number of recent outcomes scored per
	// provider.
	DefaultHealthWindow = 100

	// latencyCapMs saturates the latency term: an average at or above
	// two seconds counts as fully slow.
	latencyCapMs = 2000.0

	// DefaultUnhealthyBelow and DefaultHealthyAbove split scores into
	// unhealthy, degraded, and healthy bands.
	DefaultUnhealthyBelow = 0.5
	DefaultHealthyAbove   = 0.8
)

// HealthConfig parameterizes the monitor.
type HealthConfig struct {
	WindowSize     int
	UnhealthyBelow float64
	HealthyAbove   float64
}

// DefaultHealthConfig returns the standard window and thresholds.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		WindowSize:     DefaultHealthWindow,
		UnhealthyBelow: DefaultUnhealthyBelow,
		HealthyAbove:   DefaultHealthyAbove,
	}
}

type outcome struct {
	success   bool
	latencyMs float64
}

// window is a fixed-size ring of the most recent outcomes.
type window struct {
	outcomes []outcome
	next     int
	size     int
}

func (w *window) add(o outcome) {
	w.outcomes[w.next] = o
	w.next = (w.next + 1) % len(w.outcomes)
	if w.size < len(w.outcomes) {
		w.size++
	}
}

type windowStats struct {
	successRate  float64
	errorRate    float64
	avgLatencyMs float64
}

// stats derives rates over the filled portion of the window. Average
// latency covers successful calls only; with no successes it saturates
// to the cap so the latency term bottoms out.
func (w *window) stats() windowStats {
	var successes int
	var latencySum float64
	for i := 0; i < w.size; i++ {
		if w.outcomes[i].success {
			successes++
			latencySum += w.outcomes[i].latencyMs
		}
	}

	s := windowStats{
		successRate: float64(successes) / float64(w.size),
	}
	s.errorRate = 1.0 - s.successRate
	if successes > 0 {
		s.avgLatencyMs = latencySum / float64(successes)
	} else {
		s.avgLatencyMs = latencyCapMs
	}
	return s
}

// scoreStats weighs success rate at 50%, latency under the cap at 30%,
// and error rate at 20%.
func scoreStats(st windowStats) float64 {
	latencyTerm := 1.0 - math.Min(st.avgLatencyMs/latencyCapMs, 1.0)
	return 0.5*st.successRate + 0.3*latencyTerm + 0.2*(1.0-st.errorRate)
}

// HealthMonitor scores providers from a rolling window of call
// outcomes. A provider with no recorded outcomes scores 1.0: absence
// of evidence is not failure.
type HealthMonitor struct {
	mu      sync.Mutex
	cfg     HealthConfig
	windows map[string]*window
}

// HealthSnapshot is a point-in-time view of one provider's health.
type HealthSnapshot struct {
	Score        float64 `json:"score"`
	Status       string  `json:"status"`
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	WindowFill   int     `json:"window_fill"`
}

// NewHealthMonitor creates a monitor. Zero config fields fall back to
// the defaults.
func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultHealthWindow
	}
	if cfg.UnhealthyBelow <= 0 {
		cfg.UnhealthyBelow = DefaultUnhealthyBelow
	}
	if cfg.HealthyAbove <= 0 {
		cfg.HealthyAbove = DefaultHealthyAbove
	}
	return &HealthMonitor{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// RecordOutcome appends a call outcome to the provider's rolling
// window, dropping the oldest once the window is full.
func (m *HealthMonitor) RecordOutcome(provider string, success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windows[provider]
	if w == nil {
		w = &window{outcomes: make([]outcome, m.cfg.WindowSize)}
		m.windows[provider] = w
	}
	w.add(outcome{
		success:   success,
		latencyMs: float64(latency) / float64(time.Millisecond),
	})
}

// Score returns the provider's weighted health score in [0, 1].
func (m *HealthMonitor) Score(provider string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windows[provider]
	if w == nil || w.size == 0 {
		return 1.0
	}
	return scoreStats(w.stats())
}

// StatusFor maps the provider's score to a status label.
func (m *HealthMonitor) StatusFor(provider string) string {
	return m.statusOf(m.Score(provider))
}

func (m *HealthMonitor) statusOf(score float64) string {
	switch {
	case score < m.cfg.UnhealthyBelow:
		return StatusUnhealthy
	case score < m.cfg.HealthyAbove:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// ShouldFallback reports whether the provider should be skipped in
// favor of the next candidate in the chain.
func (m *HealthMonitor) ShouldFallback(provider string) bool {
	return m.Score(provider) < m.cfg.UnhealthyBelow
}

// Reset clears a provider's window. Used after a successful recovery
// probe so one good probe restores the provider instead of waiting for
// the window to churn through old failures.
func (m *HealthMonitor) Reset(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, provider)
}

// Snapshot returns the current health of every tracked provider.
func (m *HealthMonitor) Snapshot() map[string]HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]HealthSnapshot, len(m.windows))
	for name, w := range m.windows {
		if w.size == 0 {
			continue
		}
		st := w.stats()
		snap := HealthSnapshot{
			Score:        scoreStats(st),
			SuccessRate:  st.successRate,
			ErrorRate:    st.errorRate,
			AvgLatencyMs: st.avgLatencyMs,
			WindowFill:   w.size,
		}
		snap.Status = m.statusOf(snap.Score)
		out[name] = snap
	}
	return out
}
