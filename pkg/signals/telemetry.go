package signals

import (
	"sync"
	"time"
)

// CallOutcome is one observed service call against a subject.
type CallOutcome struct {
	Subject   string    `json:"subject"`
	Success   bool      `json:"success"`
	LatencyMs float64   `json:"latency_ms"`
	At        time.Time `json:"at"`
}

// UptimeReport is a probe-derived availability sample (0-100).
type UptimeReport struct {
	Subject   string    `json:"subject"`
	UptimePct float64   `json:"uptime_pct"`
	At        time.Time `json:"at"`
}

// TelemetryStats is the aggregator-facing summary. All percentages are
// 0-100; HasData distinguishes "no telemetry" from "terrible telemetry"
// so consumers can fall back to neutral baselines.
type TelemetryStats struct {
	HasData      bool    `json:"has_data"`
	Calls        int64   `json:"calls"`
	UptimePct    float64 `json:"uptime_pct"`
	ErrorRatePct float64 `json:"error_rate_pct"`
	SuccessPct   float64 `json:"success_pct"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// TelemetryStore collects call outcomes and uptime samples, bounded per
// subject so a chatty agent cannot grow memory without limit.
type TelemetryStore struct {
	mu       sync.RWMutex
	calls    map[string][]CallOutcome
	uptime   map[string][]UptimeReport
	maxFacts int
}

const defaultMaxFacts = 10_000

func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{
		calls:    make(map[string][]CallOutcome),
		uptime:   make(map[string][]UptimeReport),
		maxFacts: defaultMaxFacts,
	}
}

// RecordCall appends a call outcome, evicting the oldest past the bound.
func (s *TelemetryStore) RecordCall(o CallOutcome) {
	if o.At.IsZero() {
		o.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	facts := append(s.calls[o.Subject], o)
	if len(facts) > s.maxFacts {
		facts = facts[len(facts)-s.maxFacts:]
	}
	s.calls[o.Subject] = facts
}

// RecordUptime appends an availability sample.
func (s *TelemetryStore) RecordUptime(r UptimeReport) {
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := append(s.uptime[r.Subject], r)
	if len(samples) > s.maxFacts {
		samples = samples[len(samples)-s.maxFacts:]
	}
	s.uptime[r.Subject] = samples
}

// StatsFor summarizes telemetry within the window.
func (s *TelemetryStore) StatsFor(subject string, window time.Duration) TelemetryStats {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats TelemetryStats
	var successes int64
	var latencySum float64
	for _, o := range s.calls[subject] {
		if window > 0 && o.At.Before(cutoff) {
			continue
		}
		stats.Calls++
		latencySum += o.LatencyMs
		if o.Success {
			successes++
		}
	}

	var uptimeSum float64
	var uptimeCount int64
	for _, r := range s.uptime[subject] {
		if window > 0 && r.At.Before(cutoff) {
			continue
		}
		uptimeSum += r.UptimePct
		uptimeCount++
	}

	if stats.Calls == 0 && uptimeCount == 0 {
		return stats
	}
	stats.HasData = true
	if stats.Calls > 0 {
		stats.SuccessPct = float64(successes) / float64(stats.Calls) * 100
		stats.ErrorRatePct = 100 - stats.SuccessPct
		stats.AvgLatencyMs = latencySum / float64(stats.Calls)
	} else {
		// Probes only: treat availability as the success signal.
		stats.SuccessPct = uptimeSum / float64(uptimeCount)
		stats.ErrorRatePct = 100 - stats.SuccessPct
	}
	if uptimeCount > 0 {
		stats.UptimePct = uptimeSum / float64(uptimeCount)
	} else {
		stats.UptimePct = stats.SuccessPct
	}
	return stats
}
