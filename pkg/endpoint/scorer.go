// Package endpoint scores individual service endpoints from observed call
// outcomes. Endpoint trust is orthogonal to agent reputation: a reputable
// agent can still run a flaky endpoint, and vice versa. The owner's
// reputation only gates the top verification tiers.
package endpoint

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// ReputationReader resolves an owner's overall reputation (0-1000) for
// tier gating. A nil reader reads every owner as zero.
type ReputationReader interface {
	OverallScore(ctx context.Context, subject string) (float64, error)
}

// CallReport is one observed call against an endpoint.
type CallReport struct {
	Endpoint       string
	Owner          string
	Success        bool
	ResponseTimeMs float64
	// PricePaid and MarketPrice feed the price-fairness term. Zero market
	// price skips the comparison.
	PricePaid   float64
	MarketPrice float64
	// UptimePct is an optional availability sample (0-100) from an external
	// probe. Zero means unreported; the success rate stands in for uptime
	// until a probe reports.
	UptimePct float64
	At        time.Time
}

const (
	// consistencyAlpha is the EWMA retention factor: each call moves the
	// consistency score by at most 5 points.
	consistencyAlpha = 0.95

	// latencyJitterScale divides the absolute latency delta (ms) before it
	// penalizes consistency; 10ms of jitter costs one point.
	latencyJitterScale = 10.0

	// latencyTargetMs is the average response time under which the latency
	// term scores a full 100.
	latencyTargetMs = 200.0

	// latencyCostPerMs erodes the latency term beyond the target: one point
	// per 100ms, reaching zero around ten seconds.
	latencyCostPerMs = 0.01
)

// Scorer maintains per-endpoint trust records.
type Scorer struct {
	mu      sync.RWMutex
	records map[string]*endpointState

	reputation ReputationReader
	clock      func() time.Time
	logger     *slog.Logger
}

// endpointState extends the public record with scoring internals.
type endpointState struct {
	record contracts.EndpointTrustRecord
	// fairness is the EWMA price-fairness term, 0-100. Starts neutral.
	fairness    float64
	hasFairness bool
	// uptime is the EWMA of probe-reported availability, 0-100.
	uptime      float64
	hasUptime   bool
	prevLatency float64
}

// ScorerOption tweaks scorer construction.
type ScorerOption func(*Scorer)

// WithReputationReader wires owner reputation into tier gating.
func WithReputationReader(r ReputationReader) ScorerOption {
	return func(s *Scorer) { s.reputation = r }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ScorerOption {
	return func(s *Scorer) { s.clock = clock }
}

// NewScorer creates an endpoint scorer.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		records: make(map[string]*endpointState),
		clock:   time.Now,
		logger:  slog.Default().With("component", "endpoint_scorer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordCall folds one call report into the endpoint's record and returns
// the updated record.
func (s *Scorer) RecordCall(ctx context.Context, report CallReport) (contracts.EndpointTrustRecord, error) {
	now := report.At
	if now.IsZero() {
		now = s.clock().UTC()
	}

	var ownerRep float64
	if s.reputation != nil && report.Owner != "" {
		rep, err := s.reputation.OverallScore(ctx, report.Owner)
		if err != nil {
			return contracts.EndpointTrustRecord{}, err
		}
		ownerRep = rep
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.records[report.Endpoint]
	if !ok {
		state = &endpointState{
			record: contracts.EndpointTrustRecord{
				Endpoint:         report.Endpoint,
				Owner:            report.Owner,
				ConsistencyScore: 100,
				Tier:             contracts.TierUnverified,
			},
		}
		s.records[report.Endpoint] = state
	}
	rec := &state.record
	if report.Owner != "" {
		rec.Owner = report.Owner
	}

	rec.TotalCalls++
	if report.Success {
		rec.SuccessfulCalls++
	} else {
		rec.FailedCalls++
	}
	rec.LastCallAt = now

	// Moving-average latency over all calls.
	rec.AvgResponseTime += (report.ResponseTimeMs - rec.AvgResponseTime) / float64(rec.TotalCalls)

	// Consistency: EWMA of latency stability. The first call establishes
	// the baseline without penalty.
	if rec.TotalCalls > 1 {
		jitter := math.Abs(report.ResponseTimeMs - state.prevLatency)
		sample := 100 - math.Min(100, jitter/latencyJitterScale)
		rec.ConsistencyScore = consistencyAlpha*rec.ConsistencyScore + (1-consistencyAlpha)*sample
	}
	state.prevLatency = report.ResponseTimeMs

	// Probe-reported availability, smoothed like the other EWMA terms.
	if report.UptimePct > 0 {
		sample := math.Min(100, report.UptimePct)
		if state.hasUptime {
			state.uptime = consistencyAlpha*state.uptime + (1-consistencyAlpha)*sample
		} else {
			state.uptime = sample
			state.hasUptime = true
		}
	}

	// Price fairness: symmetric deviation penalty against market price.
	// Undercutting earns no bonus; it only avoids the penalty.
	if report.MarketPrice > 0 {
		sample := fairnessSample(report.PricePaid, report.MarketPrice)
		if state.hasFairness {
			state.fairness = consistencyAlpha*state.fairness + (1-consistencyAlpha)*sample
		} else {
			state.fairness = sample
			state.hasFairness = true
		}
	}

	rec.TrustScore = trustScore(rec, state, ownerRep)
	rec.Tier = tierFor(rec, ownerRep)

	s.logger.DebugContext(ctx, "endpoint call recorded",
		"endpoint", report.Endpoint,
		"success", report.Success,
		"trust_score", rec.TrustScore,
		"tier", string(rec.Tier),
	)
	return *rec, nil
}

// Get returns the endpoint's record, or false if it was never called.
func (s *Scorer) Get(endpoint string) (contracts.EndpointTrustRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.records[endpoint]
	if !ok {
		return contracts.EndpointTrustRecord{}, false
	}
	return state.record, true
}

// trustScore blends performance 40%, consistency 30%, price fairness 20%,
// and owner reputation 10%.
func trustScore(rec *contracts.EndpointTrustRecord, state *endpointState, ownerRep float64) float64 {
	fairness := 100.0
	if state.hasFairness {
		fairness = state.fairness
	}
	ownerTerm := math.Min(100, ownerRep/10)
	score := performanceScore(rec, state)*0.4 + rec.ConsistencyScore*0.3 + fairness*0.2 + ownerTerm*0.1
	return math.Round(score*100) / 100
}

// performanceScore blends success rate 50%, response latency 30%, and
// uptime 20%. Unreported uptime falls back to the success rate, the same
// probes-absent fallback the telemetry collector uses.
func performanceScore(rec *contracts.EndpointTrustRecord, state *endpointState) float64 {
	success := rec.SuccessRate() * 100
	latency := math.Max(0, 100-math.Max(0, rec.AvgResponseTime-latencyTargetMs)*latencyCostPerMs)
	uptime := success
	if state.hasUptime {
		uptime = state.uptime
	}
	return success*0.5 + latency*0.3 + uptime*0.2
}

// fairnessSample scores one priced call, 0-100. Paying at or below market
// is perfectly fair; overcharge decays the score linearly to zero at 2x.
func fairnessSample(paid, market float64) float64 {
	if paid <= market {
		return 100
	}
	over := (paid - market) / market
	return math.Max(0, 100-over*100)
}
