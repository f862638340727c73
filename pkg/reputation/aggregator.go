// Package reputation combines votes, attestations, telemetry, reviews, and
// staked commitment into one multi-dimensional trust score with trend
// detection. Recalculation is a pure re-derivation from current signal
// state, so redundant or reordered runs always converge.
package reputation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/signals"
)

// VoteSource is the vote store subset the aggregator reads.
type VoteSource interface {
	StatsFor(ctx context.Context, agent string, since time.Time) (contracts.VoteStats, error)
}

// TxSource is the receipt store subset the aggregator reads.
type TxSource interface {
	StatsFor(ctx context.Context, subject string, since time.Time) (contracts.TxStats, error)
}

// Sources bundles the signal collectors. Any field may be nil; a missing
// collector contributes its neutral default.
type Sources struct {
	Votes        VoteSource
	Receipts     TxSource
	Attestations *signals.AttestationStore
	Staking      *signals.StakingStore
	Telemetry    *signals.TelemetryStore
	Reviews      *signals.ReviewStore
	Endorsements *signals.EndorsementStore
}

// Weights are the component weights of the overall score. They must sum
// to 1; Overall is the weighted sum scaled to 0-1000.
type Weights struct {
	Trust       float64
	Quality     float64
	Reliability float64
	Economic    float64
	Social      float64
	Staking     float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		Trust:       0.20,
		Quality:     0.20,
		Reliability: 0.15,
		Economic:    0.15,
		Social:      0.15,
		Staking:     0.15,
	}
}

const (
	// neutralBaseline is the component value used when a signal has no
	// data at all. A subject nobody has rated is unknown, not bad.
	neutralBaseline = 50.0

	// trendThreshold separates rising/falling from stable.
	trendThreshold = 10.0

	// DefaultSignalWindow bounds the recent-signal lookback.
	DefaultSignalWindow = 30 * 24 * time.Hour

	// DefaultRecalcInterval feeds NextCalculationAt for the sweep.
	DefaultRecalcInterval = 6 * time.Hour
)

// Aggregator materializes reputation scores.
type Aggregator struct {
	store   ScoreStore
	sources Sources
	weights Weights
	window  time.Duration
	clock   func() time.Time
	logger  *slog.Logger
}

// AggOption tweaks aggregator construction.
type AggOption func(*Aggregator)

// WithWindow overrides the recent-signal window.
func WithWindow(w time.Duration) AggOption {
	return func(a *Aggregator) { a.window = w }
}

// WithWeights overrides the component weights.
func WithWeights(w Weights) AggOption {
	return func(a *Aggregator) { a.weights = w }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) AggOption {
	return func(a *Aggregator) { a.clock = clock }
}

// NewAggregator creates an aggregator over a score store and signal sources.
func NewAggregator(store ScoreStore, sources Sources, opts ...AggOption) *Aggregator {
	a := &Aggregator{
		store:   store,
		sources: sources,
		weights: DefaultWeights(),
		window:  DefaultSignalWindow,
		clock:   time.Now,
		logger:  slog.Default().With("component", "reputation_aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recalculate re-derives the subject's score from current signal state and
// upserts it. Idempotent: identical signal-store contents yield identical
// scores, so it is safe to run redundantly or out of order.
func (a *Aggregator) Recalculate(ctx context.Context, subject string) (*contracts.ReputationScore, error) {
	now := a.clock().UTC()
	since := now.Add(-a.window)

	var votes contracts.VoteStats
	if a.sources.Votes != nil {
		v, err := a.sources.Votes.StatsFor(ctx, subject, since)
		if err != nil {
			return nil, err
		}
		votes = v
	}
	var txs contracts.TxStats
	if a.sources.Receipts != nil {
		t, err := a.sources.Receipts.StatsFor(ctx, subject, since)
		if err != nil {
			return nil, err
		}
		txs = t
	}
	var atts signals.AttestationStats
	if a.sources.Attestations != nil {
		atts = a.sources.Attestations.StatsFor(subject, a.window)
	}
	var staking signals.StakingStats
	if a.sources.Staking != nil {
		staking = a.sources.Staking.StatsFor(subject, a.window)
	}
	var telemetry signals.TelemetryStats
	if a.sources.Telemetry != nil {
		telemetry = a.sources.Telemetry.StatsFor(subject, a.window)
	}
	var reviews signals.ReviewStats
	if a.sources.Reviews != nil {
		reviews = a.sources.Reviews.StatsFor(subject, a.window)
	}
	var endorsements signals.EndorsementStats
	if a.sources.Endorsements != nil {
		endorsements = a.sources.Endorsements.StatsFor(subject, a.window)
	}

	components := contracts.ComponentScores{
		Trust:       trustScore(votes, atts, staking),
		Quality:     qualityScore(telemetry, reviews),
		Reliability: reliabilityScore(telemetry),
		Economic:    economicScore(txs, staking),
		Social:      socialScore(votes, atts, endorsements, staking),
		Staking:     round2(staking.TrustBonus),
	}
	overall := round2((components.Trust*a.weights.Trust +
		components.Quality*a.weights.Quality +
		components.Reliability*a.weights.Reliability +
		components.Economic*a.weights.Economic +
		components.Social*a.weights.Social +
		components.Staking*a.weights.Staking) * 10)

	score := &contracts.ReputationScore{
		Subject:    subject,
		Components: components,
		Overall:    overall,
		Trend:      contracts.TrendStable,
		Stats: contracts.ReputationStats{
			TotalVotes:    votes.Total,
			PositiveVotes: votes.Positive,
			NegativeVotes: votes.Negative,
			Attestations:  atts.Total,
			Endorsements:  endorsements.Total,
			TxCount:       txs.Count,
			TxVolume:      txs.Volume,
			UniqueStakers: staking.UniqueStakers,
			TotalStaked:   staking.TotalStaked,
		},
		LastCalculatedAt:  now,
		NextCalculationAt: now.Add(DefaultRecalcInterval),
		BaseScore:         overall,
		LastActivity:      now,
	}

	prev, err := a.store.Get(ctx, subject)
	switch {
	case err == nil:
		change := overall - prev.Overall
		switch {
		case change > trendThreshold:
			score.Trend = contracts.TrendRising
		case change < -trendThreshold:
			score.Trend = contracts.TrendFalling
		}
		score.ScoreChange7d = a.changeSince(ctx, subject, overall, now.Add(-7*24*time.Hour), change)
		score.ScoreChange30d = a.changeSince(ctx, subject, overall, now.Add(-30*24*time.Hour), change)
		score.DecayEnabled = prev.DecayEnabled
		score.DecayRateBps = prev.DecayRateBps
		if !hasActivity(votes, txs, telemetry) {
			score.LastActivity = prev.LastActivity
		}
	case err == contracts.ErrScoreNotFound:
		// First calculation for this subject.
	default:
		return nil, err
	}

	if err := a.store.Upsert(ctx, score); err != nil {
		return nil, err
	}
	if err := a.store.AppendHistory(ctx, subject, overall, now); err != nil {
		a.logger.WarnContext(ctx, "score history append failed", "subject", subject, "error", err)
	}

	a.logger.InfoContext(ctx, "reputation recalculated",
		"subject", subject,
		"overall", overall,
		"trend", string(score.Trend),
		"total_votes", votes.Total,
	)
	return score, nil
}

// changeSince computes the delta against the newest history point at or
// before the cutoff, falling back to the previous stored value.
func (a *Aggregator) changeSince(ctx context.Context, subject string, overall float64, cutoff time.Time, fallback float64) float64 {
	old, ok, err := a.store.HistoryBefore(ctx, subject, cutoff)
	if err != nil || !ok {
		return round2(fallback)
	}
	return round2(overall - old)
}

// GetScore returns the stored score or contracts.ErrScoreNotFound.
func (a *Aggregator) GetScore(ctx context.Context, subject string) (*contracts.ReputationScore, error) {
	return a.store.Get(ctx, subject)
}

// GetTopSubjects returns the highest-scored subjects, ties broken by
// subject for deterministic ordering.
func (a *Aggregator) GetTopSubjects(ctx context.Context, limit int) ([]*contracts.ReputationScore, error) {
	return a.store.Top(ctx, limit)
}

// OverallScore returns the subject's decay-adjusted overall score. Unknown
// subjects read as zero so callers can treat it as a plain signal.
func (a *Aggregator) OverallScore(ctx context.Context, subject string) (float64, error) {
	s, err := a.store.Get(ctx, subject)
	if err == contracts.ErrScoreNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.EffectiveScore(a.clock().UTC()), nil
}

func hasActivity(votes contracts.VoteStats, txs contracts.TxStats, telemetry signals.TelemetryStats) bool {
	return votes.Total > 0 || txs.Count > 0 || telemetry.Calls > 0
}

// trustScore: baseline 50; vote ratio when votes exist; +2 per active
// attestation; fractional staking bonus. Capped at 100.
func trustScore(votes contracts.VoteStats, atts signals.AttestationStats, staking signals.StakingStats) float64 {
	trust := neutralBaseline
	if votes.Total > 0 {
		trust = float64(votes.Positive) / float64(votes.Total) * 100
	}
	trust += 2 * float64(atts.Active)
	trust += math.Min(10, staking.TrustBonus*0.1)
	return round2(math.Min(100, trust))
}

// qualityScore: uptime 40%, inverse error rate 30%, success ratio 30%.
// Merchant reviews, when present, blend in at 30%: the 0-50 rating scale
// maps onto 0-100.
func qualityScore(t signals.TelemetryStats, reviews signals.ReviewStats) float64 {
	reviewQ := reviews.AvgRating * 2
	if !t.HasData {
		if reviews.Total == 0 {
			return neutralBaseline
		}
		return round2(math.Min(100, reviewQ))
	}
	q := t.UptimePct*0.4 + (100-t.ErrorRatePct)*0.3 + t.SuccessPct*0.3
	if reviews.Total > 0 {
		q = q*0.7 + reviewQ*0.3
	}
	return round2(math.Min(100, q))
}

// reliabilityScore: uptime 60%, recent call success 40%.
func reliabilityScore(t signals.TelemetryStats) float64 {
	if !t.HasData {
		return neutralBaseline
	}
	r := t.UptimePct*0.6 + t.SuccessPct*0.4
	return round2(math.Min(100, r))
}

// economicScore: capped base from transaction volume and count plus a
// logarithmic bonus from staked value.
func economicScore(txs contracts.TxStats, staking signals.StakingStats) float64 {
	base := math.Min(80, math.Log2(float64(txs.Volume)+1)*3+math.Min(40, float64(txs.Count)))
	bonus := math.Min(20, math.Log2(float64(staking.TotalStaked)+1)*3)
	return round2(math.Min(100, base+bonus))
}

// socialScore: capped base from votes, attestations, and endorsements plus
// a staker-diversity bonus.
func socialScore(votes contracts.VoteStats, atts signals.AttestationStats, endorsements signals.EndorsementStats, staking signals.StakingStats) float64 {
	base := math.Min(80, float64(votes.Total)*2+float64(atts.Total)*3+float64(endorsements.Total)*4)
	bonus := math.Min(20, float64(staking.UniqueStakers)*2)
	return round2(math.Min(100, base+bonus))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
