package contracts

import "time"

// Trend is the direction of a subject's score relative to its previous value.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// ComponentScores are the six 0-100 dimensions of a reputation score.
type ComponentScores struct {
	Trust       float64 `json:"trust"`
	Quality     float64 `json:"quality"`
	Reliability float64 `json:"reliability"`
	Economic    float64 `json:"economic"`
	Social      float64 `json:"social"`
	Staking     float64 `json:"staking"`
}

// ReputationStats carries the raw counts behind a score.
type ReputationStats struct {
	TotalVotes      int64 `json:"total_votes"`
	PositiveVotes   int64 `json:"positive_votes"`
	NegativeVotes   int64 `json:"negative_votes"`
	Attestations    int64 `json:"attestations"`
	Endorsements    int64 `json:"endorsements"`
	TxCount         int64 `json:"tx_count"`
	TxVolume        uint64 `json:"tx_volume"`
	UniqueStakers   int64 `json:"unique_stakers"`
	TotalStaked     uint64 `json:"total_staked"`
}

// ReputationScore is the materialized multi-dimensional trust score of a
// subject (agent or merchant). It is always a deterministic function of
// the signal stores at calculation time, never mutated directly.
type ReputationScore struct {
	Subject    string          `json:"subject"`
	Components ComponentScores `json:"component_scores"`
	// Overall is the weighted component sum on a 0-1000 scale.
	Overall       float64         `json:"overall"`
	Trend         Trend           `json:"trend"`
	ScoreChange7d  float64         `json:"score_change_7d"`
	ScoreChange30d float64         `json:"score_change_30d"`
	Stats          ReputationStats `json:"stats"`

	LastCalculatedAt  time.Time `json:"last_calculated_at"`
	NextCalculationAt time.Time `json:"next_calculation_at"`

	// Inactivity decay. BaseScore is Overall before decay; the effective
	// score halves every DecayHalfLifeDays of inactivity past the grace
	// period, floored at DecayMinScore.
	BaseScore    float64   `json:"base_score"`
	LastActivity time.Time `json:"last_activity"`
	DecayEnabled bool      `json:"decay_enabled"`
	// DecayRateBps scales decay speed: 10000 = normal, 5000 = half.
	DecayRateBps uint16 `json:"decay_rate_bps"`
}

const (
	DecayHalfLifeDays    = 90
	DecayGracePeriodDays = 30
	DecayMinScore        = 100.0
	DecayMaxPeriods      = 10
)

// EffectiveScore returns the overall score with inactivity decay applied.
func (s *ReputationScore) EffectiveScore(now time.Time) float64 {
	if !s.DecayEnabled || s.LastActivity.IsZero() {
		return s.Overall
	}
	daysInactive := int64(now.Sub(s.LastActivity).Hours() / 24)
	if daysInactive <= DecayGracePeriodDays {
		return s.BaseScore
	}
	rate := int64(s.DecayRateBps)
	if rate < 100 {
		rate = 100
	}
	if rate > 10000 {
		rate = 10000
	}
	periods := (daysInactive - DecayGracePeriodDays) * rate / (DecayHalfLifeDays * 10000)
	if periods > DecayMaxPeriods {
		periods = DecayMaxPeriods
	}
	decayed := s.BaseScore
	for i := int64(0); i < periods; i++ {
		decayed /= 2
	}
	if decayed < DecayMinScore {
		return DecayMinScore
	}
	return decayed
}
