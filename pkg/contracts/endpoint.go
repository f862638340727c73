package contracts

import "time"

// VerificationTier is the discrete trust level assigned to an endpoint.
type VerificationTier string

const (
	TierUnverified VerificationTier = "unverified"
	TierTested     VerificationTier = "tested"
	TierVerified   VerificationTier = "verified"
	TierTrusted    VerificationTier = "trusted"
	TierCertified  VerificationTier = "certified"
)

// EndpointTrustRecord carries the rolling per-endpoint counters and the
// trust score derived from them. Scores are per endpoint, not per agent.
type EndpointTrustRecord struct {
	Endpoint string `json:"endpoint"`
	// Owner is the agent the endpoint belongs to; its reputation gates
	// the top verification tiers.
	Owner string `json:"owner"`

	TotalCalls      uint64 `json:"total_calls"`
	SuccessfulCalls uint64 `json:"successful_calls"`
	FailedCalls     uint64 `json:"failed_calls"`

	// AvgResponseTime is a moving average in milliseconds.
	AvgResponseTime float64 `json:"avg_response_time"`
	// ConsistencyScore is an exponentially-weighted measure (0-100) of
	// latency stability.
	ConsistencyScore float64 `json:"consistency_score"`

	TrustScore float64          `json:"trust_score"`
	Tier       VerificationTier `json:"verification_tier"`

	LastCallAt time.Time `json:"last_call_at"`
}

// SuccessRate returns the fraction of calls that succeeded, in [0, 1].
// Zero calls yield zero, never a division by zero.
func (r *EndpointTrustRecord) SuccessRate() float64 {
	if r.TotalCalls == 0 {
		return 0
	}
	return float64(r.SuccessfulCalls) / float64(r.TotalCalls)
}
