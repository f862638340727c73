package endpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

type fixedRep struct{ score float64 }

func (f fixedRep) OverallScore(context.Context, string) (float64, error) {
	return f.score, nil
}

func record(t *testing.T, s *Scorer, endpoint string, n int, success bool, latency float64) contracts.EndpointTrustRecord {
	t.Helper()
	var rec contracts.EndpointTrustRecord
	var err error
	for i := 0; i < n; i++ {
		rec, err = s.RecordCall(context.Background(), CallReport{
			Endpoint:       endpoint,
			Owner:          "bob",
			Success:        success,
			ResponseTimeMs: latency,
		})
		require.NoError(t, err)
	}
	return rec
}

func TestRecordCall_Counters(t *testing.T) {
	s := NewScorer()
	record(t, s, "ep", 9, true, 100)
	rec := record(t, s, "ep", 1, false, 100)

	assert.Equal(t, uint64(10), rec.TotalCalls)
	assert.Equal(t, uint64(9), rec.SuccessfulCalls)
	assert.Equal(t, uint64(1), rec.FailedCalls)
	assert.InDelta(t, 0.9, rec.SuccessRate(), 0.001)
	assert.InDelta(t, 100.0, rec.AvgResponseTime, 0.001)
	assert.False(t, rec.LastCallAt.IsZero())
}

func TestConsistency_StableLatencyStaysHigh(t *testing.T) {
	s := NewScorer()
	rec := record(t, s, "ep", 50, true, 120)
	assert.InDelta(t, 100.0, rec.ConsistencyScore, 0.001)
}

func TestConsistency_JitterErodesSlowly(t *testing.T) {
	s := NewScorer()
	ctx := context.Background()

	// Alternate between 100ms and 600ms: 500ms jitter each call, a
	// 50-point sample. EWMA moves at most 5 percent per call.
	_, err := s.RecordCall(ctx, CallReport{Endpoint: "ep", Success: true, ResponseTimeMs: 100})
	require.NoError(t, err)
	rec, err := s.RecordCall(ctx, CallReport{Endpoint: "ep", Success: true, ResponseTimeMs: 600})
	require.NoError(t, err)

	// 0.95*100 + 0.05*50 = 97.5
	assert.InDelta(t, 97.5, rec.ConsistencyScore, 0.001)

	for i := 0; i < 200; i++ {
		latency := 100.0
		if i%2 == 0 {
			latency = 600
		}
		rec, err = s.RecordCall(ctx, CallReport{Endpoint: "ep", Success: true, ResponseTimeMs: latency})
		require.NoError(t, err)
	}
	assert.Less(t, rec.ConsistencyScore, 70.0)
	assert.Greater(t, rec.ConsistencyScore, 0.0)
}

func TestTrustScore_Blend(t *testing.T) {
	s := NewScorer(WithReputationReader(fixedRep{score: 800}))
	ctx := context.Background()

	rec, err := s.RecordCall(ctx, CallReport{
		Endpoint:       "ep",
		Owner:          "bob",
		Success:        true,
		ResponseTimeMs: 100,
		PricePaid:      1.0,
		MarketPrice:    1.0,
	})
	require.NoError(t, err)

	// perf 100*.4 + consistency 100*.3 + fairness 100*.2 + owner 80*.1
	assert.InDelta(t, 98.0, rec.TrustScore, 0.001)
}

func TestTrustScore_LatencyDragsPerformance(t *testing.T) {
	s := NewScorer()
	fast := record(t, s, "fast", 100, true, 5)
	slow := record(t, s, "slow", 100, true, 30_000)

	// Equal success rates; only the latency term separates them. The slow
	// endpoint's latency term bottoms out at zero:
	// perf 100*.5 + 0*.3 + 100*.2 = 70, trust 70*.4 + 30 + 20 = 78.
	assert.InDelta(t, 90.0, fast.TrustScore, 0.001)
	assert.InDelta(t, 78.0, slow.TrustScore, 0.001)
	assert.Greater(t, fast.TrustScore, slow.TrustScore)
}

func TestTrustScore_UptimeReportsBlendIn(t *testing.T) {
	s := NewScorer()
	rec, err := s.RecordCall(context.Background(), CallReport{
		Endpoint: "ep", Success: true, ResponseTimeMs: 100, UptimePct: 50,
	})
	require.NoError(t, err)

	// perf = 100*.5 + 100*.3 + 50*.2 = 90, trust = 90*.4 + 30 + 20 = 86.
	assert.InDelta(t, 86.0, rec.TrustScore, 0.001)
}

func TestPriceFairness_OverchargePenalized(t *testing.T) {
	s := NewScorer()
	ctx := context.Background()

	// 50% over market: fairness sample 50.
	rec, err := s.RecordCall(ctx, CallReport{
		Endpoint: "ep", Success: true, ResponseTimeMs: 100,
		PricePaid: 1.5, MarketPrice: 1.0,
	})
	require.NoError(t, err)
	// perf 40 + consistency 30 + fairness 50*.2 + owner 0
	assert.InDelta(t, 80.0, rec.TrustScore, 0.001)

	// Undercutting is not rewarded beyond a clean 100.
	rec2, err := s.RecordCall(ctx, CallReport{
		Endpoint: "ep2", Success: true, ResponseTimeMs: 100,
		PricePaid: 0.1, MarketPrice: 1.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 90.0, rec2.TrustScore, 0.001)
}

func TestTiers_Ladder(t *testing.T) {
	cases := []struct {
		name     string
		calls    uint64
		success  uint64
		ownerRep float64
		want     contracts.VerificationTier
	}{
		{"fresh", 5, 5, 0, contracts.TierUnverified},
		{"tested", 10, 5, 0, contracts.TierTested},
		{"tested below verified rate", 100, 79, 0, contracts.TierTested},
		{"verified", 100, 80, 0, contracts.TierVerified},
		{"trusted needs owner rep", 1000, 950, 0, contracts.TierVerified},
		{"trusted", 1000, 950, 500, contracts.TierTrusted},
		{"certified needs owner rep", 10000, 9700, 500, contracts.TierTrusted},
		{"certified", 10000, 9700, 750, contracts.TierCertified},
		{"volume without accuracy", 10000, 4000, 999, contracts.TierUnverified},
	}
	for _, tc := range cases {
		rec := &contracts.EndpointTrustRecord{
			TotalCalls:      tc.calls,
			SuccessfulCalls: tc.success,
			FailedCalls:     tc.calls - tc.success,
		}
		assert.Equal(t, tc.want, tierFor(rec, tc.ownerRep), tc.name)
	}
}

func TestTiers_DemotionOnDegradation(t *testing.T) {
	s := NewScorer()
	record(t, s, "ep", 100, true, 100)
	rec, _ := s.Get("ep")
	assert.Equal(t, contracts.TierVerified, rec.Tier)

	// A long failure streak drags the success rate under the bar.
	rec = record(t, s, "ep", 30, false, 100)
	assert.Equal(t, contracts.TierTested, rec.Tier)
}

func TestGet_UnknownEndpoint(t *testing.T) {
	_, ok := NewScorer().Get("ghost")
	assert.False(t, ok)
}
