package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func decayScore(base float64, lastActivity time.Time) *ReputationScore {
	return &ReputationScore{
		Subject:      "bob",
		Overall:      base,
		BaseScore:    base,
		LastActivity: lastActivity,
		DecayEnabled: true,
		DecayRateBps: 10000,
	}
}

func TestEffectiveScore_DisabledReturnsOverall(t *testing.T) {
	s := decayScore(800, time.Now().Add(-365*24*time.Hour))
	s.DecayEnabled = false
	assert.Equal(t, 800.0, s.EffectiveScore(time.Now()))
}

func TestEffectiveScore_GracePeriod(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := decayScore(800, now.Add(-29*24*time.Hour))
	assert.Equal(t, 800.0, s.EffectiveScore(now))
}

func TestEffectiveScore_HalvesPerPeriod(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 30-day grace plus one 90-day half-life.
	s := decayScore(800, now.Add(-120*24*time.Hour))
	assert.Equal(t, 400.0, s.EffectiveScore(now))

	// Two half-lives.
	s = decayScore(800, now.Add(-210*24*time.Hour))
	assert.Equal(t, 200.0, s.EffectiveScore(now))
}

func TestEffectiveScore_HalfRateDecaysSlower(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := decayScore(800, now.Add(-120*24*time.Hour))
	s.DecayRateBps = 5000
	// At half rate, 90 days past grace completes only half a period.
	assert.Equal(t, 800.0, s.EffectiveScore(now))

	s = decayScore(800, now.Add(-210*24*time.Hour))
	s.DecayRateBps = 5000
	assert.Equal(t, 400.0, s.EffectiveScore(now))
}

func TestEffectiveScore_Floor(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := decayScore(800, now.Add(-10*365*24*time.Hour))
	assert.Equal(t, DecayMinScore, s.EffectiveScore(now))
}

func TestEffectiveScore_RateClamped(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := decayScore(800, now.Add(-120*24*time.Hour))
	s.DecayRateBps = 0 // clamps up to the minimum rate, not instant decay
	assert.Equal(t, 800.0, s.EffectiveScore(now))
}

func TestQualityScores(t *testing.T) {
	assert.True(t, QualityScores{100, 100, 100, 100}.Valid())
	assert.False(t, QualityScores{101, 0, 0, 0}.Valid())
	assert.InDelta(t, 88.75, QualityScores{90, 85, 92, 88}.Average(), 0.001)
}

func TestReceiptParties(t *testing.T) {
	r := &TransactionReceipt{Payer: "alice", Recipient: "bob"}
	assert.Equal(t, "bob", r.Counterparty("alice"))
	assert.Equal(t, "alice", r.Counterparty("bob"))
	assert.Equal(t, "", r.Counterparty("mallory"))
	assert.True(t, r.IsParty("alice"))
	assert.True(t, r.IsParty("bob"))
	assert.False(t, r.IsParty("mallory"))
}
