package signals

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// StakeCategory tags what aspect of a subject a stake endorses.
type StakeCategory string

const (
	StakeGeneral     StakeCategory = "general"
	StakeQuality     StakeCategory = "quality"
	StakeReliability StakeCategory = "reliability"
	StakeCapability  StakeCategory = "capability"
	StakeSecurity    StakeCategory = "security"
)

// StakePosition is an economic commitment backing a subject.
type StakePosition struct {
	ID          string        `json:"id"`
	Staker      string        `json:"staker"`
	Subject     string        `json:"subject"`
	Amount      uint64        `json:"amount"`
	Category    StakeCategory `json:"category"`
	StakedAt    time.Time     `json:"staked_at"`
	LockedUntil time.Time     `json:"locked_until"`
	Active      bool          `json:"active"`
	Slashed     bool          `json:"slashed"`
}

// StakingStats is the aggregator-facing summary.
type StakingStats struct {
	TotalStaked   uint64 `json:"total_staked"`
	UniqueStakers int64  `json:"unique_stakers"`
	// TrustBonus is the 0-100 staking signal the Trust and Staking
	// components consume. It grows with locked value and staker
	// diversity and saturates at 100.
	TrustBonus float64 `json:"trust_bonus"`
}

// StakingStore collects stake positions per subject.
type StakingStore struct {
	mu        sync.RWMutex
	bySubject map[string][]StakePosition
}

func NewStakingStore() *StakingStore {
	return &StakingStore{bySubject: make(map[string][]StakePosition)}
}

// AddPosition records a stake and returns its assigned ID.
func (s *StakingStore) AddPosition(p StakePosition) (string, error) {
	if p.Amount == 0 {
		return "", contracts.ErrInvalidStakePosition
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.StakedAt.IsZero() {
		p.StakedAt = time.Now().UTC()
	}
	if p.Category == "" {
		p.Category = StakeGeneral
	}
	p.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[p.Subject] = append(s.bySubject[p.Subject], p)
	return p.ID, nil
}

// Unstake deactivates a position once its lock expired.
func (s *StakingStore) Unstake(subject, id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := s.bySubject[subject]
	for i := range positions {
		if positions[i].ID == id && positions[i].Active && !now.Before(positions[i].LockedUntil) {
			positions[i].Active = false
			return true
		}
	}
	return false
}

// Slash marks a position slashed; slashed stakes stop counting entirely.
func (s *StakingStore) Slash(subject, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := s.bySubject[subject]
	for i := range positions {
		if positions[i].ID == id {
			positions[i].Slashed = true
			positions[i].Active = false
			return true
		}
	}
	return false
}

// StatsFor summarizes active, unslashed stakes for a subject. The window is
// ignored for position liveness (a locked stake from last year still
// counts) but kept for interface symmetry with the other collectors.
func (s *StakingStore) StatsFor(subject string, _ time.Duration) StakingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StakingStats
	stakers := make(map[string]struct{})
	for _, p := range s.bySubject[subject] {
		if !p.Active || p.Slashed {
			continue
		}
		stats.TotalStaked += p.Amount
		stakers[p.Staker] = struct{}{}
	}
	stats.UniqueStakers = int64(len(stakers))
	stats.TrustBonus = trustBonus(stats.TotalStaked, stats.UniqueStakers)
	return stats
}

// trustBonus is policy: logarithmic in staked value, linear in staker
// diversity, capped at 100.
func trustBonus(totalStaked uint64, uniqueStakers int64) float64 {
	if totalStaked == 0 {
		return 0
	}
	bonus := math.Log2(float64(totalStaked)+1)*4 + float64(uniqueStakers)*3
	return math.Min(100, bonus)
}
