package signals

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// maxEndorsementsPerSubject bounds endorsement farming.
const maxEndorsementsPerSubject = 10

// Endorsement is an agent-to-agent vouch with a 0-100 strength.
type Endorsement struct {
	ID       string    `json:"id"`
	Endorser string    `json:"endorser"`
	Subject  string    `json:"subject"`
	Strength uint8     `json:"strength"`
	At       time.Time `json:"at"`
}

// EndorsementStats is the aggregator-facing summary.
type EndorsementStats struct {
	Total       int64   `json:"total"`
	AvgStrength float64 `json:"avg_strength"`
}

// EndorsementStore collects endorsements per subject.
type EndorsementStore struct {
	mu        sync.RWMutex
	bySubject map[string][]Endorsement
}

func NewEndorsementStore() *EndorsementStore {
	return &EndorsementStore{bySubject: make(map[string][]Endorsement)}
}

// Add records an endorsement. Self-endorsement is rejected and each subject
// holds at most maxEndorsementsPerSubject.
func (s *EndorsementStore) Add(e Endorsement) (string, error) {
	if e.Endorser == e.Subject {
		return "", contracts.ErrSelfEndorsement
	}
	if e.Strength > 100 {
		e.Strength = 100
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bySubject[e.Subject]) >= maxEndorsementsPerSubject {
		return "", contracts.ErrEndorsementLimit
	}
	s.bySubject[e.Subject] = append(s.bySubject[e.Subject], e)
	return e.ID, nil
}

// StatsFor summarizes endorsements within the window.
func (s *EndorsementStore) StatsFor(subject string, window time.Duration) EndorsementStats {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats EndorsementStats
	var sum int64
	for _, e := range s.bySubject[subject] {
		if window > 0 && e.At.Before(cutoff) {
			continue
		}
		stats.Total++
		sum += int64(e.Strength)
	}
	if stats.Total > 0 {
		stats.AvgStrength = float64(sum) / float64(stats.Total)
	}
	return stats
}
