// Package signals implements the bounded, timestamped fact stores the
// aggregator reads: attestations, staking positions, performance telemetry,
// merchant reviews, and endorsements. Collectors are append-mostly and safe
// for concurrent readers; absence of data is always a neutral default for
// consumers, never an error.
package signals

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// Attestation is a third-party claim about a subject (KYC, capability
// verification, platform checks). Active means unexpired.
type Attestation struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	Kind      string    `json:"kind"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the attestation is unexpired at t.
func (a Attestation) Active(t time.Time) bool {
	return a.ExpiresAt.IsZero() || a.ExpiresAt.After(t)
}

// AttestationStats is the aggregator-facing summary.
type AttestationStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// AttestationStore collects attestations per subject.
type AttestationStore struct {
	mu        sync.RWMutex
	bySubject map[string][]Attestation
}

func NewAttestationStore() *AttestationStore {
	return &AttestationStore{bySubject: make(map[string][]Attestation)}
}

// Add records an attestation and returns its assigned ID.
func (s *AttestationStore) Add(a Attestation) (string, error) {
	if a.Subject == "" || a.Issuer == "" {
		return "", contracts.ErrInvalidAttestation
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.IssuedAt.IsZero() {
		a.IssuedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[a.Subject] = append(s.bySubject[a.Subject], a)
	return a.ID, nil
}

// StatsFor summarizes attestations issued within the window.
func (s *AttestationStore) StatsFor(subject string, window time.Duration) AttestationStats {
	now := time.Now().UTC()
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats AttestationStats
	for _, a := range s.bySubject[subject] {
		if window > 0 && a.IssuedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		if a.Active(now) {
			stats.Active++
		}
	}
	return stats
}
