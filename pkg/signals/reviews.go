package signals

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Review is a merchant review of a subject. Rating is 0-50 (stars times
// ten, keeping one decimal of precision in an integer).
type Review struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Reviewer string    `json:"reviewer"`
	Rating   uint8     `json:"rating"`
	At       time.Time `json:"at"`
}

// ReviewStats is the aggregator-facing summary.
type ReviewStats struct {
	Total     int64   `json:"total"`
	AvgRating float64 `json:"avg_rating"`
}

// ReviewStore collects merchant reviews per subject.
type ReviewStore struct {
	mu        sync.RWMutex
	bySubject map[string][]Review
}

func NewReviewStore() *ReviewStore {
	return &ReviewStore{bySubject: make(map[string][]Review)}
}

// Add records a review; ratings above 50 are clamped.
func (s *ReviewStore) Add(r Review) string {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if r.Rating > 50 {
		r.Rating = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[r.Subject] = append(s.bySubject[r.Subject], r)
	return r.ID
}

// StatsFor summarizes reviews within the window.
func (s *ReviewStore) StatsFor(subject string, window time.Duration) ReviewStats {
	cutoff := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats ReviewStats
	var sum int64
	for _, r := range s.bySubject[subject] {
		if window > 0 && r.At.Before(cutoff) {
			continue
		}
		stats.Total++
		sum += int64(r.Rating)
	}
	if stats.Total > 0 {
		stats.AvgRating = float64(sum) / float64(stats.Total)
	}
	return stats
}
