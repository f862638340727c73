// Package vote implements the peer vote engine: eligibility validation,
// payment-weighted vote casting, and the one-vote-per-receipt guarantee.
package vote

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/receipt"
)

// DefaultVotingWindow bounds how long after a payment either party may vote.
const DefaultVotingWindow = 30 * 24 * time.Hour

// Store persists peer votes. The receipt CAS is the primary duplicate
// guard; the store's unique receipt constraint is the backstop.
type Store interface {
	Insert(ctx context.Context, v *contracts.PeerVote) error
	GetByReceipt(ctx context.Context, id contracts.ReceiptID) (*contracts.PeerVote, error)
	// StatsFor summarizes votes received by an agent since the cutoff.
	StatsFor(ctx context.Context, agent string, since time.Time) (contracts.VoteStats, error)
}

// Scheduler accepts fire-and-forget recalculation triggers.
type Scheduler interface {
	Trigger(ctx context.Context, subject string) error
}

// ReputationReader supplies the voter's current overall score for the
// snapshot recorded on each vote.
type ReputationReader interface {
	OverallScore(ctx context.Context, subject string) (float64, error)
}

// Engine validates and persists peer votes.
type Engine struct {
	receipts  *receipt.Registry
	votes     Store
	scheduler Scheduler
	repReader ReputationReader
	policy    WeightPolicy
	window    time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithWindow overrides the voting window.
func WithWindow(w time.Duration) Option {
	return func(e *Engine) { e.window = w }
}

// WithWeightPolicy overrides the amount-to-weight curve.
func WithWeightPolicy(p WeightPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithReputationReader enables voter reputation snapshots.
func WithReputationReader(r ReputationReader) Option {
	return func(e *Engine) { e.repReader = r }
}

// NewEngine creates a vote engine. scheduler may be nil in read-only setups.
func NewEngine(receipts *receipt.Registry, votes Store, scheduler Scheduler, opts ...Option) *Engine {
	e := &Engine{
		receipts:  receipts,
		votes:     votes,
		scheduler: scheduler,
		policy:    DefaultWeightPolicy(),
		window:    DefaultVotingWindow,
		clock:     time.Now,
		logger:    slog.Default().With("component", "vote_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CastVote validates eligibility, consumes the receipt's vote slot, and
// persists the weighted vote. Validation fails fast with a distinct error
// kind at each step; no state changes before the atomic flip succeeds.
func (e *Engine) CastVote(
	ctx context.Context,
	receiptID contracts.ReceiptID,
	voter, votedAgent string,
	voteType contracts.VoteType,
	quality contracts.QualityScores,
	comment string,
) (*contracts.PeerVote, error) {
	r, err := e.receipts.Get(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if r.VoteCast {
		return nil, contracts.ErrReceiptAlreadyUsed
	}
	if !r.IsParty(voter) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnauthorizedVoter, voter)
	}
	if r.Counterparty(voter) != votedAgent {
		return nil, fmt.Errorf("%w: voted agent %s is not the counterparty", contracts.ErrUnauthorizedVoter, votedAgent)
	}
	now := e.clock().UTC()
	if now.After(r.CreatedAt.Add(e.window)) {
		return nil, fmt.Errorf("%w: receipt created %s", contracts.ErrVotingWindowExpired, r.CreatedAt.Format(time.RFC3339))
	}
	if !quality.Valid() {
		return nil, contracts.ErrInvalidQualityScore
	}

	// The atomic flip decides the race: exactly one concurrent caller
	// passes this point per receipt.
	if err := e.receipts.MarkVoted(ctx, receiptID); err != nil {
		return nil, err
	}

	v := &contracts.PeerVote{
		VoteID:      uuid.New().String(),
		ReceiptRef:  receiptID,
		Voter:       voter,
		VotedAgent:  votedAgent,
		VoteType:    voteType,
		Quality:     quality,
		CommentHash: sha256.Sum256([]byte(comment)),
		VoteWeight:  e.policy.Weight(r.Amount),
		CastAt:      now,
	}
	if e.repReader != nil {
		if score, err := e.repReader.OverallScore(ctx, voter); err == nil {
			v.VoterReputationSnapshot = uint16(score)
		}
	}

	if err := e.votes.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("persist vote: %w", err)
	}

	e.logger.InfoContext(ctx, "vote cast",
		"vote_id", v.VoteID,
		"receipt_id", string(receiptID),
		"voter", voter,
		"voted_agent", votedAgent,
		"vote_type", string(voteType),
		"weight", v.VoteWeight,
	)

	// Fire-and-forget: recalculation is convergent, so a lost trigger is
	// repaired by the periodic sweep and a duplicate is harmless.
	if e.scheduler != nil {
		if err := e.scheduler.Trigger(ctx, votedAgent); err != nil {
			e.logger.WarnContext(ctx, "recalculation trigger failed",
				"subject", votedAgent, "error", err)
		}
	}
	return v, nil
}

// GetByReceipt returns the vote consuming a receipt, if any.
func (e *Engine) GetByReceipt(ctx context.Context, id contracts.ReceiptID) (*contracts.PeerVote, error) {
	return e.votes.GetByReceipt(ctx, id)
}
