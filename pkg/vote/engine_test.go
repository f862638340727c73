package vote

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/receipt"
)

type capturedTrigger struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (c *capturedTrigger) Trigger(_ context.Context, subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("queue unavailable")
	}
	c.subjects = append(c.subjects, subject)
	return nil
}

type fixedRep struct{ score float64 }

func (f fixedRep) OverallScore(context.Context, string) (float64, error) {
	return f.score, nil
}

type fixture struct {
	registry  *receipt.Registry
	votes     *SQLiteStore
	scheduler *capturedTrigger
	clock     *time.Time
}

func newFixture(t *testing.T, opts ...Option) (*Engine, *fixture) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	receiptStore, err := receipt.NewSQLiteStore(db)
	require.NoError(t, err)
	voteStore, err := NewSQLiteStore(db)
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		votes:     voteStore,
		scheduler: &capturedTrigger{},
		clock:     &now,
	}
	f.registry = receipt.NewRegistry(receiptStore, receipt.WithClock(func() time.Time { return *f.clock }))
	opts = append([]Option{WithClock(func() time.Time { return *f.clock })}, opts...)
	return NewEngine(f.registry, voteStore, f.scheduler, opts...), f
}

func (f *fixture) mintReceipt(t *testing.T, payer, recipient string, amount uint64) contracts.ReceiptID {
	t.Helper()
	id, err := f.registry.CreateReceipt(context.Background(), &contracts.TransactionFact{
		Signature:     "sig-" + payer + "-" + recipient,
		SignatureHash: sha256.Sum256([]byte(payer + recipient)),
		Payer:         payer,
		Recipient:     recipient,
		Amount:        amount,
	}, contracts.ContentChat, payer)
	require.NoError(t, err)
	return id
}

func goodQuality() contracts.QualityScores {
	return contracts.QualityScores{ResponseQuality: 90, ResponseSpeed: 85, Accuracy: 92, Professionalism: 88}
}

func TestCastVote_HappyPath(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	v, err := engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "solid work")
	require.NoError(t, err)

	assert.NotEmpty(t, v.VoteID)
	assert.Equal(t, id, v.ReceiptRef)
	assert.Equal(t, "alice", v.Voter)
	assert.Equal(t, "bob", v.VotedAgent)
	// 100k units is exactly the qualifying amount: base weight.
	assert.Equal(t, uint16(100), v.VoteWeight)
	assert.Equal(t, sha256.Sum256([]byte("solid work")), v.CommentHash)

	// Receipt consumed, vote persisted, recalculation triggered.
	r, err := f.registry.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, r.VoteCast)
	stored, err := engine.GetByReceipt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, v.VoteID, stored.VoteID)
	assert.Equal(t, []string{"bob"}, f.scheduler.subjects)
}

func TestCastVote_RecipientRatesPayer(t *testing.T) {
	engine, f := newFixture(t)
	id := f.mintReceipt(t, "alice", "bob", 50_000)

	v, err := engine.CastVote(context.Background(), id, "bob", "alice", contracts.VoteDownvote, goodQuality(), "")
	require.NoError(t, err)
	assert.Equal(t, "alice", v.VotedAgent)
}

func TestCastVote_SecondVoteRejected(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	_, err := engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	require.NoError(t, err)

	// Neither party can vote again on the same receipt.
	_, err = engine.CastVote(ctx, id, "bob", "alice", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrReceiptAlreadyUsed))
	_, err = engine.CastVote(ctx, id, "alice", "bob", contracts.VoteDownvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrReceiptAlreadyUsed))
}

func TestCastVote_ConcurrentSingleWinner(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, errors.Is(err, contracts.ErrReceiptAlreadyUsed))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestCastVote_UnauthorizedVoter(t *testing.T) {
	engine, f := newFixture(t)
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	_, err := engine.CastVote(context.Background(), id, "mallory", "bob", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrUnauthorizedVoter))
}

func TestCastVote_CounterpartyMismatch(t *testing.T) {
	engine, f := newFixture(t)
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	// alice may vote, but only about bob.
	_, err := engine.CastVote(context.Background(), id, "alice", "carol", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrUnauthorizedVoter))
}

func TestCastVote_WindowBoundary(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()

	// Just inside the window: allowed.
	id := f.mintReceipt(t, "alice", "bob", 100_000)
	*f.clock = f.clock.Add(30*24*time.Hour - time.Second)
	_, err := engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	assert.NoError(t, err)

	// Just past it: expired, and the receipt stays unconsumed.
	id2 := f.mintReceipt(t, "alice", "carol", 100_000)
	*f.clock = f.clock.Add(30*24*time.Hour + time.Second)
	_, err = engine.CastVote(ctx, id2, "alice", "carol", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrVotingWindowExpired))
	r, err := f.registry.Get(ctx, id2)
	require.NoError(t, err)
	assert.False(t, r.VoteCast)
}

func TestCastVote_ExpiredLeavesReceiptVotable(t *testing.T) {
	engine, f := newFixture(t, WithWindow(time.Hour))
	ctx := context.Background()
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	*f.clock = f.clock.Add(2 * time.Hour)
	_, err := engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrVotingWindowExpired))

	// A failed attempt must not have consumed the one vote slot.
	*f.clock = f.clock.Add(-90 * time.Minute)
	_, err = engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	assert.NoError(t, err)
}

func TestCastVote_InvalidQuality(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	bad := goodQuality()
	bad.Accuracy = 101
	_, err := engine.CastVote(ctx, id, "alice", "bob", contracts.VoteUpvote, bad, "")
	assert.True(t, errors.Is(err, contracts.ErrInvalidQualityScore))

	// Validation failures never consume the receipt.
	r, err := f.registry.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, r.VoteCast)
}

func TestGetByReceipt_NoVote(t *testing.T) {
	engine, f := newFixture(t)
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	_, err := engine.GetByReceipt(context.Background(), id)
	assert.True(t, errors.Is(err, contracts.ErrVoteNotFound))
	assert.False(t, errors.Is(err, contracts.ErrReceiptNotFound), "the receipt exists; only the vote is missing")
}

func TestCastVote_ReceiptNotFound(t *testing.T) {
	engine, _ := newFixture(t)
	_, err := engine.CastVote(context.Background(), "missing", "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	assert.True(t, errors.Is(err, contracts.ErrReceiptNotFound))
}

func TestCastVote_WeightGrowsWithPayment(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()

	small := f.mintReceipt(t, "alice", "bob", 100_000)
	large := f.mintReceipt(t, "carol", "bob", 800_000)

	vSmall, err := engine.CastVote(ctx, small, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	require.NoError(t, err)
	vLarge, err := engine.CastVote(ctx, large, "carol", "bob", contracts.VoteUpvote, goodQuality(), "")
	require.NoError(t, err)

	assert.Equal(t, uint16(100), vSmall.VoteWeight)
	// Three doublings above the qualifying amount: 100 + 3*50.
	assert.Equal(t, uint16(250), vLarge.VoteWeight)
}

func TestCastVote_SchedulerFailureDoesNotFailVote(t *testing.T) {
	engine, f := newFixture(t)
	f.scheduler.fail = true
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	v, err := engine.CastVote(context.Background(), id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, v.VoteID)
}

func TestCastVote_ReputationSnapshot(t *testing.T) {
	engine, f := newFixture(t, WithReputationReader(fixedRep{score: 712.4}))
	id := f.mintReceipt(t, "alice", "bob", 100_000)

	v, err := engine.CastVote(context.Background(), id, "alice", "bob", contracts.VoteUpvote, goodQuality(), "")
	require.NoError(t, err)
	assert.Equal(t, uint16(712), v.VoterReputationSnapshot)
}

func TestVoteStats_ByTypeAndWindow(t *testing.T) {
	engine, f := newFixture(t)
	ctx := context.Background()

	for i, vt := range []contracts.VoteType{contracts.VoteUpvote, contracts.VoteUpvote, contracts.VoteDownvote, contracts.VoteNeutral} {
		payer := string(rune('a' + i))
		id := f.mintReceipt(t, payer, "bob", 100_000)
		_, err := engine.CastVote(ctx, id, payer, "bob", vt, goodQuality(), "")
		require.NoError(t, err)
	}

	stats, err := f.votes.StatsFor(ctx, "bob", f.clock.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Positive)
	assert.Equal(t, int64(1), stats.Negative)
	assert.Equal(t, int64(1), stats.Neutral)
}
