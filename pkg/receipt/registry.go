// Package receipt implements the receipt registry: deterministic identity
// derivation plus at-most-one-receipt-per-payment storage with a one-shot
// vote-consumed flag.
package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// idTag domain-separates receipt identities. It mirrors the on-ledger seed
// prefix so identities stay interoperable with receipts derived elsewhere.
// Changing it orphans every existing receipt.
const idTag = "tx_receipt:v1"

// DeriveReceiptID computes the deterministic identity for a payment. Same
// (payer, recipient, signatureHash) triple, same identity — which is what
// makes receipt creation idempotent without a prior existence check.
func DeriveReceiptID(payer, recipient string, signatureHash [32]byte) contracts.ReceiptID {
	h := sha256.New()
	h.Write([]byte(idTag))
	h.Write([]byte(payer))
	h.Write([]byte{0})
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write(signatureHash[:])
	return contracts.ReceiptID(hex.EncodeToString(h.Sum(nil)))
}

// Store is the durable backing for receipts. Insert must be atomic
// insert-if-absent and MarkVoted an atomic compare-and-set; the registry
// never does check-then-act around them.
type Store interface {
	// Insert persists the receipt unless one already exists at its ID.
	// It reports whether a new row was created.
	Insert(ctx context.Context, r *contracts.TransactionReceipt) (created bool, err error)
	Get(ctx context.Context, id contracts.ReceiptID) (*contracts.TransactionReceipt, error)
	Exists(ctx context.Context, id contracts.ReceiptID) (bool, error)
	// MarkVoted flips vote_cast exactly once. Losers of a race get
	// contracts.ErrReceiptAlreadyUsed.
	MarkVoted(ctx context.Context, id contracts.ReceiptID) error
	// StatsFor summarizes payments received by a subject since the cutoff.
	StatsFor(ctx context.Context, subject string, since time.Time) (contracts.TxStats, error)
}

// Registry enforces receipt invariants on top of a Store.
type Registry struct {
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// Option tweaks registry construction.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *Registry) { g.clock = clock }
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store, opts ...Option) *Registry {
	g := &Registry{
		store:  store,
		clock:  time.Now,
		logger: slog.Default().With("component", "receipt_registry"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateReceipt mints the receipt for a decoded payment fact. Duplicate
// delivery of the same payment is harmless: the call returns the existing
// identity without modification.
func (g *Registry) CreateReceipt(ctx context.Context, fact *contracts.TransactionFact, contentType contracts.ContentType, creator string) (contracts.ReceiptID, error) {
	if creator != fact.Payer && creator != fact.Recipient {
		return "", fmt.Errorf("%w: %s", contracts.ErrUnauthorizedCreator, creator)
	}
	if fact.Payer == fact.Recipient {
		return "", fmt.Errorf("%w: %s", contracts.ErrSelfTransaction, fact.Payer)
	}

	id := DeriveReceiptID(fact.Payer, fact.Recipient, fact.SignatureHash)
	r := &contracts.TransactionReceipt{
		ID:            id,
		Payer:         fact.Payer,
		Recipient:     fact.Recipient,
		SignatureHash: fact.SignatureHash,
		Amount:        fact.Amount,
		ContentType:   contentType,
		CreatedAt:     g.clock().UTC(),
		VoteCast:      false,
	}

	created, err := g.store.Insert(ctx, r)
	if err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	if created {
		g.logger.InfoContext(ctx, "receipt created",
			"receipt_id", string(id),
			"payer", fact.Payer,
			"recipient", fact.Recipient,
			"amount", fact.Amount,
		)
	} else {
		g.logger.DebugContext(ctx, "duplicate receipt submission", "receipt_id", string(id))
	}
	return id, nil
}

// MarkVoted consumes the receipt's single vote slot.
func (g *Registry) MarkVoted(ctx context.Context, id contracts.ReceiptID) error {
	return g.store.MarkVoted(ctx, id)
}

// Get returns the receipt or contracts.ErrReceiptNotFound.
func (g *Registry) Get(ctx context.Context, id contracts.ReceiptID) (*contracts.TransactionReceipt, error) {
	return g.store.Get(ctx, id)
}

// Exists reports whether a receipt is materialized at id.
func (g *Registry) Exists(ctx context.Context, id contracts.ReceiptID) (bool, error) {
	return g.store.Exists(ctx, id)
}

// StatsFor exposes received-payment stats for the aggregator.
func (g *Registry) StatsFor(ctx context.Context, subject string, since time.Time) (contracts.TxStats, error) {
	return g.store.StatsFor(ctx, subject, since)
}
