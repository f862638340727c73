package receipt

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresStore is the shared-database receipt store for multi-node
// deployments. Schema is managed externally (migrations live with the
// deployment, not the library).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, r *contracts.TransactionReceipt) (bool, error) {
	query := `
		INSERT INTO tx_receipts (receipt_id, payer, recipient, signature_hash, amount, content_type, created_at, vote_cast)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		ON CONFLICT (receipt_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		string(r.ID), r.Payer, r.Recipient,
		hex.EncodeToString(r.SignatureHash[:]),
		int64(r.Amount), string(r.ContentType), r.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert receipt: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *PostgresStore) Get(ctx context.Context, id contracts.ReceiptID) (*contracts.TransactionReceipt, error) {
	query := `
		SELECT receipt_id, payer, recipient, signature_hash, amount, content_type, created_at, vote_cast
		FROM tx_receipts
		WHERE receipt_id = $1`

	row := s.db.QueryRowContext(ctx, query, string(id))
	var (
		receiptID   string
		payer       string
		recipient   string
		sigHashHex  string
		amount      int64
		contentType string
		createdAt   time.Time
		voteCast    bool
	)
	err := row.Scan(&receiptID, &payer, &recipient, &sigHashHex, &amount, &contentType, &createdAt, &voteCast)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contracts.ErrReceiptNotFound
		}
		return nil, err
	}

	r := &contracts.TransactionReceipt{
		ID:          contracts.ReceiptID(receiptID),
		Payer:       payer,
		Recipient:   recipient,
		Amount:      uint64(amount),
		ContentType: contracts.ContentType(contentType),
		CreatedAt:   createdAt,
		VoteCast:    voteCast,
	}
	if raw, err := hex.DecodeString(sigHashHex); err == nil && len(raw) == 32 {
		copy(r.SignatureHash[:], raw)
	}
	return r, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id contracts.ReceiptID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tx_receipts WHERE receipt_id = $1`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) MarkVoted(ctx context.Context, id contracts.ReceiptID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tx_receipts SET vote_cast = TRUE WHERE receipt_id = $1 AND vote_cast = FALSE`,
		string(id))
	if err != nil {
		return fmt.Errorf("failed to mark receipt voted: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return contracts.ErrReceiptNotFound
	}
	return contracts.ErrReceiptAlreadyUsed
}

func (s *PostgresStore) StatsFor(ctx context.Context, subject string, since time.Time) (contracts.TxStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM tx_receipts
		WHERE recipient = $1 AND created_at >= $2`

	var count, volume int64
	err := s.db.QueryRowContext(ctx, query, subject, since.UTC()).Scan(&count, &volume)
	if err != nil {
		return contracts.TxStats{}, err
	}
	return contracts.TxStats{Count: count, Volume: uint64(volume)}, nil
}
