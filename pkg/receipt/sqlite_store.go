package receipt

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// sqliteTimeFormat is RFC 3339 with fixed-width nanoseconds. Stored
// timestamps are compared lexicographically in SQL, so every value must
// render at the same width; RFC3339Nano trims trailing zeros and breaks
// the ordering at sub-second boundaries.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the embedded-database receipt store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and runs its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS tx_receipts (
		receipt_id TEXT PRIMARY KEY,
		payer TEXT NOT NULL,
		recipient TEXT NOT NULL,
		signature_hash TEXT NOT NULL,
		amount INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		vote_cast INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tx_receipts_recipient ON tx_receipts (recipient, created_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Insert is the atomic insert-if-absent primitive: the conflict clause on
// the primary key closes the duplicate-submission race inside the database.
func (s *SQLiteStore) Insert(ctx context.Context, r *contracts.TransactionReceipt) (bool, error) {
	query := `
		INSERT INTO tx_receipts (receipt_id, payer, recipient, signature_hash, amount, content_type, created_at, vote_cast)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (receipt_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		string(r.ID), r.Payer, r.Recipient,
		hex.EncodeToString(r.SignatureHash[:]),
		int64(r.Amount), string(r.ContentType),
		r.CreatedAt.UTC().Format(sqliteTimeFormat),
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

func (s *SQLiteStore) Get(ctx context.Context, id contracts.ReceiptID) (*contracts.TransactionReceipt, error) {
	query := `
		SELECT receipt_id, payer, recipient, signature_hash, amount, content_type, created_at, vote_cast
		FROM tx_receipts
		WHERE receipt_id = ?`

	row := s.db.QueryRowContext(ctx, query, string(id))
	var (
		receiptID   string
		payer       string
		recipient   string
		sigHashHex  string
		amount      int64
		contentType string
		createdAt   string
		voteCast    int
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
		CreatedAt:   parseTime(createdAt),
		VoteCast:    voteCast != 0,
	}
	if raw, err := hex.DecodeString(sigHashHex); err == nil && len(raw) == 32 {
		copy(r.SignatureHash[:], raw)
	}
	return r, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, id contracts.ReceiptID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tx_receipts WHERE receipt_id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkVoted is the atomic compare-and-set: the WHERE clause guarantees at
// most one caller ever observes a flipped row.
func (s *SQLiteStore) MarkVoted(ctx context.Context, id contracts.ReceiptID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tx_receipts SET vote_cast = 1 WHERE receipt_id = ? AND vote_cast = 0`,
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

func (s *SQLiteStore) StatsFor(ctx context.Context, subject string, since time.Time) (contracts.TxStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM tx_receipts
		WHERE recipient = ? AND created_at >= ?`

	var count, volume int64
	err := s.db.QueryRowContext(ctx, query, subject, since.UTC().Format(sqliteTimeFormat)).Scan(&count, &volume)
	if err != nil {
		return contracts.TxStats{}, err
	}
	return contracts.TxStats{Count: count, Volume: uint64(volume)}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
