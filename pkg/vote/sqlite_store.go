package vote

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

// sqliteTimeFormat keeps stored timestamps at a fixed width so the SQL
// string comparisons in StatsFor order correctly across sub-second values.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists peer votes. The unique index on receipt_id backs up
// the receipt CAS: even if both guards were somehow bypassed, the database
// refuses a second vote per receipt.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS peer_votes (
		vote_id TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL UNIQUE,
		voter TEXT NOT NULL,
		voted_agent TEXT NOT NULL,
		vote_type TEXT NOT NULL,
		response_quality INTEGER NOT NULL,
		response_speed INTEGER NOT NULL,
		accuracy INTEGER NOT NULL,
		professionalism INTEGER NOT NULL,
		comment_hash TEXT NOT NULL,
		vote_weight INTEGER NOT NULL,
		voter_rep_snapshot INTEGER NOT NULL DEFAULT 0,
		cast_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_peer_votes_agent ON peer_votes (voted_agent, cast_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Insert(ctx context.Context, v *contracts.PeerVote) error {
	query := `
		INSERT INTO peer_votes (
			vote_id, receipt_id, voter, voted_agent, vote_type,
			response_quality, response_speed, accuracy, professionalism,
			comment_hash, vote_weight, voter_rep_snapshot, cast_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		v.VoteID, string(v.ReceiptRef), v.Voter, v.VotedAgent, string(v.VoteType),
		v.Quality.ResponseQuality, v.Quality.ResponseSpeed, v.Quality.Accuracy, v.Quality.Professionalism,
		hex.EncodeToString(v.CommentHash[:]), v.VoteWeight, v.VoterReputationSnapshot,
		v.CastAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByReceipt(ctx context.Context, id contracts.ReceiptID) (*contracts.PeerVote, error) {
	query := `
		SELECT vote_id, receipt_id, voter, voted_agent, vote_type,
			response_quality, response_speed, accuracy, professionalism,
			comment_hash, vote_weight, voter_rep_snapshot, cast_at
		FROM peer_votes
		WHERE receipt_id = ?`

	row := s.db.QueryRowContext(ctx, query, string(id))
	var (
		v          contracts.PeerVote
		receiptRef string
		voteType   string
		commentHex string
		castAt     string
	)
	err := row.Scan(&v.VoteID, &receiptRef, &v.Voter, &v.VotedAgent, &voteType,
		&v.Quality.ResponseQuality, &v.Quality.ResponseSpeed, &v.Quality.Accuracy, &v.Quality.Professionalism,
		&commentHex, &v.VoteWeight, &v.VoterReputationSnapshot, &castAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contracts.ErrVoteNotFound
		}
		return nil, err
	}

	v.ReceiptRef = contracts.ReceiptID(receiptRef)
	v.VoteType = contracts.VoteType(voteType)
	if raw, err := hex.DecodeString(commentHex); err == nil && len(raw) == 32 {
		copy(v.CommentHash[:], raw)
	}
	if t, err := time.Parse(time.RFC3339Nano, castAt); err == nil {
		v.CastAt = t
	}
	return &v, nil
}

func (s *SQLiteStore) StatsFor(ctx context.Context, agent string, since time.Time) (contracts.VoteStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN vote_type = 'upvote' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote_type = 'downvote' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN vote_type = 'neutral' THEN 1 ELSE 0 END), 0)
		FROM peer_votes
		WHERE voted_agent = ? AND cast_at >= ?`

	var stats contracts.VoteStats
	err := s.db.QueryRowContext(ctx, query, agent, since.UTC().Format(sqliteTimeFormat)).
		Scan(&stats.Total, &stats.Positive, &stats.Negative, &stats.Neutral)
	if err != nil {
		return contracts.VoteStats{}, err
	}
	return stats, nil
}
