package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// ScoreStore persists materialized reputation scores plus a compact score
// history used for the 7d/30d change windows.
type ScoreStore interface {
	// Upsert stores the score, replacing any previous row for the subject.
	Upsert(ctx context.Context, score *contracts.ReputationScore) error
	// Get returns the stored score or contracts.ErrScoreNotFound.
	Get(ctx context.Context, subject string) (*contracts.ReputationScore, error)
	// Top returns up to limit scores ordered by overall descending, then
	// subject ascending.
	Top(ctx context.Context, limit int) ([]*contracts.ReputationScore, error)
	// Subjects lists every scored subject, for sweep scheduling.
	Subjects(ctx context.Context) ([]string, error)
	// SetDecay flips the per-subject inactivity decay policy.
	SetDecay(ctx context.Context, subject string, enabled bool, rateBps uint16) error
	// AppendHistory records one (overall, at) point for the subject.
	AppendHistory(ctx context.Context, subject string, overall float64, at time.Time) error
	// HistoryBefore returns the newest history point at or before cutoff.
	HistoryBefore(ctx context.Context, subject string, cutoff time.Time) (float64, bool, error)
}

// sqliteTimeFormat keeps stored timestamps at a fixed width so the
// lexicographic comparison in HistoryBefore orders sub-second values
// correctly.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteScoreSchema = `
CREATE TABLE IF NOT EXISTS reputation_scores (
	subject             TEXT PRIMARY KEY,
	trust               REAL NOT NULL,
	quality             REAL NOT NULL,
	reliability         REAL NOT NULL,
	economic            REAL NOT NULL,
	social              REAL NOT NULL,
	staking             REAL NOT NULL,
	overall             REAL NOT NULL,
	trend               TEXT NOT NULL,
	score_change_7d     REAL NOT NULL,
	score_change_30d    REAL NOT NULL,
	total_votes         INTEGER NOT NULL,
	positive_votes      INTEGER NOT NULL,
	negative_votes      INTEGER NOT NULL,
	attestations        INTEGER NOT NULL,
	endorsements        INTEGER NOT NULL,
	tx_count            INTEGER NOT NULL,
	tx_volume           INTEGER NOT NULL,
	unique_stakers      INTEGER NOT NULL,
	total_staked        INTEGER NOT NULL,
	last_calculated_at  TEXT NOT NULL,
	next_calculation_at TEXT NOT NULL,
	base_score          REAL NOT NULL,
	last_activity       TEXT NOT NULL,
	decay_enabled       INTEGER NOT NULL DEFAULT 0,
	decay_rate_bps      INTEGER NOT NULL DEFAULT 10000
);
CREATE INDEX IF NOT EXISTS idx_reputation_scores_overall ON reputation_scores (overall DESC);

CREATE TABLE IF NOT EXISTS score_history (
	subject       TEXT NOT NULL,
	overall       REAL NOT NULL,
	calculated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_history_subject_at ON score_history (subject, calculated_at);
`

// SQLiteScoreStore is the embedded-database score store.
type SQLiteScoreStore struct {
	db *sql.DB
}

// NewSQLiteScoreStore prepares the schema and returns the store.
func NewSQLiteScoreStore(db *sql.DB) (*SQLiteScoreStore, error) {
	if _, err := db.Exec(sqliteScoreSchema); err != nil {
		return nil, fmt.Errorf("create reputation schema: %w", err)
	}
	return &SQLiteScoreStore{db: db}, nil
}

func (s *SQLiteScoreStore) Upsert(ctx context.Context, score *contracts.ReputationScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation_scores (
			subject, trust, quality, reliability, economic, social, staking,
			overall, trend, score_change_7d, score_change_30d,
			total_votes, positive_votes, negative_votes, attestations, endorsements,
			tx_count, tx_volume, unique_stakers, total_staked,
			last_calculated_at, next_calculation_at,
			base_score, last_activity, decay_enabled, decay_rate_bps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject) DO UPDATE SET
			trust = excluded.trust,
			quality = excluded.quality,
			reliability = excluded.reliability,
			economic = excluded.economic,
			social = excluded.social,
			staking = excluded.staking,
			overall = excluded.overall,
			trend = excluded.trend,
			score_change_7d = excluded.score_change_7d,
			score_change_30d = excluded.score_change_30d,
			total_votes = excluded.total_votes,
			positive_votes = excluded.positive_votes,
			negative_votes = excluded.negative_votes,
			attestations = excluded.attestations,
			endorsements = excluded.endorsements,
			tx_count = excluded.tx_count,
			tx_volume = excluded.tx_volume,
			unique_stakers = excluded.unique_stakers,
			total_staked = excluded.total_staked,
			last_calculated_at = excluded.last_calculated_at,
			next_calculation_at = excluded.next_calculation_at,
			base_score = excluded.base_score,
			last_activity = excluded.last_activity,
			decay_enabled = excluded.decay_enabled,
			decay_rate_bps = excluded.decay_rate_bps`,
		score.Subject,
		score.Components.Trust, score.Components.Quality, score.Components.Reliability,
		score.Components.Economic, score.Components.Social, score.Components.Staking,
		score.Overall, string(score.Trend), score.ScoreChange7d, score.ScoreChange30d,
		score.Stats.TotalVotes, score.Stats.PositiveVotes, score.Stats.NegativeVotes,
		score.Stats.Attestations, score.Stats.Endorsements,
		score.Stats.TxCount, int64(score.Stats.TxVolume),
		score.Stats.UniqueStakers, int64(score.Stats.TotalStaked),
		score.LastCalculatedAt.UTC().Format(sqliteTimeFormat),
		score.NextCalculationAt.UTC().Format(sqliteTimeFormat),
		score.BaseScore,
		score.LastActivity.UTC().Format(sqliteTimeFormat),
		boolToInt(score.DecayEnabled), score.DecayRateBps,
	)
	if err != nil {
		return fmt.Errorf("upsert reputation score: %w", err)
	}
	return nil
}

func (s *SQLiteScoreStore) Get(ctx context.Context, subject string) (*contracts.ReputationScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject, trust, quality, reliability, economic, social, staking,
			overall, trend, score_change_7d, score_change_30d,
			total_votes, positive_votes, negative_votes, attestations, endorsements,
			tx_count, tx_volume, unique_stakers, total_staked,
			last_calculated_at, next_calculation_at,
			base_score, last_activity, decay_enabled, decay_rate_bps
		FROM reputation_scores WHERE subject = ?`, subject)
	return scanScore(row)
}

func (s *SQLiteScoreStore) Top(ctx context.Context, limit int) ([]*contracts.ReputationScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, trust, quality, reliability, economic, social, staking,
			overall, trend, score_change_7d, score_change_30d,
			total_votes, positive_votes, negative_votes, attestations, endorsements,
			tx_count, tx_volume, unique_stakers, total_staked,
			last_calculated_at, next_calculation_at,
			base_score, last_activity, decay_enabled, decay_rate_bps
		FROM reputation_scores
		ORDER BY overall DESC, subject ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top scores: %w", err)
	}
	defer rows.Close()

	var out []*contracts.ReputationScore
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, score)
	}
	return out, rows.Err()
}

func (s *SQLiteScoreStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject FROM reputation_scores ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, err
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

func (s *SQLiteScoreStore) SetDecay(ctx context.Context, subject string, enabled bool, rateBps uint16) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reputation_scores SET decay_enabled = ?, decay_rate_bps = ?
		WHERE subject = ?`, boolToInt(enabled), rateBps, subject)
	if err != nil {
		return fmt.Errorf("set decay policy: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return contracts.ErrScoreNotFound
	}
	return nil
}

func (s *SQLiteScoreStore) AppendHistory(ctx context.Context, subject string, overall float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_history (subject, overall, calculated_at) VALUES (?, ?, ?)`,
		subject, overall, at.UTC().Format(sqliteTimeFormat))
	if err != nil {
		return fmt.Errorf("append score history: %w", err)
	}
	return nil
}

func (s *SQLiteScoreStore) HistoryBefore(ctx context.Context, subject string, cutoff time.Time) (float64, bool, error) {
	var overall float64
	err := s.db.QueryRowContext(ctx, `
		SELECT overall FROM score_history
		WHERE subject = ? AND calculated_at <= ?
		ORDER BY calculated_at DESC LIMIT 1`,
		subject, cutoff.UTC().Format(sqliteTimeFormat)).Scan(&overall)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query score history: %w", err)
	}
	return overall, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*contracts.ReputationScore, error) {
	var (
		score                                          contracts.ReputationScore
		trend                                          string
		txVolume, totalStaked                          int64
		lastCalc, nextCalc, lastActivity               string
		decayEnabled                                   int
	)
	err := row.Scan(
		&score.Subject,
		&score.Components.Trust, &score.Components.Quality, &score.Components.Reliability,
		&score.Components.Economic, &score.Components.Social, &score.Components.Staking,
		&score.Overall, &trend, &score.ScoreChange7d, &score.ScoreChange30d,
		&score.Stats.TotalVotes, &score.Stats.PositiveVotes, &score.Stats.NegativeVotes,
		&score.Stats.Attestations, &score.Stats.Endorsements,
		&score.Stats.TxCount, &txVolume, &score.Stats.UniqueStakers, &totalStaked,
		&lastCalc, &nextCalc,
		&score.BaseScore, &lastActivity, &decayEnabled, &score.DecayRateBps,
	)
	if err == sql.ErrNoRows {
		return nil, contracts.ErrScoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reputation score: %w", err)
	}
	score.Trend = contracts.Trend(trend)
	score.Stats.TxVolume = uint64(txVolume)
	score.Stats.TotalStaked = uint64(totalStaked)
	score.DecayEnabled = decayEnabled != 0
	if score.LastCalculatedAt, err = parseTime(lastCalc); err != nil {
		return nil, err
	}
	if score.NextCalculationAt, err = parseTime(nextCalc); err != nil {
		return nil, err
	}
	if score.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	return &score, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", v, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
