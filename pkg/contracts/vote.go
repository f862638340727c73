package contracts

import "time"

// VoteType is the direction of a peer vote.
type VoteType string

const (
	VoteUpvote   VoteType = "upvote"
	VoteDownvote VoteType = "downvote"
	VoteNeutral  VoteType = "neutral"
)

// QualityScores are the four 0-100 sub-scores attached to a vote.
type QualityScores struct {
	ResponseQuality uint8 `json:"response_quality"`
	ResponseSpeed   uint8 `json:"response_speed"`
	Accuracy        uint8 `json:"accuracy"`
	Professionalism uint8 `json:"professionalism"`
}

// Valid reports whether every sub-score is within [0, 100].
func (q QualityScores) Valid() bool {
	return q.ResponseQuality <= 100 &&
		q.ResponseSpeed <= 100 &&
		q.Accuracy <= 100 &&
		q.Professionalism <= 100
}

// Average returns the mean of the four sub-scores.
func (q QualityScores) Average() float64 {
	return (float64(q.ResponseQuality) + float64(q.ResponseSpeed) +
		float64(q.Accuracy) + float64(q.Professionalism)) / 4
}

// PeerVote is a quality rating cast by one transacting party about the
// other, weighted by payment size. At most one exists per receipt.
type PeerVote struct {
	VoteID     string        `json:"vote_id"`
	ReceiptRef ReceiptID     `json:"receipt_ref"`
	Voter      string        `json:"voter"`
	VotedAgent string        `json:"voted_agent"`
	VoteType   VoteType      `json:"vote_type"`
	Quality    QualityScores `json:"quality_scores"`
	// CommentHash is SHA-256 of the free-text comment; the text itself
	// lives off-core.
	CommentHash [32]byte `json:"comment_hash"`
	// VoteWeight is in basis-hundredths: 100 = 1.0x.
	VoteWeight uint16 `json:"vote_weight"`
	// VoterReputationSnapshot records the voter's overall score at cast
	// time, for later audit of weighted vote power.
	VoterReputationSnapshot uint16    `json:"voter_reputation_snapshot"`
	CastAt                  time.Time `json:"cast_at"`
}

// VoteStats summarizes votes received by a subject.
type VoteStats struct {
	Total    int64 `json:"total"`
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
	Neutral  int64 `json:"neutral"`
}
