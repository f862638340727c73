// Package contracts holds the shared domain types of the reputation core.
// It is dependency-free so every other package can import it without cycles.
package contracts

import "time"

// ContentType categorizes what a paid call delivered.
type ContentType string

const (
	ContentChat    ContentType = "chat"
	ContentAudio   ContentType = "audio"
	ContentVideo   ContentType = "video"
	ContentImage   ContentType = "image"
	ContentData    ContentType = "data"
	ContentCompute ContentType = "compute"
	ContentOther   ContentType = "other"
)

// ReceiptID is the deterministic identity of a transaction receipt,
// derived from (payer, recipient, signatureHash). Hex-encoded SHA-256.
type ReceiptID string

// TransactionFact is what the decoder extracts from a raw signed
// transaction. It is ephemeral: only receipts derived from it persist.
type TransactionFact struct {
	// Signature is the ledger transaction identifier, base58-encoded.
	Signature string `json:"signature"`
	// SignatureHash is SHA-256 of the raw signature bytes. Downstream
	// identity derivation uses this fixed-width digest, never the
	// variable-length signature itself.
	SignatureHash [32]byte `json:"signature_hash"`
	Payer         string   `json:"payer"`
	Recipient     string   `json:"recipient"`
	// Amount in the smallest currency unit.
	Amount     uint64    `json:"amount"`
	ObservedAt time.Time `json:"observed_at"`
}

// TransactionReceipt is the immutable proof that a payment occurred
// between two parties. It is consumable for exactly one peer vote.
type TransactionReceipt struct {
	ID            ReceiptID   `json:"receipt_id"`
	Payer         string      `json:"payer"`
	Recipient     string      `json:"recipient"`
	SignatureHash [32]byte    `json:"signature_hash"`
	Amount        uint64      `json:"amount"`
	ContentType   ContentType `json:"content_type"`
	CreatedAt     time.Time   `json:"created_at"`
	// VoteCast flips to true exactly once and never back.
	VoteCast bool `json:"vote_cast"`
}

// Counterparty returns the other party of the receipt, or "" if addr is
// not a party at all.
func (r *TransactionReceipt) Counterparty(addr string) string {
	switch addr {
	case r.Payer:
		return r.Recipient
	case r.Recipient:
		return r.Payer
	}
	return ""
}

// IsParty reports whether addr is the payer or the recipient.
func (r *TransactionReceipt) IsParty(addr string) bool {
	return addr == r.Payer || addr == r.Recipient
}

// TxStats summarizes a subject's received payments for the aggregator.
type TxStats struct {
	Count  int64  `json:"count"`
	Volume uint64 `json:"volume"`
}
