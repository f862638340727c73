package contracts

import "errors"

// Stable error identifiers for the reputation core. Callers must be able to
// distinguish every rejection reason, so each one is a sentinel that survives
// wrapping with fmt.Errorf("%w").
var (
	// Decoder errors.
	ErrMalformedTransaction  = errors.New("malformed transaction")
	ErrUnresolvableAccounts  = errors.New("unresolvable account lookup table")
	ErrNoTransferInstruction = errors.New("no recognizable transfer instruction")

	// Receipt registry errors.
	ErrUnauthorizedCreator = errors.New("creator must be payer or recipient")
	ErrSelfTransaction     = errors.New("payer and recipient must differ")
	ErrReceiptNotFound     = errors.New("receipt not found")

	// Vote engine errors.
	ErrReceiptAlreadyUsed = errors.New("vote already cast on this receipt")
	ErrUnauthorizedVoter  = errors.New("voter is not a party to this receipt")
	ErrVotingWindowExpired = errors.New("voting window has expired")
	ErrInvalidQualityScore = errors.New("quality score must be between 0 and 100")
	ErrVoteNotFound        = errors.New("no vote cast on this receipt")

	// Signal collector errors.
	ErrSelfEndorsement      = errors.New("cannot endorse yourself")
	ErrEndorsementLimit     = errors.New("endorsement limit reached")
	ErrInvalidAttestation   = errors.New("attestation subject and issuer required")
	ErrInvalidStakePosition = errors.New("stake position amount must be positive")

	// Aggregator errors.
	ErrScoreNotFound = errors.New("reputation score not found")
)

// errorCodes maps sentinels to the wire identifiers downstream UIs key on.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMalformedTransaction, "MalformedTransaction"},
	{ErrUnresolvableAccounts, "UnresolvableAccounts"},
	{ErrNoTransferInstruction, "NoTransferInstruction"},
	{ErrUnauthorizedCreator, "UnauthorizedCreator"},
	{ErrSelfTransaction, "SelfTransaction"},
	{ErrReceiptNotFound, "ReceiptNotFound"},
	{ErrReceiptAlreadyUsed, "ReceiptAlreadyUsed"},
	{ErrUnauthorizedVoter, "UnauthorizedVoter"},
	{ErrVotingWindowExpired, "VotingWindowExpired"},
	{ErrInvalidQualityScore, "InvalidQualityScore"},
	{ErrVoteNotFound, "VoteNotFound"},
	{ErrSelfEndorsement, "SelfEndorsement"},
	{ErrEndorsementLimit, "EndorsementLimit"},
	{ErrInvalidAttestation, "InvalidAttestation"},
	{ErrInvalidStakePosition, "InvalidStakePosition"},
	{ErrScoreNotFound, "ScoreNotFound"},
}

// ErrorCode returns the stable identifier for a domain error, or "Internal"
// for anything outside the taxonomy.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}
