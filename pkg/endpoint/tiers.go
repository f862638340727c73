package endpoint

import "github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"

// tierRule is one rung of the verification ladder. Rules are ordered from
// highest to lowest; the first rule an endpoint satisfies wins.
type tierRule struct {
	tier        contracts.VerificationTier
	minCalls    uint64
	minSuccess  float64 // fraction, 0-1
	minOwnerRep float64 // 0-1000; zero means no gate
}

// tierLadder encodes the promotion thresholds. The top two tiers also
// require the owning agent to hold a solid reputation, so a throwaway
// identity cannot grind call volume into a "trusted" badge.
var tierLadder = []tierRule{
	{tier: contracts.TierCertified, minCalls: 10_000, minSuccess: 0.95, minOwnerRep: 750},
	{tier: contracts.TierTrusted, minCalls: 1_000, minSuccess: 0.90, minOwnerRep: 500},
	{tier: contracts.TierVerified, minCalls: 100, minSuccess: 0.80},
	{tier: contracts.TierTested, minCalls: 10, minSuccess: 0.50},
}

// tierFor assigns the highest tier the record qualifies for. Tiers are
// recomputed on every call, so an endpoint that degrades is demoted.
func tierFor(rec *contracts.EndpointTrustRecord, ownerRep float64) contracts.VerificationTier {
	rate := rec.SuccessRate()
	for _, rule := range tierLadder {
		if rec.TotalCalls < rule.minCalls {
			continue
		}
		if rate < rule.minSuccess {
			continue
		}
		if rule.minOwnerRep > 0 && ownerRep < rule.minOwnerRep {
			continue
		}
		return rule.tier
	}
	return contracts.TierUnverified
}
