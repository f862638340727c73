package vote

import "math"

// WeightPolicy maps payment size to vote weight. Weights are in
// basis-hundredths (100 = 1.0x). The curve is tunable policy; the binding
// contract is monotonicity and the hard cap.
type WeightPolicy struct {
	// MinWeight is the weight of any qualifying payment.
	MinWeight uint16
	// MaxWeight bounds whale influence.
	MaxWeight uint16
	// QualifyingAmount is the payment size (smallest currency unit) that
	// yields exactly MinWeight.
	QualifyingAmount uint64
	// PerDoubling is the weight added for each doubling of the payment
	// above QualifyingAmount.
	PerDoubling uint16
}

// DefaultWeightPolicy: 1.0x at or below 100k units, +0.5x per doubling,
// saturating at 4.0x.
func DefaultWeightPolicy() WeightPolicy {
	return WeightPolicy{
		MinWeight:        100,
		MaxWeight:        400,
		QualifyingAmount: 100_000,
		PerDoubling:      50,
	}
}

// Weight returns the vote weight for a payment amount.
func (p WeightPolicy) Weight(amount uint64) uint16 {
	if amount <= p.QualifyingAmount || p.QualifyingAmount == 0 {
		return p.MinWeight
	}
	doublings := math.Log2(float64(amount) / float64(p.QualifyingAmount))
	w := float64(p.MinWeight) + float64(p.PerDoubling)*doublings
	if w > float64(p.MaxWeight) {
		return p.MaxWeight
	}
	return uint16(w)
}
