package curve

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeSchedule holds the fee fractions applied to every trade, in 18-decimal fixed point.
type FeeSchedule struct {
	Protocol   *uint256.Int
	Originator *uint256.Int
	Suppliers  *uint256.Int
}

// Validate checks that the three fractions sum to at most 1.0.
func (f FeeSchedule) Validate() error {
	total := zero()
	for _, pct := range []*uint256.Int{f.Protocol, f.Originator, f.Suppliers} {
		if pct == nil {
			continue
		}
		var err error
		if total, err = add(total, pct); err != nil {
			return err
		}
	}
	if total.Gt(Wad) {
		return fmt.Errorf("%w: fee fractions sum to %s", ErrInvalidConfig, FormatWad(total))
	}
	return nil
}

// FeeSplit is the per-bucket breakdown of a single trade's fee.
type FeeSplit struct {
	Protocol   *uint256.Int
	Originator *uint256.Int
	Suppliers  *uint256.Int
}

// Total returns the sum of the three buckets.
func (s FeeSplit) Total() *uint256.Int {
	total := new(uint256.Int).Add(clone(s.Protocol), clone(s.Originator))
	return total.Add(total, clone(s.Suppliers))
}

// Split computes each bucket as ceil(amount * pct). The originator bucket is skipped when
// the pool has no originator wallet.
func (f FeeSchedule) Split(amount *uint256.Int, hasOriginator bool) (FeeSplit, error) {
	protocol, err := feeOf(amount, f.Protocol)
	if err != nil {
		return FeeSplit{}, err
	}
	originator := zero()
	if hasOriginator {
		if originator, err = feeOf(amount, f.Originator); err != nil {
			return FeeSplit{}, err
		}
	}
	suppliers, err := feeOf(amount, f.Suppliers)
	if err != nil {
		return FeeSplit{}, err
	}
	return FeeSplit{Protocol: protocol, Originator: originator, Suppliers: suppliers}, nil
}

func feeOf(amount, pct *uint256.Int) (*uint256.Int, error) {
	if isZero(pct) || isZero(amount) {
		return zero(), nil
	}
	return mulDivUp(amount, pct, Wad)
}
