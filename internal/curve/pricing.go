package curve

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Quote is the outcome of pricing a trade against the current curve.
type Quote struct {
	// Shards is the amount of shards the caller buys or sells.
	Shards *uint256.Int
	// Value is the total paid by a buyer (swap plus fees) or received by a seller.
	Value *uint256.Int
	// Swap is the invariant-preserving part of the value leg.
	Swap *uint256.Int
	// Fees is denominated in value units for buys and in shards for sells.
	Fees FeeSplit
	// Next is the curve state after the trade, supplier fee included.
	Next State
}

// QuoteBuy prices buying amount shards from the pool. The swap keeps x*y constant; fees are
// charged on top of the swap cost and only the supplier bucket re-enters the reserve.
func QuoteBuy(s State, cfg Config, amount *uint256.Int) (Quote, error) {
	if isZero(amount) {
		return Quote{}, ErrZeroAmount
	}
	minReserve := clone(cfg.MinShardReserve)
	if !s.ShardReserve.Gt(minReserve) {
		return Quote{}, fmt.Errorf("%w: reserve %s at floor %s", ErrInsufficientReserve, s.ShardReserve, minReserve)
	}
	available := new(uint256.Int).Sub(s.ShardReserve, minReserve)
	if !amount.Lt(available) {
		return Quote{}, fmt.Errorf("%w: buy %s, available %s", ErrInsufficientReserve, amount, available)
	}

	y := s.ValueReserve()
	k, err := mul(s.ShardReserve, y)
	if err != nil {
		return Quote{}, err
	}
	x1 := new(uint256.Int).Sub(s.ShardReserve, amount)
	y1, err := divUp(k, x1)
	if err != nil {
		return Quote{}, err
	}
	swap, err := sub(y1, y)
	if err != nil {
		return Quote{}, err
	}
	if swap.IsZero() {
		return Quote{}, fmt.Errorf("%w: buy rounds to zero cost", ErrZeroAmount)
	}

	fees, err := cfg.Fees.Split(swap, cfg.HasOriginator())
	if err != nil {
		return Quote{}, err
	}
	cost, err := add(swap, fees.Total())
	if err != nil {
		return Quote{}, err
	}
	yFinal, err := add(y1, fees.Suppliers)
	if err != nil {
		return Quote{}, err
	}
	next, err := s.withReserves(x1, yFinal)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Shards: clone(amount), Value: cost, Swap: swap, Fees: fees, Next: next}, nil
}

// QuoteSell prices selling amount shards into the pool. Fees are taken in shards before the
// swap; the supplier bucket is added to the shard reserve afterwards.
func QuoteSell(s State, cfg Config, amount *uint256.Int) (Quote, error) {
	if isZero(amount) {
		return Quote{}, ErrZeroAmount
	}

	fees, err := cfg.Fees.Split(amount, cfg.HasOriginator())
	if err != nil {
		return Quote{}, err
	}
	if !fees.Total().Lt(amount) {
		return Quote{}, fmt.Errorf("%w: sell %s consumed by fees", ErrZeroAmount, amount)
	}
	net := new(uint256.Int).Sub(amount, fees.Total())

	y := s.ValueReserve()
	k, err := mul(s.ShardReserve, y)
	if err != nil {
		return Quote{}, err
	}
	x1, err := add(s.ShardReserve, net)
	if err != nil {
		return Quote{}, err
	}
	y1, err := divUp(k, x1)
	if err != nil {
		return Quote{}, err
	}
	payout, err := sub(y, y1)
	if err != nil {
		return Quote{}, err
	}
	if payout.IsZero() {
		return Quote{}, fmt.Errorf("%w: sell rounds to zero payout", ErrZeroAmount)
	}

	xFinal, err := add(x1, fees.Suppliers)
	if err != nil {
		return Quote{}, err
	}
	next, err := s.withReserves(xFinal, y1)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Shards: clone(amount), Value: payout, Swap: payout, Fees: fees, Next: next}, nil
}
