package curve

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config is the immutable pool configuration fixed at initialization.
type Config struct {
	ShardRegistry    common.Address
	Owner            common.Address
	OriginatorWallet common.Address
	ProtocolWallet   common.Address
	MinShardReserve  *uint256.Int
	Fees             FeeSchedule
	Timelock         time.Duration
}

// HasOriginator reports whether originator fees are collected.
func (c Config) HasOriginator() bool {
	return c.OriginatorWallet != (common.Address{})
}

func (c Config) validate() error {
	if c.ShardRegistry == (common.Address{}) {
		return fmt.Errorf("shard registry: %w", ErrInvalidAddress)
	}
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner: %w", ErrInvalidAddress)
	}
	if c.ProtocolWallet == (common.Address{}) {
		return fmt.Errorf("protocol wallet: %w", ErrInvalidAddress)
	}
	if c.Timelock < 0 {
		return fmt.Errorf("%w: negative timelock", ErrInvalidConfig)
	}
	return c.Fees.Validate()
}

// State is the curve reserve record. The value reserve is never stored; it is derived from
// the shard reserve and the marginal price.
type State struct {
	ShardReserve *uint256.Int
	Price        *uint256.Int
}

// ValueReserve returns y = x * p / WAD.
func (s State) ValueReserve() *uint256.Int {
	y, err := mulDiv(s.ShardReserve, s.Price, Wad)
	if err != nil {
		// x*p/WAD always fits when x and p fit; only a zero divisor could fail.
		return zero()
	}
	return y
}

// Invariant returns k = x * y.
func (s State) Invariant() (*uint256.Int, error) {
	return mul(s.ShardReserve, s.ValueReserve())
}

func (s State) clone() State {
	return State{ShardReserve: clone(s.ShardReserve), Price: clone(s.Price)}
}

// withReserves rebuilds the state from explicit shard and value reserves. The price is
// floored; a zero shard reserve keeps the previous price.
func (s State) withReserves(x, y *uint256.Int) (State, error) {
	if x.IsZero() {
		return State{ShardReserve: zero(), Price: clone(s.Price)}, nil
	}
	price, err := mulDiv(y, Wad, x)
	if err != nil {
		return State{}, err
	}
	if price.IsZero() {
		return State{}, fmt.Errorf("%w: price would reach zero", ErrInsufficientReserve)
	}
	return State{ShardReserve: clone(x), Price: price}, nil
}
