package curve

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side selects one of the two liquidity ledgers.
type Side int

const (
	SideEther Side = iota
	SideShards
)

func (s Side) String() string {
	switch s {
	case SideEther:
		return "ether"
	case SideShards:
		return "shards"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Position is one supplier's stake on one side.
type Position struct {
	Principal  *uint256.Int
	LPShares   *uint256.Int
	LastSupply time.Time
}

// LedgerTotals is the read-only view returned by the supplier accessors.
type LedgerTotals struct {
	TotalPrincipalPlusFees *uint256.Int
	TotalLPShares          *uint256.Int
	FeesToProtocol         *uint256.Int
	FeesToOriginator       *uint256.Int
}

// Ledger tracks LP shares against pooled principal plus accrued supplier fees for one side.
// Protocol and originator fees accrue separately and are never claimable through shares.
type Ledger struct {
	side      Side
	totals    LedgerTotals
	positions map[common.Address]*Position
}

func newLedger(side Side) *Ledger {
	return &Ledger{
		side: side,
		totals: LedgerTotals{
			TotalPrincipalPlusFees: zero(),
			TotalLPShares:          zero(),
			FeesToProtocol:         zero(),
			FeesToOriginator:       zero(),
		},
		positions: make(map[common.Address]*Position),
	}
}

// Totals returns a copy of the ledger totals.
func (l *Ledger) Totals() LedgerTotals {
	return LedgerTotals{
		TotalPrincipalPlusFees: clone(l.totals.TotalPrincipalPlusFees),
		TotalLPShares:          clone(l.totals.TotalLPShares),
		FeesToProtocol:         clone(l.totals.FeesToProtocol),
		FeesToOriginator:       clone(l.totals.FeesToOriginator),
	}
}

// Position returns a copy of the account's position, if any.
func (l *Ledger) Position(account common.Address) (Position, bool) {
	pos, ok := l.positions[account]
	if !ok {
		return Position{Principal: zero(), LPShares: zero()}, false
	}
	return Position{Principal: clone(pos.Principal), LPShares: clone(pos.LPShares), LastSupply: pos.LastSupply}, true
}

// SharesOf returns the account's LP shares.
func (l *Ledger) SharesOf(account common.Address) *uint256.Int {
	pos, _ := l.Position(account)
	return pos.LPShares
}

// Redeemable returns floor(shares * total / totalShares).
func (l *Ledger) Redeemable(shares *uint256.Int) (*uint256.Int, error) {
	if l.totals.TotalLPShares.IsZero() {
		return zero(), nil
	}
	return mulDiv(shares, l.totals.TotalPrincipalPlusFees, l.totals.TotalLPShares)
}

// mint credits amount to the ledger and returns the minted shares. An empty ledger mints
// one share per unit supplied.
func (l *Ledger) mint(account common.Address, amount *uint256.Int, now time.Time) (*uint256.Int, error) {
	if isZero(amount) {
		return nil, ErrZeroAmount
	}
	shares := clone(amount)
	if !l.totals.TotalLPShares.IsZero() {
		var err error
		shares, err = mulDiv(amount, l.totals.TotalLPShares, l.totals.TotalPrincipalPlusFees)
		if err != nil {
			return nil, err
		}
		if shares.IsZero() {
			return nil, fmt.Errorf("%w: supply of %s mints no %s shares", ErrZeroAmount, amount, l.side)
		}
	}

	total, err := add(l.totals.TotalPrincipalPlusFees, amount)
	if err != nil {
		return nil, err
	}
	totalShares, err := add(l.totals.TotalLPShares, shares)
	if err != nil {
		return nil, err
	}

	pos := l.positions[account]
	if pos == nil {
		pos = &Position{Principal: zero(), LPShares: zero()}
		l.positions[account] = pos
	}
	pos.Principal = new(uint256.Int).Add(pos.Principal, amount)
	pos.LPShares = new(uint256.Int).Add(pos.LPShares, shares)
	pos.LastSupply = now

	l.totals.TotalPrincipalPlusFees = total
	l.totals.TotalLPShares = totalShares
	return shares, nil
}

// burn removes shares from account after the timelock and returns the ledger claim they
// represented.
func (l *Ledger) burn(account common.Address, shares *uint256.Int, now time.Time, timelock time.Duration) (*uint256.Int, error) {
	if isZero(shares) {
		return nil, ErrZeroAmount
	}
	pos := l.positions[account]
	if pos == nil || pos.LPShares.Lt(shares) {
		held := zero()
		if pos != nil {
			held = pos.LPShares
		}
		return nil, fmt.Errorf("%w: %s %s shares requested, %s held", ErrInsufficientShares, shares, l.side, held)
	}
	unlock := pos.LastSupply.Add(timelock)
	if now.Before(unlock) {
		return nil, fmt.Errorf("%w: unlocks at %s", ErrTimelockNotElapsed, unlock.UTC().Format(time.RFC3339))
	}

	claim, err := l.Redeemable(shares)
	if err != nil {
		return nil, err
	}
	principalOut, err := mulDiv(pos.Principal, shares, pos.LPShares)
	if err != nil {
		return nil, err
	}

	l.totals.TotalPrincipalPlusFees = new(uint256.Int).Sub(l.totals.TotalPrincipalPlusFees, claim)
	l.totals.TotalLPShares = new(uint256.Int).Sub(l.totals.TotalLPShares, shares)
	pos.LPShares = new(uint256.Int).Sub(pos.LPShares, shares)
	pos.Principal = new(uint256.Int).Sub(pos.Principal, principalOut)
	if pos.LPShares.IsZero() {
		delete(l.positions, account)
	}
	return claim, nil
}

// transfer moves shares between accounts. The recipient keeps the later of the two supply
// timestamps so a transfer never shortens a timelock.
func (l *Ledger) transfer(from, to common.Address, shares *uint256.Int) error {
	if isZero(shares) {
		return ErrZeroAmount
	}
	if to == (common.Address{}) {
		return fmt.Errorf("recipient: %w", ErrInvalidAddress)
	}
	src := l.positions[from]
	if src == nil || src.LPShares.Lt(shares) {
		return fmt.Errorf("%w: transfer of %s %s shares", ErrInsufficientShares, shares, l.side)
	}
	if from == to {
		return nil
	}
	principal, err := mulDiv(src.Principal, shares, src.LPShares)
	if err != nil {
		return err
	}

	dst := l.positions[to]
	if dst == nil {
		dst = &Position{Principal: zero(), LPShares: zero()}
		l.positions[to] = dst
	}
	dst.LPShares = new(uint256.Int).Add(dst.LPShares, shares)
	dst.Principal = new(uint256.Int).Add(dst.Principal, principal)
	if src.LastSupply.After(dst.LastSupply) {
		dst.LastSupply = src.LastSupply
	}

	src.LPShares = new(uint256.Int).Sub(src.LPShares, shares)
	src.Principal = new(uint256.Int).Sub(src.Principal, principal)
	if src.LPShares.IsZero() {
		delete(l.positions, from)
	}
	return nil
}

// accrue folds a trade fee into the ledger: the supplier bucket raises the share value,
// the protocol and originator buckets wait for a pull withdrawal. With no shares
// outstanding the supplier bucket stays in the reserve as surplus of the other side.
func (l *Ledger) accrue(fees FeeSplit) error {
	total := l.totals.TotalPrincipalPlusFees
	if !l.totals.TotalLPShares.IsZero() {
		var err error
		if total, err = add(total, clone(fees.Suppliers)); err != nil {
			return err
		}
	}
	protocol, err := add(l.totals.FeesToProtocol, clone(fees.Protocol))
	if err != nil {
		return err
	}
	originator, err := add(l.totals.FeesToOriginator, clone(fees.Originator))
	if err != nil {
		return err
	}
	l.totals.TotalPrincipalPlusFees = total
	l.totals.FeesToProtocol = protocol
	l.totals.FeesToOriginator = originator
	return nil
}

func (l *Ledger) clone() *Ledger {
	out := &Ledger{side: l.side, totals: l.Totals(), positions: make(map[common.Address]*Position, len(l.positions))}
	for account, pos := range l.positions {
		out.positions[account] = &Position{
			Principal:  clone(pos.Principal),
			LPShares:   clone(pos.LPShares),
			LastSupply: pos.LastSupply,
		}
	}
	return out
}
