package curve

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Options wires a Controller to its collaborators.
type Options struct {
	// Address is the pool's own account at the asset mover.
	Address common.Address
	Assets  AssetMover
	Events  EventSink
	Clock   func() time.Time
	Logger  *zap.Logger
}

// InitParams are the one-time initialization inputs. Value is the value-unit deposit
// attached by the caller and must equal SuppliedShards * InitialPrice.
type InitParams struct {
	SuppliedShards   *uint256.Int
	ShardRegistry    common.Address
	Owner            common.Address
	OriginatorWallet common.Address
	ProtocolWallet   common.Address
	InitialPrice     *uint256.Int
	MinShardReserve  *uint256.Int
	Value            *uint256.Int
	Fees             FeeSchedule
	Timelock         time.Duration
}

// Withdrawal is what a supplier receives when burning LP shares.
type Withdrawal struct {
	Burned *uint256.Int
	Claim  *uint256.Int
	Value  *uint256.Int
	Shards *uint256.Int
}

// Snapshot is a read-only copy of the whole pool.
type Snapshot struct {
	Initialized  bool
	Config       Config
	ShardReserve *uint256.Int
	Price        *uint256.Int
	ValueReserve *uint256.Int
	Ether        LedgerTotals
	Shards       LedgerTotals
}

// Controller is the bonding curve pool. Every mutating call is atomic: state is committed
// before any asset moves and restored if validation or settlement fails.
type Controller struct {
	addr   common.Address
	assets AssetMover
	events EventSink
	now    func() time.Time
	logger *zap.Logger

	busy atomic.Bool

	mu          sync.RWMutex
	initialized bool
	cfg         Config
	state       State
	ether       *Ledger
	shards      *Ledger
}

// NewController builds an uninitialized pool.
func NewController(opts Options) (*Controller, error) {
	if opts.Assets == nil {
		return nil, fmt.Errorf("asset mover is nil")
	}
	if opts.Address == (common.Address{}) {
		return nil, fmt.Errorf("pool address: %w", ErrInvalidAddress)
	}
	if opts.Events == nil {
		opts.Events = EventSinkFunc(func(Event) {})
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		addr:   opts.Address,
		assets: opts.Assets,
		events: opts.Events,
		now:    opts.Clock,
		logger: opts.Logger,
		state:  State{ShardReserve: zero(), Price: zero()},
		ether:  newLedger(SideEther),
		shards: newLedger(SideShards),
	}, nil
}

// Address returns the pool account.
func (c *Controller) Address() common.Address { return c.addr }

type plan struct {
	transfers []Transfer
	events    []Event
}

type savepoint struct {
	initialized bool
	cfg         Config
	state       State
	ether       *Ledger
	shards      *Ledger
}

func (c *Controller) save() savepoint {
	return savepoint{
		initialized: c.initialized,
		cfg:         c.cfg,
		state:       c.state.clone(),
		ether:       c.ether.clone(),
		shards:      c.shards.clone(),
	}
}

func (c *Controller) restore(sp savepoint) {
	c.initialized = sp.initialized
	c.cfg = sp.cfg
	c.state = sp.state
	c.ether = sp.ether
	c.shards = sp.shards
}

// execute runs one mutating operation: effects under the write lock, then transfers, then
// events. Overlapping calls, including re-entrant ones from the asset mover, are rejected.
func (c *Controller) execute(ctx context.Context, op string, effects func(now time.Time) (plan, error)) error {
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	sp := c.save()
	p, err := effects(c.now())
	if err != nil {
		c.restore(sp)
		c.mu.Unlock()
		c.logger.Warn("curve operation rejected", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	c.mu.Unlock()

	if err := settle(ctx, c.assets, p.transfers, c.logger); err != nil {
		c.mu.Lock()
		c.restore(sp)
		c.mu.Unlock()
		c.logger.Warn("curve settlement failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, event := range p.events {
		c.events.Emit(event)
	}
	return nil
}

func (c *Controller) requireActive() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Initialize deposits the initial shards and value, fixes the configuration and makes the
// caller the first supplier on both sides.
func (c *Controller) Initialize(ctx context.Context, caller common.Address, params InitParams) error {
	return c.execute(ctx, "initialize", func(now time.Time) (plan, error) {
		if c.initialized {
			return plan{}, ErrAlreadyInitialized
		}
		if caller == (common.Address{}) {
			return plan{}, fmt.Errorf("caller: %w", ErrInvalidAddress)
		}
		cfg := Config{
			ShardRegistry:    params.ShardRegistry,
			Owner:            params.Owner,
			OriginatorWallet: params.OriginatorWallet,
			ProtocolWallet:   params.ProtocolWallet,
			MinShardReserve:  clone(params.MinShardReserve),
			Fees: FeeSchedule{
				Protocol:   clone(params.Fees.Protocol),
				Originator: clone(params.Fees.Originator),
				Suppliers:  clone(params.Fees.Suppliers),
			},
			Timelock: params.Timelock,
		}
		if err := cfg.validate(); err != nil {
			return plan{}, err
		}
		if isZero(params.SuppliedShards) || isZero(params.InitialPrice) {
			return plan{}, ErrZeroAmount
		}
		if isZero(cfg.MinShardReserve) || !cfg.MinShardReserve.Lt(params.SuppliedShards) {
			return plan{}, fmt.Errorf("%w: min shard reserve must be positive and below the supplied shards", ErrInvalidConfig)
		}

		state := State{ShardReserve: clone(params.SuppliedShards), Price: clone(params.InitialPrice)}
		value := state.ValueReserve()
		if value.IsZero() {
			return plan{}, fmt.Errorf("%w: initial value reserve rounds to zero", ErrZeroAmount)
		}
		if !value.Eq(clone(params.Value)) {
			return plan{}, fmt.Errorf("%w: expected %s, attached %s", ErrValueMismatch, value.Dec(), clone(params.Value).Dec())
		}

		c.initialized = true
		c.cfg = cfg
		c.state = state
		shardShares, err := c.shards.mint(caller, params.SuppliedShards, now)
		if err != nil {
			return plan{}, err
		}
		etherShares, err := c.ether.mint(caller, value, now)
		if err != nil {
			return plan{}, err
		}

		c.logger.Info("curve initialized",
			zap.String("shard_registry", cfg.ShardRegistry.Hex()),
			zap.String("owner", cfg.Owner.Hex()),
			zap.String("shards", params.SuppliedShards.Dec()),
			zap.String("price", FormatWad(params.InitialPrice)),
			zap.Duration("timelock", cfg.Timelock),
		)

		return plan{
			transfers: []Transfer{
				{Asset: AssetValue, From: caller, To: c.addr, Amount: value},
				{Asset: AssetShards, From: caller, To: c.addr, Amount: clone(params.SuppliedShards)},
			},
			events: []Event{
				Initialized{ShardRegistry: cfg.ShardRegistry, Owner: cfg.Owner},
				TransferShardLPTokens{To: caller, Amount: shardShares},
				TransferEthLPTokens{To: caller, Amount: etherShares},
			},
		}, nil
	})
}

// BuyShards sells amount shards to buyer for at most maxPay value units.
func (c *Controller) BuyShards(ctx context.Context, buyer common.Address, amount, maxPay *uint256.Int) (Quote, error) {
	var quote Quote
	err := c.execute(ctx, "buy shards", func(time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		if buyer == (common.Address{}) {
			return plan{}, fmt.Errorf("buyer: %w", ErrInvalidAddress)
		}
		q, err := QuoteBuy(c.state, c.cfg, amount)
		if err != nil {
			return plan{}, err
		}
		if q.Value.Gt(clone(maxPay)) {
			return plan{}, fmt.Errorf("%w: cost %s above max %s", ErrSlippageExceeded, q.Value.Dec(), clone(maxPay).Dec())
		}
		c.state = q.Next
		if err := c.ether.accrue(q.Fees); err != nil {
			return plan{}, err
		}
		quote = q

		c.logger.Info("shards bought",
			zap.String("buyer", buyer.Hex()),
			zap.String("shards", q.Shards.Dec()),
			zap.String("cost", q.Value.Dec()),
			zap.String("fee", q.Fees.Total().Dec()),
			zap.String("price", FormatWad(q.Next.Price)),
		)

		return plan{
			transfers: []Transfer{
				{Asset: AssetValue, From: buyer, To: c.addr, Amount: q.Value},
				{Asset: AssetShards, From: c.addr, To: buyer, Amount: q.Shards},
			},
			events: []Event{ShardsBought{ShardAmount: q.Shards, ValuePaid: q.Value, Buyer: buyer}},
		}, nil
	})
	return quote, err
}

// SellShards buys amount shards from seller paying at least minReceive value units.
func (c *Controller) SellShards(ctx context.Context, seller common.Address, amount, minReceive *uint256.Int) (Quote, error) {
	var quote Quote
	err := c.execute(ctx, "sell shards", func(time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		if seller == (common.Address{}) {
			return plan{}, fmt.Errorf("seller: %w", ErrInvalidAddress)
		}
		q, err := QuoteSell(c.state, c.cfg, amount)
		if err != nil {
			return plan{}, err
		}
		if q.Value.Lt(clone(minReceive)) {
			return plan{}, fmt.Errorf("%w: payout %s below min %s", ErrSlippageExceeded, q.Value.Dec(), clone(minReceive).Dec())
		}
		c.state = q.Next
		if err := c.shards.accrue(q.Fees); err != nil {
			return plan{}, err
		}
		quote = q

		c.logger.Info("shards sold",
			zap.String("seller", seller.Hex()),
			zap.String("shards", q.Shards.Dec()),
			zap.String("payout", q.Value.Dec()),
			zap.String("fee_shards", q.Fees.Total().Dec()),
			zap.String("price", FormatWad(q.Next.Price)),
		)

		return plan{
			transfers: []Transfer{
				{Asset: AssetValue, From: c.addr, To: seller, Amount: q.Value},
				{Asset: AssetShards, From: seller, To: c.addr, Amount: q.Shards},
			},
			events: []Event{ShardsSold{ShardAmount: q.Shards, ValueReceived: q.Value, Seller: seller}},
		}, nil
	})
	return quote, err
}

// SupplyEther adds value-unit liquidity and returns the minted Eth LP shares. The price
// rises so that the derived value reserve includes the deposit.
func (c *Controller) SupplyEther(ctx context.Context, supplier common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := c.execute(ctx, "supply ether", func(now time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		if supplier == (common.Address{}) {
			return plan{}, fmt.Errorf("supplier: %w", ErrInvalidAddress)
		}
		if isZero(amount) {
			return plan{}, ErrZeroAmount
		}
		if c.state.ShardReserve.IsZero() {
			return plan{}, fmt.Errorf("%w: empty shard reserve", ErrInsufficientReserve)
		}
		y, err := add(c.state.ValueReserve(), amount)
		if err != nil {
			return plan{}, err
		}
		next, err := c.state.withReserves(c.state.ShardReserve, y)
		if err != nil {
			return plan{}, err
		}
		shares, err := c.ether.mint(supplier, amount, now)
		if err != nil {
			return plan{}, err
		}
		c.state = next
		minted = shares

		c.logger.Info("ether supplied",
			zap.String("supplier", supplier.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("lp_shares", shares.Dec()),
		)

		return plan{
			transfers: []Transfer{{Asset: AssetValue, From: supplier, To: c.addr, Amount: clone(amount)}},
			events: []Event{
				EtherSupplied{Amount: clone(amount), Supplier: supplier},
				TransferEthLPTokens{To: supplier, Amount: shares},
			},
		}, nil
	})
	return minted, err
}

// SupplyShards adds shard liquidity and returns the minted Shard LP shares. The value
// reserve is kept, so the price falls.
func (c *Controller) SupplyShards(ctx context.Context, supplier common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := c.execute(ctx, "supply shards", func(now time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		if supplier == (common.Address{}) {
			return plan{}, fmt.Errorf("supplier: %w", ErrInvalidAddress)
		}
		if isZero(amount) {
			return plan{}, ErrZeroAmount
		}
		y := c.state.ValueReserve()
		if y.IsZero() {
			return plan{}, fmt.Errorf("%w: empty value reserve", ErrInsufficientReserve)
		}
		x, err := add(c.state.ShardReserve, amount)
		if err != nil {
			return plan{}, err
		}
		next, err := c.state.withReserves(x, y)
		if err != nil {
			return plan{}, err
		}
		shares, err := c.shards.mint(supplier, amount, now)
		if err != nil {
			return plan{}, err
		}
		c.state = next
		minted = shares

		c.logger.Info("shards supplied",
			zap.String("supplier", supplier.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("lp_shares", shares.Dec()),
		)

		return plan{
			transfers: []Transfer{{Asset: AssetShards, From: supplier, To: c.addr, Amount: clone(amount)}},
			events: []Event{
				ShardsSupplied{Amount: clone(amount), Supplier: supplier},
				TransferShardLPTokens{To: supplier, Amount: shares},
			},
		}, nil
	})
	return minted, err
}

// WithdrawSuppliedEther burns Eth LP shares after the timelock.
func (c *Controller) WithdrawSuppliedEther(ctx context.Context, supplier common.Address, shares *uint256.Int) (Withdrawal, error) {
	return c.withdraw(ctx, SideEther, supplier, shares)
}

// WithdrawSuppliedShards burns Shard LP shares after the timelock.
func (c *Controller) WithdrawSuppliedShards(ctx context.Context, supplier common.Address, shares *uint256.Int) (Withdrawal, error) {
	return c.withdraw(ctx, SideShards, supplier, shares)
}

func (c *Controller) withdraw(ctx context.Context, side Side, supplier common.Address, shares *uint256.Int) (Withdrawal, error) {
	var out Withdrawal
	err := c.execute(ctx, "withdraw supplied "+side.String(), func(now time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		ledger, other := c.ether, c.shards
		if side == SideShards {
			ledger, other = c.shards, c.ether
		}
		payout, err := c.payout(side, shares, ledger.Totals(), other.Totals())
		if err != nil {
			return plan{}, err
		}
		claim, err := ledger.burn(supplier, shares, now, c.cfg.Timelock)
		if err != nil {
			return plan{}, err
		}
		x := new(uint256.Int).Sub(c.state.ShardReserve, payout.Shards)
		y := new(uint256.Int).Sub(c.state.ValueReserve(), payout.Value)
		next, err := c.state.withReserves(x, y)
		if err != nil {
			return plan{}, err
		}
		c.state = next
		out = Withdrawal{Burned: clone(shares), Claim: claim, Value: payout.Value, Shards: payout.Shards}

		c.logger.Info("liquidity withdrawn",
			zap.Stringer("side", side),
			zap.String("supplier", supplier.Hex()),
			zap.String("lp_shares", shares.Dec()),
			zap.String("value", payout.Value.Dec()),
			zap.String("shards", payout.Shards.Dec()),
		)

		events := make([]Event, 0, 2)
		if side == SideEther {
			events = append(events,
				TransferEthLPTokens{From: supplier, Amount: clone(shares)},
				EtherWithdrawn{ValueAmount: payout.Value, ShardAmount: payout.Shards, Supplier: supplier},
			)
		} else {
			events = append(events,
				TransferShardLPTokens{From: supplier, Amount: clone(shares)},
				ShardsWithdrawn{ValueAmount: payout.Value, ShardAmount: payout.Shards, Supplier: supplier},
			)
		}
		return plan{
			transfers: []Transfer{
				{Asset: AssetValue, From: c.addr, To: supplier, Amount: payout.Value},
				{Asset: AssetShards, From: c.addr, To: supplier, Amount: payout.Shards},
			},
			events: events,
		}, nil
	})
	return out, err
}

// Amounts pairs a value-unit amount with a shard amount.
type Amounts struct {
	Value  *uint256.Int
	Shards *uint256.Int
}

// payout splits a withdrawal across both reserves using the totals before the burn. A side
// owns its own asset up to its ledger total plus whatever the other side holds in surplus;
// burned shares take their pro-rata cut of both. The reserves always keep MinShardReserve
// shards and the matching value, even when this burn empties both ledgers, so the curve
// stays priced for the next supplier. Any cut above those floors is converted to the other
// asset at the marginal price and capped.
func (c *Controller) payout(side Side, shares *uint256.Int, own, other LedgerTotals) (Amounts, error) {
	if isZero(shares) || own.TotalLPShares.IsZero() || own.TotalLPShares.Lt(shares) {
		// burn reports the precise error
		return Amounts{Value: zero(), Shards: zero()}, nil
	}
	x := c.state.ShardReserve
	y := c.state.ValueReserve()

	var ownValue, ownShards *uint256.Int
	if side == SideEther {
		ownValue = minOf(y, own.TotalPrincipalPlusFees)
		ownShards = surplus(x, other.TotalPrincipalPlusFees)
	} else {
		ownShards = minOf(x, own.TotalPrincipalPlusFees)
		ownValue = surplus(y, other.TotalPrincipalPlusFees)
	}

	value, err := mulDiv(shares, ownValue, own.TotalLPShares)
	if err != nil {
		return Amounts{}, err
	}
	shardsOut, err := mulDiv(shares, ownShards, own.TotalLPShares)
	if err != nil {
		return Amounts{}, err
	}

	price := c.state.Price
	floorX := clone(c.cfg.MinShardReserve)
	floorY, err := mulDiv(floorX, price, Wad)
	if err != nil {
		return Amounts{}, err
	}
	maxShards := surplus(x, floorX)
	maxValue := surplus(y, floorY)

	if shardsOut.Gt(maxShards) {
		comp, err := mulDiv(new(uint256.Int).Sub(shardsOut, maxShards), price, Wad)
		if err != nil {
			return Amounts{}, err
		}
		shardsOut = maxShards
		if value, err = add(value, comp); err != nil {
			return Amounts{}, err
		}
	}
	if value.Gt(maxValue) {
		comp, err := mulDiv(new(uint256.Int).Sub(value, maxValue), Wad, price)
		if err != nil {
			return Amounts{}, err
		}
		value = maxValue
		if shardsOut, err = add(shardsOut, comp); err != nil {
			return Amounts{}, err
		}
		if shardsOut.Gt(maxShards) {
			shardsOut = maxShards
		}
	}
	return Amounts{Value: value, Shards: shardsOut}, nil
}

// TransferEthLPTokens moves Eth LP shares between accounts.
func (c *Controller) TransferEthLPTokens(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return c.transferLP(ctx, SideEther, from, to, amount)
}

// TransferShardLPTokens moves Shard LP shares between accounts.
func (c *Controller) TransferShardLPTokens(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return c.transferLP(ctx, SideShards, from, to, amount)
}

func (c *Controller) transferLP(ctx context.Context, side Side, from, to common.Address, amount *uint256.Int) error {
	return c.execute(ctx, "transfer "+side.String()+" lp tokens", func(time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		ledger := c.ether
		if side == SideShards {
			ledger = c.shards
		}
		if err := ledger.transfer(from, to, amount); err != nil {
			return plan{}, err
		}
		var event Event = TransferEthLPTokens{From: from, To: to, Amount: clone(amount)}
		if side == SideShards {
			event = TransferShardLPTokens{From: from, To: to, Amount: clone(amount)}
		}
		return plan{events: []Event{event}}, nil
	})
}

// WithdrawProtocolFees pays the protocol fee accumulators of both ledgers to the protocol
// wallet and returns the value and shard amounts.
func (c *Controller) WithdrawProtocolFees(ctx context.Context) (Amounts, error) {
	return c.withdrawFees(ctx, "withdraw protocol fees", func(totals *LedgerTotals) **uint256.Int {
		return &totals.FeesToProtocol
	}, func(cfg Config) common.Address { return cfg.ProtocolWallet })
}

// WithdrawOriginatorFees pays the originator fee accumulators to the originator wallet.
func (c *Controller) WithdrawOriginatorFees(ctx context.Context) (Amounts, error) {
	return c.withdrawFees(ctx, "withdraw originator fees", func(totals *LedgerTotals) **uint256.Int {
		return &totals.FeesToOriginator
	}, func(cfg Config) common.Address { return cfg.OriginatorWallet })
}

func (c *Controller) withdrawFees(ctx context.Context, op string, bucket func(*LedgerTotals) **uint256.Int, wallet func(Config) common.Address) (Amounts, error) {
	var out Amounts
	err := c.execute(ctx, op, func(time.Time) (plan, error) {
		if err := c.requireActive(); err != nil {
			return plan{}, err
		}
		to := wallet(c.cfg)
		if to == (common.Address{}) {
			return plan{}, fmt.Errorf("fee wallet: %w", ErrInvalidAddress)
		}
		valueFee := bucket(&c.ether.totals)
		shardFee := bucket(&c.shards.totals)
		out = Amounts{Value: clone(*valueFee), Shards: clone(*shardFee)}
		if out.Value.IsZero() && out.Shards.IsZero() {
			return plan{}, ErrZeroAmount
		}
		*valueFee = zero()
		*shardFee = zero()

		c.logger.Info("fees withdrawn",
			zap.String("op", op),
			zap.String("wallet", to.Hex()),
			zap.String("value", out.Value.Dec()),
			zap.String("shards", out.Shards.Dec()),
		)

		return plan{transfers: []Transfer{
			{Asset: AssetValue, From: c.addr, To: to, Amount: out.Value},
			{Asset: AssetShards, From: c.addr, To: to, Amount: out.Shards},
		}}, nil
	})
	return out, err
}

// QuoteBuy prices a buy against the committed state without changing it.
func (c *Controller) QuoteBuy(amount *uint256.Int) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.requireActive(); err != nil {
		return Quote{}, err
	}
	return QuoteBuy(c.state.clone(), c.cfg, amount)
}

// QuoteSell prices a sell against the committed state without changing it.
func (c *Controller) QuoteSell(amount *uint256.Int) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.requireActive(); err != nil {
		return Quote{}, err
	}
	return QuoteSell(c.state.clone(), c.cfg, amount)
}

// CurveCoordinates returns the shard reserve and the marginal price.
func (c *Controller) CurveCoordinates() (x, p *uint256.Int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.state.ShardReserve), clone(c.state.Price)
}

// EthInPool returns the derived value reserve.
func (c *Controller) EthInPool() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.ValueReserve()
}

// EthLPTokens returns the account's Eth LP shares.
func (c *Controller) EthLPTokens(account common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ether.SharesOf(account)
}

// ShardLPTokens returns the account's Shard LP shares.
func (c *Controller) ShardLPTokens(account common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shards.SharesOf(account)
}

// EthSuppliers returns the Eth ledger totals.
func (c *Controller) EthSuppliers() LedgerTotals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ether.Totals()
}

// ShardSuppliers returns the Shard ledger totals.
func (c *Controller) ShardSuppliers() LedgerTotals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shards.Totals()
}

// Position returns an account's position on one side.
func (c *Controller) Position(side Side, account common.Address) (Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if side == SideShards {
		return c.shards.Position(account)
	}
	return c.ether.Position(account)
}

// Snapshot returns a consistent copy of the pool.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Initialized:  c.initialized,
		Config:       c.cfg,
		ShardReserve: clone(c.state.ShardReserve),
		Price:        clone(c.state.Price),
		ValueReserve: c.state.ValueReserve(),
		Ether:        c.ether.Totals(),
		Shards:       c.shards.Totals(),
	}
}
