package curve_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"shardcurve/internal/bank"
	"shardcurve/internal/curve"
)

var (
	poolAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	registry   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	originator = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	protocol   = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	carol      = common.HexToAddress("0x0000000000000000000000000000000000000b03")
)

const timelock = 24 * time.Hour

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), curve.Wad)
}

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

func frac(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := curve.ParseWad(s)
	require.NoError(t, err)
	return v
}

func maxUint() *uint256.Int { return new(uint256.Int).SetAllOne() }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ctx    context.Context
	bank   *bank.Memory
	clock  *fakeClock
	events *curve.Recorder
	pool   *curve.Controller
}

func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		bank:   bank.NewMemory(),
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		events: &curve.Recorder{},
	}
	f.bank.RegisterPool(poolAddr)
	pool, err := curve.NewController(curve.Options{
		Address: poolAddr,
		Assets:  f.bank,
		Events:  f.events,
		Clock:   f.clock.Now,
	})
	require.NoError(t, err)
	f.pool = pool

	f.bank.Mint(curve.AssetShards, owner, wad(700))
	f.bank.Mint(curve.AssetValue, owner, wad(700))
	f.bank.Approve(owner, poolAddr, maxUint())
	for _, account := range []common.Address{alice, bob} {
		f.bank.Mint(curve.AssetValue, account, wad(10_000))
		f.bank.Mint(curve.AssetShards, account, wad(1_000))
		f.bank.Approve(account, poolAddr, maxUint())
	}
	return f
}

func initParams(t *testing.T) curve.InitParams {
	return curve.InitParams{
		SuppliedShards:   wad(700),
		ShardRegistry:    registry,
		Owner:            owner,
		OriginatorWallet: originator,
		ProtocolWallet:   protocol,
		InitialPrice:     wad(1),
		MinShardReserve:  wad(300),
		Value:            wad(700),
		Fees: curve.FeeSchedule{
			Protocol:   frac(t, "0.001"),
			Originator: frac(t, "0.001"),
			Suppliers:  frac(t, "0.003"),
		},
		Timelock: timelock,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newBareFixture(t)
	require.NoError(t, f.pool.Initialize(f.ctx, owner, initParams(t)))
	f.events.Reset()
	return f
}

func eventNames(events []curve.Event) []string {
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.EventName())
	}
	return names
}

type balances struct {
	value  *uint256.Int
	shards *uint256.Int
}

func (f *fixture) balances(account common.Address) balances {
	return balances{
		value:  f.bank.Balance(curve.AssetValue, account),
		shards: f.bank.Balance(curve.AssetShards, account),
	}
}

func TestInitialize(t *testing.T) {
	f := newBareFixture(t)
	require.NoError(t, f.pool.Initialize(f.ctx, owner, initParams(t)))

	x, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(700), x)
	require.Equal(t, wad(1), p)
	require.Equal(t, wad(700), f.pool.EthInPool())
	require.Equal(t, wad(700), f.pool.EthLPTokens(owner))
	require.Equal(t, wad(700), f.pool.ShardLPTokens(owner))

	require.Equal(t, wad(700), f.bank.Balance(curve.AssetValue, poolAddr))
	require.Equal(t, wad(700), f.bank.Balance(curve.AssetShards, poolAddr))
	require.True(t, f.bank.Balance(curve.AssetValue, owner).IsZero())

	pos, ok := f.pool.Position(curve.SideEther, owner)
	require.True(t, ok)
	require.Equal(t, f.clock.now, pos.LastSupply)
	require.Equal(t, wad(700), pos.Principal)

	events := f.events.Events()
	require.Equal(t, []string{
		curve.EventInitialized,
		curve.EventTransferShardLPTokens,
		curve.EventTransferEthLPTokens,
	}, eventNames(events))
	require.Equal(t, curve.Initialized{ShardRegistry: registry, Owner: owner}, events[0])
	require.Equal(t, curve.TransferEthLPTokens{To: owner, Amount: wad(700)}, events[2])

	snap := f.pool.Snapshot()
	require.True(t, snap.Initialized)
	require.True(t, snap.Config.HasOriginator())
	require.Equal(t, timelock, snap.Config.Timelock)
}

func TestInitializeTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.bank.Mint(curve.AssetShards, owner, wad(700))
	f.bank.Mint(curve.AssetValue, owner, wad(700))

	err := f.pool.Initialize(f.ctx, owner, initParams(t))
	require.ErrorIs(t, err, curve.ErrAlreadyInitialized)
	require.Empty(t, f.events.Events())
	require.Equal(t, wad(700), f.bank.Balance(curve.AssetShards, owner))
}

func TestInitializeValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*curve.InitParams)
		want   error
	}{
		{"zero registry", func(p *curve.InitParams) { p.ShardRegistry = common.Address{} }, curve.ErrInvalidAddress},
		{"zero owner", func(p *curve.InitParams) { p.Owner = common.Address{} }, curve.ErrInvalidAddress},
		{"zero protocol wallet", func(p *curve.InitParams) { p.ProtocolWallet = common.Address{} }, curve.ErrInvalidAddress},
		{"zero shards", func(p *curve.InitParams) { p.SuppliedShards = new(uint256.Int) }, curve.ErrZeroAmount},
		{"zero price", func(p *curve.InitParams) { p.InitialPrice = new(uint256.Int) }, curve.ErrZeroAmount},
		{"zero min reserve", func(p *curve.InitParams) { p.MinShardReserve = new(uint256.Int) }, curve.ErrInvalidConfig},
		{"min reserve equals supply", func(p *curve.InitParams) { p.MinShardReserve = wad(700) }, curve.ErrInvalidConfig},
		{"value mismatch", func(p *curve.InitParams) { p.Value = wad(699) }, curve.ErrValueMismatch},
		{"fees above one", func(p *curve.InitParams) { p.Fees.Suppliers = wad(1) }, curve.ErrInvalidConfig},
		{"negative timelock", func(p *curve.InitParams) { p.Timelock = -time.Second }, curve.ErrInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBareFixture(t)
			params := initParams(t)
			tc.mutate(&params)

			err := f.pool.Initialize(f.ctx, owner, params)
			require.ErrorIs(t, err, tc.want)
			require.False(t, f.pool.Snapshot().Initialized)
			require.Empty(t, f.events.Events())
			require.Equal(t, wad(700), f.bank.Balance(curve.AssetShards, owner))
			require.Equal(t, wad(700), f.bank.Balance(curve.AssetValue, owner))
		})
	}
}

func TestInitializeWithoutOriginator(t *testing.T) {
	f := newBareFixture(t)
	params := initParams(t)
	params.OriginatorWallet = common.Address{}
	require.NoError(t, f.pool.Initialize(f.ctx, owner, params))

	quote, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	require.True(t, quote.Fees.Originator.IsZero())
	require.True(t, f.pool.EthSuppliers().FeesToOriginator.IsZero())

	_, err = f.pool.WithdrawOriginatorFees(f.ctx)
	require.ErrorIs(t, err, curve.ErrInvalidAddress)
}

func TestOperationsRequireInitialization(t *testing.T) {
	f := newBareFixture(t)

	_, err := f.pool.BuyShards(f.ctx, bob, wad(1), maxUint())
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.SellShards(f.ctx, bob, wad(1), new(uint256.Int))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.SupplyEther(f.ctx, bob, wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.SupplyShards(f.ctx, bob, wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.WithdrawSuppliedEther(f.ctx, bob, wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.WithdrawSuppliedShards(f.ctx, bob, wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	err = f.pool.TransferEthLPTokens(f.ctx, bob, alice, wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.QuoteBuy(wad(1))
	require.ErrorIs(t, err, curve.ErrNotInitialized)
	_, err = f.pool.WithdrawProtocolFees(f.ctx)
	require.ErrorIs(t, err, curve.ErrNotInitialized)

	require.Empty(t, f.events.Events())
}

func TestBuyShards(t *testing.T) {
	f := newFixture(t)
	before := f.balances(bob)

	quote, err := f.pool.BuyShards(f.ctx, bob, wad(10), wad(11))
	require.NoError(t, err)

	require.Equal(t, dec(t, "10144927536231884058"), quote.Swap)
	require.Equal(t, dec(t, "10195652173913043481"), quote.Value)
	require.Equal(t, dec(t, "10144927536231885"), quote.Fees.Protocol)
	require.Equal(t, dec(t, "10144927536231885"), quote.Fees.Originator)
	require.Equal(t, dec(t, "30434782608695653"), quote.Fees.Suppliers)

	x, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(690), x)
	require.Equal(t, dec(t, "1029239655534551564"), p)
	require.True(t, p.Gt(wad(1)))

	ether := f.pool.EthSuppliers()
	require.Equal(t, new(uint256.Int).Add(wad(700), quote.Fees.Suppliers), ether.TotalPrincipalPlusFees)
	require.Equal(t, quote.Fees.Protocol, ether.FeesToProtocol)
	require.Equal(t, quote.Fees.Originator, ether.FeesToOriginator)
	require.Equal(t, wad(700), ether.TotalLPShares)

	after := f.balances(bob)
	require.Equal(t, new(uint256.Int).Add(before.shards, wad(10)), after.shards)
	require.Equal(t, new(uint256.Int).Sub(before.value, quote.Value), after.value)

	require.Equal(t, []curve.Event{
		curve.ShardsBought{ShardAmount: wad(10), ValuePaid: quote.Value, Buyer: bob},
	}, f.events.Events())
}

func TestSellingBackReturnsLessThanPaid(t *testing.T) {
	f := newFixture(t)

	bought, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	sold, err := f.pool.SellShards(f.ctx, bob, wad(10), new(uint256.Int))
	require.NoError(t, err)

	require.Equal(t, dec(t, "10095356604146672994"), sold.Value)
	require.True(t, sold.Value.Lt(bought.Value))

	shards := f.pool.ShardSuppliers()
	require.Equal(t, dec(t, "10000000000000000"), shards.FeesToProtocol)
	require.Equal(t, dec(t, "10000000000000000"), shards.FeesToOriginator)
	require.Equal(t, new(uint256.Int).Add(wad(700), dec(t, "30000000000000000")), shards.TotalPrincipalPlusFees)

	x, _ := f.pool.CurveCoordinates()
	require.Equal(t, dec(t, "699980000000000000000"), x)
}

func TestBuySlippageLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	quote, err := f.pool.QuoteBuy(wad(10))
	require.NoError(t, err)
	snap := f.pool.Snapshot()
	before := f.balances(bob)

	limit := new(uint256.Int).Sub(quote.Value, uint256.NewInt(1))
	_, err = f.pool.BuyShards(f.ctx, bob, wad(10), limit)
	require.ErrorIs(t, err, curve.ErrSlippageExceeded)

	require.Equal(t, snap, f.pool.Snapshot())
	require.Equal(t, before, f.balances(bob))
	require.Empty(t, f.events.Events())

	_, err = f.pool.BuyShards(f.ctx, bob, wad(10), quote.Value)
	require.NoError(t, err)
}

func TestSellSlippage(t *testing.T) {
	f := newFixture(t)
	quote, err := f.pool.QuoteSell(wad(5))
	require.NoError(t, err)
	snap := f.pool.Snapshot()

	floor := new(uint256.Int).Add(quote.Value, uint256.NewInt(1))
	_, err = f.pool.SellShards(f.ctx, bob, wad(5), floor)
	require.ErrorIs(t, err, curve.ErrSlippageExceeded)
	require.Equal(t, snap, f.pool.Snapshot())
	require.Empty(t, f.events.Events())
}

func TestBuyRespectsMinimumReserve(t *testing.T) {
	f := newFixture(t)

	_, err := f.pool.BuyShards(f.ctx, bob, wad(400), maxUint())
	require.ErrorIs(t, err, curve.ErrInsufficientReserve)
	_, err = f.pool.BuyShards(f.ctx, bob, wad(500), maxUint())
	require.ErrorIs(t, err, curve.ErrInsufficientReserve)
	_, err = f.pool.BuyShards(f.ctx, bob, new(uint256.Int), maxUint())
	require.ErrorIs(t, err, curve.ErrZeroAmount)

	_, err = f.pool.BuyShards(f.ctx, bob, wad(399), maxUint())
	require.NoError(t, err)
	x, _ := f.pool.CurveCoordinates()
	require.Equal(t, wad(301), x)
}

func TestSellRequiresShardAllowance(t *testing.T) {
	f := newFixture(t)
	f.bank.Mint(curve.AssetShards, carol, wad(10))
	snap := f.pool.Snapshot()

	_, err := f.pool.SellShards(f.ctx, carol, wad(10), new(uint256.Int))
	require.ErrorIs(t, err, curve.ErrTransferFailed)
	require.Equal(t, snap, f.pool.Snapshot())
	require.Equal(t, wad(10), f.bank.Balance(curve.AssetShards, carol))
	require.True(t, f.bank.Balance(curve.AssetValue, carol).IsZero())
	require.Empty(t, f.events.Events())
}

// requireInvariant checks |xNet*yNet - k| <= xNet*(xAfter/WAD + 2), the slack left by
// ceiling the swap leg and flooring the stored price.
func requireInvariant(t *testing.T, k, xNet, yNet, xAfter *uint256.Int) {
	t.Helper()
	product := new(big.Int).Mul(xNet.ToBig(), yNet.ToBig())
	diff := new(big.Int).Sub(product, k.ToBig())
	diff.Abs(diff)

	slack := new(big.Int).Div(xAfter.ToBig(), curve.Wad.ToBig())
	slack.Add(slack, big.NewInt(2))
	slack.Mul(slack, xNet.ToBig())
	require.True(t, diff.Cmp(slack) <= 0, "invariant drift %s above %s", diff, slack)
}

func TestTradesPreserveInvariant(t *testing.T) {
	f := newFixture(t)
	steps := []struct {
		buy    bool
		amount *uint256.Int
	}{
		{true, wad(10)},
		{true, wad(25)},
		{false, wad(7)},
		{false, wad(40)},
		{true, dec(t, "3333333333333333333")},
		{false, dec(t, "123456789")},
	}
	for _, step := range steps {
		snap := f.pool.Snapshot()
		k := new(uint256.Int).Mul(snap.ShardReserve, snap.ValueReserve)

		if step.buy {
			quote, err := f.pool.BuyShards(f.ctx, alice, step.amount, maxUint())
			require.NoError(t, err)
			x, _ := f.pool.CurveCoordinates()
			yNet := new(uint256.Int).Sub(f.pool.EthInPool(), quote.Fees.Suppliers)
			requireInvariant(t, k, x, yNet, x)
			continue
		}
		quote, err := f.pool.SellShards(f.ctx, alice, step.amount, new(uint256.Int))
		require.NoError(t, err)
		x, _ := f.pool.CurveCoordinates()
		xNet := new(uint256.Int).Sub(x, quote.Fees.Suppliers)
		requireInvariant(t, k, xNet, f.pool.EthInPool(), x)
	}
}

func TestSupplyEtherRaisesPrice(t *testing.T) {
	f := newFixture(t)

	minted, err := f.pool.SupplyEther(f.ctx, alice, wad(70))
	require.NoError(t, err)
	require.Equal(t, wad(70), minted)

	x, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(700), x)
	require.Equal(t, dec(t, "1100000000000000000"), p)
	require.Equal(t, wad(770), f.pool.EthInPool())
	require.Equal(t, wad(770), f.pool.EthSuppliers().TotalPrincipalPlusFees)

	require.Equal(t, []curve.Event{
		curve.EtherSupplied{Amount: wad(70), Supplier: alice},
		curve.TransferEthLPTokens{To: alice, Amount: wad(70)},
	}, f.events.Events())
}

func TestSupplyAfterFeesMintsFewerShares(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)

	totals := f.pool.EthSuppliers()
	minted, err := f.pool.SupplyEther(f.ctx, alice, wad(70))
	require.NoError(t, err)

	want := new(big.Int).Mul(wad(70).ToBig(), totals.TotalLPShares.ToBig())
	want.Div(want, totals.TotalPrincipalPlusFees.ToBig())
	require.Equal(t, want, minted.ToBig())
	require.True(t, minted.Lt(wad(70)))
}

func TestSupplyShardsLowersPrice(t *testing.T) {
	f := newFixture(t)

	minted, err := f.pool.SupplyShards(f.ctx, alice, wad(100))
	require.NoError(t, err)
	require.Equal(t, wad(100), minted)

	x, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(800), x)
	require.Equal(t, dec(t, "875000000000000000"), p)
	require.Equal(t, wad(700), f.pool.EthInPool())
	require.Equal(t, wad(100), f.pool.ShardLPTokens(alice))

	require.Equal(t, []string{curve.EventShardsSupplied, curve.EventTransferShardLPTokens}, eventNames(f.events.Events()))
}

func TestWithdrawRespectsTimelock(t *testing.T) {
	f := newFixture(t)
	before := f.balances(alice)
	_, err := f.pool.SupplyEther(f.ctx, alice, wad(70))
	require.NoError(t, err)

	_, err = f.pool.WithdrawSuppliedEther(f.ctx, alice, wad(70))
	require.ErrorIs(t, err, curve.ErrTimelockNotElapsed)

	f.clock.Advance(timelock - time.Second)
	_, err = f.pool.WithdrawSuppliedEther(f.ctx, alice, wad(70))
	require.ErrorIs(t, err, curve.ErrTimelockNotElapsed)
	require.Equal(t, wad(70), f.pool.EthLPTokens(alice))

	f.clock.Advance(time.Second)
	f.events.Reset()
	out, err := f.pool.WithdrawSuppliedEther(f.ctx, alice, wad(70))
	require.NoError(t, err)
	require.Equal(t, wad(70), out.Claim)
	require.Equal(t, wad(70), out.Value)
	require.True(t, out.Shards.IsZero())
	require.Equal(t, before, f.balances(alice))

	_, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(1), p)
	require.Equal(t, []curve.Event{
		curve.TransferEthLPTokens{From: alice, Amount: wad(70)},
		curve.EtherWithdrawn{ValueAmount: wad(70), ShardAmount: new(uint256.Int), Supplier: alice},
	}, f.events.Events())
}

func TestEtherWithdrawalIsProportional(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	start := f.balances(alice)
	amount := wad(70)
	shares, err := f.pool.SupplyEther(f.ctx, alice, amount)
	require.NoError(t, err)
	f.clock.Advance(timelock)

	totals := f.pool.EthSuppliers()
	want := new(big.Int).Mul(shares.ToBig(), totals.TotalPrincipalPlusFees.ToBig())
	want.Div(want, totals.TotalLPShares.ToBig())

	out, err := f.pool.WithdrawSuppliedEther(f.ctx, alice, shares)
	require.NoError(t, err)
	require.Equal(t, want, out.Claim.ToBig())
	require.Equal(t, out.Claim, out.Value)
	require.True(t, out.Shards.IsZero())
	require.False(t, out.Claim.Gt(amount))
	require.True(t, new(uint256.Int).Sub(amount, out.Claim).Cmp(uint256.NewInt(2)) <= 0)

	after := f.balances(alice)
	require.Equal(t, new(uint256.Int).Sub(start.value, new(uint256.Int).Sub(amount, out.Claim)), after.value)
	require.True(t, f.pool.EthLPTokens(alice).IsZero())
	_, ok := f.pool.Position(curve.SideEther, alice)
	require.False(t, ok)
}

func TestShardWithdrawalCollectsValueSurplus(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	f.clock.Advance(timelock)

	snap := f.pool.Snapshot()
	valueSurplus := new(uint256.Int).Sub(snap.ValueReserve, snap.Ether.TotalPrincipalPlusFees)

	out, err := f.pool.WithdrawSuppliedShards(f.ctx, owner, wad(70))
	require.NoError(t, err)
	require.Equal(t, wad(70), out.Claim)
	require.Equal(t, wad(69), out.Shards)
	require.Equal(t, new(uint256.Int).Div(valueSurplus, uint256.NewInt(10)), out.Value)
	require.False(t, out.Value.IsZero())

	require.Equal(t, wad(630), f.pool.ShardLPTokens(owner))
	require.Equal(t, wad(630), f.pool.ShardSuppliers().TotalPrincipalPlusFees)
}

func TestWithdrawInsufficientShares(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(timelock)

	_, err := f.pool.WithdrawSuppliedEther(f.ctx, alice, uint256.NewInt(1))
	require.ErrorIs(t, err, curve.ErrInsufficientShares)
	_, err = f.pool.WithdrawSuppliedShards(f.ctx, owner, wad(701))
	require.ErrorIs(t, err, curve.ErrInsufficientShares)
	_, err = f.pool.WithdrawSuppliedShards(f.ctx, owner, new(uint256.Int))
	require.ErrorIs(t, err, curve.ErrZeroAmount)
	require.Empty(t, f.events.Events())
}

func TestFullExitKeepsReserveFloor(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(timelock)

	out, err := f.pool.WithdrawSuppliedEther(f.ctx, owner, wad(700))
	require.NoError(t, err)
	require.Equal(t, wad(400), out.Value)
	require.Equal(t, wad(300), out.Shards)

	x, p := f.pool.CurveCoordinates()
	require.Equal(t, wad(400), x)
	require.Equal(t, dec(t, "750000000000000000"), p)

	out, err = f.pool.WithdrawSuppliedShards(f.ctx, owner, wad(700))
	require.NoError(t, err)
	require.Equal(t, wad(75), out.Value)
	require.Equal(t, wad(100), out.Shards)

	x, p = f.pool.CurveCoordinates()
	require.Equal(t, wad(300), x)
	require.Equal(t, dec(t, "750000000000000000"), p)
	require.Equal(t, wad(225), f.pool.EthInPool())
	require.True(t, f.pool.EthSuppliers().TotalLPShares.IsZero())
	require.True(t, f.pool.ShardSuppliers().TotalLPShares.IsZero())

	require.Equal(t, balances{value: wad(475), shards: wad(400)}, f.balances(owner))
	require.Equal(t, balances{value: wad(225), shards: wad(300)}, f.balances(poolAddr))

	_, err = f.pool.BuyShards(f.ctx, bob, wad(1), maxUint())
	require.ErrorIs(t, err, curve.ErrInsufficientReserve)
}

func TestSupplyAfterFullExit(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(timelock)
	_, err := f.pool.WithdrawSuppliedEther(f.ctx, owner, wad(700))
	require.NoError(t, err)
	_, err = f.pool.WithdrawSuppliedShards(f.ctx, owner, wad(700))
	require.NoError(t, err)

	minted, err := f.pool.SupplyShards(f.ctx, alice, wad(10))
	require.NoError(t, err)
	require.Equal(t, wad(10), minted)
	minted, err = f.pool.SupplyEther(f.ctx, bob, wad(10))
	require.NoError(t, err)
	require.Equal(t, wad(10), minted)

	x, _ := f.pool.CurveCoordinates()
	require.Equal(t, wad(310), x)
	_, err = f.pool.BuyShards(f.ctx, bob, wad(1), maxUint())
	require.NoError(t, err)

	require.False(t, f.bank.Balance(curve.AssetValue, poolAddr).Lt(f.pool.EthInPool()))
}

func TestTransferLPTokensKeepsLaterTimelock(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.SupplyEther(f.ctx, alice, wad(10))
	require.NoError(t, err)
	f.clock.Advance(timelock)
	_, err = f.pool.SupplyEther(f.ctx, bob, wad(10))
	require.NoError(t, err)
	f.events.Reset()

	bobShares := f.pool.EthLPTokens(bob)
	require.NoError(t, f.pool.TransferEthLPTokens(f.ctx, bob, alice, bobShares))
	require.Equal(t, []curve.Event{
		curve.TransferEthLPTokens{From: bob, To: alice, Amount: bobShares},
	}, f.events.Events())
	require.True(t, f.pool.EthLPTokens(bob).IsZero())

	pos, ok := f.pool.Position(curve.SideEther, alice)
	require.True(t, ok)
	require.Equal(t, f.clock.now, pos.LastSupply)

	_, err = f.pool.WithdrawSuppliedEther(f.ctx, alice, uint256.NewInt(1))
	require.ErrorIs(t, err, curve.ErrTimelockNotElapsed)

	err = f.pool.TransferEthLPTokens(f.ctx, bob, alice, uint256.NewInt(1))
	require.ErrorIs(t, err, curve.ErrInsufficientShares)
	err = f.pool.TransferShardLPTokens(f.ctx, owner, common.Address{}, uint256.NewInt(1))
	require.ErrorIs(t, err, curve.ErrInvalidAddress)
}

func TestTransferShardLPTokens(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pool.TransferShardLPTokens(f.ctx, owner, carol, wad(100)))
	require.Equal(t, wad(600), f.pool.ShardLPTokens(owner))
	require.Equal(t, wad(100), f.pool.ShardLPTokens(carol))

	pos, ok := f.pool.Position(curve.SideShards, carol)
	require.True(t, ok)
	require.Equal(t, wad(100), pos.Principal)

	f.clock.Advance(timelock)
	out, err := f.pool.WithdrawSuppliedShards(f.ctx, carol, wad(100))
	require.NoError(t, err)
	require.Equal(t, wad(100), out.Shards)
	require.Equal(t, wad(100), f.bank.Balance(curve.AssetShards, carol))
}

func TestFeeWithdrawals(t *testing.T) {
	f := newFixture(t)
	bought, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	sold, err := f.pool.SellShards(f.ctx, bob, wad(10), new(uint256.Int))
	require.NoError(t, err)

	fees, err := f.pool.WithdrawProtocolFees(f.ctx)
	require.NoError(t, err)
	require.Equal(t, bought.Fees.Protocol, fees.Value)
	require.Equal(t, sold.Fees.Protocol, fees.Shards)
	require.Equal(t, balances{value: fees.Value, shards: fees.Shards}, f.balances(protocol))
	require.True(t, f.pool.EthSuppliers().FeesToProtocol.IsZero())
	require.True(t, f.pool.ShardSuppliers().FeesToProtocol.IsZero())

	_, err = f.pool.WithdrawProtocolFees(f.ctx)
	require.ErrorIs(t, err, curve.ErrZeroAmount)

	fees, err = f.pool.WithdrawOriginatorFees(f.ctx)
	require.NoError(t, err)
	require.Equal(t, bought.Fees.Originator, fees.Value)
	require.Equal(t, sold.Fees.Originator, fees.Shards)
	require.Equal(t, balances{value: fees.Value, shards: fees.Shards}, f.balances(originator))
}

func TestPoolStaysSolvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.BuyShards(f.ctx, bob, wad(50), maxUint())
	require.NoError(t, err)
	_, err = f.pool.SupplyEther(f.ctx, alice, wad(123))
	require.NoError(t, err)
	_, err = f.pool.SellShards(f.ctx, bob, wad(80), new(uint256.Int))
	require.NoError(t, err)
	_, err = f.pool.SupplyShards(f.ctx, alice, wad(45))
	require.NoError(t, err)
	f.clock.Advance(timelock)
	_, err = f.pool.WithdrawSuppliedEther(f.ctx, owner, wad(350))
	require.NoError(t, err)
	_, err = f.pool.BuyShards(f.ctx, bob, wad(20), maxUint())
	require.NoError(t, err)
	_, err = f.pool.WithdrawSuppliedShards(f.ctx, alice, f.pool.ShardLPTokens(alice))
	require.NoError(t, err)

	snap := f.pool.Snapshot()
	owedValue := new(uint256.Int).Add(snap.ValueReserve, snap.Ether.FeesToProtocol)
	owedValue.Add(owedValue, snap.Ether.FeesToOriginator)
	owedShards := new(uint256.Int).Add(snap.ShardReserve, snap.Shards.FeesToProtocol)
	owedShards.Add(owedShards, snap.Shards.FeesToOriginator)

	require.False(t, f.bank.Balance(curve.AssetValue, poolAddr).Lt(owedValue))
	require.False(t, f.bank.Balance(curve.AssetShards, poolAddr).Lt(owedShards))
	require.False(t, snap.ShardReserve.Lt(snap.Config.MinShardReserve))
}

func TestTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	snap := f.pool.Snapshot()
	before := f.balances(bob)
	poolBefore := f.balances(poolAddr)

	f.bank.SetHook(func(_ context.Context, asset curve.Asset, from, _ common.Address, _ *uint256.Int) error {
		if asset == curve.AssetShards && from == poolAddr {
			return context.Canceled
		}
		return nil
	})

	_, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.ErrorIs(t, err, curve.ErrTransferFailed)
	require.Equal(t, snap, f.pool.Snapshot())
	require.Equal(t, before, f.balances(bob))
	require.Equal(t, poolBefore, f.balances(poolAddr))
	require.Empty(t, f.events.Events())

	f.bank.SetHook(nil)
	_, err = f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
}

func TestSellTransferFailureKeepsAllowance(t *testing.T) {
	f := newFixture(t)
	f.bank.Approve(bob, poolAddr, wad(10))
	snap := f.pool.Snapshot()
	before := f.balances(bob)
	poolBefore := f.balances(poolAddr)

	f.bank.SetHook(func(_ context.Context, asset curve.Asset, from, _ common.Address, _ *uint256.Int) error {
		if asset == curve.AssetValue && from == poolAddr {
			return context.Canceled
		}
		return nil
	})

	_, err := f.pool.SellShards(f.ctx, bob, wad(10), new(uint256.Int))
	require.ErrorIs(t, err, curve.ErrTransferFailed)
	require.Equal(t, snap, f.pool.Snapshot())
	require.Equal(t, before, f.balances(bob))
	require.Equal(t, poolBefore, f.balances(poolAddr))
	require.Equal(t, wad(10), f.bank.Allowance(bob, poolAddr))
	require.Empty(t, f.events.Events())

	f.bank.SetHook(nil)
	_, err = f.pool.SellShards(f.ctx, bob, wad(10), new(uint256.Int))
	require.NoError(t, err)
	require.True(t, f.bank.Allowance(bob, poolAddr).IsZero())
}

func TestInitializeTransferFailureKeepsAllowance(t *testing.T) {
	f := newBareFixture(t)
	f.bank.Approve(owner, poolAddr, wad(700))
	before := f.balances(owner)

	f.bank.SetHook(func(_ context.Context, asset curve.Asset, from, _ common.Address, _ *uint256.Int) error {
		if asset == curve.AssetValue && from == owner {
			return context.Canceled
		}
		return nil
	})

	err := f.pool.Initialize(f.ctx, owner, initParams(t))
	require.ErrorIs(t, err, curve.ErrTransferFailed)
	require.Equal(t, before, f.balances(owner))
	require.Equal(t, wad(700), f.bank.Allowance(owner, poolAddr))
	require.True(t, f.pool.EthSuppliers().TotalLPShares.IsZero())
	require.Empty(t, f.events.Events())

	f.bank.SetHook(nil)
	require.NoError(t, f.pool.Initialize(f.ctx, owner, initParams(t)))
	require.True(t, f.bank.Allowance(owner, poolAddr).IsZero())
}

func TestReentrantCallRejected(t *testing.T) {
	f := newFixture(t)

	var (
		fired     bool
		innerErr  error
		observedX *uint256.Int
	)
	f.bank.SetHook(func(ctx context.Context, asset curve.Asset, from, _ common.Address, _ *uint256.Int) error {
		if fired || asset != curve.AssetValue || from != bob {
			return nil
		}
		fired = true
		observedX, _ = f.pool.CurveCoordinates()
		_, innerErr = f.pool.BuyShards(ctx, bob, wad(1), maxUint())
		return nil
	})

	_, err := f.pool.BuyShards(f.ctx, bob, wad(10), maxUint())
	require.NoError(t, err)
	require.True(t, fired)
	require.ErrorIs(t, innerErr, curve.ErrReentrantCall)
	require.Equal(t, wad(690), observedX)
	require.Equal(t, []string{curve.EventShardsBought}, eventNames(f.events.Events()))
}
