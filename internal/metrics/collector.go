package metrics

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shardcurve/internal/curve"
)

const namespace = "shardcurve"

// Collector holds bonding curve pool metrics on its own registry. It implements
// curve.EventSink; amounts are reported in whole units (18 decimals).
type Collector struct {
	registry *prometheus.Registry
	pool     string

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeShards *prometheus.CounterVec
	TradeValue  *prometheus.CounterVec

	// Liquidity metrics
	SuppliesTotal    *prometheus.CounterVec
	SuppliedAmount   *prometheus.CounterVec
	WithdrawalsTotal *prometheus.CounterVec
	WithdrawnAmount  *prometheus.CounterVec
	LPTransfersTotal *prometheus.CounterVec

	// Failures
	OperationErrors *prometheus.CounterVec

	// Pool state
	ShardReserve *prometheus.GaugeVec
	Price        *prometheus.GaugeVec
	ValueReserve *prometheus.GaugeVec
	LedgerTotal  *prometheus.GaugeVec
	LedgerShares *prometheus.GaugeVec
	FeesOwed     *prometheus.GaugeVec
}

// NewCollector creates a collector labelling every series with pool.
func NewCollector(pool common.Address) *Collector {
	c := &Collector{registry: prometheus.NewRegistry(), pool: pool.Hex()}

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed",
		},
		[]string{"pool", "side"},
	)

	c.TradeShards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "shards",
			Help:      "Shards bought from or sold to the pool",
		},
		[]string{"pool", "side"},
	)

	c.TradeValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "value",
			Help:      "Value units paid by buyers or received by sellers",
		},
		[]string{"pool", "side"},
	)

	c.SuppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "supplies_total",
			Help:      "Number of liquidity supplies",
		},
		[]string{"pool", "ledger"},
	)

	c.SuppliedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "supplied",
			Help:      "Amount supplied per ledger",
		},
		[]string{"pool", "ledger"},
	)

	c.WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "withdrawals_total",
			Help:      "Number of liquidity withdrawals",
		},
		[]string{"pool", "ledger"},
	)

	c.WithdrawnAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "withdrawn",
			Help:      "Assets paid out to withdrawing suppliers",
		},
		[]string{"pool", "asset"},
	)

	c.LPTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "liquidity",
			Name:      "lp_transfers_total",
			Help:      "LP share movements including mints and burns",
		},
		[]string{"pool", "ledger", "kind"},
	)

	c.OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operations",
			Name:      "errors_total",
			Help:      "Rejected pool operations by reason",
		},
		[]string{"pool", "operation", "reason"},
	)

	c.ShardReserve = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "shard_reserve",
			Help:      "Shards held by the pool",
		},
		[]string{"pool"},
	)

	c.Price = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "price",
			Help:      "Marginal price of one shard in value units",
		},
		[]string{"pool"},
	)

	c.ValueReserve = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "value_reserve",
			Help:      "Value units backing the curve",
		},
		[]string{"pool"},
	)

	c.LedgerTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "principal_plus_fees",
			Help:      "Redeemable principal plus supplier fees per ledger",
		},
		[]string{"pool", "ledger"},
	)

	c.LedgerShares = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lp_shares",
			Help:      "Outstanding LP shares per ledger",
		},
		[]string{"pool", "ledger"},
	)

	c.FeesOwed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "fees_owed",
			Help:      "Unclaimed protocol and originator fees per ledger",
		},
		[]string{"pool", "ledger", "recipient"},
	)

	c.registry.MustRegister(
		c.TradesTotal,
		c.TradeShards,
		c.TradeValue,
		c.SuppliesTotal,
		c.SuppliedAmount,
		c.WithdrawalsTotal,
		c.WithdrawnAmount,
		c.LPTransfersTotal,
		c.OperationErrors,
		c.ShardReserve,
		c.Price,
		c.ValueReserve,
		c.LedgerTotal,
		c.LedgerShares,
		c.FeesOwed,
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Emit implements curve.EventSink.
func (c *Collector) Emit(event curve.Event) {
	switch e := event.(type) {
	case curve.ShardsBought:
		c.TradesTotal.WithLabelValues(c.pool, "buy").Inc()
		c.TradeShards.WithLabelValues(c.pool, "buy").Add(units(e.ShardAmount))
		c.TradeValue.WithLabelValues(c.pool, "buy").Add(units(e.ValuePaid))
	case curve.ShardsSold:
		c.TradesTotal.WithLabelValues(c.pool, "sell").Inc()
		c.TradeShards.WithLabelValues(c.pool, "sell").Add(units(e.ShardAmount))
		c.TradeValue.WithLabelValues(c.pool, "sell").Add(units(e.ValueReceived))
	case curve.EtherSupplied:
		c.SuppliesTotal.WithLabelValues(c.pool, curve.SideEther.String()).Inc()
		c.SuppliedAmount.WithLabelValues(c.pool, curve.SideEther.String()).Add(units(e.Amount))
	case curve.ShardsSupplied:
		c.SuppliesTotal.WithLabelValues(c.pool, curve.SideShards.String()).Inc()
		c.SuppliedAmount.WithLabelValues(c.pool, curve.SideShards.String()).Add(units(e.Amount))
	case curve.EtherWithdrawn:
		c.observeWithdrawal(curve.SideEther, e.ValueAmount, e.ShardAmount)
	case curve.ShardsWithdrawn:
		c.observeWithdrawal(curve.SideShards, e.ValueAmount, e.ShardAmount)
	case curve.TransferEthLPTokens:
		c.LPTransfersTotal.WithLabelValues(c.pool, curve.SideEther.String(), transferKind(e.From, e.To)).Inc()
	case curve.TransferShardLPTokens:
		c.LPTransfersTotal.WithLabelValues(c.pool, curve.SideShards.String(), transferKind(e.From, e.To)).Inc()
	}
}

func (c *Collector) observeWithdrawal(side curve.Side, value, shards *uint256.Int) {
	c.WithdrawalsTotal.WithLabelValues(c.pool, side.String()).Inc()
	c.WithdrawnAmount.WithLabelValues(c.pool, curve.AssetValue.String()).Add(units(value))
	c.WithdrawnAmount.WithLabelValues(c.pool, curve.AssetShards.String()).Add(units(shards))
}

// ObserveSnapshot sets the pool state gauges.
func (c *Collector) ObserveSnapshot(snap curve.Snapshot) {
	c.ShardReserve.WithLabelValues(c.pool).Set(units(snap.ShardReserve))
	c.Price.WithLabelValues(c.pool).Set(units(snap.Price))
	c.ValueReserve.WithLabelValues(c.pool).Set(units(snap.ValueReserve))
	for _, ledger := range []struct {
		side   curve.Side
		totals curve.LedgerTotals
	}{{curve.SideEther, snap.Ether}, {curve.SideShards, snap.Shards}} {
		name := ledger.side.String()
		c.LedgerTotal.WithLabelValues(c.pool, name).Set(units(ledger.totals.TotalPrincipalPlusFees))
		c.LedgerShares.WithLabelValues(c.pool, name).Set(units(ledger.totals.TotalLPShares))
		c.FeesOwed.WithLabelValues(c.pool, name, "protocol").Set(units(ledger.totals.FeesToProtocol))
		c.FeesOwed.WithLabelValues(c.pool, name, "originator").Set(units(ledger.totals.FeesToOriginator))
	}
}

// ObserveError counts a rejected operation.
func (c *Collector) ObserveError(operation string, err error) {
	if err == nil {
		return
	}
	c.OperationErrors.WithLabelValues(c.pool, operation, Reason(err)).Inc()
}

var reasons = []struct {
	err  error
	name string
}{
	{curve.ErrAlreadyInitialized, "already_initialized"},
	{curve.ErrNotInitialized, "not_initialized"},
	{curve.ErrSlippageExceeded, "slippage_exceeded"},
	{curve.ErrInsufficientReserve, "insufficient_reserve"},
	{curve.ErrInsufficientShares, "insufficient_shares"},
	{curve.ErrTimelockNotElapsed, "timelock_not_elapsed"},
	{curve.ErrZeroAmount, "zero_amount"},
	{curve.ErrTransferFailed, "transfer_failed"},
	{curve.ErrInvalidAddress, "invalid_address"},
	{curve.ErrInvalidConfig, "invalid_config"},
	{curve.ErrValueMismatch, "value_mismatch"},
	{curve.ErrOverflow, "overflow"},
	{curve.ErrReentrantCall, "reentrant_call"},
}

// Reason maps a curve error to a stable label value.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return "other"
}

func transferKind(from, to common.Address) string {
	switch {
	case from == (common.Address{}):
		return "mint"
	case to == (common.Address{}):
		return "burn"
	default:
		return "transfer"
	}
}

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func units(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Quo(f, wadFloat).Float64()
	return out
}
