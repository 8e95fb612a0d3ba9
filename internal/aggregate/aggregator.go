package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"shardcurve/internal/chain"
	"shardcurve/internal/events"
	"shardcurve/internal/model"
)

const (
	feeMethodSchedule    = "approx_from_fee_schedule"
	feeMethodNone        = "unavailable"
	reserveMethodLive    = "live_meta"
	reserveMethodBlock   = "curve_coordinates_block"
	reserveMethodLatest  = "curve_coordinates_latest"
	reserveMethodNone    = "unavailable"
	defaultShardDecimals = 18
)

// MetricsStore persists aggregated windows.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
	// FeeRate is the pool's total fee fraction in WAD. Nil disables fee estimates.
	FeeRate *big.Int
	// ShardDecimals applies when the shard registry cannot be queried.
	ShardDecimals *uint8
}

// Aggregator aggregates typed curve events into pool window metrics. The chain client is
// optional; without it reserves come only from live meta recorded by the decoder.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	chainClient  chain.Caller
	logger       *zap.Logger
	tokens       *events.TokenMetaCache
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, chainClient chain.Caller, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		chainClient:  chainClient,
		logger:       logger,
		tokens:       events.NewTokenMetaCache(),
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, flushed, skipped, failed int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			skipped++
			continue
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd, a.cfg.FeeRate)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(ctx, acc)
			batch = append(batch, *metrics)
			flushed++
			if pool != nil {
				pools = append(pools, *pool)
			}
			next := NewAccumulator(record, windowStart, windowEnd, a.cfg.FeeRate)
			next.PoolMeta = acc.PoolMeta
			acc = next
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(ctx, acc)
		batch = append(batch, *metrics)
		flushed++
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", flushed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	poolRecord := a.registerPool(acc)
	shardDecimals := a.shardDecimals(ctx, acc.PoolMeta.ShardRegistry)

	coords, reserveMethod := a.reserves(ctx, acc)
	var lastPrice, shardReserve, valueReserve *string
	var priceInt, valueInt *big.Int
	if coords != nil {
		if v, err := parseBigInt(coords.Price); err == nil {
			priceInt = v
			val := formatTokenAmount(v, ratioScale)
			lastPrice = &val
		}
		if v, err := parseBigInt(coords.ShardReserve); err == nil {
			val := formatTokenAmount(v, shardDecimals)
			shardReserve = &val
		}
		if v, err := parseBigInt(coords.ValueReserve); err == nil {
			valueInt = v
			val := formatTokenAmount(v, valueDecimals)
			valueReserve = &val
		}
	}

	feeMethod := feeMethodSchedule
	if a.cfg.FeeRate == nil {
		feeMethod = feeMethodNone
	}
	feeYield := computeFeeYield(acc.FeeValue, acc.FeeShards, priceInt, valueInt)

	metrics := &model.PoolWindowMetrics{
		ChainID:         acc.ChainID,
		PoolAddress:     acc.PoolAddress,
		WindowSizeSecs:  int64(a.cfg.WindowSeconds),
		WindowStart:     time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(acc.WindowEnd), 0).UTC(),
		BuyCount:        acc.BuyCount,
		SellCount:       acc.SellCount,
		ShardsBought:    formatTokenAmount(acc.ShardsBought, shardDecimals),
		ShardsSold:      formatTokenAmount(acc.ShardsSold, shardDecimals),
		ValuePaid:       formatTokenAmount(acc.ValuePaid, valueDecimals),
		ValueReceived:   formatTokenAmount(acc.ValueReceived, valueDecimals),
		EtherSupplied:   formatTokenAmount(acc.EtherSupplied, valueDecimals),
		ShardsSupplied:  formatTokenAmount(acc.ShardsSupplied, shardDecimals),
		EtherWithdrawn:  formatTokenAmount(acc.EtherWithdrawn, valueDecimals),
		ShardsWithdrawn: formatTokenAmount(acc.ShardsWithdrawn, shardDecimals),
		FeeValue:        formatTokenAmount(acc.FeeValue, valueDecimals),
		FeeShards:       formatTokenAmount(acc.FeeShards, shardDecimals),
		LastPrice:       lastPrice,
		ShardReserve:    shardReserve,
		ValueReserve:    valueReserve,
		FeeYield:        feeYield,
		APR:             computeAPR(feeYield, a.cfg.WindowSeconds),
		FeeMethod:       feeMethod,
		ReserveMethod:   reserveMethod,
	}

	return metrics, poolRecord
}

// reserves prefers the reading carried by the window's last event, then an eth_call at the
// window's last block, then latest.
func (a *Aggregator) reserves(ctx context.Context, acc *Accumulator) (*model.CurveCoordinates, string) {
	if acc.Live != nil {
		return acc.Live, reserveMethodLive
	}
	if a.chainClient == nil || !common.IsHexAddress(acc.PoolAddress) {
		return nil, reserveMethodNone
	}
	pool := common.HexToAddress(acc.PoolAddress)
	if acc.LastBlock > 0 {
		coords, err := events.FetchCoordinates(ctx, a.chainClient, pool, acc.LastBlock)
		if err == nil {
			return &coords, reserveMethodBlock
		}
		a.logger.Warn("coordinates at block failed", zap.String("pool", acc.PoolAddress), zap.Uint64("block", acc.LastBlock), zap.Error(err))
	}
	coords, err := events.FetchCoordinates(ctx, a.chainClient, pool, 0)
	if err != nil {
		a.logger.Warn("coordinates fetch failed", zap.String("pool", acc.PoolAddress), zap.Error(err))
		return nil, reserveMethodNone
	}
	return &coords, reserveMethodLatest
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		ShardRegistry:  acc.PoolMeta.ShardRegistry,
		Owner:          acc.PoolMeta.Owner,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		learnedMeta := existing.ShardRegistry == "" && pool.ShardRegistry != ""
		if existing.FirstSeenBlock <= pool.FirstSeenBlock && !learnedMeta {
			return nil
		}
		if existing.FirstSeenBlock < pool.FirstSeenBlock {
			pool.FirstSeenBlock = existing.FirstSeenBlock
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

func (a *Aggregator) shardDecimals(ctx context.Context, registry string) uint8 {
	fallback := uint8(defaultShardDecimals)
	if a.cfg.ShardDecimals != nil {
		fallback = *a.cfg.ShardDecimals
	}
	if a.chainClient == nil || !common.IsHexAddress(registry) {
		return fallback
	}
	addr := common.HexToAddress(registry)
	if meta, ok := a.tokens.Get(addr); ok {
		return meta.Decimals
	}
	meta, err := events.FetchTokenMeta(ctx, a.chainClient, addr, a.logger)
	if err != nil {
		a.logger.Warn("shard decimals", zap.String("registry", registry), zap.Error(err))
		meta = model.TokenMeta{Address: addr.Hex(), Decimals: fallback}
	}
	a.tokens.Set(addr, meta)
	return meta.Decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
