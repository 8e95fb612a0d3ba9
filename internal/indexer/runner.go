package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"shardcurve/internal/chain"
	"shardcurve/internal/events"
	"shardcurve/internal/model"
	"shardcurve/internal/storage"
)

// RunConfig holds runtime settings for the indexer. An empty Topic0 selects every curve
// pool event.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Confirmations     uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner streams curve pool logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	chain      chain.LogSource
	storage    storage.Storage
	logger     *zap.Logger
	retry      retryPolicy
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient chain.LogSource, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		logger:     logger,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	if len(r.cfg.Topic0) == 0 {
		topics, err := events.Topic0s()
		if err != nil {
			return fmt.Errorf("curve topics: %w", err)
		}
		r.cfg.Topic0 = topics
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	cursor := Cursor{From: r.cfg.FromBlock, To: r.cfg.ToBlock, Confirmations: r.cfg.Confirmations}
	if cursor.To == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		cursor.Latest = latest
	}

	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && !cp.Covers(r.cfg.Addresses) {
			return fmt.Errorf("checkpoint %s was written for pools %v", r.cfg.CheckpointPath, cp.Pools)
		}
		cursor.LastProcessed, cursor.Resumed = cp.LastProcessedBlock, ok
	}

	pending, ok := cursor.Pending()
	if !ok {
		r.logger.Info("nothing to sync",
			zap.Uint64("from", cursor.From),
			zap.Uint64("latest", cursor.Latest),
			zap.Uint64("confirmations", cursor.Confirmations),
			zap.Uint64("last_processed", cursor.LastProcessed),
		)
		return nil
	}
	if pending.From != cursor.From {
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cursor.LastProcessed), zap.Uint64("from", pending.From))
	}

	ranges, err := SplitRange(pending.From, pending.To, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		removed := 0
		for _, log := range logs {
			if log.Removed {
				removed++
				continue
			}
			if r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, events.RecordFromLog(chainIDValue, log, ts, ingestedAt))
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(blockRange.To, r.cfg.Addresses); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Int("removed", removed), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("filter logs failed", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Uint64("block_number", blockNumber))
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
