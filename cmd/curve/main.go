package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shardcurve/internal/chain"
	"shardcurve/internal/config"
	"shardcurve/internal/indexer"
	"shardcurve/internal/storage"
	"shardcurve/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "curve",
		Short:        "Shard bonding curve pool simulator and indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Initialize an in-memory pool and replay an operation script",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().Uint64("chain-id", 31337, "chain id stamped on emitted logs")
	simulateCmd.Flags().String("pool", "pool", "pool address or account name")
	simulateCmd.Flags().String("shard-registry", "registry", "shard registry address or account name")
	simulateCmd.Flags().String("owner", "owner", "owner and initial supplier")
	simulateCmd.Flags().String("originator", "originator", "originator fee wallet, none disables the fee")
	simulateCmd.Flags().String("protocol", "protocol", "protocol fee wallet")
	simulateCmd.Flags().String("initial-shards", "700", "initial shard reserve (whole units)")
	simulateCmd.Flags().String("initial-price", "1", "initial price in value units per shard")
	simulateCmd.Flags().String("min-shard-reserve", "300", "minimum shard reserve")
	simulateCmd.Flags().String("fee-protocol", "0.001", "protocol fee fraction")
	simulateCmd.Flags().String("fee-originator", "0.001", "originator fee fraction")
	simulateCmd.Flags().String("fee-suppliers", "0.003", "supplier fee fraction")
	simulateCmd.Flags().Duration("timelock", 24*time.Hour, "liquidity withdrawal time-lock")
	simulateCmd.Flags().String("start", "", "virtual start time (unix seconds or RFC3339)")
	simulateCmd.Flags().String("script", "", "operation script JSONL")
	simulateCmd.Flags().String("out", "./data/curve_logs.jsonl", "output pool logs JSONL")
	simulateCmd.Flags().String("metrics-file", "", "write prometheus metrics to this textfile")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for logs and the final snapshot")
	simulateCmd.Flags().Bool("continue-on-error", false, "keep going after a failed operation")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Fetch curve pool logs from an RPC node",
		RunE:  runIndexer,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind the head")
	indexCmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	indexCmd.Flags().StringSlice("topic0", nil, "topic0 hashes or curve event names, empty means all curve events")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("pg-dsn", "", "optional Postgres DSN, logs are also written to pool_logs")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw pool logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL, optional for offline decoding")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("include-live-meta", false, "include curve coordinates at the log block (requires archive RPC)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("rpc", "", "RPC URL, optional")
	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("fee-rate", "", "total pool fee fraction for fee estimates (e.g. 0.005)")
	aggregateCmd.Flags().Int("shard-decimals", 0, "shard registry decimals when it cannot be queried")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read a deployed pool's curve and ledger state",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("rpc", "", "RPC URL")
	inspectCmd.Flags().String("pool", "", "pool address")
	inspectCmd.Flags().String("shard-registry", "", "optional shard registry address for token metadata")
	inspectCmd.Flags().String("account", "", "optional account whose LP shares are read")
	inspectCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	inspectCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store the snapshot")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sinks := storage.Fanout{storage.NewJsonlStorage(cfg.Out)}
	if cfg.PGDSN != "" {
		store, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Confirmations:     cfg.Confirmations,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sinks, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

// openStore connects to Postgres and applies the embedded schema.
func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return store, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
