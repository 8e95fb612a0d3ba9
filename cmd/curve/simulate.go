package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardcurve/internal/config"
	"shardcurve/internal/metrics"
	"shardcurve/internal/model"
	"shardcurve/internal/simulate"
	"shardcurve/internal/storage"
	"shardcurve/internal/storage/postgres"
)

type simulateOutput struct {
	Report   simulate.Report    `json:"report"`
	Snapshot model.PoolSnapshot `json:"snapshot"`
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadCurve(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	params, err := cfg.InitParams(simulate.AccountAddress)
	if err != nil {
		return err
	}
	pool, err := simulate.AccountAddress(cfg.Pool)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	var start time.Time
	if strings.TrimSpace(cfg.Start) != "" {
		ts, err := config.ParseTimestamp(cfg.Start)
		if err != nil {
			return fmt.Errorf("parse start: %w", err)
		}
		start = time.Unix(int64(ts), 0).UTC()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Fanout{}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorageFresh(cfg.Out))
	}
	var store *postgres.Store
	if cfg.PGDSN != "" {
		pg, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		sinks = append(sinks, pg)
		store = pg
	}

	writer := storage.NewEventWriter(sinks, logger)
	collector := metrics.NewCollector(pool)

	sim, err := simulate.New(simulate.Options{
		ChainID:         cfg.ChainID,
		Pool:            pool,
		Start:           start,
		Writer:          writer,
		Metrics:         collector,
		Logger:          logger,
		ContinueOnError: cfg.ContinueOnError,
	})
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("pool", pool.Hex()),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("script", cfg.Script),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Duration("timelock", cfg.Timelock),
	)

	if err := sim.Initialize(ctx, params); err != nil {
		return err
	}

	var script io.Reader = strings.NewReader("")
	if cfg.Script != "" {
		file, err := os.Open(cfg.Script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer file.Close()
		script = file
	}

	report, runErr := sim.Run(ctx, script)
	if runErr != nil {
		logger.Error("simulation stopped", zap.Error(runErr))
		if err := writer.Flush(); err != nil {
			logger.Error("flush events failed", zap.Error(err))
		}
	}

	snapshot := sim.PoolSnapshot()
	if store != nil {
		if err := store.UpsertPools(ctx, []model.Pool{{
			ChainID:        cfg.ChainID,
			Address:        pool.Hex(),
			ShardRegistry:  params.ShardRegistry.Hex(),
			Owner:          params.Owner.Hex(),
			FirstSeenBlock: 1,
		}}); err != nil {
			return fmt.Errorf("store pool: %w", err)
		}
		if err := store.InsertSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	logger.Info("simulate complete",
		zap.Int("applied", report.Applied),
		zap.Int("expected_failures", report.Expected),
		zap.Int("failed", report.Failed),
		zap.Uint64("last_block", sim.Block()),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(simulateOutput{Report: report, Snapshot: snapshot}); err != nil {
		return err
	}
	return runErr
}
