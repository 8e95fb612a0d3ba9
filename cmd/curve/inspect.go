package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shardcurve/internal/chain"
	"shardcurve/internal/curve"
	"shardcurve/internal/events"
	"shardcurve/internal/model"
)

type inspectReport struct {
	Snapshot      model.PoolSnapshot `json:"snapshot"`
	NativeBalance string             `json:"native_balance,omitempty"`
	ShardRegistry *model.TokenMeta   `json:"shard_registry,omitempty"`
	Account       *accountShares     `json:"account,omitempty"`
}

type accountShares struct {
	Address     string `json:"address"`
	EthShares   string `json:"eth_lp_shares"`
	ShardShares string `json:"shard_lp_shares"`
}

func runInspect(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	rpcURL, _ := flags.GetString("rpc")
	poolInput, _ := flags.GetString("pool")
	registryInput, _ := flags.GetString("shard-registry")
	accountInput, _ := flags.GetString("account")
	blockNumber, _ := flags.GetUint64("block")
	pgDSN, _ := flags.GetString("pg-dsn")
	level, _ := flags.GetString("log-level")

	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if rpcURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(poolInput) {
		return fmt.Errorf("invalid pool address: %q", poolInput)
	}
	pool := common.HexToAddress(poolInput)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if blockNumber == 0 {
		if blockNumber, err = chainClient.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}

	coords, err := events.FetchCoordinates(ctx, chainClient, pool, blockNumber)
	if err != nil {
		return fmt.Errorf("curve coordinates: %w", err)
	}
	ethSuppliers, err := events.FetchSuppliers(ctx, chainClient, pool, curve.SideEther, blockNumber)
	if err != nil {
		return fmt.Errorf("eth suppliers: %w", err)
	}
	shardSuppliers, err := events.FetchSuppliers(ctx, chainClient, pool, curve.SideShards, blockNumber)
	if err != nil {
		return fmt.Errorf("shard suppliers: %w", err)
	}

	report := inspectReport{
		Snapshot: model.PoolSnapshot{
			ChainID:        chainID.Uint64(),
			PoolAddress:    pool.Hex(),
			BlockNumber:    blockNumber,
			TakenAt:        time.Now().UTC(),
			Coordinates:    coords,
			EthSuppliers:   ethSuppliers,
			ShardSuppliers: shardSuppliers,
		},
	}

	// Reserve plus fees not yet withdrawn by the protocol and originator.
	native, err := chainClient.BalanceAt(ctx, pool, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		logger.Warn("pool balance call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	} else {
		report.NativeBalance = native.String()
	}

	if registryInput != "" {
		if !common.IsHexAddress(registryInput) {
			return fmt.Errorf("invalid shard registry address: %q", registryInput)
		}
		registry := common.HexToAddress(registryInput)
		meta, err := events.FetchTokenMeta(ctx, chainClient, registry, logger)
		if err != nil {
			return fmt.Errorf("shard registry metadata: %w", err)
		}
		balance, err := events.FetchTokenBalance(ctx, chainClient, registry, pool, blockNumber)
		if err != nil {
			logger.Warn("shard balance call failed", zap.String("registry", registry.Hex()), zap.Error(err))
		} else {
			meta.Balance = balance.String()
		}
		report.ShardRegistry = &meta
	}

	if accountInput != "" {
		if !common.IsHexAddress(accountInput) {
			return fmt.Errorf("invalid account address: %q", accountInput)
		}
		account := common.HexToAddress(accountInput)
		ethShares, err := events.FetchLPTokens(ctx, chainClient, pool, curve.SideEther, account, blockNumber)
		if err != nil {
			return fmt.Errorf("eth lp shares: %w", err)
		}
		shardShares, err := events.FetchLPTokens(ctx, chainClient, pool, curve.SideShards, account, blockNumber)
		if err != nil {
			return fmt.Errorf("shard lp shares: %w", err)
		}
		report.Account = &accountShares{
			Address:     account.Hex(),
			EthShares:   ethShares.String(),
			ShardShares: shardShares.String(),
		}
	}

	if pgDSN != "" {
		store, err := openStore(ctx, pgDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.InsertSnapshot(ctx, report.Snapshot); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
		logger.Info("snapshot stored", zap.String("pool", pool.Hex()), zap.Uint64("block", blockNumber))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
