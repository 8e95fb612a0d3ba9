package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shardcurve/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for pool logs, metrics and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutLogBatch stores raw pool logs; logs already present are left untouched.
func (s *Store) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		record, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("marshal log record: %w", err)
		}
		batch.Queue(`
			INSERT INTO pool_logs (
				chain_id, tx_hash, log_index, block_number, block_hash, pool_address, topic0, record, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			log.TxHash,
			int64(log.LogIndex),
			int64(log.BlockNumber),
			log.BlockHash,
			log.Address,
			log.Topic0(),
			record,
		)
	}
	return s.sendBatch(context.Background(), batch)
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, shard_registry, owner, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				shard_registry = COALESCE(NULLIF(EXCLUDED.shard_registry, ''), pools.shard_registry),
				owner = COALESCE(NULLIF(EXCLUDED.owner, ''), pools.owner),
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.ShardRegistry,
			pool.Owner,
			int64(pool.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				buy_count, sell_count, shards_bought, shards_sold, value_paid, value_received,
				ether_supplied, shards_supplied, ether_withdrawn, shards_withdrawn,
				fee_value, fee_shards, last_price, shard_reserve, value_reserve, fee_yield, apr,
				fee_method, reserve_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				buy_count = EXCLUDED.buy_count,
				sell_count = EXCLUDED.sell_count,
				shards_bought = EXCLUDED.shards_bought,
				shards_sold = EXCLUDED.shards_sold,
				value_paid = EXCLUDED.value_paid,
				value_received = EXCLUDED.value_received,
				ether_supplied = EXCLUDED.ether_supplied,
				shards_supplied = EXCLUDED.shards_supplied,
				ether_withdrawn = EXCLUDED.ether_withdrawn,
				shards_withdrawn = EXCLUDED.shards_withdrawn,
				fee_value = EXCLUDED.fee_value,
				fee_shards = EXCLUDED.fee_shards,
				last_price = EXCLUDED.last_price,
				shard_reserve = EXCLUDED.shard_reserve,
				value_reserve = EXCLUDED.value_reserve,
				fee_yield = EXCLUDED.fee_yield,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				reserve_method = EXCLUDED.reserve_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.BuyCount),
			int64(m.SellCount),
			m.ShardsBought,
			m.ShardsSold,
			m.ValuePaid,
			m.ValueReceived,
			m.EtherSupplied,
			m.ShardsSupplied,
			m.EtherWithdrawn,
			m.ShardsWithdrawn,
			m.FeeValue,
			m.FeeShards,
			m.LastPrice,
			m.ShardReserve,
			m.ValueReserve,
			m.FeeYield,
			m.APR,
			m.FeeMethod,
			m.ReserveMethod,
		)
	}
	return s.sendBatch(ctx, batch)
}

// InsertSnapshot records pool reserves and supplier ledgers at a block.
func (s *Store) InsertSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	eth, err := json.Marshal(snap.EthSuppliers)
	if err != nil {
		return fmt.Errorf("marshal eth suppliers: %w", err)
	}
	shard, err := json.Marshal(snap.ShardSuppliers)
	if err != nil {
		return fmt.Errorf("marshal shard suppliers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			chain_id, pool_address, block_number, taken_at, shard_reserve, price, value_reserve,
			eth_suppliers, shard_suppliers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain_id, pool_address, block_number) DO UPDATE SET
			taken_at = EXCLUDED.taken_at,
			shard_reserve = EXCLUDED.shard_reserve,
			price = EXCLUDED.price,
			value_reserve = EXCLUDED.value_reserve,
			eth_suppliers = EXCLUDED.eth_suppliers,
			shard_suppliers = EXCLUDED.shard_suppliers
	`,
		int64(snap.ChainID),
		snap.PoolAddress,
		int64(snap.BlockNumber),
		snap.TakenAt,
		snap.Coordinates.ShardReserve,
		snap.Coordinates.Price,
		snap.Coordinates.ValueReserve,
		eth,
		shard,
	)
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
