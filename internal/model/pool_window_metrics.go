package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	ChainID         uint64
	PoolAddress     string
	WindowSizeSecs  int64
	WindowStart     time.Time
	WindowEnd       time.Time
	BuyCount        uint64
	SellCount       uint64
	ShardsBought    string
	ShardsSold      string
	ValuePaid       string
	ValueReceived   string
	EtherSupplied   string
	ShardsSupplied  string
	EtherWithdrawn  string
	ShardsWithdrawn string
	FeeValue        string
	FeeShards       string
	LastPrice       *string
	ShardReserve    *string
	ValueReserve    *string
	FeeYield        *string
	APR             *string
	FeeMethod       string
	ReserveMethod   string
}

// PoolSnapshot is a point-in-time copy of a pool's reserves and supplier ledgers.
type PoolSnapshot struct {
	ChainID        uint64           `json:"chain_id"`
	PoolAddress    string           `json:"pool_address"`
	BlockNumber    uint64           `json:"block_number"`
	TakenAt        time.Time        `json:"taken_at"`
	Coordinates    CurveCoordinates `json:"coordinates"`
	EthSuppliers   SupplierTotals   `json:"eth_suppliers"`
	ShardSuppliers SupplierTotals   `json:"shard_suppliers"`
}
