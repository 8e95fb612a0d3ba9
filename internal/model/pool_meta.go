package model

// PoolMeta captures the pool identity set at initialization with optional live reserves.
type PoolMeta struct {
	ShardRegistry string            `json:"shard_registry,omitempty"`
	Owner         string            `json:"owner,omitempty"`
	Live          *CurveCoordinates `json:"live,omitempty"`
}

// CurveCoordinates are the reserves read from getCurveCoordinates and getEthInPool.
type CurveCoordinates struct {
	ShardReserve string `json:"shard_reserve"`
	Price        string `json:"price"`
	ValueReserve string `json:"value_reserve"`
}

// SupplierTotals mirrors getEthSuppliers and getShardSuppliers.
type SupplierTotals struct {
	TotalPrincipalPlusFees string `json:"total_principal_plus_fees"`
	TotalLPShares          string `json:"total_lp_shares"`
	FeesToProtocol         string `json:"fees_to_protocol"`
	FeesToOriginator       string `json:"fees_to_originator"`
}
