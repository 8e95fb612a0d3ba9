package model

// Pool is a curve pool record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	ShardRegistry  string `json:"shard_registry"`
	Owner          string `json:"owner"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
