package model

// TokenMeta captures ERC20 metadata of a shard registry.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	// Balance is the pool's own holding when it was read alongside the metadata.
	Balance string `json:"balance,omitempty"`
}
