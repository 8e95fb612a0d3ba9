package model

// Amounts are base-10 integer strings in the asset's smallest unit.

// InitializedData is the decoded Initialized payload.
type InitializedData struct {
	ShardRegistry string `json:"shard_registry"`
	Owner         string `json:"owner"`
}

// ShardsBoughtData is the decoded ShardsBought payload.
type ShardsBoughtData struct {
	Buyer       string `json:"buyer"`
	ShardAmount string `json:"shard_amount"`
	ValuePaid   string `json:"value_paid"`
}

// ShardsSoldData is the decoded ShardsSold payload.
type ShardsSoldData struct {
	Seller        string `json:"seller"`
	ShardAmount   string `json:"shard_amount"`
	ValueReceived string `json:"value_received"`
}

// SupplyData is the decoded EtherSupplied or ShardsSupplied payload.
type SupplyData struct {
	Supplier string `json:"supplier"`
	Amount   string `json:"amount"`
}

// WithdrawData is the decoded EtherWithdrawn or ShardsWithdrawn payload.
type WithdrawData struct {
	Supplier    string `json:"supplier"`
	ValueAmount string `json:"value_amount"`
	ShardAmount string `json:"shard_amount"`
}

// LPTransferData is the decoded TransferEthLPTokens or TransferShardLPTokens payload. Mints
// carry the zero address in From, burns in To.
type LPTransferData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
