package events

import (
	"context"

	"go.uber.org/zap"

	"shardcurve/internal/chain"
	"shardcurve/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Chain may be nil when decoding
// offline; live reserves are then left out.
type DecodeContext struct {
	Context         context.Context
	Chain           chain.Caller
	PoolMetaCache   *PoolMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}
