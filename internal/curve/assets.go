package curve

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Asset identifies which fungible asset a transfer moves.
type Asset int

const (
	AssetValue Asset = iota
	AssetShards
)

func (a Asset) String() string {
	switch a {
	case AssetValue:
		return "value"
	case AssetShards:
		return "shards"
	default:
		return fmt.Sprintf("asset(%d)", int(a))
	}
}

// AssetMover moves value units and shards between accounts. Pulling shards from an account
// other than the pool must honor the shard registry's allowance rules.
type AssetMover interface {
	Transfer(ctx context.Context, asset Asset, from, to common.Address, amount *uint256.Int) error
}

// Transfer is one asset movement planned by an operation.
type Transfer struct {
	Asset  Asset
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// settle performs transfers in order. When one fails, the completed ones are reversed in
// reverse order and ErrTransferFailed is returned. A reversal cannot restore a spent shard
// allowance, so plans put any shard pull from a non-pool account last.
func settle(ctx context.Context, mover AssetMover, transfers []Transfer, logger *zap.Logger) error {
	done := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if isZero(t.Amount) {
			continue
		}
		if err := mover.Transfer(ctx, t.Asset, t.From, t.To, t.Amount); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				back := done[i]
				if rerr := mover.Transfer(ctx, back.Asset, back.To, back.From, back.Amount); rerr != nil {
					logger.Error("reverse transfer failed",
						zap.Stringer("asset", back.Asset),
						zap.String("from", back.To.Hex()),
						zap.String("to", back.From.Hex()),
						zap.String("amount", back.Amount.Dec()),
						zap.Error(rerr),
					)
				}
			}
			return fmt.Errorf("%w: %s %s from %s to %s: %v", ErrTransferFailed, t.Amount.Dec(), t.Asset, t.From.Hex(), t.To.Hex(), err)
		}
		done = append(done, t)
	}
	return nil
}
