package events

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"shardcurve/internal/chain"
	"shardcurve/internal/curve"
	"shardcurve/internal/model"
)

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

func blockArg(blockNumber uint64) *big.Int {
	if blockNumber == 0 {
		return nil
	}
	return new(big.Int).SetUint64(blockNumber)
}

// FetchCoordinates reads the pool reserves at a block height; zero means latest.
func FetchCoordinates(ctx context.Context, caller chain.Caller, pool common.Address, blockNumber uint64) (model.CurveCoordinates, error) {
	if caller == nil {
		return model.CurveCoordinates{}, fmt.Errorf("chain client is nil")
	}
	curveABI, err := CurveABI()
	if err != nil {
		return model.CurveCoordinates{}, fmt.Errorf("parse curve abi: %w", err)
	}
	block := blockArg(blockNumber)

	values, err := callMethod(ctx, caller, pool, curveABI, "getCurveCoordinates", block)
	if err != nil {
		return model.CurveCoordinates{}, err
	}
	if len(values) != 2 {
		return model.CurveCoordinates{}, fmt.Errorf("unexpected coordinates values: %d", len(values))
	}
	x, err := asBigInt(values[0])
	if err != nil {
		return model.CurveCoordinates{}, fmt.Errorf("shard reserve: %w", err)
	}
	p, err := asBigInt(values[1])
	if err != nil {
		return model.CurveCoordinates{}, fmt.Errorf("price: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, curveABI, "getEthInPool", block)
	if err != nil {
		return model.CurveCoordinates{}, err
	}
	y, err := asBigInt(values[0])
	if err != nil {
		return model.CurveCoordinates{}, fmt.Errorf("value reserve: %w", err)
	}

	return model.CurveCoordinates{
		ShardReserve: x.String(),
		Price:        p.String(),
		ValueReserve: y.String(),
	}, nil
}

// FetchSuppliers reads one side's supplier ledger totals.
func FetchSuppliers(ctx context.Context, caller chain.Caller, pool common.Address, side curve.Side, blockNumber uint64) (model.SupplierTotals, error) {
	if caller == nil {
		return model.SupplierTotals{}, fmt.Errorf("chain client is nil")
	}
	curveABI, err := CurveABI()
	if err != nil {
		return model.SupplierTotals{}, fmt.Errorf("parse curve abi: %w", err)
	}
	method := "getEthSuppliers"
	if side == curve.SideShards {
		method = "getShardSuppliers"
	}
	values, err := callMethod(ctx, caller, pool, curveABI, method, blockArg(blockNumber))
	if err != nil {
		return model.SupplierTotals{}, err
	}
	if len(values) != 4 {
		return model.SupplierTotals{}, fmt.Errorf("unexpected %s values: %d", method, len(values))
	}
	out := make([]string, 0, 4)
	for _, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return model.SupplierTotals{}, fmt.Errorf("%s: %w", method, err)
		}
		out = append(out, v.String())
	}
	return model.SupplierTotals{
		TotalPrincipalPlusFees: out[0],
		TotalLPShares:          out[1],
		FeesToProtocol:         out[2],
		FeesToOriginator:       out[3],
	}, nil
}

// FetchLPTokens reads an account's LP shares on one side.
func FetchLPTokens(ctx context.Context, caller chain.Caller, pool common.Address, side curve.Side, account common.Address, blockNumber uint64) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	curveABI, err := CurveABI()
	if err != nil {
		return nil, fmt.Errorf("parse curve abi: %w", err)
	}
	method := "getEthLPTokens"
	if side == curve.SideShards {
		method = "getShardLPTokens"
	}
	values, err := callMethod(ctx, caller, pool, curveABI, method, blockArg(blockNumber), account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func callMethod(ctx context.Context, caller chain.Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return values, nil
}

// FetchTokenBalance reads the shard registry balance of holder.
func FetchTokenBalance(ctx context.Context, caller chain.Caller, token, holder common.Address, blockNumber uint64) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "balanceOf", blockArg(blockNumber), holder)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// FetchTokenMeta loads shard registry metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller chain.Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		return callMethod(ctx, caller, token, parsed, method, nil)
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else if logger != nil {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
