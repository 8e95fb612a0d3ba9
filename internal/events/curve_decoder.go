package events

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"shardcurve/internal/curve"
	"shardcurve/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// CurveDecoder decodes bonding curve pool events.
type CurveDecoder struct {
	curveABI    abi.ABI
	topicToName map[string]string
}

var eventNames = []string{
	curve.EventInitialized,
	curve.EventShardsBought,
	curve.EventShardsSold,
	curve.EventEtherSupplied,
	curve.EventShardsSupplied,
	curve.EventEtherWithdrawn,
	curve.EventShardsWithdrawn,
	curve.EventTransferEthLPTokens,
	curve.EventTransferShardLPTokens,
}

// NewCurveDecoder builds a curve pool decoder.
func NewCurveDecoder(cfg DecoderConfig) (*CurveDecoder, error) {
	curveABI, err := CurveABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventNames))
	for _, name := range eventNames {
		topicToName[strings.ToLower(curveABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &CurveDecoder{
		curveABI:    curveABI,
		topicToName: topicToName,
	}, nil
}

// Topic0s returns the event signature hashes of every curve event.
func Topic0s() ([]common.Hash, error) {
	curveABI, err := CurveABI()
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		out = append(out, curveABI.Events[name].ID)
	}
	return out, nil
}

// CanDecode checks if the topic0 is supported.
func (d *CurveDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *CurveDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}
	pool := common.HexToAddress(log.Address)

	event := d.curveABI.Events[name]
	indexed, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	amounts := make([]string, 0, len(values))
	for _, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		amounts = append(amounts, amount.String())
	}
	if want := len(event.Inputs.NonIndexed()); len(amounts) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", name, len(amounts))
	}

	var decoded interface{}
	switch name {
	case curve.EventInitialized:
		initialized := model.InitializedData{ShardRegistry: indexed[0].Hex(), Owner: indexed[1].Hex()}
		if ctx.PoolMetaCache != nil {
			meta, _ := ctx.PoolMetaCache.Get(pool)
			meta.ShardRegistry = initialized.ShardRegistry
			meta.Owner = initialized.Owner
			ctx.PoolMetaCache.Set(pool, meta)
		}
		decoded = initialized
	case curve.EventShardsBought:
		decoded = model.ShardsBoughtData{Buyer: indexed[0].Hex(), ShardAmount: amounts[0], ValuePaid: amounts[1]}
	case curve.EventShardsSold:
		decoded = model.ShardsSoldData{Seller: indexed[0].Hex(), ShardAmount: amounts[0], ValueReceived: amounts[1]}
	case curve.EventEtherSupplied, curve.EventShardsSupplied:
		decoded = model.SupplyData{Supplier: indexed[0].Hex(), Amount: amounts[0]}
	case curve.EventEtherWithdrawn, curve.EventShardsWithdrawn:
		decoded = model.WithdrawData{Supplier: indexed[0].Hex(), ValueAmount: amounts[0], ShardAmount: amounts[1]}
	case curve.EventTransferEthLPTokens, curve.EventTransferShardLPTokens:
		decoded = model.LPTransferData{From: indexed[0].Hex(), To: indexed[1].Hex(), Amount: amounts[0]}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}

	return buildTypedEvent(log, name, decoded, poolMeta(ctx, pool, log.BlockNumber)), nil
}

func normalizeEventName(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for _, known := range eventNames {
		if strings.ToLower(known) == trimmed {
			return known
		}
	}
	return ""
}

func poolMeta(ctx DecodeContext, pool common.Address, blockNumber uint64) model.PoolMeta {
	var meta model.PoolMeta
	if ctx.PoolMetaCache != nil {
		meta, _ = ctx.PoolMetaCache.Get(pool)
	}
	if !ctx.IncludeLiveMeta || ctx.Chain == nil {
		return meta
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}
	coords, err := FetchCoordinates(callCtx, ctx.Chain, pool, blockNumber)
	if err != nil {
		if ctx.Logger != nil {
			ctx.Logger.Debug("curve coordinates call failed", zap.String("pool", pool.Hex()), zap.Uint64("block", blockNumber), zap.Error(err))
		}
		return meta
	}
	meta.Live = &coords
	return meta
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

// parseIndexedTopics returns the indexed address arguments in declaration order.
func parseIndexedTopics(event abi.Event, topics []string) ([]common.Address, error) {
	indexedCount := 0
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexedCount++
		}
	}
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(hashes))
	for _, hash := range hashes {
		out = append(out, common.BytesToAddress(hash.Bytes()))
	}
	return out, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
