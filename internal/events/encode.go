package events

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"shardcurve/internal/curve"
	"shardcurve/internal/model"
)

// Encode packs a curve event the way the pool contract logs it.
func Encode(event curve.Event) ([]common.Hash, []byte, error) {
	curveABI, err := CurveABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse curve abi: %w", err)
	}
	abiEvent, ok := curveABI.Events[event.EventName()]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported event name: %s", event.EventName())
	}

	indexed, values, err := eventArguments(event)
	if err != nil {
		return nil, nil, err
	}

	query := make([][]interface{}, 0, len(indexed))
	for _, addr := range indexed {
		query = append(query, []interface{}{addr})
	}
	topicSets, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, nil, fmt.Errorf("make topics %s: %w", abiEvent.Name, err)
	}
	topics := make([]common.Hash, 0, len(topicSets)+1)
	topics = append(topics, abiEvent.ID)
	for _, set := range topicSets {
		topics = append(topics, set[0])
	}

	data, err := abiEvent.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", abiEvent.Name, err)
	}
	return topics, data, nil
}

// eventArguments splits an event into indexed addresses and non-indexed amounts, both in
// ABI declaration order.
func eventArguments(event curve.Event) ([]common.Address, []interface{}, error) {
	switch e := event.(type) {
	case curve.Initialized:
		return []common.Address{e.ShardRegistry, e.Owner}, nil, nil
	case curve.ShardsBought:
		return []common.Address{e.Buyer}, amounts(e.ShardAmount, e.ValuePaid), nil
	case curve.ShardsSold:
		return []common.Address{e.Seller}, amounts(e.ShardAmount, e.ValueReceived), nil
	case curve.EtherSupplied:
		return []common.Address{e.Supplier}, amounts(e.Amount), nil
	case curve.ShardsSupplied:
		return []common.Address{e.Supplier}, amounts(e.Amount), nil
	case curve.EtherWithdrawn:
		return []common.Address{e.Supplier}, amounts(e.ValueAmount, e.ShardAmount), nil
	case curve.ShardsWithdrawn:
		return []common.Address{e.Supplier}, amounts(e.ValueAmount, e.ShardAmount), nil
	case curve.TransferEthLPTokens:
		return []common.Address{e.From, e.To}, amounts(e.Amount), nil
	case curve.TransferShardLPTokens:
		return []common.Address{e.From, e.To}, amounts(e.Amount), nil
	default:
		return nil, nil, fmt.Errorf("unsupported event type %T", event)
	}
}

func amounts(values ...*uint256.Int) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v == nil {
			out = append(out, new(big.Int))
			continue
		}
		out = append(out, v.ToBig())
	}
	return out
}

// LogPosition places a simulated event in a chain-like sequence.
type LogPosition struct {
	ChainID     uint64
	Pool        common.Address
	BlockNumber uint64
	TxIndex     uint64
	LogIndex    uint64
	Timestamp   time.Time
}

// NewLogRecord encodes event as a LogRecord at pos. Block and transaction hashes are derived
// from the position so repeated runs of the same script produce identical records.
func NewLogRecord(pos LogPosition, event curve.Event) (model.LogRecord, error) {
	topics, data, err := Encode(event)
	if err != nil {
		return model.LogRecord{}, err
	}

	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], pos.ChainID)
	binary.BigEndian.PutUint64(buf[8:16], pos.BlockNumber)
	blockHash := crypto.Keccak256Hash(pos.Pool.Bytes(), buf[:16])
	binary.BigEndian.PutUint64(buf[16:24], pos.TxIndex)
	txHash := crypto.Keccak256Hash(pos.Pool.Bytes(), buf[:])

	var ts uint64
	if !pos.Timestamp.IsZero() {
		ts = uint64(pos.Timestamp.Unix())
	}
	log := types.Log{
		Address:     pos.Pool,
		Topics:      topics,
		Data:        data,
		BlockNumber: pos.BlockNumber,
		TxHash:      txHash,
		TxIndex:     uint(pos.TxIndex),
		BlockHash:   blockHash,
		Index:       uint(pos.LogIndex),
	}
	return RecordFromLog(pos.ChainID, log, ts, pos.Timestamp), nil
}

// RecordFromLog converts a fetched chain log into a LogRecord.
func RecordFromLog(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
