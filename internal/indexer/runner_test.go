package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"shardcurve/internal/events"
	"shardcurve/internal/model"
)

var testPool = common.HexToAddress("0x00000000000000000000000000000000000000c0")

type fakeSource struct {
	latest      uint64
	logs        []types.Log
	failFilters int
	filterCalls int
	topics      []common.Hash
}

func (f *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number*12, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.filterCalls++
	f.topics = topic0
	if f.failFilters > 0 {
		f.failFilters--
		return nil, errors.New("rpc unavailable")
	}
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type memoryStorage struct {
	records []model.LogRecord
}

func (m *memoryStorage) PutLogBatch(logs []model.LogRecord) error {
	m.records = append(m.records, logs...)
	return nil
}

func curveLog(block uint64, index uint, removed bool) types.Log {
	return types.Log{
		Address:     testPool,
		Topics:      []common.Hash{common.HexToHash("0x01")},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
		Removed:     removed,
	}
}

func TestRunnerStoresLogsAndCheckpoints(t *testing.T) {
	source := &fakeSource{
		latest: 20,
		logs: []types.Log{
			curveLog(10, 0, false),
			curveLog(10, 0, false),
			curveLog(11, 1, true),
			curveLog(14, 2, false),
		},
		failFilters: 1,
	}
	sink := &memoryStorage{}
	cpPath := filepath.Join(t.TempDir(), "checkpoint.json")

	runner := NewRunner(RunConfig{
		FromBlock:         10,
		Confirmations:     5,
		Addresses:         []common.Address{testPool},
		BatchSize:         3,
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
	}, source, sink, zap.NewNop())

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sink.records))
	}
	if sink.records[0].ChainID != 31337 || sink.records[0].Timestamp != 1700000120 {
		t.Fatalf("unexpected record: %+v", sink.records[0])
	}

	want, err := events.Topic0s()
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(source.topics) != len(want) {
		t.Fatalf("expected default curve topics, got %d", len(source.topics))
	}

	cp, ok, err := NewCheckpointStore(cpPath, true).Load()
	if err != nil || !ok {
		t.Fatalf("load checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastProcessedBlock != 15 {
		t.Fatalf("checkpoint should stop at latest minus confirmations, got %d", cp.LastProcessedBlock)
	}
	if !cp.Covers([]common.Address{testPool}) {
		t.Fatalf("checkpoint should cover the indexed pool")
	}
}

func TestRunnerRejectsForeignCheckpoint(t *testing.T) {
	cpPath := filepath.Join(t.TempDir(), "checkpoint.json")
	other := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	if err := NewCheckpointStore(cpPath, true).Save(5, []common.Address{other}); err != nil {
		t.Fatalf("save: %v", err)
	}

	runner := NewRunner(RunConfig{
		ToBlock:           10,
		Addresses:         []common.Address{testPool},
		BatchSize:         5,
		CheckpointPath:    cpPath,
		CheckpointEnabled: true,
	}, &fakeSource{latest: 10}, &memoryStorage{}, nil)

	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected checkpoint mismatch error")
	}
}

func TestRunnerGivesUpAfterRetries(t *testing.T) {
	source := &fakeSource{latest: 3, failFilters: 10}
	runner := NewRunner(RunConfig{
		Addresses:    []common.Address{testPool},
		BatchSize:    10,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, source, &memoryStorage{}, nil)

	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected filter error")
	}
	if source.filterCalls != 2 {
		t.Fatalf("expected 2 filter attempts, got %d", source.filterCalls)
	}
}

func TestParseTopic0AcceptsEventNames(t *testing.T) {
	curveABI, err := events.CurveABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	topics, err := ParseTopic0([]string{"ShardsBought", " ", curveABI.Events["ShardsSold"].ID.Hex()})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if topics[0] != curveABI.Events["ShardsBought"].ID || topics[1] != curveABI.Events["ShardsSold"].ID {
		t.Fatalf("topics mismatch: %v", topics)
	}
	if _, err := ParseTopic0([]string{"Swap"}); err == nil {
		t.Fatalf("expected error for unknown event")
	}
	if _, err := ParseTopic0([]string{"0x1234"}); err == nil {
		t.Fatalf("expected error for short topic")
	}
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{"0x00000000000000000000000000000000000000c0", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0] != testPool {
		t.Fatalf("addresses mismatch: %v", got)
	}
	if _, err := ParseAddresses([]string{"pool"}); err == nil {
		t.Fatalf("expected error for invalid address")
	}
}
