package curve

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names match the on-chain event signatures.
const (
	EventInitialized           = "Initialized"
	EventShardsBought          = "ShardsBought"
	EventShardsSold            = "ShardsSold"
	EventEtherSupplied         = "EtherSupplied"
	EventShardsSupplied        = "ShardsSupplied"
	EventEtherWithdrawn        = "EtherWithdrawn"
	EventShardsWithdrawn       = "ShardsWithdrawn"
	EventTransferEthLPTokens   = "TransferEthLPTokens"
	EventTransferShardLPTokens = "TransferShardLPTokens"
)

// Event is emitted after an operation commits.
type Event interface {
	EventName() string
}

type Initialized struct {
	ShardRegistry common.Address
	Owner         common.Address
}

type ShardsBought struct {
	ShardAmount *uint256.Int
	ValuePaid   *uint256.Int
	Buyer       common.Address
}

type ShardsSold struct {
	ShardAmount   *uint256.Int
	ValueReceived *uint256.Int
	Seller        common.Address
}

type EtherSupplied struct {
	Amount   *uint256.Int
	Supplier common.Address
}

type ShardsSupplied struct {
	Amount   *uint256.Int
	Supplier common.Address
}

type EtherWithdrawn struct {
	ValueAmount *uint256.Int
	ShardAmount *uint256.Int
	Supplier    common.Address
}

type ShardsWithdrawn struct {
	ValueAmount *uint256.Int
	ShardAmount *uint256.Int
	Supplier    common.Address
}

// TransferEthLPTokens is also emitted on mint (From is zero) and burn (To is zero).
type TransferEthLPTokens struct {
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

type TransferShardLPTokens struct {
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (Initialized) EventName() string           { return EventInitialized }
func (ShardsBought) EventName() string          { return EventShardsBought }
func (ShardsSold) EventName() string            { return EventShardsSold }
func (EtherSupplied) EventName() string         { return EventEtherSupplied }
func (ShardsSupplied) EventName() string        { return EventShardsSupplied }
func (EtherWithdrawn) EventName() string        { return EventEtherWithdrawn }
func (ShardsWithdrawn) EventName() string       { return EventShardsWithdrawn }
func (TransferEthLPTokens) EventName() string   { return EventTransferEthLPTokens }
func (TransferShardLPTokens) EventName() string { return EventTransferShardLPTokens }

// EventSink receives committed events in emission order.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(event Event) { f(event) }

// MultiSink fans events out to every non-nil sink.
func MultiSink(sinks ...EventSink) EventSink {
	out := make([]EventSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return EventSinkFunc(func(event Event) {
		for _, sink := range out {
			sink.Emit(event)
		}
	})
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
