package model

import (
	"encoding/json"
	"testing"
)

func TestWithdrawDataJSONStringFields(t *testing.T) {
	payload := WithdrawData{
		Supplier:    "0x1111111111111111111111111111111111111111",
		ValueAmount: "12345678901234567890",
		ShardAmount: "42",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["value_amount"].(string); !ok {
		t.Fatalf("value_amount should be string")
	}
	if _, ok := decoded["shard_amount"].(string); !ok {
		t.Fatalf("shard_amount should be string")
	}
	if decoded["supplier"] != payload.Supplier {
		t.Fatalf("supplier mismatch: %v", decoded["supplier"])
	}
}

func TestTypedEventRecordKeepsRawPayload(t *testing.T) {
	event := TypedEvent{
		ChainID:     1,
		BlockNumber: 10,
		TxHash:      "0xabc",
		LogIndex:    3,
		Address:     "0x00000000000000000000000000000000000000c0",
		EventName:   "ShardsBought",
		Timestamp:   1700000000,
		Decoded: ShardsBoughtData{
			Buyer:       "0x2222222222222222222222222222222222222222",
			ShardAmount: "10",
			ValuePaid:   "11",
		},
		PoolMeta: PoolMeta{Live: &CurveCoordinates{ShardReserve: "690", Price: "1", ValueReserve: "690"}},
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var record TypedEventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	var bought ShardsBoughtData
	if err := json.Unmarshal(record.Decoded, &bought); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if bought.ValuePaid != "11" || bought.Buyer != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("unexpected payload: %+v", bought)
	}
	if record.PoolMeta.Live == nil || record.PoolMeta.Live.ShardReserve != "690" {
		t.Fatalf("live meta lost: %+v", record.PoolMeta)
	}
}
