package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"shardcurve/internal/curve"
	"shardcurve/internal/model"
)

var wad = big.NewInt(1_000_000_000_000_000_000)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID         uint64
	PoolAddress     string
	PoolMeta        model.PoolMeta
	WindowStart     uint64
	WindowEnd       uint64
	BuyCount        uint64
	SellCount       uint64
	ShardsBought    *big.Int
	ShardsSold      *big.Int
	ValuePaid       *big.Int
	ValueReceived   *big.Int
	EtherSupplied   *big.Int
	ShardsSupplied  *big.Int
	EtherWithdrawn  *big.Int
	ShardsWithdrawn *big.Int
	FeeValue        *big.Int
	FeeShards       *big.Int
	// Live is the most recent reserve reading carried by an event in this window.
	Live       *model.CurveCoordinates
	LastBlock  uint64
	LastTS     uint64
	FirstBlock uint64

	// feeRate is the sum of the three fee fractions in WAD, nil when unknown.
	feeRate *big.Int
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64, feeRate *big.Int) *Accumulator {
	return &Accumulator{
		ChainID:         record.ChainID,
		PoolAddress:     record.Address,
		PoolMeta:        record.PoolMeta,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		ShardsBought:    big.NewInt(0),
		ShardsSold:      big.NewInt(0),
		ValuePaid:       big.NewInt(0),
		ValueReceived:   big.NewInt(0),
		EtherSupplied:   big.NewInt(0),
		ShardsSupplied:  big.NewInt(0),
		EtherWithdrawn:  big.NewInt(0),
		ShardsWithdrawn: big.NewInt(0),
		FeeValue:        big.NewInt(0),
		FeeShards:       big.NewInt(0),
		LastBlock:       record.BlockNumber,
		LastTS:          record.Timestamp,
		FirstBlock:      record.BlockNumber,
		feeRate:         feeRate,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
		if record.PoolMeta.Live != nil {
			a.Live = record.PoolMeta.Live
		}
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if record.PoolMeta.ShardRegistry != "" {
		a.PoolMeta.ShardRegistry = record.PoolMeta.ShardRegistry
		a.PoolMeta.Owner = record.PoolMeta.Owner
	}

	switch record.EventName {
	case curve.EventInitialized:
		var initialized model.InitializedData
		if err := json.Unmarshal(record.Decoded, &initialized); err != nil {
			return fmt.Errorf("decode initialized: %w", err)
		}
		a.PoolMeta.ShardRegistry = initialized.ShardRegistry
		a.PoolMeta.Owner = initialized.Owner
		return nil
	case curve.EventShardsBought:
		var bought model.ShardsBoughtData
		if err := json.Unmarshal(record.Decoded, &bought); err != nil {
			return fmt.Errorf("decode shards bought: %w", err)
		}
		return a.applyBuy(bought)
	case curve.EventShardsSold:
		var sold model.ShardsSoldData
		if err := json.Unmarshal(record.Decoded, &sold); err != nil {
			return fmt.Errorf("decode shards sold: %w", err)
		}
		return a.applySell(sold)
	case curve.EventEtherSupplied:
		return a.addSupply(record, a.EtherSupplied)
	case curve.EventShardsSupplied:
		return a.addSupply(record, a.ShardsSupplied)
	case curve.EventEtherWithdrawn, curve.EventShardsWithdrawn:
		var withdrawn model.WithdrawData
		if err := json.Unmarshal(record.Decoded, &withdrawn); err != nil {
			return fmt.Errorf("decode withdrawal: %w", err)
		}
		value, err := parseBigInt(withdrawn.ValueAmount)
		if err != nil {
			return err
		}
		shards, err := parseBigInt(withdrawn.ShardAmount)
		if err != nil {
			return err
		}
		a.EtherWithdrawn.Add(a.EtherWithdrawn, value)
		a.ShardsWithdrawn.Add(a.ShardsWithdrawn, shards)
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applyBuy(bought model.ShardsBoughtData) error {
	shards, err := parseBigInt(bought.ShardAmount)
	if err != nil {
		return err
	}
	paid, err := parseBigInt(bought.ValuePaid)
	if err != nil {
		return err
	}
	a.ShardsBought.Add(a.ShardsBought, shards)
	a.ValuePaid.Add(a.ValuePaid, paid)
	a.FeeValue.Add(a.FeeValue, feeFromPaid(paid, a.feeRate))
	a.BuyCount++
	return nil
}

func (a *Accumulator) applySell(sold model.ShardsSoldData) error {
	shards, err := parseBigInt(sold.ShardAmount)
	if err != nil {
		return err
	}
	received, err := parseBigInt(sold.ValueReceived)
	if err != nil {
		return err
	}
	a.ShardsSold.Add(a.ShardsSold, shards)
	a.ValueReceived.Add(a.ValueReceived, received)
	a.FeeShards.Add(a.FeeShards, feeFromAmount(shards, a.feeRate))
	a.SellCount++
	return nil
}

func (a *Accumulator) addSupply(record model.TypedEventRecord, target *big.Int) error {
	var supply model.SupplyData
	if err := json.Unmarshal(record.Decoded, &supply); err != nil {
		return fmt.Errorf("decode supply: %w", err)
	}
	amount, err := parseBigInt(supply.Amount)
	if err != nil {
		return err
	}
	target.Add(target, amount)
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

// feeFromAmount estimates the fee charged on a sell: fees are taken from the shards sold.
func feeFromAmount(amount *big.Int, feeRate *big.Int) *big.Int {
	if amount == nil || feeRate == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, feeRate)
	return fee.Div(fee, wad)
}

// feeFromPaid estimates the fee inside a buy's total payment, which is swap * (1 + f).
func feeFromPaid(paid *big.Int, feeRate *big.Int) *big.Int {
	if paid == nil || feeRate == nil || feeRate.Sign() == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(paid, feeRate)
	return fee.Div(fee, new(big.Int).Add(wad, feeRate))
}
