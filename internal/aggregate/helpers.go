package aggregate

import (
	"math/big"
	"time"
)

const (
	ratioScale    = 18
	valueDecimals = 18
)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// computeFeeYield values the window's fees in value units against the value reserve. Shard
// fees are converted at price (WAD).
func computeFeeYield(feeValue, feeShards, price, valueReserve *big.Int) *string {
	if valueReserve == nil || valueReserve.Sign() == 0 {
		return nil
	}
	total := new(big.Int)
	if feeValue != nil {
		total.Add(total, feeValue)
	}
	if feeShards != nil && price != nil {
		converted := new(big.Int).Mul(feeShards, price)
		total.Add(total, converted.Div(converted, wad))
	}
	if total.Sign() == 0 {
		return nil
	}
	rate := new(big.Rat).SetFrac(total, valueReserve).FloatString(ratioScale)
	return &rate
}

func computeAPR(feeYield *string, windowSeconds uint64) *string {
	if windowSeconds == 0 || feeYield == nil {
		return nil
	}
	rat, ok := new(big.Rat).SetString(*feeYield)
	if !ok {
		return nil
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds), 1)
	apr := new(big.Rat).Mul(rat, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}
