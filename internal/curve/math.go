package curve

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// WadDecimals is the fixed-point precision used for prices and fee fractions.
const WadDecimals = 18

// Wad is 1.0 in 18-decimal fixed point.
var Wad = uint256.NewInt(1_000_000_000_000_000_000)

func zero() *uint256.Int { return new(uint256.Int) }

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return new(uint256.Int).Set(v)
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add %s + %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub %s - %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul %s * %s: %w", a, b, ErrOverflow)
	}
	return z, nil
}

// mulDiv returns floor(a*b/d) using a 512-bit intermediate.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("mulDiv by zero: %w", ErrOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, fmt.Errorf("mulDiv %s * %s / %s: %w", a, b, d, ErrOverflow)
	}
	return z, nil
}

// mulDivUp returns ceil(a*b/d).
func mulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, err := mulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		return add(z, uint256.NewInt(1))
	}
	return z, nil
}

// divUp returns ceil(a/d).
func divUp(a, d *uint256.Int) (*uint256.Int, error) {
	return mulDivUp(a, uint256.NewInt(1), d)
}

func minOf(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return clone(a)
	}
	return clone(b)
}

// surplus returns max(a-b, 0).
func surplus(a, b *uint256.Int) *uint256.Int {
	if a.Gt(b) {
		return new(uint256.Int).Sub(a, b)
	}
	return zero()
}

// ParseWad parses a decimal string such as "0.003" or "1.5" into 18-decimal fixed point.
func ParseWad(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return zero(), nil
	}
	rat, ok := new(big.Rat).SetString(input)
	if !ok {
		return nil, fmt.Errorf("invalid decimal: %s", input)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("negative decimal: %s", input)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(Wad.ToBig()))
	if !scaled.IsInt() {
		return nil, fmt.Errorf("decimal exceeds %d places: %s", WadDecimals, input)
	}
	out, overflow := uint256.FromBig(scaled.Num())
	if overflow {
		return nil, fmt.Errorf("decimal too large: %s", input)
	}
	return out, nil
}

// ParseAmount parses a base-10 integer amount.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return zero(), nil
	}
	out, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return out, nil
}

// FormatWad renders a fixed-point value as a decimal string.
func FormatWad(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	rat := new(big.Rat).SetFrac(v.ToBig(), Wad.ToBig())
	text := rat.FloatString(WadDecimals)
	text = strings.TrimRight(text, "0")
	return strings.TrimSuffix(text, ".")
}
