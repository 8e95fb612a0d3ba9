package curve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestParseWad(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"0.003", "3000000000000000"},
		{"1.5", "1500000000000000000"},
		{"1", "1000000000000000000"},
		{"", "0"},
		{" 0.000000000000000001 ", "1"},
	}
	for _, tc := range cases {
		got, err := ParseWad(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, got.Dec(), tc.input)
	}

	for _, bad := range []string{"abc", "-1", "0.0000000000000000001"} {
		_, err := ParseWad(bad)
		require.Error(t, err, bad)
	}
}

func TestFormatWad(t *testing.T) {
	require.Equal(t, "1", FormatWad(Wad))
	require.Equal(t, "0", FormatWad(zero()))
	require.Equal(t, "0", FormatWad(nil))
	require.Equal(t, "1.5", FormatWad(uint256.NewInt(1_500_000_000_000_000_000)))
	require.Equal(t, "0.003", FormatWad(uint256.NewInt(3_000_000_000_000_000)))
}

func TestMulDivRounding(t *testing.T) {
	down, err := mulDiv(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(7), down)

	up, err := mulDivUp(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(8), up)

	exact, err := mulDivUp(uint256.NewInt(8), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(6), exact)

	_, err = mulDiv(uint256.NewInt(1), uint256.NewInt(1), zero())
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	_, err := add(top, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = sub(zero(), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = mul(top, uint256.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)

	// the intermediate product exceeds 256 bits but the quotient fits
	got, err := mulDiv(top, uint256.NewInt(2), uint256.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Rsh(top, 1), got)

	require.Equal(t, uint256.NewInt(5), surplus(uint256.NewInt(8), uint256.NewInt(3)))
	require.True(t, surplus(uint256.NewInt(3), uint256.NewInt(8)).IsZero())
	require.Equal(t, uint256.NewInt(3), minOf(uint256.NewInt(8), uint256.NewInt(3)))
}
