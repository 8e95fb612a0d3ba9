package curve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func schedule(t *testing.T, protocol, originator, suppliers string) FeeSchedule {
	t.Helper()
	parse := func(s string) *uint256.Int {
		v, err := ParseWad(s)
		require.NoError(t, err)
		return v
	}
	return FeeSchedule{Protocol: parse(protocol), Originator: parse(originator), Suppliers: parse(suppliers)}
}

func TestFeeScheduleValidate(t *testing.T) {
	require.NoError(t, schedule(t, "0.001", "0.001", "0.003").Validate())
	require.NoError(t, schedule(t, "0.5", "0.25", "0.25").Validate())
	require.NoError(t, FeeSchedule{}.Validate())

	err := schedule(t, "0.5", "0.25", "0.250000000000000001").Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSplitRoundsEachBucketUp(t *testing.T) {
	fees := schedule(t, "0.001", "0.001", "0.003")

	split, err := fees.Split(uint256.NewInt(1001), true)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(2), split.Protocol)
	require.Equal(t, uint256.NewInt(2), split.Originator)
	require.Equal(t, uint256.NewInt(4), split.Suppliers)
	require.Equal(t, uint256.NewInt(8), split.Total())

	split, err = fees.Split(uint256.NewInt(1000), false)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1), split.Protocol)
	require.True(t, split.Originator.IsZero())
	require.Equal(t, uint256.NewInt(3), split.Suppliers)

	split, err = fees.Split(zero(), true)
	require.NoError(t, err)
	require.True(t, split.Total().IsZero())
}

func TestSplitConservesFees(t *testing.T) {
	fees := schedule(t, "0.0025", "0.001", "0.004")
	amount := uint256.NewInt(987_654_321_123_456_789)

	split, err := fees.Split(amount, true)
	require.NoError(t, err)

	sum := new(uint256.Int).Add(split.Protocol, split.Originator)
	sum.Add(sum, split.Suppliers)
	require.Equal(t, sum, split.Total())

	// each bucket rounds up by less than one unit
	floor, err := mulDiv(amount, new(uint256.Int).Add(new(uint256.Int).Add(fees.Protocol, fees.Originator), fees.Suppliers), Wad)
	require.NoError(t, err)
	require.False(t, split.Total().Lt(floor))
	require.False(t, split.Total().Gt(new(uint256.Int).AddUint64(floor, 3)))
}
