package stock

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wheelworks/wheelworks/internal/shared"
)

func TestApplyDeltaClampsFloatNoise(t *testing.T) {
	level := StockLevel{ItemID: 1, LocationID: 1, Quantity: 0.3}
	level, err := ApplyDelta(level, -0.1, 0, false)
	require.NoError(t, err)
	level, err = ApplyDelta(level, -0.1, 0, false)
	require.NoError(t, err)
	level, err = ApplyDelta(level, -0.1, 0, false)
	require.NoError(t, err)
	require.Zero(t, level.Quantity, "residual float noise must clamp to exactly zero")
}

func TestApplyDeltaRejectsNegativeQuantity(t *testing.T) {
	level := StockLevel{ItemID: 1, LocationID: 1, Quantity: 2}
	_, err := ApplyDelta(level, -3, 0, false)
	require.ErrorIs(t, err, shared.ErrInvariantViolation)

	lvl, err := ApplyDelta(level, -3, 0, true)
	require.NoError(t, err)
	require.InDelta(t, -1, lvl.Quantity, 0.0001)
}

func TestApplyDeltaReservationBounds(t *testing.T) {
	level := StockLevel{ItemID: 1, LocationID: 1, Quantity: 10, Reserved: 4}

	_, err := ApplyDelta(level, 0, -5, false)
	require.ErrorIs(t, err, shared.ErrInvariantViolation, "reserved below zero")

	_, err = ApplyDelta(level, 0, 7, false)
	require.ErrorIs(t, err, shared.ErrInvariantViolation, "reserved above on hand")

	lvl, err := ApplyDelta(level, 0, 6, false)
	require.NoError(t, err)
	require.InDelta(t, 10, lvl.Reserved, 0.0001)
	require.InDelta(t, 0, lvl.Available(), 0.0001)
}

func TestWeightedAverage(t *testing.T) {
	avg := WeightedAverage(10, decimal.NewFromFloat(5), 10, decimal.NewFromFloat(7))
	require.True(t, avg.Equal(decimal.NewFromFloat(6)), "got %s", avg)

	// First receipt into an empty item takes the receipt cost verbatim.
	avg = WeightedAverage(0, decimal.Zero, 4, decimal.NewFromFloat(12.5))
	require.True(t, avg.Equal(decimal.NewFromFloat(12.5)), "got %s", avg)

	// Zero incoming quantity leaves the average untouched.
	avg = WeightedAverage(10, decimal.NewFromFloat(5), 0, decimal.NewFromFloat(99))
	require.True(t, avg.Equal(decimal.NewFromFloat(5)), "got %s", avg)
}
