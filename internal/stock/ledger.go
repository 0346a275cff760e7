package stock

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// epsilon absorbs float accumulation noise when quantities are driven to zero.
const epsilon = 1e-4

// ApplyDelta applies a quantity delta and a reservation delta to a stock level
// as one unit. Both deltas commit together or the call fails; no caller ever
// observes quantity or reservation updated independently.
func ApplyDelta(level StockLevel, deltaQty, deltaReserved float64, allowNegative bool) (StockLevel, error) {
	newQty := level.Quantity + deltaQty
	newReserved := level.Reserved + deltaReserved

	if math.Abs(newQty) < epsilon {
		newQty = 0
	}
	if math.Abs(newReserved) < epsilon {
		newReserved = 0
	}

	if newQty < 0 && !allowNegative {
		return StockLevel{}, fmt.Errorf("%w: quantity would become %.2f (item=%d location=%d)",
			shared.ErrInvariantViolation, newQty, level.ItemID, level.LocationID)
	}
	if newReserved < 0 {
		return StockLevel{}, fmt.Errorf("%w: reserved would become %.2f (item=%d location=%d)",
			shared.ErrInvariantViolation, newReserved, level.ItemID, level.LocationID)
	}
	if !allowNegative && newReserved > newQty+epsilon {
		return StockLevel{}, fmt.Errorf("%w: reserved %.2f would exceed quantity %.2f (item=%d location=%d)",
			shared.ErrInvariantViolation, newReserved, newQty, level.ItemID, level.LocationID)
	}

	level.Quantity = newQty
	level.Reserved = newReserved
	return level, nil
}

// WeightedAverage blends the incoming receipt cost into the running average.
// A zero resulting total leaves the prior average untouched.
func WeightedAverage(oldQty float64, oldAvg decimal.Decimal, inQty float64, inCost decimal.Decimal) decimal.Decimal {
	totalQty := oldQty + inQty
	if totalQty <= 0 {
		return oldAvg
	}
	oldValue := decimal.NewFromFloat(oldQty).Mul(oldAvg)
	inValue := decimal.NewFromFloat(inQty).Mul(inCost)
	return oldValue.Add(inValue).Div(decimal.NewFromFloat(totalQty))
}
