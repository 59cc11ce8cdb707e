package models

import (
	"fmt"
	"time"
)

// Trade is a single fill record. Sell fills close the whole round trip and
// carry the realized profit, the entry date, and the exit reason.
type Trade struct {
	Date        time.Time
	Side        OrderSide
	Price       float64 // fill price after slippage
	Quantity    int
	Amount      float64 // quantity * price
	Commission  float64
	TransferTax float64 // sells only
	Slippage    float64 // cost of slippage vs the reference price

	// Round-trip fields, populated on sells.
	EntryDate  time.Time
	EntryPrice float64
	PnL        float64
	ExitReason OrderReason
}

// IsClose reports whether the trade closes a round trip.
func (t Trade) IsClose() bool {
	return t.Side == OrderSideSell
}

// HoldingDays returns the calendar days the closed position was held.
func (t Trade) HoldingDays() float64 {
	if !t.IsClose() || t.EntryDate.IsZero() {
		return 0
	}
	return t.Date.Sub(t.EntryDate).Hours() / 24
}

// TotalCost returns the full cash outlay of a buy, or the gross deductions
// of a sell, including fees.
func (t Trade) TotalCost() float64 {
	return t.Amount + t.Commission + t.TransferTax
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade(%s %d @ %.2f on %s)",
		t.Side, t.Quantity, t.Price, t.Date.Format("2006-01-02"))
}
