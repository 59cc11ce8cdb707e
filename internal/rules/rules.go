// Package rules implements instrument trading constraints: settlement
// delay, daily price-move limits and the fee schedule.
package rules

import (
	"math"
	"time"

	"backtester/internal/models"
)

// Commission is the fee breakdown for one fill. TransferTax is charged on
// sell proceeds only.
type Commission struct {
	BrokerFee   float64
	TransferTax float64
}

// Total returns the sum of all fee components.
func (c Commission) Total() float64 {
	return c.BrokerFee + c.TransferTax
}

// RuleSet holds the trading constraints for one instrument. Immutable for
// a run.
type RuleSet struct {
	Board           models.Board
	CommissionRate  float64
	MinCommission   float64
	SlippageBps     float64
	TransferTaxRate float64
	LotSize         int
}

// NewRuleSet creates a rule set with the given fee schedule. A lot size of
// zero or less defaults to 100.
func NewRuleSet(board models.Board, commissionRate, minCommission, slippageBps, transferTaxRate float64, lotSize int) *RuleSet {
	if lotSize <= 0 {
		lotSize = 100
	}
	return &RuleSet{
		Board:           board,
		CommissionRate:  commissionRate,
		MinCommission:   minCommission,
		SlippageBps:     slippageBps,
		TransferTaxRate: transferTaxRate,
		LotSize:         lotSize,
	}
}

// RoundLot rounds a quantity down to a whole number of lots.
func (r *RuleSet) RoundLot(qty int) int {
	if qty < 0 {
		return 0
	}
	return qty - qty%r.LotSize
}

// PriceLimits returns the upper and lower daily price bounds computed from
// the previous close, rounded to the cent.
func (r *RuleSet) PriceLimits(prevClose float64) (upper, lower float64) {
	pct := LimitPct(r.Board)
	upper = round2(prevClose * (1 + pct))
	lower = round2(prevClose * (1 - pct))
	return upper, lower
}

// IsLimitUp reports whether the bar closed at or above the upper price
// bound. A buy cannot fill on a limit-up bar.
func (r *RuleSet) IsLimitUp(bar models.Bar) bool {
	if bar.PrevClose <= 0 {
		return false
	}
	upper, _ := r.PriceLimits(bar.PrevClose)
	return bar.Close >= upper
}

// IsLimitDown reports whether the bar closed at or below the lower price
// bound. A sell cannot fill on a limit-down bar.
func (r *RuleSet) IsLimitDown(bar models.Bar) bool {
	if bar.PrevClose <= 0 {
		return false
	}
	_, lower := r.PriceLimits(bar.PrevClose)
	return bar.Close <= lower
}

// ExecutionPrice applies slippage against the trader to the reference
// price, clamps the result inside the daily price bounds and rounds to
// the cent.
func (r *RuleSet) ExecutionPrice(side models.OrderSide, refPrice, prevClose float64) float64 {
	mult := r.SlippageBps / 10000
	var price float64
	if side == models.OrderSideBuy {
		price = refPrice * (1 + mult)
	} else {
		price = refPrice * (1 - mult)
	}
	if prevClose > 0 {
		upper, lower := r.PriceLimits(prevClose)
		if side == models.OrderSideBuy && price > upper {
			price = upper
		}
		if side == models.OrderSideSell && price < lower {
			price = lower
		}
	}
	return round2(price)
}

// Fees computes the commission breakdown for a fill of the given gross
// amount. The broker fee has a floor at MinCommission; the transfer tax
// applies to sells only.
func (r *RuleSet) Fees(side models.OrderSide, amount float64) Commission {
	fee := amount * r.CommissionRate
	if fee < r.MinCommission {
		fee = r.MinCommission
	}
	c := Commission{BrokerFee: fee}
	if side == models.OrderSideSell {
		c.TransferTax = amount * r.TransferTaxRate
	}
	return c
}

// CanSell reports whether a position entered on entryDate may be sold on
// barDate under the T+1 settlement rule.
func (r *RuleSet) CanSell(entryDate, barDate time.Time) bool {
	return truncateDay(entryDate).Before(truncateDay(barDate))
}

// CanReenter reports whether a new entry is allowed on barDate given the
// date of the last exit. Re-entry on the exit day is blocked.
func (r *RuleSet) CanReenter(lastExit, barDate time.Time) bool {
	if lastExit.IsZero() {
		return true
	}
	return !sameDay(lastExit, barDate)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
