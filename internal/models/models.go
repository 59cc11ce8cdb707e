// Package models provides domain models for the backtesting core.
package models

import (
	"time"
)

// Board represents the listing board of an instrument. The board determines
// the daily price-move limit applied by the rule set.
type Board string

const (
	BoardMain    Board = "MAIN"    // main board, ±10% daily limit
	BoardGrowth  Board = "GROWTH"  // growth board, ±20%
	BoardMicro   Board = "MICRO"   // micro-cap board, ±30%
	BoardSpecial Board = "SPECIAL" // special-treatment stocks, ±5%
)

// SignalAction represents the per-bar target direction produced by a
// signal provider.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalHold SignalAction = "HOLD"
)

// Bar represents one trading session of OHLCV data.
type Bar struct {
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	PrevClose float64
	Suspended bool
}

// Signal is an externally supplied directive for one bar. Signals are
// aligned one-to-one with bars by date.
type Signal struct {
	Date   time.Time
	Action SignalAction
	Reason string
}

// BenchmarkPoint is one observation of an optional benchmark series.
type BenchmarkPoint struct {
	Date  time.Time
	Close float64
}

// Position tracks the single open long position. Quantity is zero when flat.
type Position struct {
	Quantity  int
	AvgCost   float64
	EntryDate time.Time
	HighWater float64 // highest reference price seen since entry
}

// MarketValue returns the position value at the given price.
func (p *Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// CostBasis returns the total cost of the position.
func (p *Position) CostBasis() float64 {
	return float64(p.Quantity) * p.AvgCost
}

// UnrealizedPnL returns the open profit or loss at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.MarketValue(price) - p.CostBasis()
}

// Portfolio tracks cash and the open position through a run.
type Portfolio struct {
	Cash           float64
	InitialCapital float64
	Position       *Position
}

// NewPortfolio creates a portfolio with the given starting capital.
func NewPortfolio(capital float64) *Portfolio {
	return &Portfolio{Cash: capital, InitialCapital: capital}
}

// HasPosition reports whether a position is currently open.
func (pf *Portfolio) HasPosition() bool {
	return pf.Position != nil && pf.Position.Quantity > 0
}

// Equity returns total equity (cash plus position value) at the given price.
func (pf *Portfolio) Equity(price float64) float64 {
	if !pf.HasPosition() {
		return pf.Cash
	}
	return pf.Cash + pf.Position.MarketValue(price)
}

// EquityPoint is one point on the equity curve, recorded once per bar.
type EquityPoint struct {
	Date          time.Time
	Equity        float64
	Cash          float64
	PositionValue float64
}
