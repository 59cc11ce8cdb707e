// Package risk implements position sizing and protective-exit policy.
package risk

import (
	"math"

	"backtester/internal/errors"
	"backtester/internal/models"
	"backtester/internal/rules"
)

// Config holds the risk-management parameters. Nil pointer fields disable
// the corresponding rule.
type Config struct {
	// MaxPositionPct caps a single position's value relative to total
	// equity. 1.0 means no cap.
	MaxPositionPct float64
	// MaxTotalExposure caps aggregate position value relative to total
	// equity. 1.0 means fully invested is allowed.
	MaxTotalExposure float64
	// StopLossPct forces an exit when price falls this fraction below
	// cost (or below the high-water mark when TrailingStop is set).
	StopLossPct *float64
	// StopProfitPct forces an exit when price rises this fraction above
	// cost.
	StopProfitPct *float64
	// TrailingStop anchors the stop-loss to the position's high-water
	// mark instead of its cost.
	TrailingStop bool
	// MaxDrawdownPct forces an exit when equity falls this fraction
	// below the portfolio's running peak.
	MaxDrawdownPct *float64
}

// DefaultConfig returns a configuration with no exit rules and no
// exposure caps.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:   1.0,
		MaxTotalExposure: 1.0,
	}
}

// Validate checks parameter ranges.
func (c *Config) Validate() error {
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return errors.NewConfigError("max_position_pct", c.MaxPositionPct, "must be in (0, 1]")
	}
	if c.MaxTotalExposure <= 0 || c.MaxTotalExposure > 1 {
		return errors.NewConfigError("max_total_exposure", c.MaxTotalExposure, "must be in (0, 1]")
	}
	if c.StopLossPct != nil && (*c.StopLossPct <= 0 || *c.StopLossPct >= 1) {
		return errors.NewConfigError("stop_loss_pct", *c.StopLossPct, "must be in (0, 1)")
	}
	if c.StopProfitPct != nil && *c.StopProfitPct <= 0 {
		return errors.NewConfigError("stop_profit_pct", *c.StopProfitPct, "must be > 0")
	}
	if c.MaxDrawdownPct != nil && (*c.MaxDrawdownPct <= 0 || *c.MaxDrawdownPct >= 1) {
		return errors.NewConfigError("max_drawdown_pct", *c.MaxDrawdownPct, "must be in (0, 1)")
	}
	return nil
}

// ExitTrigger describes one forced-exit decision. At most one trigger is
// reported per bar.
type ExitTrigger struct {
	Rule         models.OrderReason
	TriggerPrice float64
	CostBasis    float64
	PnLPct       float64
}

// Manager evaluates sizing and protective-exit rules. It is consulted by
// the engine and never mutates portfolio state itself.
type Manager struct {
	cfg            Config
	rules          *rules.RuleSet
	initialCapital float64
	peakEquity     float64
}

// NewManager creates a risk manager. The initial capital seeds the
// portfolio peak used by drawdown protection.
func NewManager(cfg Config, rs *rules.RuleSet, initialCapital float64) *Manager {
	return &Manager{
		cfg:            cfg,
		rules:          rs,
		initialCapital: initialCapital,
		peakEquity:     initialCapital,
	}
}

// Reset restores the portfolio peak to the initial capital. The engine
// calls it at the start of every run so a manager can be reused across
// sequential runs.
func (m *Manager) Reset() {
	m.peakEquity = m.initialCapital
}

// UpdatePeak records a new equity observation for drawdown tracking.
func (m *Manager) UpdatePeak(equity float64) {
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
}

// PeakEquity returns the running portfolio peak.
func (m *Manager) PeakEquity() float64 {
	return m.peakEquity
}

// CheckExit evaluates the protective rules against the current reference
// price and equity. Rules are checked in fixed priority: stop-loss, then
// take-profit, then drawdown protection. The first rule crossed wins and
// the rest are not reported for this bar.
func (m *Manager) CheckExit(pos *models.Position, price, equity float64) *ExitTrigger {
	if pos == nil || pos.Quantity == 0 {
		return nil
	}

	if t := m.checkStopLoss(pos, price); t != nil {
		return t
	}
	if t := m.checkStopProfit(pos, price); t != nil {
		return t
	}
	return m.checkDrawdown(pos, price, equity)
}

func (m *Manager) checkStopLoss(pos *models.Position, price float64) *ExitTrigger {
	if m.cfg.StopLossPct == nil {
		return nil
	}
	anchor := pos.AvgCost
	if m.cfg.TrailingStop && pos.HighWater > anchor {
		anchor = pos.HighWater
	}
	// A close exactly on the stop does not trigger; the price has to
	// break below it.
	stop := anchor * (1 - *m.cfg.StopLossPct)
	if price < stop {
		return &ExitTrigger{
			Rule:         models.ReasonStopLoss,
			TriggerPrice: price,
			CostBasis:    pos.AvgCost,
			PnLPct:       (price - pos.AvgCost) / pos.AvgCost,
		}
	}
	return nil
}

func (m *Manager) checkStopProfit(pos *models.Position, price float64) *ExitTrigger {
	if m.cfg.StopProfitPct == nil {
		return nil
	}
	target := pos.AvgCost * (1 + *m.cfg.StopProfitPct)
	if price > target {
		return &ExitTrigger{
			Rule:         models.ReasonStopProfit,
			TriggerPrice: price,
			CostBasis:    pos.AvgCost,
			PnLPct:       (price - pos.AvgCost) / pos.AvgCost,
		}
	}
	return nil
}

func (m *Manager) checkDrawdown(pos *models.Position, price, equity float64) *ExitTrigger {
	if m.cfg.MaxDrawdownPct == nil || m.peakEquity <= 0 {
		return nil
	}
	drawdown := (m.peakEquity - equity) / m.peakEquity
	if drawdown >= *m.cfg.MaxDrawdownPct {
		return &ExitTrigger{
			Rule:         models.ReasonDrawdown,
			TriggerPrice: price,
			CostBasis:    pos.AvgCost,
			PnLPct:       -drawdown,
		}
	}
	return nil
}

// MaxQuantity returns the largest buy quantity allowed by the exposure
// caps and available cash, rounded down to a whole lot. Fees are part of
// the affordability check so the fill can never drive cash negative.
func (m *Manager) MaxQuantity(cash, price, equity, positionValue float64) int {
	if price <= 0 || cash <= 0 {
		return 0
	}

	budget := cash
	if limit := m.cfg.MaxPositionPct*equity - positionValue; limit < budget {
		budget = limit
	}
	if limit := m.cfg.MaxTotalExposure*equity - positionValue; limit < budget {
		budget = limit
	}
	if budget <= 0 {
		return 0
	}

	qty := m.rules.RoundLot(int(math.Floor(budget / price)))
	for qty > 0 {
		amount := float64(qty) * price
		if amount+m.rules.Fees(models.OrderSideBuy, amount).Total() <= cash+1e-9 {
			break
		}
		qty -= m.rules.LotSize
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}
