// Package engine implements the bar-by-bar trading simulation.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/logging"
	"backtester/internal/models"
	"backtester/internal/risk"
	"backtester/internal/rules"
)

// Config holds the per-run engine parameters.
type Config struct {
	Symbol         string
	InitialCapital float64
	// CloseOnFinish liquidates any open position at the final bar's
	// close. When false the position is carried mark-to-market into the
	// final equity instead.
	CloseOnFinish bool
}

// Engine advances bar-by-bar, converts signals into fills under the rule
// set and the risk manager, and emits the trade log and equity curve.
// State is scoped to a single Run call; an Engine is safe to reuse
// sequentially.
type Engine struct {
	cfg    Config
	rules  *rules.RuleSet
	risk   *risk.Manager
	logger zerolog.Logger
}

// New creates an engine. The risk manager must not be nil; a manager
// built from risk.DefaultConfig() behaves as pure sizing with no forced
// exits.
func New(cfg Config, rs *rules.RuleSet, rm *risk.Manager, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		rules:  rs,
		risk:   rm,
		logger: logging.WithSymbol(logger, cfg.Symbol),
	}
}

// sim holds the mutable state of one run.
type sim struct {
	portfolio *models.Portfolio
	lastExit  time.Time
	entryFees float64

	trades []models.Trade
	orders []models.Order
	equity []models.EquityPoint
	events []models.RiskEvent
	stats  models.RiskStats
}

// Run executes one deterministic pass over the bars. Signals must align
// one-to-one with bars by date. The returned result is complete: order
// rejections are recorded events, never errors.
func (e *Engine) Run(ctx context.Context, bars []models.Bar, signals []models.Signal) (*models.RunResult, error) {
	start := time.Now()

	if err := e.validate(bars, signals); err != nil {
		return nil, err
	}

	e.risk.Reset()
	s := &sim{
		portfolio: models.NewPortfolio(e.cfg.InitialCapital),
		trades:    make([]models.Trade, 0, 16),
		equity:    make([]models.EquityPoint, 0, len(bars)),
	}

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "run cancelled")
		default:
		}

		e.processBar(s, bar, signals[i])
	}

	if e.cfg.CloseOnFinish && s.portfolio.HasPosition() {
		e.closeOut(s, bars[len(bars)-1])
	}

	final := s.equity[len(s.equity)-1].Equity
	logging.LogRun(e.logger, e.cfg.Symbol, len(s.trades), final, time.Since(start))

	return &models.RunResult{
		Trades:      s.trades,
		Orders:      s.orders,
		EquityCurve: s.equity,
		RiskEvents:  s.events,
		RiskStats:   s.stats,
		FinalEquity: final,
		Duration:    time.Since(start),
	}, nil
}

func (e *Engine) validate(bars []models.Bar, signals []models.Signal) error {
	if len(bars) == 0 {
		return errors.NewDataError(e.cfg.Symbol, "empty bar sequence", errors.ErrNoData)
	}
	if e.cfg.InitialCapital <= 0 {
		return errors.NewConfigError("initial_capital", e.cfg.InitialCapital, "must be positive")
	}
	if len(signals) != len(bars) {
		return errors.NewDataError(e.cfg.Symbol, "signal count does not match bar count", nil)
	}
	var prev time.Time
	for i, bar := range bars {
		if bar.Date.IsZero() || bar.Close <= 0 || bar.PrevClose <= 0 {
			return errors.NewDataError(e.cfg.Symbol, "bar missing required fields", nil)
		}
		if i > 0 && !bar.Date.After(prev) {
			return errors.NewDataError(e.cfg.Symbol, "bar dates not strictly increasing", nil)
		}
		if !signals[i].Date.Equal(bar.Date) {
			return errors.NewDataError(e.cfg.Symbol, "signal dates do not align with bars", nil)
		}
		prev = bar.Date
	}
	return nil
}

// processBar runs the fixed per-bar sequence: mark-to-market, exit check,
// strategy exit, entry check, equity append.
func (e *Engine) processBar(s *sim, bar models.Bar, signal models.Signal) {
	// Mark-to-market at the previous close and refresh peaks.
	if pos := s.portfolio.Position; pos != nil && bar.PrevClose > pos.HighWater {
		pos.HighWater = bar.PrevClose
	}
	e.risk.UpdatePeak(s.portfolio.Equity(bar.PrevClose))

	if bar.Suspended {
		s.appendEquity(bar)
		return
	}

	if trig := e.risk.CheckExit(s.portfolio.Position, bar.Close, s.portfolio.Equity(bar.Close)); trig != nil {
		e.forcedExit(s, bar, trig)
	} else if signal.Action == models.SignalSell && s.portfolio.HasPosition() {
		e.sell(s, bar, models.ReasonStrategySignal)
	}

	if !s.portfolio.HasPosition() && signal.Action == models.SignalBuy {
		e.enter(s, bar)
	}

	s.appendEquity(bar)
}

func (e *Engine) forcedExit(s *sim, bar models.Bar, trig *risk.ExitTrigger) {
	s.events = append(s.events, models.RiskEvent{
		Date:         bar.Date,
		Type:         models.RiskEventForcedExit,
		Rule:         trig.Rule,
		TriggerPrice: trig.TriggerPrice,
		CostBasis:    trig.CostBasis,
		Reason:       string(trig.Rule),
	})
	logging.LogRiskEvent(e.logger, bar.Date.Format("2006-01-02"), string(trig.Rule), trig.TriggerPrice)

	if !e.sell(s, bar, trig.Rule) {
		return
	}

	pnl := s.trades[len(s.trades)-1].PnL
	switch trig.Rule {
	case models.ReasonStopLoss:
		s.stats.StopLossCount++
		s.stats.StopLossLocked += pnl
	case models.ReasonStopProfit:
		s.stats.StopProfitCount++
		s.stats.StopProfitLocked += pnl
	case models.ReasonDrawdown:
		s.stats.DrawdownCount++
		s.stats.DrawdownLocked += pnl
	}
}

// sell closes the open position at the bar's close. Returns false when the
// rule set vetoes the fill.
func (e *Engine) sell(s *sim, bar models.Bar, reason models.OrderReason) bool {
	pos := s.portfolio.Position
	order := models.Order{
		Date:     bar.Date,
		Side:     models.OrderSideSell,
		Quantity: pos.Quantity,
		RefPrice: bar.Close,
		Reason:   reason,
	}

	if !e.rules.CanSell(pos.EntryDate, bar.Date) {
		e.reject(s, order, "settlement delay: position entered today")
		return false
	}
	if e.rules.IsLimitDown(bar) {
		e.reject(s, order, "price at lower limit, sell unreachable")
		return false
	}

	price := e.rules.ExecutionPrice(models.OrderSideSell, bar.Close, bar.PrevClose)
	amount := float64(pos.Quantity) * price
	fees := e.rules.Fees(models.OrderSideSell, amount)

	trade := models.Trade{
		Date:        bar.Date,
		Side:        models.OrderSideSell,
		Price:       price,
		Quantity:    pos.Quantity,
		Amount:      amount,
		Commission:  fees.BrokerFee,
		TransferTax: fees.TransferTax,
		Slippage:    math.Abs(price-bar.Close) * float64(pos.Quantity),
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.AvgCost,
		PnL:         (price-pos.AvgCost)*float64(pos.Quantity) - fees.Total() - s.entryFees,
		ExitReason:  reason,
	}

	s.portfolio.Cash += amount - fees.Total()
	s.portfolio.Position = nil
	s.lastExit = bar.Date
	s.entryFees = 0

	order.Status = models.OrderFilled
	s.orders = append(s.orders, order)
	s.trades = append(s.trades, trade)
	logging.LogFill(e.logger, bar.Date.Format("2006-01-02"), "SELL", trade.Quantity, price, string(reason))
	return true
}

// enter opens a position at the bar's close, sized by the risk manager.
func (e *Engine) enter(s *sim, bar models.Bar) {
	order := models.Order{
		Date:     bar.Date,
		Side:     models.OrderSideBuy,
		RefPrice: bar.Close,
		Reason:   models.ReasonStrategySignal,
	}

	if !e.rules.CanReenter(s.lastExit, bar.Date) {
		e.reject(s, order, "settlement delay: exited today")
		return
	}
	if e.rules.IsLimitUp(bar) {
		e.reject(s, order, "price at upper limit, buy unreachable")
		return
	}

	price := e.rules.ExecutionPrice(models.OrderSideBuy, bar.Close, bar.PrevClose)
	equity := s.portfolio.Equity(bar.Close)

	qty := e.risk.MaxQuantity(s.portfolio.Cash, price, equity, 0)
	if qty < e.rules.LotSize {
		order.Quantity = qty
		e.reject(s, order, "sized below one lot")
		return
	}

	// Clipped when the exposure caps bite before cash does.
	unconstrained := risk.NewManager(risk.DefaultConfig(), e.rules, e.cfg.InitialCapital)
	if qty < unconstrained.MaxQuantity(s.portfolio.Cash, price, equity, 0) {
		s.stats.ClippedOrders++
		s.events = append(s.events, models.RiskEvent{
			Date:         bar.Date,
			Type:         models.RiskEventOrderClipped,
			Rule:         models.ReasonStrategySignal,
			TriggerPrice: price,
			Reason:       "order clipped to exposure cap",
		})
	}

	amount := float64(qty) * price
	fees := e.rules.Fees(models.OrderSideBuy, amount)
	if amount+fees.Total() > s.portfolio.Cash {
		order.Quantity = qty
		e.reject(s, order, "insufficient cash for fill")
		return
	}

	s.portfolio.Cash -= amount + fees.Total()
	s.portfolio.Position = &models.Position{
		Quantity:  qty,
		AvgCost:   price,
		EntryDate: bar.Date,
		HighWater: price,
	}
	s.entryFees = fees.Total()

	order.Quantity = qty
	order.Status = models.OrderFilled
	s.orders = append(s.orders, order)
	s.trades = append(s.trades, models.Trade{
		Date:       bar.Date,
		Side:       models.OrderSideBuy,
		Price:      price,
		Quantity:   qty,
		Amount:     amount,
		Commission: fees.BrokerFee,
		Slippage:   math.Abs(price-bar.Close) * float64(qty),
	})
	logging.LogFill(e.logger, bar.Date.Format("2006-01-02"), "BUY", qty, price, string(models.ReasonStrategySignal))
}

// closeOut liquidates the open position at the final bar and rewrites the
// final equity point to the post-close state.
func (e *Engine) closeOut(s *sim, last models.Bar) {
	if !e.sell(s, last, models.ReasonEndOfRun) {
		return
	}
	s.equity[len(s.equity)-1] = models.EquityPoint{
		Date:   last.Date,
		Equity: s.portfolio.Cash,
		Cash:   s.portfolio.Cash,
	}
}

func (e *Engine) reject(s *sim, order models.Order, reason string) {
	order.Status = models.OrderRejected
	order.RejectReason = reason
	s.orders = append(s.orders, order)
	s.stats.RejectedOrders++
	s.events = append(s.events, models.RiskEvent{
		Date:         order.Date,
		Type:         models.RiskEventOrderRejected,
		Rule:         order.Reason,
		TriggerPrice: order.RefPrice,
		Reason:       reason,
	})
	logging.LogRejection(e.logger, order.Date.Format("2006-01-02"), string(order.Side), reason)
}

func (s *sim) appendEquity(bar models.Bar) {
	var posValue float64
	if s.portfolio.Position != nil {
		posValue = s.portfolio.Position.MarketValue(bar.Close)
	}
	s.equity = append(s.equity, models.EquityPoint{
		Date:          bar.Date,
		Equity:        s.portfolio.Cash + posValue,
		Cash:          s.portfolio.Cash,
		PositionValue: posValue,
	})
}
