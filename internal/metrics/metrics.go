// Package metrics scores a completed run: return, risk, risk-adjusted,
// trading-activity and benchmark-relative statistics. All computation is
// pure; a Calculator is safe for concurrent use.
package metrics

import (
	"math"
	"time"

	"backtester/internal/errors"
	"backtester/internal/models"
)

// TradingDaysPerYear is the annualization factor for daily series.
const TradingDaysPerYear = 252

// DefaultRiskFreeRate is the annualized risk-free rate used when the
// caller does not supply one.
const DefaultRiskFreeRate = 0.03

// Metrics is the full scored result of one run. Degenerate inputs (zero
// trades, zero variance) resolve to zero or the +Inf profit-factor
// sentinel, never an error.
type Metrics struct {
	// Return metrics
	TotalReturn  float64
	CAGR         float64
	AnnualReturn float64
	FinalCapital float64

	// Risk metrics
	Volatility          float64
	MaxDrawdown         float64 // negative fraction
	MaxDrawdownDuration int     // trading days

	// Risk-adjusted
	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64

	// Trading stats (closed round-trips)
	TotalTrades      int
	WinRate          float64
	ProfitFactor     float64 // +Inf when gross loss is zero and profit positive
	AvgTradeReturn   float64
	AvgProfitAmount  float64
	AvgLossAmount    float64
	AvgHoldingPeriod float64
	TurnoverRate     float64

	// Benchmark-relative, populated only when a benchmark was supplied.
	HasBenchmark     bool
	Alpha            float64
	Beta             float64
	InformationRatio float64
	TrackingError    float64
}

// Value looks up a metric by its wire name. Used by the optimizer for
// objectives and constraints.
func (m *Metrics) Value(name string) (float64, error) {
	switch name {
	case "total_return":
		return m.TotalReturn, nil
	case "cagr":
		return m.CAGR, nil
	case "annual_return":
		return m.AnnualReturn, nil
	case "final_capital":
		return m.FinalCapital, nil
	case "volatility":
		return m.Volatility, nil
	case "max_drawdown":
		return m.MaxDrawdown, nil
	case "max_drawdown_duration":
		return float64(m.MaxDrawdownDuration), nil
	case "sharpe_ratio":
		return m.SharpeRatio, nil
	case "sortino_ratio":
		return m.SortinoRatio, nil
	case "calmar_ratio":
		return m.CalmarRatio, nil
	case "total_trades":
		return float64(m.TotalTrades), nil
	case "win_rate":
		return m.WinRate, nil
	case "profit_factor":
		return m.ProfitFactor, nil
	case "avg_trade_return":
		return m.AvgTradeReturn, nil
	case "avg_profit_amount":
		return m.AvgProfitAmount, nil
	case "avg_loss_amount":
		return m.AvgLossAmount, nil
	case "avg_holding_period":
		return m.AvgHoldingPeriod, nil
	case "turnover_rate":
		return m.TurnoverRate, nil
	case "alpha":
		return m.Alpha, nil
	case "beta":
		return m.Beta, nil
	case "information_ratio":
		return m.InformationRatio, nil
	case "tracking_error":
		return m.TrackingError, nil
	default:
		return 0, errors.Wrapf(errors.ErrUnknownMetric, "metric %q", name)
	}
}

// Calculator computes metrics from a run outcome.
type Calculator struct {
	RiskFreeRate float64
}

// NewCalculator creates a calculator with the given annualized risk-free
// rate.
func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// Calculate scores an equity curve and trade log. The benchmark series is
// optional; when present it is date-intersected with the equity curve
// before any relative metric is computed.
func (c *Calculator) Calculate(equity []models.EquityPoint, trades []models.Trade, benchmark []models.BenchmarkPoint) Metrics {
	var m Metrics
	if len(equity) == 0 {
		return m
	}

	initial := equity[0].Equity
	final := equity[len(equity)-1].Equity
	m.FinalCapital = final
	if initial > 0 {
		m.TotalReturn = (final - initial) / initial
	}
	m.CAGR = c.cagr(equity)

	returns := dailyReturns(equity)
	m.AnnualReturn = mean(returns) * TradingDaysPerYear
	m.Volatility = stdDev(returns) * math.Sqrt(TradingDaysPerYear)
	m.MaxDrawdown, m.MaxDrawdownDuration = drawdown(equity)

	m.SharpeRatio = c.sharpe(returns)
	m.SortinoRatio = c.sortino(returns)
	if dd := math.Abs(m.MaxDrawdown); dd > 1e-10 {
		m.CalmarRatio = m.CAGR / dd
	}

	c.tradeStats(&m, trades, equity)

	if len(benchmark) > 0 {
		c.benchmarkStats(&m, equity, benchmark)
	}
	return m
}

// cagr annualizes by elapsed calendar time between the first and last
// equity points, not by bar count.
func (c *Calculator) cagr(equity []models.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	initial := equity[0].Equity
	final := equity[len(equity)-1].Equity
	if initial <= 0 || final <= 0 {
		return 0
	}
	days := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24
	if days <= 0 {
		return 0
	}
	years := days / 365.25
	return math.Pow(final/initial, 1/years) - 1
}

func (c *Calculator) sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	dailyRF := c.RiskFreeRate / TradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRF
	}
	sd := stdDev(excess)
	if sd < 1e-10 {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * mean(excess) / sd
}

func (c *Calculator) sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	dailyRF := c.RiskFreeRate / TradingDaysPerYear
	var excess, downside []float64
	for _, r := range returns {
		excess = append(excess, r-dailyRF)
		if r < 0 {
			downside = append(downside, r)
		}
	}
	sd := stdDev(downside)
	if sd < 1e-10 {
		return 0
	}
	return math.Sqrt(TradingDaysPerYear) * mean(excess) / sd
}

func (c *Calculator) tradeStats(m *Metrics, trades []models.Trade, equity []models.EquityPoint) {
	var closed []models.Trade
	var totalVolume float64
	for _, t := range trades {
		totalVolume += t.Amount
		if t.IsClose() {
			closed = append(closed, t)
		}
	}
	m.TotalTrades = len(closed)
	if len(closed) == 0 {
		return
	}

	var wins int
	var grossProfit, grossLoss float64
	var sumReturn, sumHolding float64
	var profits, losses []float64
	for _, t := range closed {
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
			profits = append(profits, t.PnL)
		} else {
			grossLoss += -t.PnL
			losses = append(losses, -t.PnL)
		}
		cost := float64(t.Quantity) * t.EntryPrice
		if cost > 0 {
			sumReturn += t.PnL / cost
		}
		sumHolding += float64(t.HoldingDays())
	}

	m.WinRate = float64(wins) / float64(len(closed))
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}
	m.AvgTradeReturn = sumReturn / float64(len(closed))
	m.AvgProfitAmount = mean(profits)
	m.AvgLossAmount = mean(losses)
	m.AvgHoldingPeriod = sumHolding / float64(len(closed))

	avgEquity := 0.0
	for _, pt := range equity {
		avgEquity += pt.Equity
	}
	avgEquity /= float64(len(equity))
	years := float64(len(equity)) / TradingDaysPerYear
	if avgEquity > 0 && years > 0 {
		m.TurnoverRate = (totalVolume / 2) / avgEquity / years
	}
}

func (c *Calculator) benchmarkStats(m *Metrics, equity []models.EquityPoint, benchmark []models.BenchmarkPoint) {
	stratRet, benchRet := alignReturns(equity, benchmark)
	if len(stratRet) < 2 {
		return
	}
	m.HasBenchmark = true

	m.Beta = beta(stratRet, benchRet)

	stratAnnual := mean(stratRet) * TradingDaysPerYear
	benchAnnual := mean(benchRet) * TradingDaysPerYear
	m.Alpha = stratAnnual - (c.RiskFreeRate + m.Beta*(benchAnnual-c.RiskFreeRate))

	active := make([]float64, len(stratRet))
	for i := range stratRet {
		active[i] = stratRet[i] - benchRet[i]
	}
	te := stdDev(active)
	m.TrackingError = te * math.Sqrt(TradingDaysPerYear)
	if te > 1e-10 {
		m.InformationRatio = mean(active) / te * math.Sqrt(TradingDaysPerYear)
	}
}

// dailyReturns computes percentage changes between consecutive equity
// points.
func dailyReturns(equity []models.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i].Equity-prev)/prev)
	}
	return out
}

// drawdown returns the deepest peak-to-trough decline (as a negative
// fraction) and the longest run of consecutive bars spent below a peak.
func drawdown(equity []models.EquityPoint) (float64, int) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0].Equity
	var maxDD float64
	var maxDur, curDur int
	for _, pt := range equity {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (pt.Equity - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
		if dd < 0 {
			curDur++
			if curDur > maxDur {
				maxDur = curDur
			}
		} else {
			curDur = 0
		}
	}
	return maxDD, maxDur
}

// alignReturns intersects the equity and benchmark series by calendar day
// and returns their paired daily return slices.
func alignReturns(equity []models.EquityPoint, benchmark []models.BenchmarkPoint) ([]float64, []float64) {
	benchClose := make(map[time.Time]float64, len(benchmark))
	for _, b := range benchmark {
		benchClose[dayKey(b.Date)] = b.Close
	}

	var stratRet, benchRet []float64
	havePrev := false
	var prevEquity, prevBench float64
	for _, pt := range equity {
		px, ok := benchClose[dayKey(pt.Date)]
		if !ok {
			continue
		}
		if havePrev && prevEquity > 0 && prevBench > 0 {
			stratRet = append(stratRet, (pt.Equity-prevEquity)/prevEquity)
			benchRet = append(benchRet, (px-prevBench)/prevBench)
		}
		prevEquity, prevBench = pt.Equity, px
		havePrev = true
	}
	return stratRet, benchRet
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// beta is the slope of a regression of strategy returns on benchmark
// returns: covariance over benchmark variance.
func beta(strat, bench []float64) float64 {
	if len(strat) < 2 {
		return 0
	}
	muS, muB := mean(strat), mean(bench)
	var cov, varB float64
	for i := range strat {
		cov += (strat[i] - muS) * (bench[i] - muB)
		varB += (bench[i] - muB) * (bench[i] - muB)
	}
	if varB < 1e-18 {
		return 0
	}
	return cov / varB
}
