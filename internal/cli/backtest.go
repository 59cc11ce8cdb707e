package cli

import (
	"context"
	"strconv"
	"strings"

	"backtester/internal/config"
	"backtester/internal/engine"
	"backtester/internal/errors"
	"backtester/internal/metrics"
	"backtester/internal/models"
	"backtester/internal/risk"
	"backtester/internal/rules"
	"backtester/internal/strategy"
)

// loadData fetches bars and the optional benchmark series for the
// configured symbol and date range.
func (app *App) loadData(ctx context.Context) ([]models.Bar, []models.BenchmarkPoint, error) {
	if app.Store == nil {
		return nil, nil, errors.ErrStoreUnavailable
	}
	cfg := app.Config
	if cfg.Run.Symbol == "" {
		return nil, nil, errors.NewConfigError("symbol", "", "no symbol configured")
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing date range")
	}

	bars, err := app.Store.GetBars(ctx, cfg.Run.Symbol, start, end)
	if err != nil {
		return nil, nil, err
	}
	if len(bars) == 0 {
		return nil, nil, errors.NewDataError(cfg.Run.Symbol, "no bars in range", errors.ErrNoData)
	}

	var benchmark []models.BenchmarkPoint
	if cfg.Run.Benchmark != "" {
		benchmark, err = app.Store.GetBenchmark(ctx, cfg.Run.Benchmark, start, end)
		if err != nil {
			return nil, nil, err
		}
	}
	return bars, benchmark, nil
}

// newRuleSet builds the trading rule set from the run configuration.
func newRuleSet(cfg *config.Config) *rules.RuleSet {
	board := rules.ResolveBoard(cfg.Run.Symbol, cfg.Run.StockName)
	return rules.NewRuleSet(
		board,
		cfg.Run.CommissionRate,
		cfg.Run.MinCommission,
		cfg.Run.SlippageBps,
		cfg.Run.TransferTaxRate,
		cfg.Run.LotSize,
	)
}

// runOnce runs a full simulation of one strategy parameter set over the
// given bars and computes its metrics.
func (app *App) runOnce(ctx context.Context, bars []models.Bar, benchmark []models.BenchmarkPoint, strategyName string, params map[string]float64) (*models.RunResult, metrics.Metrics, error) {
	cfg := app.Config

	provider, err := strategy.New(strategyName)
	if err != nil {
		return nil, metrics.Metrics{}, err
	}
	signals := provider.GenerateSignals(bars, params)

	rs := newRuleSet(cfg)
	rm := risk.NewManager(cfg.Risk.ToRiskConfig(), rs, cfg.Run.InitialCapital)
	eng := engine.New(engine.Config{
		Symbol:         cfg.Run.Symbol,
		InitialCapital: cfg.Run.InitialCapital,
		CloseOnFinish:  cfg.Run.CloseOnFinish,
	}, rs, rm, app.Logger)

	result, err := eng.Run(ctx, bars, signals)
	if err != nil {
		return nil, metrics.Metrics{}, err
	}

	calc := metrics.Calculator{RiskFreeRate: cfg.Run.RiskFreeRate}
	m := calc.Calculate(result.EquityCurve, result.Trades, benchmark)
	return result, m, nil
}

// strategyParams merges the provider defaults with explicit overrides.
func strategyParams(strategyName string, overrides map[string]float64) (map[string]float64, error) {
	provider, err := strategy.New(strategyName)
	if err != nil {
		return nil, err
	}
	params := make(map[string]float64)
	for k, v := range provider.DefaultParams() {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	return params, nil
}

// parseSetFlags parses repeated "name=value" strategy parameter flags.
func parseSetFlags(sets []string) (map[string]float64, error) {
	params := make(map[string]float64)
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, errors.NewConfigError("set", s, "expected name=value")
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.NewConfigError("set", s, "value is not a number")
		}
		params[strings.TrimSpace(name)] = v
	}
	return params, nil
}
