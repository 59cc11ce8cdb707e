package engine

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/models"
	"backtester/internal/risk"
	"backtester/internal/rules"
)

func ptr(v float64) *float64 { return &v }

func testRules() *rules.RuleSet {
	return rules.NewRuleSet(models.BoardMain, 0.001, 5, 0, 0.001, 100)
}

// barsFromCloses builds a daily bar series where each bar's previous close
// chains from the prior bar.
func barsFromCloses(closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = models.Bar{
			Date:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000000,
			PrevClose: prev,
		}
		prev = c
	}
	return bars
}

func holdSignals(bars []models.Bar) []models.Signal {
	sigs := make([]models.Signal, len(bars))
	for i, b := range bars {
		sigs[i] = models.Signal{Date: b.Date, Action: models.SignalHold}
	}
	return sigs
}

func newTestEngine(capital float64, riskCfg risk.Config) *Engine {
	rs := testRules()
	rm := risk.NewManager(riskCfg, rs, capital)
	return New(Config{Symbol: "600000", InitialCapital: capital}, rs, rm, zerolog.Nop())
}

func TestRunBuyAndSellRoundTrip(t *testing.T) {
	bars := barsFromCloses(10.00, 10.50, 11.00, 11.50, 12.00)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy
	sigs[4].Action = models.SignalSell

	e := newTestEngine(100000, risk.DefaultConfig())
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2 (buy + sell)", len(res.Trades))
	}
	buy, sell := res.Trades[0], res.Trades[1]

	// Sizing leaves headroom for commission: 9900 shares, not 10000.
	if buy.Quantity != 9900 {
		t.Errorf("buy quantity = %d, want 9900", buy.Quantity)
	}
	if math.Abs(buy.Amount-99000) > 1e-9 {
		t.Errorf("buy amount = %.2f, want 99000", buy.Amount)
	}
	if math.Abs(buy.Commission-99) > 1e-9 {
		t.Errorf("buy commission = %.2f, want 99", buy.Commission)
	}

	if !sell.IsClose() {
		t.Fatal("second trade should be a close")
	}
	if math.Abs(sell.TransferTax-118.80) > 1e-9 {
		t.Errorf("sell transfer tax = %.2f, want 118.80", sell.TransferTax)
	}
	wantPnL := 9900*(12.00-10.00) - 99 - 118.80 - 118.80
	if math.Abs(sell.PnL-wantPnL) > 1e-6 {
		t.Errorf("realized PnL = %.2f, want %.2f", sell.PnL, wantPnL)
	}
	if math.Abs(sell.HoldingDays()-4) > 1e-9 {
		t.Errorf("holding days = %v, want 4", sell.HoldingDays())
	}

	if math.Abs(res.FinalEquity-(100000+wantPnL)) > 1e-6 {
		t.Errorf("final equity = %.2f, want %.2f", res.FinalEquity, 100000+wantPnL)
	}
}

func TestRunStopLossForcedExit(t *testing.T) {
	bars := barsFromCloses(10.00, 9.60, 8.90, 9.20, 9.50)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy

	cfg := risk.DefaultConfig()
	cfg.StopLossPct = ptr(0.10)
	e := newTestEngine(100000, cfg)
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.Trades))
	}
	exit := res.Trades[1]
	if exit.ExitReason != models.ReasonStopLoss {
		t.Errorf("exit reason = %v, want %v", exit.ExitReason, models.ReasonStopLoss)
	}
	if !exit.Date.Equal(bars[2].Date) {
		t.Errorf("exit date = %v, want day 3 (%v)", exit.Date, bars[2].Date)
	}
	if exit.Price != 8.90 {
		t.Errorf("exit price = %.2f, want 8.90", exit.Price)
	}
	if res.RiskStats.StopLossCount != 1 {
		t.Errorf("stop-loss count = %d, want 1", res.RiskStats.StopLossCount)
	}
	if len(res.RiskEvents) == 0 || res.RiskEvents[0].Type != models.RiskEventForcedExit {
		t.Error("expected a forced-exit risk event")
	}
}

func TestRunClippedEntry(t *testing.T) {
	bars := barsFromCloses(50.00, 51.00, 52.00)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy

	cfg := risk.DefaultConfig()
	cfg.MaxPositionPct = 0.3
	e := newTestEngine(100000, cfg)
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	if res.Trades[0].Quantity != 600 {
		t.Errorf("clipped quantity = %d, want 600", res.Trades[0].Quantity)
	}
	if res.RiskStats.ClippedOrders != 1 {
		t.Errorf("clipped orders = %d, want 1", res.RiskStats.ClippedOrders)
	}
}

func TestRunEntryRejectedBelowOneLot(t *testing.T) {
	bars := barsFromCloses(50.00, 51.00)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy

	// 1% cap of 100k equity is 1000, under one lot at 50.00.
	cfg := risk.DefaultConfig()
	cfg.MaxPositionPct = 0.01
	e := newTestEngine(100000, cfg)
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0", len(res.Trades))
	}
	if res.RiskStats.RejectedOrders != 1 {
		t.Errorf("rejected orders = %d, want 1", res.RiskStats.RejectedOrders)
	}
	if res.FinalEquity != 100000 {
		t.Errorf("final equity = %.2f, want untouched 100000", res.FinalEquity)
	}
}

func TestRunSettlementDelayBlocksSameDayReentry(t *testing.T) {
	bars := barsFromCloses(10.00, 9.60, 8.90, 9.20)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy
	// Strategy wants back in on the same bar the stop fires.
	sigs[2].Action = models.SignalBuy
	sigs[3].Action = models.SignalBuy

	cfg := risk.DefaultConfig()
	cfg.StopLossPct = ptr(0.10)
	e := newTestEngine(100000, cfg)

	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Buy day 1, forced exit day 3, re-entry blocked day 3, re-entry day 4.
	if len(res.Trades) != 3 {
		t.Fatalf("trades = %d, want 3", len(res.Trades))
	}
	if !res.Trades[2].Date.Equal(bars[3].Date) {
		t.Errorf("re-entry on %v, want day 4 (%v)", res.Trades[2].Date, bars[3].Date)
	}
	if res.RiskStats.RejectedOrders != 1 {
		t.Errorf("rejected orders = %d, want 1 (same-day re-entry)", res.RiskStats.RejectedOrders)
	}
}

func TestRunLimitUpVetoesBuy(t *testing.T) {
	// Day 2 closes exactly at the +10% bound.
	bars := barsFromCloses(10.00, 11.00, 11.20)
	bars[1].PrevClose = 10.00
	sigs := holdSignals(bars)
	sigs[1].Action = models.SignalBuy

	e := newTestEngine(100000, risk.DefaultConfig())
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0 (buy vetoed at limit-up)", len(res.Trades))
	}
	if res.RiskStats.RejectedOrders != 1 {
		t.Errorf("rejected orders = %d, want 1", res.RiskStats.RejectedOrders)
	}
}

func TestRunSuspendedBarSkipsTrading(t *testing.T) {
	bars := barsFromCloses(10.00, 10.00, 10.50)
	bars[1].Suspended = true
	sigs := holdSignals(bars)
	sigs[1].Action = models.SignalBuy

	e := newTestEngine(100000, risk.DefaultConfig())
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("trades = %d, want 0 on suspended bar", len(res.Trades))
	}
	if len(res.EquityCurve) != len(bars) {
		t.Errorf("equity points = %d, want %d", len(res.EquityCurve), len(bars))
	}
}

func TestRunInvariants(t *testing.T) {
	bars := barsFromCloses(10.00, 10.40, 9.80, 10.10, 10.90, 11.30, 10.70, 11.80)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy
	sigs[3].Action = models.SignalSell
	sigs[5].Action = models.SignalBuy

	e := newTestEngine(100000, risk.DefaultConfig())
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.EquityCurve) != len(bars) {
		t.Fatalf("equity points = %d, want %d", len(res.EquityCurve), len(bars))
	}
	for i, pt := range res.EquityCurve {
		if pt.Cash < 0 {
			t.Errorf("bar %d: negative cash %.2f", i, pt.Cash)
		}
		if math.Abs(pt.Equity-(pt.Cash+pt.PositionValue)) > 1e-6 {
			t.Errorf("bar %d: equity %.2f != cash %.2f + position %.2f",
				i, pt.Equity, pt.Cash, pt.PositionValue)
		}
		if i > 0 && !pt.Date.After(res.EquityCurve[i-1].Date) {
			t.Errorf("bar %d: equity dates not strictly increasing", i)
		}
	}
}

func TestRunDisabledRiskMatchesNoRisk(t *testing.T) {
	bars := barsFromCloses(10.00, 10.40, 9.80, 10.10, 10.90, 11.30)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy
	sigs[4].Action = models.SignalSell

	a, err := newTestEngine(100000, risk.DefaultConfig()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := newTestEngine(100000, risk.DefaultConfig()).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(a.Trades, b.Trades) {
		t.Error("trade logs differ between identical no-rule runs")
	}
	if !reflect.DeepEqual(a.EquityCurve, b.EquityCurve) {
		t.Error("equity curves differ between identical no-rule runs")
	}
}

func TestRunIdempotent(t *testing.T) {
	bars := barsFromCloses(10.00, 9.10, 8.80, 9.50, 10.20, 11.00, 12.10)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy
	sigs[6].Action = models.SignalSell

	cfg := risk.DefaultConfig()
	cfg.StopLossPct = ptr(0.10)
	cfg.StopProfitPct = ptr(0.15)

	first, err := newTestEngine(100000, cfg).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := newTestEngine(100000, cfg).Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(first.Trades, second.Trades) {
		t.Error("trade logs differ between identical runs")
	}
	if first.FinalEquity != second.FinalEquity {
		t.Errorf("final equity differs: %.6f vs %.6f", first.FinalEquity, second.FinalEquity)
	}
}

func TestRunReusedEngineResetsDrawdownPeak(t *testing.T) {
	// The equity peak from a first run must not leak into a second run on
	// the same engine, or drawdown protection fires spuriously.
	bars := barsFromCloses(10.00, 11.50, 14.00, 12.20, 12.20)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy

	cfg := risk.DefaultConfig()
	cfg.MaxDrawdownPct = ptr(0.15)
	e := newTestEngine(100000, cfg)

	first, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !reflect.DeepEqual(first.Trades, second.Trades) {
		t.Errorf("trade logs differ across sequential runs: %d vs %d trades",
			len(first.Trades), len(second.Trades))
	}
	if !reflect.DeepEqual(first.EquityCurve, second.EquityCurve) {
		t.Error("equity curves differ across sequential runs")
	}
	if first.RiskStats != second.RiskStats {
		t.Errorf("risk stats differ: %+v vs %+v", first.RiskStats, second.RiskStats)
	}
}

func TestRunCloseOnFinish(t *testing.T) {
	bars := barsFromCloses(10.00, 10.50, 11.00)
	sigs := holdSignals(bars)
	sigs[0].Action = models.SignalBuy

	rs := testRules()
	rm := risk.NewManager(risk.DefaultConfig(), rs, 100000)
	e := New(Config{Symbol: "600000", InitialCapital: 100000, CloseOnFinish: true}, rs, rm, zerolog.Nop())

	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2 with close-on-finish", len(res.Trades))
	}
	if res.Trades[1].ExitReason != models.ReasonEndOfRun {
		t.Errorf("exit reason = %v, want %v", res.Trades[1].ExitReason, models.ReasonEndOfRun)
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	if last.PositionValue != 0 {
		t.Errorf("final position value = %.2f, want 0 after close-out", last.PositionValue)
	}
	if math.Abs(last.Equity-res.FinalEquity) > 1e-9 {
		t.Errorf("final equity point %.2f != result final equity %.2f", last.Equity, res.FinalEquity)
	}
}

func TestRunValidationErrors(t *testing.T) {
	e := newTestEngine(100000, risk.DefaultConfig())
	ctx := context.Background()

	if _, err := e.Run(ctx, nil, nil); err == nil {
		t.Error("empty bars should fail")
	} else {
		var de *errors.DataError
		if !errors.As(err, &de) {
			t.Errorf("empty bars error = %T, want *DataError", err)
		}
	}

	bars := barsFromCloses(10.00, 10.50)
	if _, err := e.Run(ctx, bars, holdSignals(bars[:1])); err == nil {
		t.Error("mismatched signal count should fail")
	}

	bad := barsFromCloses(10.00, 10.50)
	bad[1].Date = bad[0].Date
	if _, err := e.Run(ctx, bad, holdSignals(bad)); err == nil {
		t.Error("non-monotonic dates should fail")
	}

	missing := barsFromCloses(10.00, 10.50)
	missing[1].Close = 0
	if _, err := e.Run(ctx, missing, holdSignals(missing)); err == nil {
		t.Error("missing close should fail")
	}
}

func TestRunCancellation(t *testing.T) {
	bars := barsFromCloses(10.00, 10.50, 11.00)
	sigs := holdSignals(bars)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(100000, risk.DefaultConfig())
	if _, err := e.Run(ctx, bars, sigs); err == nil {
		t.Error("cancelled context should fail the run")
	}
}

func TestRunZeroTradesIsValidResult(t *testing.T) {
	bars := barsFromCloses(10.00, 10.50, 11.00)
	sigs := holdSignals(bars)

	e := newTestEngine(100000, risk.DefaultConfig())
	res, err := e.Run(context.Background(), bars, sigs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 || res.FinalEquity != 100000 {
		t.Errorf("expected complete zero-trade result, got %d trades, equity %.2f",
			len(res.Trades), res.FinalEquity)
	}
}
