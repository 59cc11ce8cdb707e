package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"backtester/internal/metrics"
	"backtester/internal/models"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		strategyName string
		setFlags     []string
		showTrades   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest for the configured symbol",
		Long: `Run simulates the configured strategy over the stored bars for the
configured symbol and date range, then prints performance and risk metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if strategyName == "" {
				strategyName = app.Config.Run.Strategy
			}
			overrides, err := parseSetFlags(setFlags)
			if err != nil {
				return err
			}
			params, err := strategyParams(strategyName, overrides)
			if err != nil {
				return err
			}

			bars, benchmark, err := app.loadData(ctx)
			if err != nil {
				return err
			}

			result, m, err := app.runOnce(ctx, bars, benchmark, strategyName, params)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":     app.Config.Run.Symbol,
					"strategy":   strategyName,
					"params":     params,
					"metrics":    m,
					"risk_stats": result.RiskStats,
					"trades":     result.Trades,
				})
			}

			printRunSummary(output, app, strategyName, bars, result, m)
			if showTrades {
				output.Println()
				printTrades(output, result.Trades)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyName, "strategy", "", "strategy to run (default from config)")
	cmd.Flags().StringArrayVar(&setFlags, "set", nil, "strategy parameter override, name=value (repeatable)")
	cmd.Flags().BoolVar(&showTrades, "trades", false, "print the trade log")
	return cmd
}

func printRunSummary(output *Output, app *App, strategyName string, bars []models.Bar, result *models.RunResult, m metrics.Metrics) {
	color.Cyan("Backtest — %s (%s)", app.Config.Run.Symbol, strategyName)
	output.Printf("  Bars:            %d (%s .. %s)\n", len(bars), FormatDate(bars[0].Date), FormatDate(bars[len(bars)-1].Date))
	output.Printf("  Elapsed:         %s\n", FormatDuration(result.Duration))
	output.Println()

	output.Bold("Returns")
	output.Printf("  Final Capital:   %s\n", FormatMoney(m.FinalCapital))
	output.Printf("  Total Return:    %s\n", output.FormatPercent(m.TotalReturn*100))
	output.Printf("  CAGR:            %s\n", output.FormatPercent(m.CAGR*100))
	output.Printf("  Annual Return:   %s\n", output.FormatPercent(m.AnnualReturn*100))
	output.Println()

	output.Bold("Risk")
	output.Printf("  Volatility:      %.2f%%\n", m.Volatility*100)
	output.Printf("  Max Drawdown:    %s (%d days)\n", output.FormatPercent(m.MaxDrawdown*100), m.MaxDrawdownDuration)
	output.Printf("  Sharpe:          %s\n", FormatRatio(m.SharpeRatio))
	output.Printf("  Sortino:         %s\n", FormatRatio(m.SortinoRatio))
	output.Printf("  Calmar:          %s\n", FormatRatio(m.CalmarRatio))
	output.Println()

	output.Bold("Trading")
	output.Printf("  Round Trips:     %d\n", m.TotalTrades)
	output.Printf("  Win Rate:        %.1f%%\n", m.WinRate*100)
	output.Printf("  Profit Factor:   %s\n", FormatRatio(m.ProfitFactor))
	output.Printf("  Avg Trade:       %s\n", output.FormatPercent(m.AvgTradeReturn*100))
	output.Printf("  Avg Hold:        %.1f days\n", m.AvgHoldingPeriod)
	output.Printf("  Turnover:        %.2fx\n", m.TurnoverRate)

	if m.HasBenchmark {
		output.Println()
		output.Bold("Benchmark")
		output.Printf("  Alpha:           %.4f\n", m.Alpha)
		output.Printf("  Beta:            %.2f\n", m.Beta)
		output.Printf("  Info Ratio:      %s\n", FormatRatio(m.InformationRatio))
		output.Printf("  Tracking Error:  %.2f%%\n", m.TrackingError*100)
	}

	stats := result.RiskStats
	if stats.StopLossCount+stats.StopProfitCount+stats.DrawdownCount+stats.RejectedOrders+stats.ClippedOrders > 0 {
		output.Println()
		output.Bold("Risk Events")
		if stats.StopLossCount > 0 {
			output.Printf("  Stop Loss:       %d exits, %s\n", stats.StopLossCount, output.FormatPnL(stats.StopLossLocked))
		}
		if stats.StopProfitCount > 0 {
			output.Printf("  Stop Profit:     %d exits, %s\n", stats.StopProfitCount, output.FormatPnL(stats.StopProfitLocked))
		}
		if stats.DrawdownCount > 0 {
			output.Printf("  Drawdown:        %d exits, %s\n", stats.DrawdownCount, output.FormatPnL(stats.DrawdownLocked))
		}
		if stats.RejectedOrders > 0 {
			output.Printf("  Rejected Orders: %d\n", stats.RejectedOrders)
		}
		if stats.ClippedOrders > 0 {
			output.Printf("  Clipped Orders:  %d\n", stats.ClippedOrders)
		}
	}
}

func printTrades(output *Output, trades []models.Trade) {
	if len(trades) == 0 {
		output.Dim("No trades.")
		return
	}
	table := NewTable(output, "DATE", "SIDE", "QTY", "PRICE", "AMOUNT", "FEES", "P&L", "REASON")
	for _, t := range trades {
		pnl := ""
		reason := ""
		if t.IsClose() {
			pnl = output.FormatPnL(t.PnL)
			reason = strings.ReplaceAll(string(t.ExitReason), "_", " ")
		}
		table.AddRow(
			FormatDate(t.Date),
			string(t.Side),
			fmt.Sprintf("%d", t.Quantity),
			fmt.Sprintf("%.2f", t.Price),
			FormatMoney(t.Amount),
			FormatMoney(t.TotalCost()),
			pnl,
			reason,
		)
	}
	table.Render()
}
