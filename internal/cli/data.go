package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"backtester/internal/errors"
	"backtester/internal/rules"
	"backtester/internal/store"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored market data",
		Long:  "Import, list and inspect the bar data used by backtests.",
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataShowCmd(app))
	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	var benchmark bool

	cmd := &cobra.Command{
		Use:   "import <symbol> <csv-file>",
		Short: "Import daily bars from a CSV file",
		Long: `Import parses a CSV file of daily bars (date,open,high,low,close,volume
with optional prev_close and suspended columns) and stores them under the
given symbol. With --benchmark the file is read as an index close series
(date,close) instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			symbol, path := args[0], args[1]

			if app.Store == nil {
				return errors.ErrStoreUnavailable
			}

			if benchmark {
				f, err := os.Open(path)
				if err != nil {
					return errors.NewDataError(symbol, "opening CSV", err)
				}
				defer f.Close()
				points, err := store.ReadBenchmarkCSV(f, symbol)
				if err != nil {
					return err
				}
				if err := app.Store.SaveBenchmark(ctx, symbol, points); err != nil {
					return err
				}
				color.Green("✓ Imported %d benchmark points for %s", len(points), symbol)
				return nil
			}

			n, err := store.ImportBarsCSV(ctx, path, symbol, app.Store)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "bars": n})
			}
			color.Green("✓ Imported %d bars for %s", n, symbol)
			return nil
		},
	}

	cmd.Flags().BoolVar(&benchmark, "benchmark", false, "import as a benchmark close series")
	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if app.Store == nil {
				return errors.ErrStoreUnavailable
			}
			symbols, err := app.Store.ListSymbols(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(symbols)
			}
			if len(symbols) == 0 {
				output.Dim("No data stored. Use 'backtester data import' to load bars.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "BOARD", "LIMIT", "LATEST BAR")
			for _, sym := range symbols {
				board := rules.ClassifyBoard(sym)
				fresh, err := app.Store.GetBarsFreshness(ctx, sym)
				latest := "-"
				if err == nil && !fresh.IsZero() {
					latest = FormatDate(fresh)
				}
				table.AddRow(sym, string(board), fmt.Sprintf("±%.0f%%", rules.LimitPct(board)*100), latest)
			}
			table.Render()
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "show <symbol>",
		Short: "Show stored bars for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			symbol := args[0]

			if app.Store == nil {
				return errors.ErrStoreUnavailable
			}
			bars, err := app.Store.GetBars(ctx, symbol, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return errors.NewDataError(symbol, "no bars stored", errors.ErrNoData)
			}
			if last > 0 && last < len(bars) {
				bars = bars[len(bars)-last:]
			}

			if output.IsJSON() {
				return output.JSON(bars)
			}

			table := NewTable(output, "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME", "CHANGE")
			for _, b := range bars {
				change := ""
				if b.PrevClose > 0 {
					change = output.FormatPercent((b.Close/b.PrevClose - 1) * 100)
				}
				if b.Suspended {
					change = output.DimText("susp")
				}
				table.AddRow(
					FormatDate(b.Date),
					fmt.Sprintf("%.2f", b.Open),
					fmt.Sprintf("%.2f", b.High),
					fmt.Sprintf("%.2f", b.Low),
					fmt.Sprintf("%.2f", b.Close),
					FormatCompact(float64(b.Volume)),
					change,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "show only the most recent N bars (0 for all)")
	return cmd
}
