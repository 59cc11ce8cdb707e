package cli

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"backtester/internal/errors"
	"backtester/internal/metrics"
	"backtester/internal/optimize"
)

func newOptimizeCmd(app *App) *cobra.Command {
	var (
		strategyName string
		objective    string
		workers      int
		top          int
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Grid-search strategy parameters",
		Long: `Optimize evaluates every parameter combination from the configured grid
and ranks them by the objective metric. With two grid axes a heatmap of
the objective surface is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if strategyName == "" {
				strategyName = app.Config.Run.Strategy
			}
			if objective == "" {
				objective = app.Config.Optimization.Objective
			}
			if workers <= 0 {
				workers = app.Config.Optimization.Workers
			}

			grid := gridFromConfig(app)
			if len(grid) == 0 {
				return errors.Wrap(errors.ErrEmptyGrid, "no [[optimization.params]] axes configured")
			}

			bars, benchmark, err := app.loadData(ctx)
			if err != nil {
				return err
			}

			gs := &optimize.GridSearch{
				Grid:        grid,
				Objective:   objective,
				Constraints: constraintsFromConfig(app),
				Workers:     workers,
				Logger:      app.Logger,
				Evaluate: func(ctx context.Context, params map[string]float64) (metrics.Metrics, error) {
					merged, err := strategyParams(strategyName, params)
					if err != nil {
						return metrics.Metrics{}, err
					}
					_, m, err := app.runOnce(ctx, bars, benchmark, strategyName, merged)
					return m, err
				},
			}

			result, err := gs.Run(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printOptimizeResult(output, app, grid, objective, result, top)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyName, "strategy", "", "strategy to optimize (default from config)")
	cmd.Flags().StringVar(&objective, "objective", "", "objective metric (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations (default from config)")
	cmd.Flags().IntVar(&top, "top", 10, "number of ranked combinations to show")
	return cmd
}

func gridFromConfig(app *App) optimize.ParamGrid {
	var grid optimize.ParamGrid
	for _, p := range app.Config.Optimization.Params {
		grid = append(grid, optimize.ParamAxis{Name: p.Name, Values: p.Values})
	}
	return grid
}

func constraintsFromConfig(app *App) []optimize.Constraint {
	var cs []optimize.Constraint
	for _, c := range app.Config.Optimization.Constraints {
		cs = append(cs, optimize.Constraint{Metric: c.Metric, Min: c.Min, Max: c.Max})
	}
	return cs
}

func printOptimizeResult(output *Output, app *App, grid optimize.ParamGrid, objective string, result *optimize.Result, top int) {
	color.Cyan("Grid Search — %s, %d combinations", objective, len(result.All))
	output.Printf("  Elapsed: %s\n", FormatDuration(result.Duration))
	output.Println()

	if result.BestIndex < 0 {
		output.Warning("No combination satisfied the constraints.")
		return
	}

	keys := make([]string, 0, len(grid))
	for _, axis := range grid {
		keys = append(keys, axis.Name)
	}

	output.Bold("Best: %s  %s = %.4f", FormatParams(result.BestParams, keys), objective, result.BestScore)
	output.Println()

	ranked := rankResults(result.All)
	if top > len(ranked) {
		top = len(ranked)
	}
	table := NewTable(output, "RANK", "PARAMS", objective, "RETURN", "MAX DD", "TRADES")
	for i := 0; i < top; i++ {
		r := ranked[i]
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			FormatParams(r.Params, keys),
			FormatRatio(r.Score),
			FormatPercent(r.Metrics.TotalReturn),
			FormatPercent(r.Metrics.MaxDrawdown),
			fmt.Sprintf("%d", r.Metrics.TotalTrades),
		)
	}
	table.Render()

	if result.Heatmap != nil {
		output.Println()
		printHeatmap(output, objective, result.Heatmap)
	}
}

// rankResults orders valid results best-first. Failed or constraint-violated
// combinations sort last.
func rankResults(all []optimize.EvalResult) []optimize.EvalResult {
	ranked := make([]optimize.EvalResult, len(all))
	copy(ranked, all)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		aBad := a.Err != nil || a.ConstraintViolated
		bBad := b.Err != nil || b.ConstraintViolated
		if aBad != bBad {
			return bBad
		}
		return a.Score > b.Score
	})
	return ranked
}

func printHeatmap(output *Output, objective string, hm *optimize.Heatmap) {
	output.Bold("Heatmap: %s (%s × %s)", objective, hm.XParam, hm.YParam)

	headers := make([]string, 0, len(hm.XValues)+1)
	headers = append(headers, hm.YParam+`\`+hm.XParam)
	for _, x := range hm.XValues {
		headers = append(headers, formatAxisValue(x))
	}

	table := NewTable(output, headers...)
	for yi := len(hm.YValues) - 1; yi >= 0; yi-- {
		row := make([]string, 0, len(hm.XValues)+1)
		row = append(row, formatAxisValue(hm.YValues[yi]))
		for xi := range hm.XValues {
			z := hm.ZValues[yi][xi]
			if math.IsNaN(z) {
				row = append(row, output.DimText("-"))
			} else {
				row = append(row, FormatRatio(z))
			}
		}
		table.AddRow(row...)
	}
	table.Render()
}

func formatAxisValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%g", v)
}
