package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"backtester/internal/metrics"
	"backtester/internal/optimize"
)

func newWalkForwardCmd(app *App) *cobra.Command {
	var (
		strategyName string
		objective    string
		workers      int
	)

	cmd := &cobra.Command{
		Use:     "walkforward",
		Aliases: []string{"wf"},
		Short:   "Walk-forward validation of a strategy",
		Long: `Walkforward slides a train/test window over the stored bars, optionally
re-optimizing parameters on each train window, and scores the chosen
parameters out-of-sample. Consistent degradation from train to test
flags the strategy as overfit.`,
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

			defaults, err := strategyParams(strategyName, nil)
			if err != nil {
				return err
			}

			bars, benchmark, err := app.loadData(ctx)
			if err != nil {
				return err
			}

			wfCfg := app.Config.WalkForward
			wf := &optimize.WalkForward{
				Config: optimize.WalkForwardConfig{
					TrainBars:            wfCfg.TrainBars,
					TestBars:             wfCfg.TestBars,
					StepBars:             wfCfg.StepBars,
					Objective:            objective,
					OptimizeInTrain:      wfCfg.OptimizeInTrain,
					DefaultParams:        defaults,
					DegradationThreshold: wfCfg.DegradationThreshold,
					Workers:              workers,
				},
				Grid:        gridFromConfig(app),
				Constraints: constraintsFromConfig(app),
				Logger:      app.Logger,
				Evaluate: func(ctx context.Context, start, end int, params map[string]float64) (metrics.Metrics, error) {
					merged, err := strategyParams(strategyName, params)
					if err != nil {
						return metrics.Metrics{}, err
					}
					_, m, err := app.runOnce(ctx, bars[start:end], benchmark, strategyName, merged)
					return m, err
				},
			}

			result, err := wf.Run(ctx, len(bars))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printWalkForwardResult(output, objective, wf, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyName, "strategy", "", "strategy to validate (default from config)")
	cmd.Flags().StringVar(&objective, "objective", "", "objective metric (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel evaluations per train window")
	return cmd
}

func printWalkForwardResult(output *Output, objective string, wf *optimize.WalkForward, result *optimize.WalkForwardResult) {
	color.Cyan("Walk-Forward — %s, %d windows", objective, len(result.Periods))
	output.Printf("  Elapsed: %s\n", FormatDuration(result.Duration))
	output.Println()

	keys := make([]string, 0, len(wf.Grid))
	for _, axis := range wf.Grid {
		keys = append(keys, axis.Name)
	}

	table := NewTable(output, "WINDOW", "TRAIN", "TEST", "PARAMS", "TRAIN "+objective, "TEST "+objective, "DEGRADATION")
	for i, p := range result.Periods {
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d..%d", p.Window.TrainStart, p.Window.TrainEnd),
			fmt.Sprintf("%d..%d", p.Window.TestStart, p.Window.TestEnd),
			FormatParams(p.Params, keys),
			FormatRatio(p.TrainScore),
			FormatRatio(p.TestScore),
			FormatRatio(p.Degradation),
		)
	}
	table.Render()
	output.Println()

	output.Printf("  Avg Train:       %s\n", FormatRatio(result.AvgTrainScore))
	output.Printf("  Avg Test:        %s\n", FormatRatio(result.AvgTestScore))
	output.Printf("  Avg Degradation: %s\n", FormatRatio(result.AvgDegradation))
	if result.Overfitting {
		output.Warning("  Overfitting suspected: out-of-sample scores fall well short of in-sample.")
	} else {
		output.Success("  Out-of-sample performance holds up.")
	}
}
