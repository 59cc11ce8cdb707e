package optimize

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/metrics"
)

// Window is one train/test pair, expressed as half-open bar index ranges.
// The test range starts exactly where the train range ends.
type Window struct {
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
}

// WalkForwardConfig controls the rolling validation protocol. All window
// lengths are in bars.
type WalkForwardConfig struct {
	TrainBars int
	TestBars  int
	StepBars  int
	Objective string
	// OptimizeInTrain runs a grid search on each train window; when
	// false every window uses DefaultParams.
	OptimizeInTrain bool
	DefaultParams   map[string]float64
	// DegradationThreshold is the fraction of the train score the test
	// score may fall short by before the run is flagged as overfit.
	DegradationThreshold float64
	Workers              int
}

// Validate checks the window geometry.
func (c *WalkForwardConfig) Validate() error {
	if c.TrainBars <= 0 {
		return errors.NewConfigError("train_bars", c.TrainBars, "must be positive")
	}
	if c.TestBars <= 0 {
		return errors.NewConfigError("test_bars", c.TestBars, "must be positive")
	}
	if c.StepBars <= 0 {
		return errors.NewConfigError("step_bars", c.StepBars, "must be positive")
	}
	if c.DegradationThreshold < 0 {
		return errors.NewConfigError("degradation_threshold", c.DegradationThreshold, "must be >= 0")
	}
	return nil
}

// PeriodResult holds the outcome of one train/test window.
type PeriodResult struct {
	Window       Window
	Params       map[string]float64
	TrainMetrics metrics.Metrics
	TestMetrics  metrics.Metrics
	TrainScore   float64
	TestScore    float64
	// Degradation is test minus train on the objective metric.
	Degradation float64
}

// WalkForwardResult aggregates all windows.
type WalkForwardResult struct {
	Periods        []PeriodResult
	AvgTrainScore  float64
	AvgTestScore   float64
	AvgDegradation float64
	Overfitting    bool
	Duration       time.Duration
}

// SliceEvaluator scores one parameter set over the half-open bar range
// [start, end).
type SliceEvaluator func(ctx context.Context, start, end int, params map[string]float64) (metrics.Metrics, error)

// WalkForward repeatedly optimizes on a train window and re-scores the
// chosen parameters out-of-sample on the following test window.
type WalkForward struct {
	Config      WalkForwardConfig
	Grid        ParamGrid
	Constraints []Constraint
	Evaluate    SliceEvaluator
	Logger      zerolog.Logger
}

// Windows generates the train/test pairs for a series of totalBars bars.
// Generation stops as soon as a full train+test pair no longer fits; no
// truncated window is emitted.
func (wf *WalkForward) Windows(totalBars int) []Window {
	c := wf.Config
	var windows []Window
	for start := 0; start+c.TrainBars+c.TestBars <= totalBars; start += c.StepBars {
		trainEnd := start + c.TrainBars
		windows = append(windows, Window{
			TrainStart: start,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    trainEnd + c.TestBars,
		})
	}
	return windows
}

// Run executes the full protocol over a series of totalBars bars.
func (wf *WalkForward) Run(ctx context.Context, totalBars int) (*WalkForwardResult, error) {
	start := time.Now()

	if err := wf.Config.Validate(); err != nil {
		return nil, err
	}
	windows := wf.Windows(totalBars)
	if len(windows) == 0 {
		need := wf.Config.TrainBars + wf.Config.TestBars
		return nil, errors.NewInsufficientDataError(need, totalBars,
			"cannot form one train/test window")
	}

	wf.Logger.Info().
		Int("windows", len(windows)).
		Int("train_bars", wf.Config.TrainBars).
		Int("test_bars", wf.Config.TestBars).
		Msg("Starting walk-forward validation")

	res := &WalkForwardResult{Periods: make([]PeriodResult, 0, len(windows))}
	for _, w := range windows {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "walk-forward cancelled")
		default:
		}

		period, err := wf.runWindow(ctx, w)
		if err != nil {
			return nil, err
		}
		res.Periods = append(res.Periods, *period)
	}

	var sumTrain, sumTest float64
	for _, p := range res.Periods {
		sumTrain += p.TrainScore
		sumTest += p.TestScore
	}
	n := float64(len(res.Periods))
	res.AvgTrainScore = sumTrain / n
	res.AvgTestScore = sumTest / n
	res.AvgDegradation = res.AvgTestScore - res.AvgTrainScore

	// Overfit when the test score falls more than the configured
	// fraction below the train score.
	if math.Abs(res.AvgTrainScore) > 1e-10 {
		shortfall := (res.AvgTrainScore - res.AvgTestScore) / math.Abs(res.AvgTrainScore)
		res.Overfitting = shortfall > wf.Config.DegradationThreshold
	}

	res.Duration = time.Since(start)
	wf.Logger.Info().
		Float64("avg_train", res.AvgTrainScore).
		Float64("avg_test", res.AvgTestScore).
		Bool("overfitting", res.Overfitting).
		Dur("duration", res.Duration).
		Msg("Walk-forward completed")
	return res, nil
}

func (wf *WalkForward) runWindow(ctx context.Context, w Window) (*PeriodResult, error) {
	params := wf.Config.DefaultParams
	var trainMetrics metrics.Metrics

	if wf.Config.OptimizeInTrain && wf.Grid.Size() > 0 {
		gs := &GridSearch{
			Grid:        wf.Grid,
			Objective:   wf.Config.Objective,
			Constraints: wf.Constraints,
			Workers:     wf.Config.Workers,
			Logger:      wf.Logger,
			Evaluate: func(ctx context.Context, p map[string]float64) (metrics.Metrics, error) {
				return wf.Evaluate(ctx, w.TrainStart, w.TrainEnd, p)
			},
		}
		gr, err := gs.Run(ctx)
		if err != nil {
			return nil, err
		}
		if gr.BestIndex >= 0 {
			params = gr.BestParams
			trainMetrics = gr.All[gr.BestIndex].Metrics
		} else {
			// Every combination violated or failed; fall back to the
			// defaults for this window.
			m, err := wf.Evaluate(ctx, w.TrainStart, w.TrainEnd, params)
			if err != nil {
				return nil, err
			}
			trainMetrics = m
		}
	} else {
		m, err := wf.Evaluate(ctx, w.TrainStart, w.TrainEnd, params)
		if err != nil {
			return nil, err
		}
		trainMetrics = m
	}

	testMetrics, err := wf.Evaluate(ctx, w.TestStart, w.TestEnd, params)
	if err != nil {
		return nil, err
	}

	trainScore, _ := trainMetrics.Value(wf.Config.Objective)
	testScore, _ := testMetrics.Value(wf.Config.Objective)

	return &PeriodResult{
		Window:       w,
		Params:       params,
		TrainMetrics: trainMetrics,
		TestMetrics:  testMetrics,
		TrainScore:   trainScore,
		TestScore:    testScore,
		Degradation:  testScore - trainScore,
	}, nil
}
