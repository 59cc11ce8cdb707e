// Package optimize implements exhaustive parameter grid search and
// walk-forward validation.
package optimize

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"backtester/internal/errors"
	"backtester/internal/metrics"
	"backtester/internal/performance"
)

// ParamAxis is one named dimension of the search grid with its ordered
// candidate values.
type ParamAxis struct {
	Name   string
	Values []float64
}

// ParamGrid is an ordered list of axes. Enumeration order is fixed by the
// axis order, with the last axis varying fastest, so results and
// tie-breaks are reproducible.
type ParamGrid []ParamAxis

// Size returns the number of combinations in the grid.
func (g ParamGrid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, axis := range g {
		n *= len(axis.Values)
	}
	return n
}

// Combinations enumerates every parameter combination in grid order.
func (g ParamGrid) Combinations() []map[string]float64 {
	total := g.Size()
	if total == 0 {
		return nil
	}
	combos := make([]map[string]float64, 0, total)
	idx := make([]int, len(g))
	for {
		params := make(map[string]float64, len(g))
		for i, axis := range g {
			params[axis.Name] = axis.Values[idx[i]]
		}
		combos = append(combos, params)

		// Advance the rightmost axis first.
		i := len(g) - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(g[i].Values) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			return combos
		}
	}
}

// Constraint bounds a computed metric. Combinations outside the bounds
// are excluded from ranking but kept in the result list with a violation
// flag.
type Constraint struct {
	Metric string
	Min    *float64
	Max    *float64
}

// Evaluator runs one full backtest for a parameter combination and
// scores it. Implementations must be pure with respect to their inputs.
type Evaluator func(ctx context.Context, params map[string]float64) (metrics.Metrics, error)

// EvalResult is the outcome of one combination.
type EvalResult struct {
	Params             map[string]float64
	Score              float64
	Metrics            metrics.Metrics
	ConstraintViolated bool
	Err                error
}

// Heatmap is a dense objective matrix over exactly two varied parameters.
// ZValues is indexed [y][x]; invalid cells hold NaN.
type Heatmap struct {
	XParam  string
	XValues []float64
	YParam  string
	YValues []float64
	ZValues [][]float64
}

// Result is the full outcome of a grid search.
type Result struct {
	BestParams map[string]float64
	BestScore  float64
	BestIndex  int // index into All; -1 when nothing ranked
	All        []EvalResult
	Heatmap    *Heatmap
	Duration   time.Duration
}

// GridSearch drives one evaluator across a parameter grid.
type GridSearch struct {
	Grid        ParamGrid
	Objective   string
	Constraints []Constraint
	Evaluate    Evaluator
	// Workers > 1 evaluates combinations concurrently. Selection is
	// always by enumeration order, so the parallel result is identical
	// to the sequential one.
	Workers int
	Logger  zerolog.Logger
}

// minimized lists metrics ranked by smallest magnitude instead of largest
// value.
var minimized = map[string]bool{
	"max_drawdown":          true,
	"max_drawdown_duration": true,
	"volatility":            true,
	"tracking_error":        true,
}

// Run evaluates every combination and selects the best by the objective
// metric. Ties go to the first combination in enumeration order.
func (gs *GridSearch) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if gs.Grid.Size() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyGrid, "grid search")
	}
	if _, err := (&metrics.Metrics{}).Value(gs.Objective); err != nil {
		return nil, err
	}

	combos := gs.Grid.Combinations()
	gs.Logger.Info().
		Str("objective", gs.Objective).
		Int("combinations", len(combos)).
		Msg("Starting grid search")

	evalOne := func(ctx context.Context, params map[string]float64) EvalResult {
		m, err := gs.Evaluate(ctx, params)
		if err != nil {
			return EvalResult{Params: params, Score: math.Inf(-1), Err: err}
		}
		score, _ := m.Value(gs.Objective)
		r := EvalResult{Params: params, Score: score, Metrics: m}
		r.ConstraintViolated = gs.violates(&m)
		return r
	}

	var all []EvalResult
	if gs.Workers > 1 {
		all = performance.ParallelMap(ctx, gs.Workers, combos, evalOne)
	} else {
		all = make([]EvalResult, len(combos))
		for i, params := range combos {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "grid search cancelled")
			default:
			}
			all[i] = evalOne(ctx, params)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "grid search cancelled")
	}

	res := &Result{
		All:       all,
		BestIndex: -1,
		BestScore: math.NaN(),
	}
	for i := range all {
		if all[i].Err != nil || all[i].ConstraintViolated {
			continue
		}
		if res.BestIndex < 0 || gs.better(all[i].Score, res.BestScore) {
			res.BestIndex = i
			res.BestScore = all[i].Score
			res.BestParams = all[i].Params
		}
	}

	if len(gs.Grid) == 2 {
		res.Heatmap = gs.heatmap(all)
	}
	res.Duration = time.Since(start)

	gs.Logger.Info().
		Float64("best_score", res.BestScore).
		Dur("duration", res.Duration).
		Msg("Grid search completed")
	return res, nil
}

// better reports whether a strictly improves on b under the objective's
// direction convention.
func (gs *GridSearch) better(a, b float64) bool {
	if minimized[gs.Objective] {
		return math.Abs(a) < math.Abs(b)
	}
	return a > b
}

func (gs *GridSearch) violates(m *metrics.Metrics) bool {
	for _, c := range gs.Constraints {
		v, err := m.Value(c.Metric)
		if err != nil {
			continue
		}
		if c.Min != nil && v < *c.Min {
			return true
		}
		if c.Max != nil && v > *c.Max {
			return true
		}
	}
	return false
}

// heatmap builds the objective matrix for a two-axis grid. Axis values are
// sorted ascending; cells for violated or failed combinations hold NaN.
func (gs *GridSearch) heatmap(all []EvalResult) *Heatmap {
	xAxis, yAxis := gs.Grid[0], gs.Grid[1]

	xVals := append([]float64(nil), xAxis.Values...)
	yVals := append([]float64(nil), yAxis.Values...)
	sort.Float64s(xVals)
	sort.Float64s(yVals)

	score := make(map[[2]float64]float64, len(all))
	for _, r := range all {
		key := [2]float64{r.Params[xAxis.Name], r.Params[yAxis.Name]}
		if r.Err != nil || r.ConstraintViolated {
			score[key] = math.NaN()
		} else {
			score[key] = r.Score
		}
	}

	z := make([][]float64, len(yVals))
	for yi, y := range yVals {
		row := make([]float64, len(xVals))
		for xi, x := range xVals {
			if s, ok := score[[2]float64{x, y}]; ok {
				row[xi] = s
			} else {
				row[xi] = math.NaN()
			}
		}
		z[yi] = row
	}

	return &Heatmap{
		XParam:  xAxis.Name,
		XValues: xVals,
		YParam:  yAxis.Name,
		YValues: yVals,
		ZValues: z,
	}
}
