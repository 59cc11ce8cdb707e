package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"backtester/internal/models"
	"backtester/internal/risk"
)

// Property: for any price path and signal sequence, the run preserves the
// accounting invariants — cash never negative, one equity point per bar,
// equity always equal to cash plus position value at the close.
func TestProperty_RunPreservesAccountingInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	// Daily returns bounded inside the main-board price limit so fills
	// are not systematically vetoed.
	returnsGen := gen.SliceOfN(30, gen.Float64Range(-0.09, 0.09))
	actionsGen := gen.SliceOfN(30, gen.IntRange(0, 2))

	properties.Property("accounting invariants hold", prop.ForAll(
		func(returns []float64, actions []int) bool {
			bars := make([]models.Bar, len(returns))
			sigs := make([]models.Signal, len(returns))
			price := 20.0
			for i, r := range returns {
				prev := price
				price = math.Round(price*(1+r)*100) / 100
				if price < 1 {
					price = 1
				}
				date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
				bars[i] = models.Bar{
					Date: date, Open: price, High: price, Low: price,
					Close: price, Volume: 1000, PrevClose: prev,
				}
				action := models.SignalHold
				switch actions[i] {
				case 1:
					action = models.SignalBuy
				case 2:
					action = models.SignalSell
				}
				sigs[i] = models.Signal{Date: date, Action: action}
			}

			cfg := risk.DefaultConfig()
			sl := 0.10
			cfg.StopLossPct = &sl
			rs := testRules()
			rm := risk.NewManager(cfg, rs, 100000)
			e := New(Config{Symbol: "600000", InitialCapital: 100000}, rs, rm, zerolog.Nop())

			res, err := e.Run(context.Background(), bars, sigs)
			if err != nil {
				return false
			}
			if len(res.EquityCurve) != len(bars) {
				return false
			}
			for _, pt := range res.EquityCurve {
				if pt.Cash < -1e-6 {
					return false
				}
				if math.Abs(pt.Equity-(pt.Cash+pt.PositionValue)) > 1e-6 {
					return false
				}
			}
			for _, tr := range res.Trades {
				if tr.Quantity <= 0 || tr.Quantity%rs.LotSize != 0 {
					return false
				}
			}
			return true
		},
		returnsGen,
		actionsGen,
	))

	properties.TestingRun(t)
}
