package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"backtester/internal/models"
	"backtester/internal/rules"
)

// Property: the sized quantity is always a whole number of lots, never
// exceeds the exposure caps, and its total fill cost never exceeds cash.
func TestProperty_MaxQuantityRespectsConstraints(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	rs := rules.NewRuleSet(models.BoardMain, 0.001, 5, 0, 0.001, 100)

	properties.Property("sizing respects lot, caps and cash", prop.ForAll(
		func(cash, price, posPct float64) bool {
			cfg := DefaultConfig()
			cfg.MaxPositionPct = posPct
			m := NewManager(cfg, rs, cash)

			qty := m.MaxQuantity(cash, price, cash, 0)
			if qty < 0 || qty%rs.LotSize != 0 {
				return false
			}
			if qty == 0 {
				return true
			}

			amount := float64(qty) * price
			if amount > posPct*cash+1e-6 {
				return false
			}
			cost := amount + rs.Fees(models.OrderSideBuy, amount).Total()
			return cost <= cash+1e-6
		},
		gen.Float64Range(1000, 10_000_000),
		gen.Float64Range(0.5, 500),
		gen.Float64Range(0.05, 1.0),
	))

	properties.TestingRun(t)
}

// Property: at most one exit rule fires per bar, and a firing rule always
// reports a price strictly past its threshold.
func TestProperty_ExitTriggerConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	rs := rules.NewRuleSet(models.BoardMain, 0.001, 5, 0, 0.001, 100)

	properties.Property("exit triggers are consistent", prop.ForAll(
		func(cost, price float64) bool {
			cfg := DefaultConfig()
			cfg.StopLossPct = ptr(0.10)
			cfg.StopProfitPct = ptr(0.20)
			m := NewManager(cfg, rs, 100000)

			pos := &models.Position{Quantity: 100, AvgCost: cost, HighWater: cost}
			trig := m.CheckExit(pos, price, 100000)
			if trig == nil {
				// Neither threshold strictly crossed.
				return price >= cost*0.9 && price <= cost*1.2
			}
			switch trig.Rule {
			case models.ReasonStopLoss:
				return price < cost*0.9
			case models.ReasonStopProfit:
				return price > cost*1.2
			default:
				return false
			}
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(0.5, 1500),
	))

	properties.TestingRun(t)
}
