package strategy

import (
	"backtester/internal/models"
)

// MACross signals an entry when the fast moving average crosses above the
// slow one, and an exit on the opposite cross.
type MACross struct{}

func (s *MACross) Name() string { return "ma_cross" }

func (s *MACross) DefaultParams() map[string]float64 {
	return map[string]float64{
		"fast_period": 5,
		"slow_period": 20,
	}
}

func (s *MACross) GenerateSignals(bars []models.Bar, params map[string]float64) []models.Signal {
	fast := int(param(params, "fast_period", 5))
	slow := int(param(params, "slow_period", 20))
	if fast < 1 {
		fast = 1
	}
	if slow <= fast {
		slow = fast + 1
	}

	sigs := holdSignals(bars)
	if len(bars) <= slow {
		return sigs
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	fastMA := sma(closes, fast)
	slowMA := sma(closes, slow)

	for i := slow; i < len(bars); i++ {
		prevDiff := fastMA[i-1] - slowMA[i-1]
		currDiff := fastMA[i] - slowMA[i]
		switch {
		case prevDiff <= 0 && currDiff > 0:
			sigs[i].Action = models.SignalBuy
			sigs[i].Reason = "fast MA crossed above slow MA"
		case prevDiff >= 0 && currDiff < 0:
			sigs[i].Action = models.SignalSell
			sigs[i].Reason = "fast MA crossed below slow MA"
		}
	}
	return sigs
}

// sma computes a rolling simple moving average. Positions before a full
// window hold the partial average.
func sma(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
			out[i] = sum / float64(window)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}
