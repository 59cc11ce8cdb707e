package strategy

import (
	"backtester/internal/models"
)

// RSIReversal signals an entry when RSI crosses up out of the oversold
// zone and an exit when it crosses down out of the overbought zone.
type RSIReversal struct{}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) DefaultParams() map[string]float64 {
	return map[string]float64{
		"period":     6,
		"oversold":   30,
		"overbought": 70,
	}
}

func (s *RSIReversal) GenerateSignals(bars []models.Bar, params map[string]float64) []models.Signal {
	period := int(param(params, "period", 6))
	oversold := param(params, "oversold", 30)
	overbought := param(params, "overbought", 70)
	if period < 2 {
		period = 2
	}

	sigs := holdSignals(bars)
	if len(bars) <= period+1 {
		return sigs
	}

	rsi := rsiSeries(bars, period)
	for i := period + 1; i < len(bars); i++ {
		prev, curr := rsi[i-1], rsi[i]
		switch {
		case prev < oversold && curr >= oversold:
			sigs[i].Action = models.SignalBuy
			sigs[i].Reason = "RSI crossed up out of oversold"
		case prev > overbought && curr <= overbought:
			sigs[i].Action = models.SignalSell
			sigs[i].Reason = "RSI crossed down out of overbought"
		}
	}
	return sigs
}

// rsiSeries computes Wilder-smoothed RSI over the bar closes.
func rsiSeries(bars []models.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	var avgGain, avgLoss float64

	for i := 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		if i <= period {
			avgGain += gain / float64(period)
			avgLoss += loss / float64(period)
		} else {
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		if i >= period {
			if avgLoss == 0 {
				out[i] = 100
			} else {
				rs := avgGain / avgLoss
				out[i] = 100 - 100/(1+rs)
			}
		} else {
			out[i] = 50
		}
	}
	out[0] = 50
	return out
}
