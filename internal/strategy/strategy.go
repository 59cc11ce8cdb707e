// Package strategy defines the signal-provider capability and the
// built-in reference strategies.
package strategy

import (
	"sort"

	"backtester/internal/errors"
	"backtester/internal/models"
)

// SignalProvider generates one signal per bar for a given parameter set.
// Implementations must be pure: the same bars and params always produce
// the same signals.
type SignalProvider interface {
	Name() string
	// GenerateSignals returns signals aligned one-to-one with bars by
	// date. Unused parameters are ignored; missing ones fall back to
	// the strategy's defaults.
	GenerateSignals(bars []models.Bar, params map[string]float64) []models.Signal
	// DefaultParams returns the parameter defaults the strategy uses
	// when a value is absent.
	DefaultParams() map[string]float64
}

var registry = map[string]func() SignalProvider{
	"ma_cross":     func() SignalProvider { return &MACross{} },
	"rsi_reversal": func() SignalProvider { return &RSIReversal{} },
}

// New returns a signal provider by its registered name.
func New(name string) (SignalProvider, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownStrategy, "strategy %q", name)
	}
	return factory(), nil
}

// Names lists the registered strategy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func param(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

func holdSignals(bars []models.Bar) []models.Signal {
	sigs := make([]models.Signal, len(bars))
	for i, b := range bars {
		sigs[i] = models.Signal{Date: b.Date, Action: models.SignalHold}
	}
	return sigs
}
