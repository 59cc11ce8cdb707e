package models

import (
	"time"
)

// RiskEventType classifies a risk-management event.
type RiskEventType string

const (
	RiskEventForcedExit    RiskEventType = "forced_exit"
	RiskEventOrderRejected RiskEventType = "order_rejected"
	RiskEventOrderClipped  RiskEventType = "order_clipped"
)

// RiskEvent records a risk rule firing or an order rejection. These are
// data, not errors: the run continues after every one of them.
type RiskEvent struct {
	Date         time.Time
	Type         RiskEventType
	Rule         OrderReason
	TriggerPrice float64
	CostBasis    float64
	Reason       string
}

// RiskStats aggregates risk activity over a run.
type RiskStats struct {
	StopLossCount    int
	StopProfitCount  int
	DrawdownCount    int
	RejectedOrders   int
	ClippedOrders    int
	StopLossLocked   float64 // realized loss locked in by stop-loss exits
	StopProfitLocked float64 // realized profit locked in by take-profit exits
	DrawdownLocked   float64 // realized P&L of drawdown-protection exits
}

// RunResult is the complete output of one simulation run.
type RunResult struct {
	Trades      []Trade
	Orders      []Order
	EquityCurve []EquityPoint
	RiskEvents  []RiskEvent
	RiskStats   RiskStats
	FinalEquity float64
	Duration    time.Duration
}
