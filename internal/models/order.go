package models

import (
	"fmt"
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle state of an order. Every order
// resolves within the bar it is proposed on: proposed orders end either
// filled or rejected, never resting.
type OrderStatus string

const (
	OrderProposed OrderStatus = "PROPOSED"
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
)

// OrderReason tags why an order was generated.
type OrderReason string

const (
	ReasonStrategySignal OrderReason = "strategy_signal"
	ReasonStopLoss       OrderReason = "stop_loss"
	ReasonStopProfit     OrderReason = "stop_profit"
	ReasonDrawdown       OrderReason = "drawdown_protection"
	ReasonEndOfRun       OrderReason = "end_of_run"
)

// Order is an intent to trade a quantity at a reference price on one bar.
type Order struct {
	Date         time.Time
	Side         OrderSide
	Quantity     int
	RefPrice     float64
	Reason       OrderReason
	Status       OrderStatus
	RejectReason string
}

func (o Order) String() string {
	return fmt.Sprintf("Order(%s %d @ %.2f, %s, %s)",
		o.Side, o.Quantity, o.RefPrice, o.Reason, o.Status)
}
