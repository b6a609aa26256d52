// Package models provides domain models for the trading engine.
package models

import (
	"time"
)

// Direction represents the direction of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Flat  Direction = "FLAT"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// MarginMode represents how collateral is allocated for a position.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// Tick represents a single real-time price update.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Candle represents OHLCV data for one aggregation interval.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Window is a snapshot of recent market data handed to a strategy.
// It is immutable once produced; strategies must not retain or mutate it.
type Window struct {
	Symbol    string
	Candles   []Candle
	LastPrice float64
}

// Closes returns the close series of the window's candles.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w.Candles))
	for i, c := range w.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high series of the window's candles.
func (w Window) Highs() []float64 {
	out := make([]float64, len(w.Candles))
	for i, c := range w.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low series of the window's candles.
func (w Window) Lows() []float64 {
	out := make([]float64, len(w.Candles))
	for i, c := range w.Candles {
		out[i] = c.Low
	}
	return out
}

// Signal is the output of a strategy evaluation. Strength is a score in
// [0, 100]; Scores holds the per-indicator breakdown that produced it.
type Signal struct {
	Direction Direction
	Strength  float64
	Scores    map[string]float64
}

// Position represents an open perpetual-futures position. At most one
// position per symbol may be open at a time.
type Position struct {
	Symbol     string
	Side       Direction
	Size       float64
	EntryPrice float64
	Leverage   int

	StopLoss   float64
	TakeProfit float64

	// TrailingAnchor is the best price seen since the trailing stop armed;
	// zero until the position has moved TrailingDistance in its favor.
	TrailingAnchor   float64
	TrailingDistance float64

	OpenedAt time.Time
}

// ClosingSide returns the order side that closes this position.
func (p Position) ClosingSide() OrderSide {
	if p.Side == Long {
		return OrderSideSell
	}
	return OrderSideBuy
}

// PnL returns the realized profit for an exit at the given price,
// in quote currency.
func (p Position) PnL(exitPrice float64) float64 {
	if p.Side == Long {
		return (exitPrice - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - exitPrice) * p.Size
}

// ProfitRate returns the unleveraged return fraction at the given price.
func (p Position) ProfitRate(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == Long {
		return (price - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - price) / p.EntryPrice
}

// Balance represents account equity state.
type Balance struct {
	Equity    float64
	Available float64
}
