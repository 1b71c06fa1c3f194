// Package event defines the closed set of inputs an engine processes.
// Everything that can change engine state (market data, order and account
// events, network completions, timer ticks) is serialized into one inbox
// and handled by a single goroutine.
package event

import (
	"time"

	"github.com/July-Jio/ritmex-bot/internal/domain"
)

// Type identifies an event variant.
type Type uint8

const (
	EvDepth Type = iota + 1
	EvKline
	EvTicker
	EvOrder
	EvPosition
	EvFill
	EvCommandResult
	EvTick
)

// Event is the interface all engine inputs implement.
type Event interface {
	Type() Type
	When() time.Time
}

// Base carries the receive timestamp common to all events.
type Base struct {
	At time.Time
}

func (b Base) When() time.Time { return b.At }

// Depth is a top-of-book depth snapshot from the venue.
type Depth struct {
	Base
	Bids []domain.PriceLevel
	Asks []domain.PriceLevel
}

func (Depth) Type() Type { return EvDepth }

// Kline is a closed candle; only the close feeds the SMA.
type Kline struct {
	Base
	Close float64
}

func (Kline) Type() Type { return EvKline }

// Ticker is a last-trade price update.
type Ticker struct {
	Base
	Last float64
}

func (Ticker) Type() Type { return EvTicker }

// OrderUpdate is an authoritative order state change. The engine's open
// order cache is always superseded by it.
type OrderUpdate struct {
	Base
	Order domain.Order
}

func (OrderUpdate) Type() Type { return EvOrder }

// PositionUpdate replaces the engine's position wholesale.
type PositionUpdate struct {
	Base
	Position domain.Position
}

func (PositionUpdate) Type() Type { return EvPosition }

// Fill is an execution report for one trade.
type Fill struct {
	Base
	Fill domain.Fill
}

func (Fill) Type() Type { return EvFill }

// CommandResult folds the completion of an asynchronous place/cancel back
// into the serial queue.
type CommandResult struct {
	Base
	Action        string // "place" or "cancel"
	ClientOrderID string
	Err           error
}

func (CommandResult) Type() Type { return EvCommandResult }

// Tick is the periodic timer driving reconciliation when the market is quiet.
type Tick struct {
	Base
}

func (Tick) Type() Type { return EvTick }
