package domain

import "time"

// MarketSnapshot is the market data for one symbol at evaluation time.
// History holds closing prices oldest-first.
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	PrevClose float64   `json:"prev_close"`
	Volume    float64   `json:"volume"`
	IVRank    float64   `json:"iv_rank"`
	History   []float64 `json:"history,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mid returns the bid/ask midpoint, or Last when either side is missing.
func (m MarketSnapshot) Mid() float64 {
	if m.Bid > 0 && m.Ask > 0 {
		return (m.Bid + m.Ask) / 2
	}
	return m.Last
}

// MarkPrice is the price open positions are valued at: Last, then the
// bid/ask midpoint, then Close. Zero means the snapshot carries no price.
func (m MarketSnapshot) MarkPrice() float64 {
	if m.Last > 0 {
		return m.Last
	}
	if mid := m.Mid(); mid > 0 {
		return mid
	}
	return m.Close
}

// PositionState tracks whether a position is open or closed.
type PositionState string

const (
	PositionOpen   PositionState = "open"
	PositionClosed PositionState = "closed"
)

// PositionSnapshot is a read-only view of a bot position.
type PositionSnapshot struct {
	ID            string        `json:"id"`
	BotName       string        `json:"bot_name"`
	Symbol        string        `json:"symbol"`
	Strategy      string        `json:"strategy"`
	State         PositionState `json:"state"`
	Quantity      float64       `json:"quantity"`
	EntryPrice    float64       `json:"entry_price"`
	CurrentPrice  float64       `json:"current_price"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	RealizedPnL   float64       `json:"realized_pnl"`
	OpenedAt      time.Time     `json:"opened_at"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
}

// Mark values an open position at price. A position opened without an
// entry price takes price as its entry. Closed positions and non-positive
// prices are left unchanged.
func (p *PositionSnapshot) Mark(price float64) {
	if p.State != PositionOpen || price <= 0 {
		return
	}
	if p.EntryPrice <= 0 {
		p.EntryPrice = price
	}
	p.CurrentPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
}

// DaysOpen returns the whole days elapsed between OpenedAt and now.
func (p PositionSnapshot) DaysOpen(now time.Time) float64 {
	end := now
	if p.ClosedAt != nil {
		end = *p.ClosedAt
	}
	if end.Before(p.OpenedAt) {
		return 0
	}
	return float64(int(end.Sub(p.OpenedAt).Hours() / 24))
}

// DecisionContext is the immutable snapshot consulted by one evaluation pass.
// Callers build a fresh context per pass and must not mutate it while an
// evaluation is in flight.
type DecisionContext struct {
	MarketData  map[string]MarketSnapshot `json:"market_data"`
	Positions   []PositionSnapshot        `json:"positions"`
	BotState    map[string]float64        `json:"bot_state"`
	EvaluatedAt time.Time                 `json:"evaluated_at"`
}

// Market returns the snapshot for symbol.
func (dc *DecisionContext) Market(symbol string) (MarketSnapshot, bool) {
	m, ok := dc.MarketData[symbol]
	return m, ok
}

// OpenPositions returns the open positions in context order.
func (dc *DecisionContext) OpenPositions() []PositionSnapshot {
	var out []PositionSnapshot
	for _, p := range dc.Positions {
		if p.State == PositionOpen {
			out = append(out, p)
		}
	}
	return out
}

// Counter returns a bot state counter, defaulting to 0.
func (dc *DecisionContext) Counter(name string) float64 {
	return dc.BotState[name]
}
