package domain

import "time"

// TradeStatus is the lifecycle state recorded on a trade event.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusFilled  TradeStatus = "filled"
	TradeStatusFailed  TradeStatus = "failed"
	// TradeStatusSettled marks a settlement event appended once a market
	// resolves. It references the original trade via SettlesTradeID and
	// carries the realized PnL; the original record is never mutated.
	TradeStatusSettled TradeStatus = "settled"
)

// RecentTradeCap bounds the trade history retained by the shared context.
// Older events rotate out (and may be archived to blob storage first).
const RecentTradeCap = 100

// TradeEvent is an immutable record of an attempted, completed, or settled
// order. The history is append-only: a status or PnL change is expressed as
// a new event, never as an update to an existing one.
type TradeEvent struct {
	ID             string      `json:"id"`
	MarketID       string      `json:"market_id"`
	Agent          AgentTag    `json:"agent"`
	Outcome        Outcome     `json:"outcome"`
	Size           float64     `json:"size"`
	Price          float64     `json:"price"`
	Status         TradeStatus `json:"status"`
	PnL            *float64    `json:"pnl,omitempty"`
	SettlesTradeID string      `json:"settles_trade_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
