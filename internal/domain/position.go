package domain

import "time"

// Position is an open bet held by one of the agents. At most one Position
// may exist per market across all agents; the ledger's admission control
// enforces this, not the struct itself.
type Position struct {
	MarketID   string    `json:"market_id"`
	Question   string    `json:"question"`
	Agent      AgentTag  `json:"agent"`
	Outcome    Outcome   `json:"outcome"`
	EntryPrice float64   `json:"entry_price"` // in [0,1]
	Size       float64   `json:"size"`        // quote currency (USDC)
	OpenedAt   time.Time `json:"opened_at"`
	TokenID    string    `json:"token_id,omitempty"` // CLOB outcome token, when known
}
