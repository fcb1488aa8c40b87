// Package agent implements the trading agents and the shared execution
// loop that runs them: a high-probability scanner, a 15-minute crypto
// scalper, a copy trader, and a sports/esports edge finder. Agents only
// propose candidates; sizing and admission are decided by the risk engine
// and the ledger.
package agent

import (
	"context"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
)

// Candidate is a trade proposal produced by a Scanner. WinProbability is
// the scanner's own estimate; the runner may refine it with an LLM
// assessment before the risk engine prices it.
type Candidate struct {
	Market         domain.Market
	Outcome        domain.Outcome
	Token          domain.OutcomeToken
	WinProbability float64
	Note           string // short human-readable rationale, used in logs and alerts
}

// Scanner finds trade candidates for one agent strategy.
type Scanner interface {
	// Tag identifies the agent for allocation and audit purposes.
	Tag() domain.AgentTag
	// Scan returns the current trade candidates, best first.
	Scan(ctx context.Context) ([]Candidate, error)
}

// Trader submits sized orders to the exchange. *polymarket.ClobClient is
// the production implementation.
type Trader interface {
	Buy(ctx context.Context, args polymarket.BuyArgs) (polymarket.OrderResult, error)
}
