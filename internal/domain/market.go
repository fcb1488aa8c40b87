package domain

import "time"

// OutcomeToken is one tradeable outcome of a market with its CLOB token ID
// and current market-implied price.
type OutcomeToken struct {
	TokenID string
	Outcome string // e.g. "Yes", "No", "Up", "Down"
	Price   float64
	Winner  bool // set once the market resolves
}

// Market holds the Gamma API metadata the agents act on.
type Market struct {
	ID        string
	Question  string
	Slug      string
	Category  string
	Tokens    []OutcomeToken
	Volume    float64
	Liquidity float64
	EndDate   time.Time
	Active    bool
	Closed    bool
}

// TokenFor returns the outcome token matching the given side, using the
// Gamma labeling convention ("Yes"/"No"/"Up"/"Down").
func (m Market) TokenFor(outcome Outcome) (OutcomeToken, bool) {
	want := map[Outcome]string{
		OutcomeYes:  "Yes",
		OutcomeNo:   "No",
		OutcomeUp:   "Up",
		OutcomeDown: "Down",
	}[outcome]
	for _, t := range m.Tokens {
		if t.Outcome == want {
			return t, true
		}
	}
	return OutcomeToken{}, false
}
