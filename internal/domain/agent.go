package domain

// AgentTag identifies one of the trading agents. The set is closed: the
// shared ledger only tracks capital allocation for tags it knows about.
type AgentTag string

const (
	AgentSafe    AgentTag = "safe"    // high-probability market scanner
	AgentScalper AgentTag = "scalper" // 15-minute crypto up/down scalper
	AgentCopy    AgentTag = "copy"    // top-gainer wallet copy trader
	AgentSports  AgentTag = "sports"  // sports/esports edge finder
)

// KnownAgents lists every valid agent tag.
var KnownAgents = []AgentTag{AgentSafe, AgentScalper, AgentCopy, AgentSports}

// ValidAgent reports whether tag is a member of the closed agent set.
func ValidAgent(tag AgentTag) bool {
	for _, t := range KnownAgents {
		if t == tag {
			return true
		}
	}
	return false
}

// Outcome is the side of a binary market an agent bets on.
type Outcome string

const (
	OutcomeYes  Outcome = "YES"
	OutcomeNo   Outcome = "NO"
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)
