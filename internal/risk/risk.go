// Package risk implements the pure position-sizing math shared by every
// agent: expected value, half-Kelly stake sizing, and the drawdown circuit
// breaker. All functions are total; degenerate inputs degrade to "do not
// trade" rather than returning errors.
package risk

import "math"

const (
	// DefaultFees is the flat fee deducted from expected value.
	DefaultFees = 0.01

	// DefaultMaxRiskFraction caps the fraction of balance risked per trade.
	DefaultMaxRiskFraction = 0.10

	// DefaultInvisibilityCap is the absolute stake ceiling in quote currency.
	// Kept low so orders never visibly move a thin book.
	DefaultInvisibilityCap = 50.0

	// DefaultDrawdownLimit circuit-breaks trading once the session loses
	// this fraction of its starting balance.
	DefaultDrawdownLimit = 0.05

	// absoluteRiskCeiling bounds the Kelly fraction no matter what the
	// configured MaxRiskFraction or RiskMultiplier say.
	absoluteRiskCeiling = 0.15

	// halfKelly is the variance-reduction damping applied to the raw
	// Kelly fraction.
	halfKelly = 0.5

	// minViableStake and stakeFloor implement the exchange's practical
	// minimum order size: stakes in (minViableStake, stakeFloor] are raised
	// to stakeFloor, stakes at or below minViableStake are zeroed.
	minViableStake = 0.10
	stakeFloor     = 0.50
)

// KellyParams tunes KellySize. The zero value is not useful; start from
// DefaultKellyParams.
type KellyParams struct {
	MaxRiskFraction float64 // hard ceiling on fraction of balance risked
	InvisibilityCap float64 // absolute stake ceiling in quote currency
	RiskMultiplier  float64 // external confidence/mood scaling, applied before capping
}

// DefaultKellyParams returns the standard sizing parameters.
func DefaultKellyParams() KellyParams {
	return KellyParams{
		MaxRiskFraction: DefaultMaxRiskFraction,
		InvisibilityCap: DefaultInvisibilityCap,
		RiskMultiplier:  1.0,
	}
}

// CalculateEV returns the fee-adjusted expected value of buying an outcome
// at price given the caller's independent winProbability estimate and the
// payoff potentialProfit (conventionally 1 - price). The result is clamped
// to zero: a negative-edge bet reports no edge. Prices outside the open
// interval (0,1) also yield zero, which guards downstream Kelly sizing
// against division by zero on already-resolved markets.
func CalculateEV(price, winProbability, potentialProfit, fees float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	ev := winProbability*potentialProfit - (1-winProbability)*price - fees
	return math.Max(0, ev)
}

// KellySize converts an expected value into a dollar stake using half-Kelly
// sizing. The raw Kelly fraction ev/(1-price) is halved, scaled by the risk
// multiplier, clamped to min(MaxRiskFraction, absolute ceiling), applied to
// the balance, and finally capped at InvisibilityCap.
//
// Stakes at or below $0.10 return 0 (not worth the fees); stakes in
// ($0.10, $0.50] are floored up to $0.50, the exchange's practical minimum.
// Any degenerate input (ev <= 0, price outside (0,1), balance <= 0) returns 0.
func KellySize(balance, ev, price float64, p KellyParams) float64 {
	if ev <= 0 || balance <= 0 || price <= 0 || price >= 1 {
		return 0
	}

	f := ev / (1 - price)
	f *= halfKelly
	f *= p.RiskMultiplier

	f = math.Min(f, math.Min(p.MaxRiskFraction, absoluteRiskCeiling))
	if f <= 0 {
		return 0
	}

	stake := f * balance
	stake = math.Min(stake, p.InvisibilityCap)

	if stake <= minViableStake {
		return 0
	}
	if stake <= stakeFloor {
		return stakeFloor
	}
	return stake
}

// CheckDrawdown reports whether trading may continue. It returns false once
// the session's loss exceeds drawdownLimit as a fraction of initialBalance.
// A non-positive initialBalance returns true: before the first balance
// snapshot there is no meaningful drawdown to measure, and failing open
// there is intentional.
func CheckDrawdown(initialBalance, currentBalance, drawdownLimit float64) bool {
	if initialBalance <= 0 {
		return true
	}
	drawdown := (initialBalance - currentBalance) / initialBalance
	return drawdown <= drawdownLimit
}
