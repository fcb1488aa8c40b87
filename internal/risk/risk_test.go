package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateEV(t *testing.T) {
	t.Run("boundary prices return zero", func(t *testing.T) {
		assert.Zero(t, CalculateEV(0, 0.9, 1.0, 0))
		assert.Zero(t, CalculateEV(1, 0.9, 0.0, 0))
		assert.Zero(t, CalculateEV(-0.2, 0.9, 1.2, 0))
		assert.Zero(t, CalculateEV(1.5, 0.9, -0.5, 0))
	})

	t.Run("negative raw EV clamps to zero", func(t *testing.T) {
		// 0.75*0.20 - 0.25*0.80 - 0.02 = -0.07
		assert.Zero(t, CalculateEV(0.80, 0.75, 0.20, 0.02))
		// fees alone push the edge negative
		assert.Zero(t, CalculateEV(0.50, 0.50, 0.50, 0.01))
	})

	t.Run("positive edge", func(t *testing.T) {
		// 0.75*0.40 - 0.25*0.60 - 0.02 = 0.13
		assert.InDelta(t, 0.13, CalculateEV(0.60, 0.75, 0.40, 0.02), 0.005)
	})

	t.Run("never negative for any input", func(t *testing.T) {
		for _, price := range []float64{0.01, 0.25, 0.5, 0.75, 0.99} {
			for _, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
				ev := CalculateEV(price, p, 1-price, DefaultFees)
				assert.GreaterOrEqual(t, ev, 0.0)
			}
		}
	})
}

func TestKellySize(t *testing.T) {
	params := func(maxRisk float64) KellyParams {
		p := DefaultKellyParams()
		p.MaxRiskFraction = maxRisk
		return p
	}

	t.Run("max risk fraction caps the stake", func(t *testing.T) {
		// raw half-Kelly fraction 0.1625 is cut to 0.02 -> $2.00
		assert.InDelta(t, 2.00, KellySize(100, 0.13, 0.60, params(0.02)), 0.005)
	})

	t.Run("absolute ceiling applies above max risk fraction", func(t *testing.T) {
		// half-Kelly fraction 0.1625 exceeds the 0.15 safety ceiling even
		// though MaxRiskFraction would allow it.
		assert.InDelta(t, 15.00, KellySize(100, 0.13, 0.60, params(0.25)), 0.005)
	})

	t.Run("dust stakes return zero", func(t *testing.T) {
		// 0.05/0.5*0.5 = 0.05 fraction -> $0.05 stake, below the $0.10 bar
		assert.Zero(t, KellySize(1, 0.05, 0.50, params(0.10)))
	})

	t.Run("small stakes floor to fifty cents", func(t *testing.T) {
		// half-Kelly fraction 0.003/0.5*0.5 = 0.003 of $100 = $0.30,
		// inside the ($0.10, $0.50] flooring band.
		assert.Equal(t, 0.50, KellySize(100, 0.003, 0.50, params(0.10)))
	})

	t.Run("invisibility cap bounds large balances", func(t *testing.T) {
		p := params(0.10)
		assert.Equal(t, DefaultInvisibilityCap, KellySize(100_000, 0.13, 0.60, p))
	})

	t.Run("degenerate inputs return zero", func(t *testing.T) {
		p := DefaultKellyParams()
		assert.Zero(t, KellySize(100, 0, 0.60, p))
		assert.Zero(t, KellySize(100, -0.1, 0.60, p))
		assert.Zero(t, KellySize(0, 0.13, 0.60, p))
		assert.Zero(t, KellySize(-5, 0.13, 0.60, p))
		assert.Zero(t, KellySize(100, 0.13, 0, p))
		assert.Zero(t, KellySize(100, 0.13, 1, p))
	})

	t.Run("monotonically non-decreasing in ev", func(t *testing.T) {
		p := params(0.10)
		prev := 0.0
		for ev := 0.005; ev <= 0.30; ev += 0.005 {
			stake := KellySize(100, ev, 0.60, p)
			assert.GreaterOrEqual(t, stake, prev, "ev=%f", ev)
			prev = stake
		}
	})

	t.Run("risk multiplier scales before capping", func(t *testing.T) {
		p := params(0.10)
		base := KellySize(100, 0.02, 0.60, p)
		p.RiskMultiplier = 2.0
		doubled := KellySize(100, 0.02, 0.60, p)
		assert.Greater(t, doubled, base)
		// but never beyond the configured ceiling
		p.RiskMultiplier = 100.0
		assert.InDelta(t, 100*p.MaxRiskFraction, KellySize(100, 0.02, 0.60, p), 0.005)
	})
}

func TestCheckDrawdown(t *testing.T) {
	assert.True(t, CheckDrawdown(100, 96, 0.05))
	assert.True(t, CheckDrawdown(100, 95, 0.05), "boundary is inclusive of safety")
	assert.False(t, CheckDrawdown(100, 94, 0.05))
	assert.True(t, CheckDrawdown(0, 50, 0.05), "zero initial balance fails open")
	assert.True(t, CheckDrawdown(-10, 50, 0.05))
	assert.True(t, CheckDrawdown(100, 150, 0.05), "gains never trip the breaker")
}
