package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoVigProbability(t *testing.T) {
	t.Run("strips overround", func(t *testing.T) {
		// 0.55 + 0.50 quotes carry a 5% overround.
		p, ok := NoVigProbability(0.55, 0.50)
		assert.True(t, ok)
		assert.InDelta(t, 0.55/1.05, p, 1e-9)
	})

	t.Run("fair quote unchanged", func(t *testing.T) {
		p, ok := NoVigProbability(0.60, 0.40)
		assert.True(t, ok)
		assert.InDelta(t, 0.60, p, 1e-9)
	})

	t.Run("sides sum to one", func(t *testing.T) {
		pYes, ok := NoVigProbability(0.72, 0.31)
		assert.True(t, ok)
		pNo, ok2 := NoVigProbability(0.31, 0.72)
		assert.True(t, ok2)
		assert.InDelta(t, 1.0, pYes+pNo, 1e-9)
	})

	t.Run("degenerate prices rejected", func(t *testing.T) {
		for _, pair := range [][2]float64{
			{0, 0.5}, {0.5, 0}, {1, 0.5}, {0.5, 1}, {-0.1, 0.5}, {0.5, 1.1},
		} {
			_, ok := NoVigProbability(pair[0], pair[1])
			assert.False(t, ok, "prices %v", pair)
		}
	})
}
