package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssessment(t *testing.T) {
	t.Run("bare JSON", func(t *testing.T) {
		a, err := parseAssessment(`{"confidence": 0.87, "reasoning": "heavy favorite"}`)
		require.NoError(t, err)
		assert.InDelta(t, 0.87, a.Confidence, 1e-9)
		assert.Equal(t, "heavy favorite", a.Reasoning)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		reply := "Here is my assessment:\n```json\n{\"confidence\": 0.4, \"reasoning\": \"coin flip\"}\n```"
		a, err := parseAssessment(reply)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, a.Confidence, 1e-9)
	})

	t.Run("confidence clamped to [0,1]", func(t *testing.T) {
		a, err := parseAssessment(`{"confidence": 1.7}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, a.Confidence)

		a, err = parseAssessment(`{"confidence": -0.3}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, a.Confidence)
	})

	t.Run("no JSON object", func(t *testing.T) {
		_, err := parseAssessment("I cannot answer that.")
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := parseAssessment(`{"confidence": oops}`)
		assert.Error(t, err)
	})
}
