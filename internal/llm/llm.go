// Package llm provides market confidence assessment via chat-completion
// APIs. The agents treat the model's answer as one more probability
// estimate, never as an order instruction; everything it returns is clamped
// and re-checked by the risk engine.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Assessment is the model's judgment of a proposed trade.
type Assessment struct {
	Confidence float64 `json:"confidence"` // win probability in [0,1]
	Reasoning  string  `json:"reasoning"`
}

// Assessor scores a market question and a proposed outcome.
type Assessor interface {
	Assess(ctx context.Context, question, outcome string, marketPrice float64) (Assessment, error)
}

// systemPrompt instructs the model to answer with a bare JSON object so the
// reply parses without follow-up turns.
const systemPrompt = `You are a prediction-market analyst. Given a market question, a proposed outcome, and the current market price, reply with ONLY a JSON object: {"confidence": <probability the outcome occurs, 0.0-1.0>, "reasoning": "<one sentence>"}`

func userPrompt(question, outcome string, marketPrice float64) string {
	return fmt.Sprintf("Question: %s\nProposed outcome: %s\nCurrent market price: %.3f", question, outcome, marketPrice)
}

// parseAssessment extracts an Assessment from a model reply. Models wrap
// JSON in code fences or prose often enough that this scans for the first
// balanced object instead of unmarshalling the raw reply.
func parseAssessment(reply string) (Assessment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Assessment{}, fmt.Errorf("llm: no JSON object in reply %q", truncate(reply, 120))
	}

	var a Assessment
	if err := json.Unmarshal([]byte(reply[start:end+1]), &a); err != nil {
		return Assessment{}, fmt.Errorf("llm: decode assessment: %w", err)
	}

	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
