package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// PerplexityClient implements Assessor against the Perplexity API, which is
// wire-compatible with OpenAI chat completions. Its web-grounded models suit
// the sports agent, where fresh injury and roster news moves the estimate.
type PerplexityClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewPerplexityClient creates a Perplexity-backed assessor. model defaults
// to sonar.
func NewPerplexityClient(apiKey, model string) *PerplexityClient {
	if model == "" {
		model = "sonar"
	}
	return &PerplexityClient{
		baseURL: "https://api.perplexity.ai",
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// Assess asks the model for a confidence estimate on the proposed outcome.
func (c *PerplexityClient) Assess(ctx context.Context, question, outcome string, marketPrice float64) (Assessment, error) {
	reply, err := chatComplete(ctx, c.client, c.baseURL+"/chat/completions", c.apiKey, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(question, outcome, marketPrice)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("llm/perplexity: %w", err)
	}
	return parseAssessment(reply)
}
