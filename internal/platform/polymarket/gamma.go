// Package polymarket contains the REST and WebSocket clients for the
// Polymarket Gamma, CLOB, and Data APIs.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// GammaClient is the REST client for the Gamma API, which provides market
// discovery and metadata. All endpoints are unauthenticated.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// MarketQuery narrows a market listing. Zero values mean "no filter".
type MarketQuery struct {
	Limit      int
	Offset     int
	ActiveOnly bool
	Tag        string    // category slug, e.g. "sports", "crypto", "esports"
	MinVolume  float64   // drop markets below this lifetime USD volume
	EndBefore  time.Time // only markets resolving before this instant
}

// ListMarkets returns markets matching the query. Volume and end-date
// filtering happen client-side because Gamma's own filters are unreliable
// for those fields.
func (g *GammaClient) ListMarkets(ctx context.Context, q MarketQuery) ([]domain.Market, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.ActiveOnly {
		params.Set("active", "true")
		params.Set("closed", "false")
	}
	if q.Tag != "" {
		params.Set("tag", q.Tag)
	}

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		m := apiMarkets[i].ToDomainMarket()
		if q.MinVolume > 0 && m.Volume < q.MinVolume {
			continue
		}
		if !q.EndBefore.IsZero() && (m.EndDate.IsZero() || m.EndDate.After(q.EndBefore)) {
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var apiMarket APIMarket
	if err := json.Unmarshal(body, &apiMarket); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return apiMarket.ToDomainMarket(), nil
}

// GetMarketBySlug returns a single market looked up by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(apiMarkets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return apiMarkets[0].ToDomainMarket(), nil
}

// Resolution holds settlement state for a market.
type Resolution struct {
	Closed        bool
	WinningOutcome string // empty until the market resolves
}

// GetResolution fetches a market and reports whether it has settled and
// which outcome won. The settlement sweep uses this to close positions.
func (g *GammaClient) GetResolution(ctx context.Context, marketID string) (Resolution, error) {
	m, err := g.GetMarket(ctx, marketID)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{Closed: m.Closed}
	for _, t := range m.Tokens {
		if t.Winner {
			res.WinningOutcome = t.Outcome
			break
		}
	}
	return res, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
