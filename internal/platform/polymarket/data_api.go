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
)

// DataClient is the REST client for the Polymarket Data API, which exposes
// wallet-level trade history and the profit leaderboard. The copy trader
// uses it to pick wallets to mirror and to see what they just bought.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Leaderboard returns the top wallets by realized profit over the given
// window ("1d", "7d", "30d", "all").
func (d *DataClient) Leaderboard(ctx context.Context, window string, limit int) ([]WalletStat, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("window", window)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("rankType", "pnl")

	body, err := d.doGet(ctx, "/v1/leaderboard?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: leaderboard: %w", err)
	}

	var stats []WalletStat
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode leaderboard: %w", err)
	}
	return stats, nil
}

// WalletTrades returns recent fills for a wallet, newest first.
func (d *DataClient) WalletTrades(ctx context.Context, wallet string, limit int) ([]WalletTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: trades for %s: %w", wallet, err)
	}

	var trades []WalletTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}
	return trades, nil
}

func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
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
