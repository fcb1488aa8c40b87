package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") because the
// Gamma API is inconsistent about how it sends boolean fields.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList unmarshals Gamma's doubly-encoded array fields, which arrive
// either as a JSON array or as a JSON string containing an array, e.g.
// "[\"Yes\",\"No\"]".
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(s), (*[]string)(l))
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	Category      string     `json:"category"`
	Active        flexBool   `json:"active"`
	Closed        bool       `json:"closed"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
	Volume        string     `json:"volume"`
	Liquidity     string     `json:"liquidity"`
	EndDateISO    string     `json:"endDateIso"`
	Tokens        []APIToken `json:"tokens"`
}

// APIToken is a token entry when the API sends the expanded form.
type APIToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// ToDomainMarket converts a Gamma market to the domain model. Outcome
// tokens come from the expanded tokens array when present, otherwise they
// are zipped from the parallel outcomes/outcomePrices/clobTokenIds fields.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
		Category: m.Category,
		Active:   bool(m.Active),
		Closed:   m.Closed,
	}

	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}
	if v, err := strconv.ParseFloat(m.Liquidity, 64); err == nil {
		dm.Liquidity = v
	}
	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			dm.EndDate = t
		} else if t, err := time.Parse("2006-01-02", m.EndDateISO); err == nil {
			dm.EndDate = t
		}
	}

	if len(m.Tokens) > 0 {
		for _, tok := range m.Tokens {
			dm.Tokens = append(dm.Tokens, domain.OutcomeToken{
				TokenID: tok.TokenID,
				Outcome: tok.Outcome,
				Price:   tok.Price,
				Winner:  tok.Winner,
			})
		}
		return dm
	}

	for i, outcome := range m.Outcomes {
		tok := domain.OutcomeToken{Outcome: outcome}
		if i < len(m.ClobTokenIDs) {
			tok.TokenID = m.ClobTokenIDs[i]
		}
		if i < len(m.OutcomePrices) {
			if p, err := strconv.ParseFloat(m.OutcomePrices[i], 64); err == nil {
				tok.Price = p
			}
		}
		dm.Tokens = append(dm.Tokens, tok)
	}
	return dm
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	TransactID  string `json:"transactionHash,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// OrderResult is the outcome of an order submission as seen by the agents.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      string
	Message     string
	ShouldRetry bool
}

func (r *APIOrderResult) toOrderResult() OrderResult {
	return OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Status:      r.Status,
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// WalletStat is one row of the Data API profit leaderboard.
type WalletStat struct {
	Address string  `json:"proxyWallet"`
	Name    string  `json:"name"`
	PnL     float64 `json:"amount"`
}

// WalletTrade is a single fill from a tracked wallet's trade history.
type WalletTrade struct {
	Wallet    string  `json:"proxyWallet"`
	MarketID  string  `json:"conditionId"`
	Title     string  `json:"title"`
	Side      string  `json:"side"` // "BUY" or "SELL"
	Outcome   string  `json:"outcome"`
	TokenID   string  `json:"asset"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"`
}

// Time returns the trade timestamp as a time.Time.
func (t WalletTrade) Time() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsCommand is the JSON payload sent to the market channel to subscribe.
type wsCommand struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids,omitempty"`
}

// wsPriceMessage is a last_trade_price or price_change frame from the
// market channel. Only the fields the price feed consumes are decoded.
type wsPriceMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}
