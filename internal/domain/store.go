package domain

import (
	"context"
	"time"
)

// ContextState is a point-in-time snapshot of the shared trading context.
// RecentTrades is ordered most-recent-last and capped at RecentTradeCap.
type ContextState struct {
	Positions    []Position           `json:"positions"`
	RecentTrades []TradeEvent         `json:"recent_trades"`
	Blacklist    []string             `json:"blacklist"`
	Allocation   map[AgentTag]float64 `json:"allocation"`
	TotalBalance float64              `json:"total_balance"`
	LastUpdate   time.Time            `json:"last_update"`
}

// Blacklisted reports whether marketID is on the blacklist.
func (s ContextState) Blacklisted(marketID string) bool {
	for _, id := range s.Blacklist {
		if id == marketID {
			return true
		}
	}
	return false
}

// PositionFor returns the open position for marketID, if any agent holds one.
func (s ContextState) PositionFor(marketID string) (Position, bool) {
	for _, p := range s.Positions {
		if p.MarketID == marketID {
			return p, true
		}
	}
	return Position{}, false
}

// LastTradeAt returns the timestamp of the most recent trade event on the
// given market, or the zero time if none is retained.
func (s ContextState) LastTradeAt(marketID string) time.Time {
	var last time.Time
	for _, t := range s.RecentTrades {
		if t.MarketID == marketID && t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return last
}

// ContextStore is the persistence medium behind the shared trading context.
// Implementations must make each mutation atomic with respect to concurrent
// bot processes (exclusive file lock, or a transactional table with a unique
// constraint on market_id).
type ContextStore interface {
	// Snapshot returns the full current state. Reads may be slightly stale
	// with respect to concurrent writers.
	Snapshot(ctx context.Context) (ContextState, error)

	// CreatePosition inserts a new open position. It returns
	// ErrDuplicatePosition if any agent already holds one for the market.
	CreatePosition(ctx context.Context, pos Position) error

	// DeletePosition removes the open position for the market. It returns
	// ErrNotFound if none exists.
	DeletePosition(ctx context.Context, marketID string) error

	// AppendTrade appends an immutable trade event and trims the retained
	// history to RecentTradeCap.
	AppendTrade(ctx context.Context, trade TradeEvent) error

	// AddBlacklist inserts a market into the blacklist. Idempotent.
	AddBlacklist(ctx context.Context, marketID, reason string) error

	// SetAllocation replaces the per-agent capital allocation map.
	SetAllocation(ctx context.Context, alloc map[AgentTag]float64) error

	// SetTotalBalance records the latest observed total balance.
	SetTotalBalance(ctx context.Context, balance float64) error
}

// LockManager provides cross-process mutual exclusion for backends that do
// not serialize read-modify-write sequences on their own.
type LockManager interface {
	// Acquire obtains the named lock for at most ttl and returns an unlock
	// function. It returns ErrLockHeld when another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// PriceCache caches the latest observed price per outcome token for the
// agent polling loops.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	// GetPrice returns the cached price and its observation time, or
	// ErrNotFound on a cache miss.
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
}

// BlobWriter uploads an object to blob storage under the given key.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
