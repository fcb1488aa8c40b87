// Package file implements the portable, file-backed ContextStore: one JSON
// document guarded by advisory file locks, so independent bot processes on
// the same host can share a ledger without a database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// Store persists the shared trading context as a single JSON document.
// Writes take an exclusive flock and rewrite the whole document; reads take
// a shared flock. A process-local mutex covers the in-process case, since
// flock only arbitrates between file descriptions.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New creates a Store backed by the JSON document at path. The file is
// created on first mutation if it does not exist.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Snapshot reads the current document under a shared lock. A missing file
// yields an empty state rather than an error.
func (s *Store) Snapshot(ctx context.Context) (domain.ContextState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContextState{}, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyState(), nil
		}
		return domain.ContextState{}, fmt.Errorf("file: open %s: %w", s.path, err)
	}
	defer f.Close()

	if err := flockShared(f); err != nil {
		return domain.ContextState{}, fmt.Errorf("file: shared lock %s: %w", s.path, err)
	}
	defer funlock(f)

	return decodeState(f)
}

// CreatePosition inserts an open position, enforcing the one-position-per-
// market invariant under the exclusive lock.
func (s *Store) CreatePosition(ctx context.Context, pos domain.Position) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		for _, p := range state.Positions {
			if p.MarketID == pos.MarketID {
				return domain.ErrDuplicatePosition
			}
		}
		state.Positions = append(state.Positions, pos)
		return nil
	})
}

// DeletePosition removes the position for marketID.
func (s *Store) DeletePosition(ctx context.Context, marketID string) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		for i, p := range state.Positions {
			if p.MarketID == marketID {
				state.Positions = append(state.Positions[:i], state.Positions[i+1:]...)
				return nil
			}
		}
		return domain.ErrNotFound
	})
}

// AppendTrade appends to the trade history, keeping the most recent
// RecentTradeCap events (most-recent-last).
func (s *Store) AppendTrade(ctx context.Context, trade domain.TradeEvent) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		state.RecentTrades = append(state.RecentTrades, trade)
		if n := len(state.RecentTrades); n > domain.RecentTradeCap {
			state.RecentTrades = state.RecentTrades[n-domain.RecentTradeCap:]
		}
		return nil
	})
}

// AddBlacklist inserts marketID into the blacklist. Idempotent; the reason
// is recorded only in the caller's log, the document keeps the bare set.
func (s *Store) AddBlacklist(ctx context.Context, marketID, _ string) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		for _, id := range state.Blacklist {
			if id == marketID {
				return nil
			}
		}
		state.Blacklist = append(state.Blacklist, marketID)
		return nil
	})
}

// SetAllocation replaces the agent allocation map.
func (s *Store) SetAllocation(ctx context.Context, alloc map[domain.AgentTag]float64) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		state.Allocation = alloc
		return nil
	})
}

// SetTotalBalance records the latest observed balance.
func (s *Store) SetTotalBalance(ctx context.Context, balance float64) error {
	return s.mutate(ctx, func(state *domain.ContextState) error {
		state.TotalBalance = balance
		return nil
	})
}

// mutate runs fn over the decoded document and writes the result back,
// all under one exclusive lock so concurrent processes cannot interleave
// their read-modify-write cycles.
func (s *Store) mutate(ctx context.Context, fn func(*domain.ContextState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("file: open %s: %w", s.path, err)
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		return fmt.Errorf("file: exclusive lock %s: %w", s.path, err)
	}
	defer funlock(f)

	state, err := decodeState(f)
	if err != nil {
		return err
	}

	if err := fn(&state); err != nil {
		return err
	}
	state.LastUpdate = s.now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode state: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("file: truncate %s: %w", s.path, err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("file: write %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("file: sync %s: %w", s.path, err)
	}
	return nil
}

func decodeState(r io.Reader) (domain.ContextState, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ContextState{}, fmt.Errorf("file: read state: %w", err)
	}
	if len(data) == 0 {
		return emptyState(), nil
	}
	var state domain.ContextState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.ContextState{}, fmt.Errorf("file: decode state: %w", err)
	}
	if state.Allocation == nil {
		state.Allocation = map[domain.AgentTag]float64{}
	}
	return state, nil
}

func emptyState() domain.ContextState {
	return domain.ContextState{Allocation: map[domain.AgentTag]float64{}}
}

// Compile-time interface check.
var _ domain.ContextStore = (*Store)(nil)
