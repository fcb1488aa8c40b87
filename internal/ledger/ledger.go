// Package ledger implements the shared trading context: the single arbiter
// of whether any agent may place a given trade, and the durable record of
// positions and trades shared by every bot process.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// lockTTL bounds how long a cross-process mutation lock may be held before
// it expires on its own.
const lockTTL = 10 * time.Second

// Config holds the admission-control limits.
type Config struct {
	// MaxOpenPositions caps the total open-position count across all agents.
	MaxOpenPositions int
	// MaxExposureFraction caps total open exposure as a fraction of balance.
	MaxExposureFraction float64
	// Cooldown is the minimum gap between trades on the same market.
	Cooldown time.Duration
}

// DefaultConfig returns the standard admission limits.
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions:    10,
		MaxExposureFraction: 0.80,
		Cooldown:            30 * time.Second,
	}
}

// Ledger coordinates capital across agents. Construct one per process and
// pass it explicitly to whatever needs it; there is no package-level
// singleton. All mutations go through the injected ContextStore, optionally
// serialized across processes by a LockManager for backends whose store does
// not serialize read-modify-write cycles itself.
type Ledger struct {
	store  domain.ContextStore
	locks  domain.LockManager // may be nil when the store self-serializes
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger with all required dependencies. locks may be nil if
// the store provides its own mutual exclusion (file lock or transactions).
func New(store domain.ContextStore, locks domain.LockManager, cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locks:  locks,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// Snapshot returns the current shared state. Reads are unsynchronized
// snapshots; slight staleness only makes admission marginally conservative
// or permissive, never unsafe.
func (l *Ledger) Snapshot(ctx context.Context) (domain.ContextState, error) {
	state, err := l.store.Snapshot(ctx)
	if err != nil {
		return domain.ContextState{}, unavailable("snapshot", err)
	}
	return state, nil
}

// CanTrade evaluates the admission rules for a proposed trade, in order,
// short-circuiting on the first failure. The returned reason names the
// failed rule; it is "OK" only when every check passes. A non-nil error
// means the ledger could not be consulted at all (persistence failure) and
// the caller should skip the cycle rather than trade.
func (l *Ledger) CanTrade(ctx context.Context, agent domain.AgentTag, marketID string, proposedSize, totalBalance float64) (bool, string, error) {
	state, err := l.store.Snapshot(ctx)
	if err != nil {
		return false, "", unavailable("can_trade snapshot", err)
	}

	if state.Blacklisted(marketID) {
		return false, fmt.Sprintf("market %s is blacklisted", marketID), nil
	}

	if held, ok := state.PositionFor(marketID); ok {
		return false, fmt.Sprintf("position already open for market %s (agent %s)", marketID, held.Agent), nil
	}

	if len(state.Positions) >= l.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("max open positions reached (%d/%d)", len(state.Positions), l.cfg.MaxOpenPositions), nil
	}

	exposure := totalExposure(state.Positions)
	if exposure+proposedSize > totalBalance*l.cfg.MaxExposureFraction {
		return false, fmt.Sprintf("exposure limit exceeded (%.2f + %.2f > %.2f)",
			exposure, proposedSize, totalBalance*l.cfg.MaxExposureFraction), nil
	}

	available := totalBalance*state.Allocation[agent] - agentExposure(state.Positions, agent)
	if proposedSize > available {
		return false, fmt.Sprintf("agent %s allocation exhausted (%.2f > %.2f available)", agent, proposedSize, available), nil
	}

	if last := state.LastTradeAt(marketID); !last.IsZero() {
		if elapsed := l.now().Sub(last); elapsed < l.cfg.Cooldown {
			return false, fmt.Sprintf("cooldown active for market %s (%.0fs of %.0fs elapsed)",
				marketID, elapsed.Seconds(), l.cfg.Cooldown.Seconds()), nil
		}
	}

	return true, "OK", nil
}

// AddPosition records a confirmed fill as an open position. Callers are
// expected to have passed CanTrade; the store's uniqueness guarantee is the
// final backstop against a concurrent duplicate.
func (l *Ledger) AddPosition(ctx context.Context, pos domain.Position) error {
	err := l.withLock(ctx, "market:"+pos.MarketID, func() error {
		return l.store.CreatePosition(ctx, pos)
	})
	if err != nil {
		if isDomainErr(err) {
			return err
		}
		return unavailable("add_position", err)
	}
	l.logger.InfoContext(ctx, "position opened",
		slog.String("market_id", pos.MarketID),
		slog.String("agent", string(pos.Agent)),
		slog.String("outcome", string(pos.Outcome)),
		slog.Float64("size", pos.Size),
		slog.Float64("entry_price", pos.EntryPrice),
	)
	return nil
}

// RemovePosition drops the open position for a market after liquidation or
// external resolution and redemption.
func (l *Ledger) RemovePosition(ctx context.Context, marketID string) error {
	err := l.withLock(ctx, "market:"+marketID, func() error {
		return l.store.DeletePosition(ctx, marketID)
	})
	if err != nil {
		if isDomainErr(err) {
			return err
		}
		return unavailable("remove_position", err)
	}
	l.logger.InfoContext(ctx, "position removed", slog.String("market_id", marketID))
	return nil
}

// AddTrade appends an immutable trade event to the bounded history.
func (l *Ledger) AddTrade(ctx context.Context, trade domain.TradeEvent) error {
	err := l.withLock(ctx, "trades", func() error {
		return l.store.AppendTrade(ctx, trade)
	})
	if err != nil {
		return unavailable("add_trade", err)
	}
	return nil
}

// SettleTrade appends a settlement event carrying the realized PnL for an
// earlier trade. The original record stays untouched so the history remains
// auditable.
func (l *Ledger) SettleTrade(ctx context.Context, original domain.TradeEvent, pnl float64) error {
	event := domain.TradeEvent{
		ID:             original.ID + ":settlement",
		MarketID:       original.MarketID,
		Agent:          original.Agent,
		Outcome:        original.Outcome,
		Size:           original.Size,
		Price:          original.Price,
		Status:         domain.TradeStatusSettled,
		PnL:            &pnl,
		SettlesTradeID: original.ID,
		Timestamp:      l.now(),
	}
	return l.AddTrade(ctx, event)
}

// BlacklistMarket excludes a market from all future trading. Idempotent.
func (l *Ledger) BlacklistMarket(ctx context.Context, marketID, reason string) error {
	err := l.withLock(ctx, "blacklist", func() error {
		return l.store.AddBlacklist(ctx, marketID, reason)
	})
	if err != nil {
		return unavailable("blacklist_market", err)
	}
	l.logger.WarnContext(ctx, "market blacklisted",
		slog.String("market_id", marketID),
		slog.String("reason", reason),
	)
	return nil
}

// SetAllocation replaces the per-agent capital split. Operator action only.
func (l *Ledger) SetAllocation(ctx context.Context, alloc map[domain.AgentTag]float64) error {
	var sum float64
	for tag, f := range alloc {
		if !domain.ValidAgent(tag) {
			return fmt.Errorf("ledger: unknown agent tag %q", tag)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("ledger: allocation for %s out of range: %f", tag, f)
		}
		sum += f
	}
	if sum > 1.0+1e-9 {
		return fmt.Errorf("ledger: allocations sum to %.3f, must be <= 1.0", sum)
	}
	if err := l.store.SetAllocation(ctx, alloc); err != nil {
		return unavailable("set_allocation", err)
	}
	return nil
}

// RecordBalance stores the most recently observed total balance.
func (l *Ledger) RecordBalance(ctx context.Context, balance float64) error {
	if err := l.store.SetTotalBalance(ctx, balance); err != nil {
		return unavailable("record_balance", err)
	}
	return nil
}

// ApplyPnL adjusts the recorded balance by a realized profit or loss. The
// read-modify-write runs under the cross-process balance lock so concurrent
// settlements do not lose updates.
func (l *Ledger) ApplyPnL(ctx context.Context, pnl float64) error {
	err := l.withLock(ctx, "balance", func() error {
		state, err := l.store.Snapshot(ctx)
		if err != nil {
			return err
		}
		return l.store.SetTotalBalance(ctx, state.TotalBalance+pnl)
	})
	if err != nil {
		return unavailable("apply_pnl", err)
	}
	l.logger.InfoContext(ctx, "balance adjusted", slog.Float64("pnl", pnl))
	return nil
}

// withLock runs fn under the named cross-process lock when a lock manager is
// configured, retrying briefly on contention. Without a lock manager the
// store's own serialization applies.
func (l *Ledger) withLock(ctx context.Context, key string, fn func() error) error {
	if l.locks == nil {
		return fn()
	}

	var unlock func()
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		unlock, err = l.locks.Acquire(ctx, key, lockTTL)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("ledger: acquire lock %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if err != nil {
		return fmt.Errorf("ledger: lock %s contended: %w", key, err)
	}
	defer unlock()
	return fn()
}

func totalExposure(positions []domain.Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += p.Size
	}
	return sum
}

func agentExposure(positions []domain.Position, agent domain.AgentTag) float64 {
	var sum float64
	for _, p := range positions {
		if p.Agent == agent {
			sum += p.Size
		}
	}
	return sum
}

// isDomainErr reports whether err is an expected domain condition rather
// than a persistence failure.
func isDomainErr(err error) bool {
	return errors.Is(err, domain.ErrDuplicatePosition) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyExists)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("ledger: %s: %w: %w", op, domain.ErrContextUnavailable, err)
}
