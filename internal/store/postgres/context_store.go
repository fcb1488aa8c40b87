package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iamfarzad/polyagent/internal/domain"
)

// ContextStore implements domain.ContextStore on PostgreSQL. Uniqueness of
// open positions per market is carried by the positions primary key, so two
// bot processes racing on the same market cannot both insert.
type ContextStore struct {
	pool *pgxpool.Pool
}

// NewContextStore creates a ContextStore backed by the given pool.
func NewContextStore(pool *pgxpool.Pool) *ContextStore {
	return &ContextStore{pool: pool}
}

// Snapshot assembles the full shared state from the individual tables.
func (s *ContextStore) Snapshot(ctx context.Context) (domain.ContextState, error) {
	state := domain.ContextState{Allocation: map[domain.AgentTag]float64{}}

	rows, err := s.pool.Query(ctx, `
		SELECT market_id, question, agent, outcome, entry_price, size, token_id, opened_at
		FROM positions ORDER BY opened_at`)
	if err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: query positions: %w", err)
	}
	for rows.Next() {
		var p domain.Position
		var agent, outcome string
		if err := rows.Scan(&p.MarketID, &p.Question, &agent, &outcome,
			&p.EntryPrice, &p.Size, &p.TokenID, &p.OpenedAt); err != nil {
			rows.Close()
			return domain.ContextState{}, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Agent = domain.AgentTag(agent)
		p.Outcome = domain.Outcome(outcome)
		state.Positions = append(state.Positions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: positions rows: %w", err)
	}

	trades, err := s.recentTrades(ctx)
	if err != nil {
		return domain.ContextState{}, err
	}
	state.RecentTrades = trades

	rows, err = s.pool.Query(ctx, `SELECT market_id FROM blacklist ORDER BY created_at`)
	if err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: query blacklist: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.ContextState{}, fmt.Errorf("postgres: scan blacklist: %w", err)
		}
		state.Blacklist = append(state.Blacklist, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: blacklist rows: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT agent, fraction FROM allocations`)
	if err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: query allocations: %w", err)
	}
	for rows.Next() {
		var agent string
		var fraction float64
		if err := rows.Scan(&agent, &fraction); err != nil {
			rows.Close()
			return domain.ContextState{}, fmt.Errorf("postgres: scan allocation: %w", err)
		}
		state.Allocation[domain.AgentTag(agent)] = fraction
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ContextState{}, fmt.Errorf("postgres: allocations rows: %w", err)
	}

	var updatedAt *time.Time
	var balance *float64
	err = s.pool.QueryRow(ctx,
		`SELECT total_balance, updated_at FROM balance WHERE singleton`).Scan(&balance, &updatedAt)
	if err != nil && err != pgx.ErrNoRows {
		return domain.ContextState{}, fmt.Errorf("postgres: query balance: %w", err)
	}
	if balance != nil {
		state.TotalBalance = *balance
	}
	if updatedAt != nil {
		state.LastUpdate = *updatedAt
	}

	return state, nil
}

func (s *ContextStore) recentTrades(ctx context.Context) ([]domain.TradeEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, agent, outcome, size, price, status, pnl, settles_trade_id, ts
		FROM trade_events ORDER BY ts DESC LIMIT $1`, domain.RecentTradeCap)
	if err != nil {
		return nil, fmt.Errorf("postgres: query trade events: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeEvent
	for rows.Next() {
		var t domain.TradeEvent
		var agent, outcome, status string
		if err := rows.Scan(&t.ID, &t.MarketID, &agent, &outcome,
			&t.Size, &t.Price, &status, &t.PnL, &t.SettlesTradeID, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan trade event: %w", err)
		}
		t.Agent = domain.AgentTag(agent)
		t.Outcome = domain.Outcome(outcome)
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade event rows: %w", err)
	}

	// Query returned newest-first; the snapshot contract is most-recent-last.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// CreatePosition inserts an open position. The ON CONFLICT guard turns a
// concurrent duplicate into ErrDuplicatePosition instead of a constraint
// violation error.
func (s *ContextStore) CreatePosition(ctx context.Context, p domain.Position) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO positions (market_id, question, agent, outcome, entry_price, size, token_id, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO NOTHING`,
		p.MarketID, p.Question, string(p.Agent), string(p.Outcome),
		p.EntryPrice, p.Size, p.TokenID, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicatePosition
	}
	return s.touch(ctx)
}

// DeletePosition removes the open position for the market.
func (s *ContextStore) DeletePosition(ctx context.Context, marketID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE market_id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return s.touch(ctx)
}

// AppendTrade inserts a trade event and prunes rows beyond the retention
// cap in the same transaction.
func (s *ContextStore) AppendTrade(ctx context.Context, t domain.TradeEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin append trade: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO trade_events (id, market_id, agent, outcome, size, price, status, pnl, settles_trade_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.MarketID, string(t.Agent), string(t.Outcome),
		t.Size, t.Price, string(t.Status), t.PnL, t.SettlesTradeID, t.Timestamp,
	); err != nil {
		return fmt.Errorf("postgres: insert trade event %s: %w", t.ID, err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM trade_events WHERE id NOT IN (
			SELECT id FROM trade_events ORDER BY ts DESC LIMIT $1
		)`, domain.RecentTradeCap,
	); err != nil {
		return fmt.Errorf("postgres: prune trade events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit append trade: %w", err)
	}
	return s.touch(ctx)
}

// AddBlacklist inserts the market into the blacklist; replays are no-ops.
func (s *ContextStore) AddBlacklist(ctx context.Context, marketID, reason string) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO blacklist (market_id, reason) VALUES ($1, $2)
		ON CONFLICT (market_id) DO NOTHING`,
		marketID, reason,
	); err != nil {
		return fmt.Errorf("postgres: blacklist %s: %w", marketID, err)
	}
	return nil
}

// SetAllocation replaces the allocation table contents.
func (s *ContextStore) SetAllocation(ctx context.Context, alloc map[domain.AgentTag]float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin set allocation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM allocations`); err != nil {
		return fmt.Errorf("postgres: clear allocations: %w", err)
	}
	for agent, fraction := range alloc {
		if _, err := tx.Exec(ctx,
			`INSERT INTO allocations (agent, fraction) VALUES ($1, $2)`,
			string(agent), fraction,
		); err != nil {
			return fmt.Errorf("postgres: insert allocation %s: %w", agent, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit set allocation: %w", err)
	}
	return nil
}

// SetTotalBalance upserts the singleton balance row.
func (s *ContextStore) SetTotalBalance(ctx context.Context, balance float64) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO balance (singleton, total_balance, updated_at)
		VALUES (TRUE, $1, NOW())
		ON CONFLICT (singleton) DO UPDATE
		SET total_balance = EXCLUDED.total_balance, updated_at = NOW()`,
		balance,
	); err != nil {
		return fmt.Errorf("postgres: set total balance: %w", err)
	}
	return nil
}

// touch bumps the balance row's updated_at so LastUpdate reflects the most
// recent mutation of any kind.
func (s *ContextStore) touch(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO balance (singleton, updated_at) VALUES (TRUE, NOW())
		ON CONFLICT (singleton) DO UPDATE SET updated_at = NOW()`,
	); err != nil {
		return fmt.Errorf("postgres: touch last update: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ContextStore = (*ContextStore)(nil)
