package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/ledger"
	"github.com/iamfarzad/polyagent/internal/llm"
	"github.com/iamfarzad/polyagent/internal/notify"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
	"github.com/iamfarzad/polyagent/internal/risk"
)

// ErrHalted is returned by Run when the drawdown circuit breaker trips.
// The agent stays down until an operator restarts it.
var ErrHalted = errors.New("agent: halted by drawdown circuit breaker")

// RunnerConfig holds per-agent execution parameters.
type RunnerConfig struct {
	PollInterval   time.Duration
	InitialBalance float64
	DrawdownLimit  float64
	// MinConfidence drops candidates whose blended win probability falls
	// below this value. Zero disables the filter.
	MinConfidence float64
	// Fees is the per-trade fee estimate subtracted from expected value.
	// Zero selects risk.DefaultFees.
	Fees  float64
	Kelly risk.KellyParams
}

// Runner drives one agent: poll the scanner, assess, size, ask the ledger
// for admission, submit, record. One Runner per agent goroutine.
type Runner struct {
	scanner  Scanner
	led      *ledger.Ledger
	trader   Trader
	assessor llm.Assessor     // may be nil
	notifier *notify.Notifier // may be nil
	cfg      RunnerConfig
	logger   *slog.Logger
}

// NewRunner wires a Runner. assessor and notifier are optional.
func NewRunner(scanner Scanner, led *ledger.Ledger, trader Trader, assessor llm.Assessor, notifier *notify.Notifier, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Fees == 0 {
		cfg.Fees = risk.DefaultFees
	}
	return &Runner{
		scanner:  scanner,
		led:      led,
		trader:   trader,
		assessor: assessor,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "runner"), slog.String("agent", string(scanner.Tag()))),
	}
}

// Run executes the agent loop until the context is cancelled or the
// drawdown breaker trips.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "agent started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Float64("initial_balance", r.cfg.InitialBalance),
	)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrHalted) {
				return err
			}
			r.logger.ErrorContext(ctx, "cycle failed", slog.Any("error", err))
			if r.notifier != nil {
				_ = r.notifier.Error(ctx, string(r.scanner.Tag()), err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle: breaker check, scan, and at most one
// trade per candidate that survives sizing and admission.
func (r *Runner) RunOnce(ctx context.Context) error {
	state, err := r.led.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("agent: snapshot: %w", err)
	}
	balance := state.TotalBalance

	if !risk.CheckDrawdown(r.cfg.InitialBalance, balance, r.cfg.DrawdownLimit) {
		r.logger.ErrorContext(ctx, "drawdown breaker tripped",
			slog.Float64("initial_balance", r.cfg.InitialBalance),
			slog.Float64("current_balance", balance),
		)
		if r.notifier != nil {
			_ = r.notifier.CircuitBreaker(ctx, string(r.scanner.Tag()), r.cfg.InitialBalance, balance)
		}
		return ErrHalted
	}

	candidates, err := r.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("agent: scan: %w", err)
	}
	r.logger.DebugContext(ctx, "scan complete", slog.Int("candidates", len(candidates)))

	for _, cand := range candidates {
		if err := r.evaluate(ctx, cand, balance); err != nil {
			if errors.Is(err, domain.ErrContextUnavailable) {
				return err
			}
			r.logger.WarnContext(ctx, "candidate failed",
				slog.String("market_id", cand.Market.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// evaluate runs one candidate through assessment, sizing, admission, and
// submission.
func (r *Runner) evaluate(ctx context.Context, cand Candidate, balance float64) error {
	price := cand.Token.Price
	p := cand.WinProbability

	if r.assessor != nil {
		assessment, err := r.assessor.Assess(ctx, cand.Market.Question, string(cand.Outcome), price)
		if err != nil {
			// The model is advisory; fall back to the scanner's estimate.
			r.logger.WarnContext(ctx, "assessment failed, using scanner estimate",
				slog.String("market_id", cand.Market.ID),
				slog.Any("error", err),
			)
		} else {
			p = (p + assessment.Confidence) / 2
			r.logger.DebugContext(ctx, "assessment blended",
				slog.String("market_id", cand.Market.ID),
				slog.Float64("scanner_p", cand.WinProbability),
				slog.Float64("model_p", assessment.Confidence),
				slog.String("reasoning", assessment.Reasoning),
			)
		}
	}

	if r.cfg.MinConfidence > 0 && p < r.cfg.MinConfidence {
		return nil
	}

	ev := risk.CalculateEV(price, p, 1-price, r.cfg.Fees)
	if ev <= 0 {
		return nil
	}

	stake := risk.KellySize(balance, ev, price, r.cfg.Kelly)
	if stake <= 0 {
		return nil
	}

	ok, reason, err := r.led.CanTrade(ctx, r.scanner.Tag(), cand.Market.ID, stake, balance)
	if err != nil {
		return fmt.Errorf("agent: admission: %w", err)
	}
	if !ok {
		r.logger.InfoContext(ctx, "trade rejected",
			slog.String("market_id", cand.Market.ID),
			slog.String("reason", reason),
		)
		if r.notifier != nil {
			_ = r.notifier.TradeRejected(ctx, string(r.scanner.Tag()), cand.Market.Question, reason)
		}
		return nil
	}

	return r.submit(ctx, cand, stake, price)
}

// submit places the order and records the outcome in the ledger. A failed
// submission is still recorded as a trade event so the cooldown applies to
// retries against the same market.
func (r *Runner) submit(ctx context.Context, cand Candidate, stake, price float64) error {
	now := time.Now().UTC()
	trade := domain.TradeEvent{
		ID:        uuid.New().String(),
		MarketID:  cand.Market.ID,
		Agent:     r.scanner.Tag(),
		Outcome:   cand.Outcome,
		Size:      stake,
		Price:     price,
		Status:    domain.TradeStatusPending,
		Timestamp: now,
	}

	result, err := r.trader.Buy(ctx, polymarket.BuyArgs{
		TokenID:  cand.Token.TokenID,
		Price:    price,
		StakeUSD: stake,
	})
	if err != nil {
		trade.Status = domain.TradeStatusFailed
		if recErr := r.led.AddTrade(ctx, trade); recErr != nil {
			r.logger.ErrorContext(ctx, "failed trade not recorded", slog.Any("error", recErr))
		}
		return fmt.Errorf("agent: buy %s: %w", cand.Market.ID, err)
	}

	trade.Status = domain.TradeStatusFilled
	if err := r.led.AddPosition(ctx, domain.Position{
		MarketID:   cand.Market.ID,
		Question:   cand.Market.Question,
		Agent:      r.scanner.Tag(),
		Outcome:    cand.Outcome,
		EntryPrice: price,
		Size:       stake,
		TokenID:    cand.Token.TokenID,
		OpenedAt:   now,
	}); err != nil {
		return fmt.Errorf("agent: record position: %w", err)
	}
	if err := r.led.AddTrade(ctx, trade); err != nil {
		return fmt.Errorf("agent: record trade: %w", err)
	}

	r.logger.InfoContext(ctx, "trade placed",
		slog.String("market_id", cand.Market.ID),
		slog.String("order_id", result.OrderID),
		slog.Float64("stake", stake),
		slog.Float64("price", price),
		slog.String("note", cand.Note),
	)
	if r.notifier != nil {
		_ = r.notifier.TradePlaced(ctx, string(r.scanner.Tag()), cand.Market.Question, stake, price)
	}
	return nil
}
