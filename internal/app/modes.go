package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/iamfarzad/polyagent/internal/agent"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
	"github.com/iamfarzad/polyagent/internal/risk"
)

// settleInterval is how often the settlement sweeper checks open positions
// against market resolutions.
const settleInterval = 5 * time.Minute

// SafeMode runs the high-probability scanner alone.
func (a *App) SafeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting safe mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startRunner(ctx, g, a.buildSafe(deps))
	a.startSettler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// ScalperMode runs the 15-minute crypto scalper with its websocket feed.
func (a *App) ScalperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scalper mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startPriceFeed(ctx, g, deps); err != nil {
		return err
	}
	a.startRunner(ctx, g, a.buildScalper(deps))
	a.startSettler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// CopyMode runs the leaderboard copy trader alone.
func (a *App) CopyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting copy mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startRunner(ctx, g, a.buildCopy(deps))
	a.startSettler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// SportsMode runs the sports/esports edge finder alone.
func (a *App) SportsMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sports mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startRunner(ctx, g, a.buildSports(deps))
	a.startSettler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// AllMode runs every agent concurrently against the one shared ledger.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all agents")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startPriceFeed(ctx, g, deps); err != nil {
		return err
	}
	a.startRunner(ctx, g, a.buildSafe(deps))
	a.startRunner(ctx, g, a.buildScalper(deps))
	a.startRunner(ctx, g, a.buildCopy(deps))
	a.startRunner(ctx, g, a.buildSports(deps))
	a.startSettler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// runnerConfig maps the risk section onto per-agent runner parameters.
func (a *App) runnerConfig() agent.RunnerConfig {
	return agent.RunnerConfig{
		PollInterval:   a.cfg.Agents.PollInterval.Duration,
		InitialBalance: a.cfg.Risk.InitialBalance,
		DrawdownLimit:  a.cfg.Risk.DrawdownLimit,
		MinConfidence:  a.cfg.Risk.MinConfidence,
		Fees:           a.cfg.Risk.Fees,
		Kelly: risk.KellyParams{
			MaxRiskFraction: a.cfg.Risk.MaxRiskFraction,
			InvisibilityCap: a.cfg.Risk.InvisibilityCap,
			RiskMultiplier:  a.cfg.Risk.RiskMultiplier,
		},
	}
}

func (a *App) buildSafe(deps *Dependencies) *agent.Runner {
	cfg := agent.DefaultSafeConfig()
	cfg.MinPrice = a.cfg.Agents.Safe.MinPrice
	cfg.MaxPrice = a.cfg.Agents.Safe.MaxPrice
	cfg.MinVolume = a.cfg.Agents.Safe.MinVolume
	cfg.MaxTimeLeft = a.cfg.Agents.Safe.MaxTimeLeft.Duration

	scanner := agent.NewSafeScanner(deps.Gamma, cfg)
	return agent.NewRunner(scanner, deps.Ledger, deps.Clob, deps.Assessor, deps.Notifier, a.runnerConfig(), a.logger)
}

func (a *App) buildScalper(deps *Dependencies) *agent.Runner {
	cfg := agent.DefaultScalperConfig()
	cfg.Tag = a.cfg.Agents.Scalper.Tag
	cfg.Window = a.cfg.Agents.Scalper.Window.Duration
	cfg.MinMomentum = a.cfg.Agents.Scalper.MinMomentum
	cfg.MaxStaleness = a.cfg.Agents.Scalper.MaxStaleness.Duration

	scanner := agent.NewScalperScanner(deps.Gamma, deps.PriceCache, cfg, a.logger)
	return agent.NewRunner(scanner, deps.Ledger, deps.Clob, deps.Assessor, deps.Notifier, a.runnerConfig(), a.logger)
}

func (a *App) buildCopy(deps *Dependencies) *agent.Runner {
	cfg := agent.DefaultCopyConfig()
	cfg.Window = a.cfg.Agents.Copy.Window
	cfg.TopWallets = a.cfg.Agents.Copy.TopWallets
	cfg.FreshWithin = a.cfg.Agents.Copy.FreshWithin.Duration
	cfg.MinTradeUSD = a.cfg.Agents.Copy.MinTradeUSD

	scanner := agent.NewCopyScanner(deps.Data, deps.Gamma, cfg, a.logger)
	return agent.NewRunner(scanner, deps.Ledger, deps.Clob, deps.Assessor, deps.Notifier, a.runnerConfig(), a.logger)
}

func (a *App) buildSports(deps *Dependencies) *agent.Runner {
	cfg := agent.DefaultSportsConfig()
	cfg.Tags = a.cfg.Agents.Sports.Tags
	cfg.MinVolume = a.cfg.Agents.Sports.MinVolume
	cfg.MinEdge = a.cfg.Agents.Sports.MinEdge
	cfg.MaxTimeLeft = a.cfg.Agents.Sports.MaxTimeLeft.Duration

	scanner := agent.NewSportsScanner(deps.Gamma, cfg)
	return agent.NewRunner(scanner, deps.Ledger, deps.Clob, deps.Assessor, deps.Notifier, a.runnerConfig(), a.logger)
}

// startRunner adds one agent loop to the group. A drawdown halt stops only
// this agent; other goroutines keep running.
func (a *App) startRunner(ctx context.Context, g *errgroup.Group, r *agent.Runner) {
	g.Go(func() error {
		err := r.Run(ctx)
		if errors.Is(err, agent.ErrHalted) {
			a.logger.WarnContext(ctx, "agent halted by circuit breaker, leaving others running")
			return nil
		}
		return err
	})
}

// startSettler adds the settlement sweeper to the group.
func (a *App) startSettler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	s := agent.NewSettler(deps.Gamma, deps.Ledger, deps.Notifier, settleInterval, a.logger)
	g.Go(func() error {
		err := s.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// startPriceFeed connects the websocket price feed and keeps the watched
// token set in sync with the markets the scalper is scanning.
func (a *App) startPriceFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.PriceFeed.Connect(ctx); err != nil {
		return err
	}

	refresh := func() {
		markets, err := deps.Gamma.ListMarkets(ctx, polymarket.MarketQuery{
			Limit:      50,
			ActiveOnly: true,
			Tag:        a.cfg.Agents.Scalper.Tag,
			EndBefore:  time.Now().Add(a.cfg.Agents.Scalper.Window.Duration),
		})
		if err != nil {
			a.logger.WarnContext(ctx, "scalper token refresh failed", slog.Any("error", err))
			return
		}
		var tokens []string
		for _, m := range markets {
			for _, tok := range m.Tokens {
				if tok.TokenID != "" {
					tokens = append(tokens, tok.TokenID)
				}
			}
		}
		if len(tokens) == 0 {
			return
		}
		if err := deps.PriceFeed.Watch(tokens); err != nil {
			a.logger.WarnContext(ctx, "scalper token subscribe failed", slog.Any("error", err))
		}
	}

	g.Go(func() error {
		defer deps.PriceFeed.Close()

		refresh()
		ticker := time.NewTicker(a.cfg.Agents.PollInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				refresh()
			}
		}
	})
	return nil
}

// startArchiver schedules the daily settlement archive upload when enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(a.cfg.Archive.Cron, func() {
		n, err := deps.Archiver.ArchiveSettledTrades(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "settlement archive failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "settlement archive uploaded", slog.Int("count", n))
		}
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "invalid archive cron expression",
			slog.String("cron", a.cfg.Archive.Cron),
			slog.Any("error", err),
		)
		return
	}

	c.Start()
	g.Go(func() error {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		return nil
	})
}
