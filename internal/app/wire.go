package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/iamfarzad/polyagent/internal/blob/s3"
	"github.com/iamfarzad/polyagent/internal/cache/redis"
	"github.com/iamfarzad/polyagent/internal/config"
	"github.com/iamfarzad/polyagent/internal/crypto"
	"github.com/iamfarzad/polyagent/internal/domain"
	"github.com/iamfarzad/polyagent/internal/ledger"
	"github.com/iamfarzad/polyagent/internal/llm"
	"github.com/iamfarzad/polyagent/internal/notify"
	"github.com/iamfarzad/polyagent/internal/platform/polymarket"
	"github.com/iamfarzad/polyagent/internal/store/file"
	"github.com/iamfarzad/polyagent/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need: the shared
// ledger, the Polymarket API clients, and the optional assessor, notifier,
// and archiver. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Ledger *ledger.Ledger

	Gamma *polymarket.GammaClient
	Data  *polymarket.DataClient
	Clob  *polymarket.ClobClient

	// PriceCache and PriceFeed are nil unless the scalper runs.
	PriceCache domain.PriceCache
	PriceFeed  *polymarket.PriceFeed

	Assessor llm.Assessor     // nil when llm.provider is "none"
	Notifier *notify.Notifier
	Archiver *s3blob.Archiver // nil unless archiving is enabled
}

// needsScalper reports whether the mode runs the crypto scalper, which is
// the only consumer of the Redis price cache and the websocket feed.
func needsScalper(mode string) bool {
	return mode == "scalper" || mode == "all"
}

// needsCopy reports whether the mode runs the copy trader.
func needsCopy(mode string) bool {
	return mode == "copy" || mode == "all"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (postgres ledger locking and/or scalper price cache) ---
	var redisClient *redis.Client
	if strings.ToLower(cfg.Ledger.Backend) == "postgres" || needsScalper(mode) {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		redisClient = rc
	}

	// --- Shared ledger ---
	led, err := wireLedger(ctx, cfg, redisClient, logger, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Ledger = led

	if err := seedLedger(ctx, cfg, led); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Polymarket clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	if needsCopy(mode) {
		deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost)
	}

	privateKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(privateKey, cfg.Polymarket.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, nil)
	if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: derive clob api key: %w", err)
	}

	if needsScalper(mode) {
		cache := redis.NewPriceCache(redisClient)
		deps.PriceCache = cache
		deps.PriceFeed = polymarket.NewPriceFeed(cfg.Polymarket.WsHost, cache, logger)
	}

	// --- LLM assessor ---
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		deps.Assessor = llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	case "perplexity":
		deps.Assessor = llm.NewPerplexityClient(cfg.LLM.APIKey, cfg.LLM.Model)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- S3 settlement archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), led, logger)
	}

	return deps, cleanup, nil
}

// wireLedger builds the configured ledger backend. The file backend
// serializes through its own file lock; the postgres backend uses
// transactions plus the Redis lock manager for read-modify-write cycles.
func wireLedger(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *slog.Logger, closers *[]func()) (*ledger.Ledger, error) {
	ledCfg := ledger.Config{
		MaxOpenPositions:    cfg.Ledger.MaxOpenPositions,
		MaxExposureFraction: cfg.Ledger.MaxExposureFraction,
		Cooldown:            cfg.Ledger.Cooldown.Duration,
	}

	switch strings.ToLower(cfg.Ledger.Backend) {
	case "file":
		return ledger.New(file.New(cfg.Ledger.FilePath), nil, ledCfg, logger), nil

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		*closers = append(*closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		store := postgres.NewContextStore(pgClient.Pool())
		locks := redis.NewLockManager(redisClient)
		return ledger.New(store, locks, ledCfg, logger), nil

	default:
		return nil, fmt.Errorf("wire: unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// seedLedger pushes the configured allocation split into the store and
// records the initial balance when none has been observed yet.
func seedLedger(ctx context.Context, cfg *config.Config, led *ledger.Ledger) error {
	alloc := make(map[domain.AgentTag]float64, len(cfg.Ledger.Allocation))
	for tag, f := range cfg.Ledger.Allocation {
		alloc[domain.AgentTag(tag)] = f
	}
	if err := led.SetAllocation(ctx, alloc); err != nil {
		return fmt.Errorf("wire: seed allocation: %w", err)
	}

	state, err := led.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("wire: seed balance: %w", err)
	}
	if state.TotalBalance <= 0 {
		if err := led.RecordBalance(ctx, cfg.Risk.InitialBalance); err != nil {
			return fmt.Errorf("wire: seed balance: %w", err)
		}
	}
	return nil
}
