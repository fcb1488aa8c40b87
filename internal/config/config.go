// Package config defines the top-level configuration for the trading agents
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYAGENT_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	LLM        LLMConfig        `toml:"llm"`
	Risk       RiskConfig       `toml:"risk"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Agents     AgentsConfig     `toml:"agents"`
	Notify     NotifyConfig     `toml:"notify"`
	Archive    ArchiveConfig    `toml:"archive"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	DataHost  string `toml:"data_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LLMConfig selects and credentials the confidence assessor.
type LLMConfig struct {
	// Provider is "openai", "perplexity", or "none" to run on scanner
	// estimates alone.
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
}

// RiskConfig holds the sizing and circuit-breaker parameters shared by all
// agents.
type RiskConfig struct {
	Fees            float64 `toml:"fees"`
	MaxRiskFraction float64 `toml:"max_risk_fraction"`
	InvisibilityCap float64 `toml:"invisibility_cap"`
	RiskMultiplier  float64 `toml:"risk_multiplier"`
	DrawdownLimit   float64 `toml:"drawdown_limit"`
	InitialBalance  float64 `toml:"initial_balance"`
	MinConfidence   float64 `toml:"min_confidence"`
}

// LedgerConfig holds the shared trading context parameters.
type LedgerConfig struct {
	// Backend is "file" or "postgres".
	Backend             string             `toml:"backend"`
	FilePath            string             `toml:"file_path"`
	MaxOpenPositions    int                `toml:"max_open_positions"`
	MaxExposureFraction float64            `toml:"max_exposure_fraction"`
	Cooldown            duration           `toml:"cooldown"`
	Allocation          map[string]float64 `toml:"allocation"`
}

// AgentsConfig holds per-agent strategy parameters.
type AgentsConfig struct {
	PollInterval duration      `toml:"poll_interval"`
	Safe         SafeConfig    `toml:"safe"`
	Scalper      ScalperConfig `toml:"scalper"`
	Copy         CopyConfig    `toml:"copy"`
	Sports       SportsConfig  `toml:"sports"`
}

// SafeConfig tunes the high-probability scanner.
type SafeConfig struct {
	MinPrice    float64  `toml:"min_price"`
	MaxPrice    float64  `toml:"max_price"`
	MinVolume   float64  `toml:"min_volume"`
	MaxTimeLeft duration `toml:"max_time_left"`
}

// ScalperConfig tunes the 15-minute crypto scalper.
type ScalperConfig struct {
	Tag          string   `toml:"tag"`
	Window       duration `toml:"window"`
	MinMomentum  float64  `toml:"min_momentum"`
	MaxStaleness duration `toml:"max_staleness"`
}

// CopyConfig tunes the copy trader.
type CopyConfig struct {
	Window      string   `toml:"window"`
	TopWallets  int      `toml:"top_wallets"`
	FreshWithin duration `toml:"fresh_within"`
	MinTradeUSD float64  `toml:"min_trade_usd"`
}

// SportsConfig tunes the sports/esports edge finder.
type SportsConfig struct {
	Tags        []string `toml:"tags"`
	MinVolume   float64  `toml:"min_volume"`
	MinEdge     float64  `toml:"min_edge"`
	MaxTimeLeft duration `toml:"max_time_left"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds the settlement archival schedule.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// duration wraps time.Duration to support TOML string decoding like "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyagent-data",
			ForcePathStyle: true,
		},
		LLM: LLMConfig{
			Provider: "none",
		},
		Risk: RiskConfig{
			Fees:            0.01,
			MaxRiskFraction: 0.10,
			InvisibilityCap: 50.0,
			RiskMultiplier:  1.0,
			DrawdownLimit:   0.05,
			MinConfidence:   0.0,
		},
		Ledger: LedgerConfig{
			Backend:             "file",
			FilePath:            "trading_context.json",
			MaxOpenPositions:    10,
			MaxExposureFraction: 0.80,
			Cooldown:            duration{30 * time.Second},
			Allocation: map[string]float64{
				"safe":    0.40,
				"scalper": 0.20,
				"copy":    0.20,
				"sports":  0.20,
			},
		},
		Agents: AgentsConfig{
			PollInterval: duration{time.Minute},
			Safe: SafeConfig{
				MinPrice:    0.90,
				MaxPrice:    0.985,
				MinVolume:   10_000,
				MaxTimeLeft: duration{7 * 24 * time.Hour},
			},
			Scalper: ScalperConfig{
				Tag:          "crypto",
				Window:       duration{15 * time.Minute},
				MinMomentum:  0.03,
				MaxStaleness: duration{30 * time.Second},
			},
			Copy: CopyConfig{
				Window:      "7d",
				TopWallets:  10,
				FreshWithin: duration{time.Hour},
				MinTradeUSD: 100,
			},
			Sports: SportsConfig{
				Tags:        []string{"sports", "esports"},
				MinVolume:   5_000,
				MinEdge:     0.02,
				MaxTimeLeft: duration{48 * time.Hour},
			},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_placed", "circuit_breaker", "position_closed", "error"},
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Cron:    "0 4 * * *",
		},
		Mode:     "all",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"safe":    true,
	"scalper": true,
	"copy":    true,
	"sports":  true,
	"all":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: safe, scalper, copy, sports, all)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: at least one credential source is required to trade.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "perplexity":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Sprintf("llm: api_key is required for provider %q", c.LLM.Provider))
		}
	case "none", "":
	default:
		errs = append(errs, fmt.Sprintf("llm: unknown provider %q (valid: openai, perplexity, none)", c.LLM.Provider))
	}

	if c.Risk.Fees < 0 {
		errs = append(errs, "risk: fees must be >= 0")
	}
	if c.Risk.MaxRiskFraction <= 0 || c.Risk.MaxRiskFraction > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_risk_fraction must be in (0,1], got %v", c.Risk.MaxRiskFraction))
	}
	if c.Risk.InvisibilityCap <= 0 {
		errs = append(errs, "risk: invisibility_cap must be > 0")
	}
	if c.Risk.RiskMultiplier <= 0 {
		errs = append(errs, "risk: risk_multiplier must be > 0")
	}
	if c.Risk.DrawdownLimit <= 0 || c.Risk.DrawdownLimit >= 1 {
		errs = append(errs, fmt.Sprintf("risk: drawdown_limit must be in (0,1), got %v", c.Risk.DrawdownLimit))
	}
	if c.Risk.InitialBalance <= 0 {
		errs = append(errs, "risk: initial_balance must be > 0")
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		errs = append(errs, "risk: min_confidence must be in [0,1]")
	}

	switch strings.ToLower(c.Ledger.Backend) {
	case "file":
		if c.Ledger.FilePath == "" {
			errs = append(errs, "ledger: file_path must not be empty for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Supabase.DSN) == "" && c.Supabase.Host == "" {
			errs = append(errs, "supabase: host or dsn must be set for the postgres ledger backend")
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be within [0, pool_max_conns]")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty for the postgres ledger backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: file, postgres)", c.Ledger.Backend))
	}

	if c.Ledger.MaxOpenPositions < 1 {
		errs = append(errs, "ledger: max_open_positions must be >= 1")
	}
	if c.Ledger.MaxExposureFraction <= 0 || c.Ledger.MaxExposureFraction > 1 {
		errs = append(errs, fmt.Sprintf("ledger: max_exposure_fraction must be in (0,1], got %v", c.Ledger.MaxExposureFraction))
	}
	if c.Ledger.Cooldown.Duration < 0 {
		errs = append(errs, "ledger: cooldown must not be negative")
	}

	var allocSum float64
	for agent, f := range c.Ledger.Allocation {
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Sprintf("ledger: allocation for %q must be in [0,1], got %v", agent, f))
		}
		allocSum += f
	}
	if allocSum > 1.0+1e-9 {
		errs = append(errs, fmt.Sprintf("ledger: allocations sum to %.3f, must be <= 1.0", allocSum))
	}

	if c.Agents.PollInterval.Duration <= 0 {
		errs = append(errs, "agents: poll_interval must be > 0")
	}
	if c.Agents.Safe.MinPrice <= 0 || c.Agents.Safe.MinPrice >= 1 {
		errs = append(errs, "agents.safe: min_price must be in (0,1)")
	}
	if c.Agents.Safe.MaxPrice <= c.Agents.Safe.MinPrice || c.Agents.Safe.MaxPrice >= 1 {
		errs = append(errs, "agents.safe: max_price must be in (min_price, 1)")
	}
	if c.Agents.Scalper.Window.Duration <= 0 {
		errs = append(errs, "agents.scalper: window must be > 0")
	}
	if c.Agents.Copy.TopWallets < 1 {
		errs = append(errs, "agents.copy: top_wallets must be >= 1")
	}
	if c.Agents.Sports.MinEdge <= 0 {
		errs = append(errs, "agents.sports: min_edge must be > 0")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron expression must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
