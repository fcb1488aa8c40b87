package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in three layers: compiled-in defaults, the TOML
// file at path (skipped if path is empty or the file does not exist), and
// finally POLYAGENT_* environment variables. A .env file in the working
// directory is loaded into the environment first if present.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	// Best effort; secrets commonly live in .env during development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides maps POLYAGENT_* environment variables onto the config.
// Only variables that are set and parse cleanly take effect.
func applyEnvOverrides(c *Config) {
	setStr("POLYAGENT_WALLET_PRIVATE_KEY", &c.Wallet.PrivateKey)
	setStr("POLYAGENT_WALLET_ENCRYPTED_KEY_PATH", &c.Wallet.EncryptedKeyPath)
	setStr("POLYAGENT_WALLET_KEY_PASSWORD", &c.Wallet.KeyPassword)

	setStr("POLYAGENT_CLOB_HOST", &c.Polymarket.ClobHost)
	setStr("POLYAGENT_GAMMA_HOST", &c.Polymarket.GammaHost)
	setStr("POLYAGENT_DATA_HOST", &c.Polymarket.DataHost)
	setStr("POLYAGENT_WS_HOST", &c.Polymarket.WsHost)
	setInt("POLYAGENT_CHAIN_ID", &c.Polymarket.ChainID)

	setStr("POLYAGENT_SUPABASE_DSN", &c.Supabase.DSN)
	setStr("POLYAGENT_SUPABASE_HOST", &c.Supabase.Host)
	setInt("POLYAGENT_SUPABASE_PORT", &c.Supabase.Port)
	setStr("POLYAGENT_SUPABASE_DATABASE", &c.Supabase.Database)
	setStr("POLYAGENT_SUPABASE_USER", &c.Supabase.User)
	setStr("POLYAGENT_SUPABASE_PASSWORD", &c.Supabase.Password)
	setStr("POLYAGENT_SUPABASE_SSL_MODE", &c.Supabase.SSLMode)
	setBool("POLYAGENT_SUPABASE_RUN_MIGRATIONS", &c.Supabase.RunMigrations)

	setStr("POLYAGENT_REDIS_ADDR", &c.Redis.Addr)
	setStr("POLYAGENT_REDIS_PASSWORD", &c.Redis.Password)
	setInt("POLYAGENT_REDIS_DB", &c.Redis.DB)
	setBool("POLYAGENT_REDIS_TLS", &c.Redis.TLSEnabled)

	setStr("POLYAGENT_S3_ENDPOINT", &c.S3.Endpoint)
	setStr("POLYAGENT_S3_REGION", &c.S3.Region)
	setStr("POLYAGENT_S3_BUCKET", &c.S3.Bucket)
	setStr("POLYAGENT_S3_ACCESS_KEY", &c.S3.AccessKey)
	setStr("POLYAGENT_S3_SECRET_KEY", &c.S3.SecretKey)

	setStr("POLYAGENT_LLM_PROVIDER", &c.LLM.Provider)
	setStr("POLYAGENT_LLM_API_KEY", &c.LLM.APIKey)
	setStr("POLYAGENT_LLM_MODEL", &c.LLM.Model)
	setStr("POLYAGENT_LLM_BASE_URL", &c.LLM.BaseURL)

	setFloat64("POLYAGENT_RISK_FEES", &c.Risk.Fees)
	setFloat64("POLYAGENT_RISK_MAX_RISK_FRACTION", &c.Risk.MaxRiskFraction)
	setFloat64("POLYAGENT_RISK_INVISIBILITY_CAP", &c.Risk.InvisibilityCap)
	setFloat64("POLYAGENT_RISK_MULTIPLIER", &c.Risk.RiskMultiplier)
	setFloat64("POLYAGENT_RISK_DRAWDOWN_LIMIT", &c.Risk.DrawdownLimit)
	setFloat64("POLYAGENT_RISK_INITIAL_BALANCE", &c.Risk.InitialBalance)
	setFloat64("POLYAGENT_RISK_MIN_CONFIDENCE", &c.Risk.MinConfidence)

	setStr("POLYAGENT_LEDGER_BACKEND", &c.Ledger.Backend)
	setStr("POLYAGENT_LEDGER_FILE_PATH", &c.Ledger.FilePath)
	setInt("POLYAGENT_LEDGER_MAX_OPEN_POSITIONS", &c.Ledger.MaxOpenPositions)
	setFloat64("POLYAGENT_LEDGER_MAX_EXPOSURE_FRACTION", &c.Ledger.MaxExposureFraction)
	setDuration("POLYAGENT_LEDGER_COOLDOWN", &c.Ledger.Cooldown)

	setDuration("POLYAGENT_POLL_INTERVAL", &c.Agents.PollInterval)

	setStr("POLYAGENT_TELEGRAM_TOKEN", &c.Notify.TelegramToken)
	setStr("POLYAGENT_TELEGRAM_CHAT_ID", &c.Notify.TelegramChatID)
	setStr("POLYAGENT_DISCORD_WEBHOOK_URL", &c.Notify.DiscordWebhookURL)
	setStringSlice("POLYAGENT_NOTIFY_EVENTS", &c.Notify.Events)

	setBool("POLYAGENT_ARCHIVE_ENABLED", &c.Archive.Enabled)
	setStr("POLYAGENT_ARCHIVE_CRON", &c.Archive.Cron)

	setStr("POLYAGENT_MODE", &c.Mode)
	setStr("POLYAGENT_LOG_LEVEL", &c.LogLevel)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
