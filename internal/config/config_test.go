package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns Defaults with the operator-supplied fields filled in.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Risk.InitialBalance = 1000
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	cfg.LogLevel = "loud"
	cfg.Risk.DrawdownLimit = 2.0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "drawdown_limit")
}

func TestValidateRejectsOverAllocation(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Allocation = map[string]float64{"safe": 0.7, "scalper": 0.5}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocations sum")
}

func TestValidateRequiresWalletCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
}

func TestValidateLLMProviderNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "openai"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestValidatePostgresBackendNeedsConnection(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Backend = "postgres"
	cfg.Supabase.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host or dsn")
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "scalper"
log_level = "debug"

[wallet]
private_key = "0xdeadbeef"

[risk]
initial_balance = 2500.0

[ledger]
cooldown = "45s"

[ledger.allocation]
scalper = 0.5

[agents]
poll_interval = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scalper", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, 2500.0, cfg.Risk.InitialBalance)
	assert.Equal(t, 45*time.Second, cfg.Ledger.Cooldown.Duration)
	assert.Equal(t, 30*time.Second, cfg.Agents.PollInterval.Duration)
	assert.Equal(t, map[string]float64{"scalper": 0.5}, cfg.Ledger.Allocation)

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYAGENT_MODE", "copy")
	t.Setenv("POLYAGENT_CHAIN_ID", "80002")
	t.Setenv("POLYAGENT_RISK_DRAWDOWN_LIMIT", "0.10")
	t.Setenv("POLYAGENT_LEDGER_COOLDOWN", "1m")
	t.Setenv("POLYAGENT_ARCHIVE_ENABLED", "true")
	t.Setenv("POLYAGENT_NOTIFY_EVENTS", "trade_placed, error")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "copy", cfg.Mode)
	assert.Equal(t, 80002, cfg.Polymarket.ChainID)
	assert.Equal(t, 0.10, cfg.Risk.DrawdownLimit)
	assert.Equal(t, time.Minute, cfg.Ledger.Cooldown.Duration)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, []string{"trade_placed", "error"}, cfg.Notify.Events)
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLYAGENT_CHAIN_ID", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
}
