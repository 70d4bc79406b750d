// Package config loads the immutable service configuration: defaults, then
// an optional YAML file, then environment overrides, validated once at
// startup and passed by reference from there on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Values are resolved once by
// Load; nothing mutates a Config after that.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`
	Debug       bool   `yaml:"debug" json:"debug"`
	SandboxMode bool   `yaml:"sandbox_mode" json:"sandbox_mode"`

	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Oracle   OracleConfig   `yaml:"oracle" json:"oracle"`
	Venues   VenuesConfig   `yaml:"venues" json:"venues"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
}

// PoolConfig seeds the capital pool.
type PoolConfig struct {
	InitialValueUSD     float64 `yaml:"initial_value_usd" json:"initial_value_usd"`
	InitialParticipants int     `yaml:"initial_participants" json:"initial_participants"`
}

// TradingConfig tunes the cycle loop, the detector, and the risk gate.
type TradingConfig struct {
	CycleIntervalSeconds int      `yaml:"cycle_interval_seconds" json:"cycle_interval_seconds"`
	Symbols              []string `yaml:"symbols" json:"symbols"`
	MaxPositionSizePct   float64  `yaml:"max_position_size_pct" json:"max_position_size_pct"`
	MinSpreadPct         float64  `yaml:"min_spread_pct" json:"min_spread_pct"`
	MinProfitPct         float64  `yaml:"min_profit_pct" json:"min_profit_pct"`
	MinVolumeUSD         float64  `yaml:"min_volume_usd" json:"min_volume_usd"`
	RiskScoreThreshold   int      `yaml:"risk_score_threshold" json:"risk_score_threshold"`
}

// CycleInterval returns the loop period as a duration.
func (t TradingConfig) CycleInterval() time.Duration {
	return time.Duration(t.CycleIntervalSeconds) * time.Second
}

// OracleConfig connects the strategy advisory. An empty APIKey disables the
// advisory entirely; the engine then runs on the deterministic fallback.
// The secondary fields point the failover at a different vendor; left empty
// they inherit the primary endpoint, so fallback_model alone retries the
// same endpoint with another model.
type OracleConfig struct {
	APIKey           string  `yaml:"api_key" json:"api_key"`
	BaseURL          string  `yaml:"base_url" json:"base_url"`
	Model            string  `yaml:"model" json:"model"`
	FallbackModel    string  `yaml:"fallback_model" json:"fallback_model"`
	SecondaryBaseURL string  `yaml:"secondary_base_url" json:"secondary_base_url"`
	SecondaryAPIKey  string  `yaml:"secondary_api_key" json:"secondary_api_key"`
	Temperature      float64 `yaml:"temperature" json:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds   float64 `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Enabled reports whether an advisory endpoint is configured.
func (o OracleConfig) Enabled() bool { return o.APIKey != "" }

// Timeout returns the per-call advisory timeout.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds * float64(time.Second))
}

// VenueCredentials hold one exchange's API access. The simulator ignores
// them; they are carried so a live executor can be swapped in.
type VenueCredentials struct {
	APIKey     string `yaml:"api_key" json:"api_key"`
	APISecret  string `yaml:"api_secret" json:"api_secret"`
	Passphrase string `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
	Sandbox    bool   `yaml:"sandbox" json:"sandbox"`
}

// VenuesConfig groups per-exchange credentials.
type VenuesConfig struct {
	Binance  VenueCredentials `yaml:"binance" json:"binance"`
	Coinbase VenueCredentials `yaml:"coinbase" json:"coinbase"`
}

// RedisConfig selects the hot state store. An empty Addr keeps pool state
// in process memory.
type RedisConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	DB   int    `yaml:"db" json:"db"`
}

// PostgresConfig selects the history store. An empty DSN disables history
// persistence.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// HTTPConfig binds the control API.
type HTTPConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Environment: "development",
		SandboxMode: true,
		Pool: PoolConfig{
			InitialValueUSD: 100_000,
		},
		Trading: TradingConfig{
			CycleIntervalSeconds: 30,
			Symbols:              []string{"BTC/USDT", "ETH/USDT"},
			MaxPositionSizePct:   0.10,
			MinSpreadPct:         0.5,
			MinProfitPct:         0.1,
			MinVolumeUSD:         1000,
			RiskScoreThreshold:   7,
		},
		Oracle: OracleConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "llama3-70b-8192",
			Temperature:    0.1,
			MaxTokens:      2000,
			TimeoutSeconds: 2,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path if
// it exists, then environment overrides, then validation. An empty path
// skips the file stage entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets the environment win over file values, key by key.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Environment, "ENVIRONMENT")
	setBool(&cfg.Debug, "DEBUG")
	setBool(&cfg.SandboxMode, "SANDBOX_MODE")

	setFloat(&cfg.Pool.InitialValueUSD, "INITIAL_POOL_VALUE")
	setInt(&cfg.Pool.InitialParticipants, "INITIAL_PARTICIPANTS")

	setInt(&cfg.Trading.CycleIntervalSeconds, "CYCLE_INTERVAL")
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = splitSymbols(v)
	}
	setFloat(&cfg.Trading.MaxPositionSizePct, "MAX_POSITION_SIZE_PCT")
	setFloat(&cfg.Trading.MinSpreadPct, "MIN_SPREAD_THRESHOLD")
	setFloat(&cfg.Trading.MinProfitPct, "MIN_PROFIT_THRESHOLD")
	setFloat(&cfg.Trading.MinVolumeUSD, "MIN_VOLUME_USD")
	setInt(&cfg.Trading.RiskScoreThreshold, "RISK_SCORE_THRESHOLD")

	setString(&cfg.Oracle.APIKey, "ORACLE_API_KEY")
	setString(&cfg.Oracle.BaseURL, "ORACLE_BASE_URL")
	setString(&cfg.Oracle.Model, "ORACLE_MODEL")
	setString(&cfg.Oracle.FallbackModel, "ORACLE_FALLBACK_MODEL")
	setString(&cfg.Oracle.SecondaryBaseURL, "ORACLE_SECONDARY_BASE_URL")
	setString(&cfg.Oracle.SecondaryAPIKey, "ORACLE_SECONDARY_API_KEY")
	setFloat(&cfg.Oracle.Temperature, "ORACLE_TEMPERATURE")
	setInt(&cfg.Oracle.MaxTokens, "ORACLE_MAX_TOKENS")
	setFloat(&cfg.Oracle.TimeoutSeconds, "ORACLE_TIMEOUT")

	setString(&cfg.Venues.Binance.APIKey, "BINANCE_API_KEY")
	setString(&cfg.Venues.Binance.APISecret, "BINANCE_API_SECRET")
	setBool(&cfg.Venues.Binance.Sandbox, "BINANCE_TESTNET")
	setString(&cfg.Venues.Coinbase.APIKey, "COINBASE_API_KEY")
	setString(&cfg.Venues.Coinbase.APISecret, "COINBASE_API_SECRET")
	setString(&cfg.Venues.Coinbase.Passphrase, "COINBASE_PASSPHRASE")
	setBool(&cfg.Venues.Coinbase.Sandbox, "COINBASE_SANDBOX")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Postgres.DSN, "PG_DSN")

	setString(&cfg.HTTP.Host, "HTTP_HOST")
	setInt(&cfg.HTTP.Port, "HTTP_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	return symbols
}

// Validate rejects configurations the engine cannot run on.
func (c *Config) Validate() error {
	if c.Pool.InitialValueUSD < 0 {
		return fmt.Errorf("pool.initial_value_usd must not be negative, got %v", c.Pool.InitialValueUSD)
	}
	if c.Pool.InitialParticipants < 0 {
		return fmt.Errorf("pool.initial_participants must not be negative, got %d", c.Pool.InitialParticipants)
	}
	if c.Trading.CycleIntervalSeconds <= 0 {
		return fmt.Errorf("trading.cycle_interval_seconds must be positive, got %d", c.Trading.CycleIntervalSeconds)
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must not be empty")
	}
	for _, s := range c.Trading.Symbols {
		if !strings.Contains(s, "/") {
			return fmt.Errorf("trading symbol %q is not BASE/QUOTE", s)
		}
	}
	if c.Trading.MaxPositionSizePct <= 0 || c.Trading.MaxPositionSizePct > 1 {
		return fmt.Errorf("trading.max_position_size_pct must be in (0,1], got %v", c.Trading.MaxPositionSizePct)
	}
	if c.Trading.MinSpreadPct < 0 {
		return fmt.Errorf("trading.min_spread_pct must not be negative, got %v", c.Trading.MinSpreadPct)
	}
	if c.Trading.RiskScoreThreshold < 1 || c.Trading.RiskScoreThreshold > 10 {
		return fmt.Errorf("trading.risk_score_threshold must be in 1..10, got %d", c.Trading.RiskScoreThreshold)
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		return fmt.Errorf("oracle.timeout_seconds must be positive, got %v", c.Oracle.TimeoutSeconds)
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle.temperature must be in [0,2], got %v", c.Oracle.Temperature)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1..65535, got %d", c.HTTP.Port)
	}
	return nil
}

// Redacted returns a copy safe to expose over the control API: every
// credential is masked, everything else passes through.
func (c *Config) Redacted() Config {
	out := *c
	out.Oracle.APIKey = maskSecret(c.Oracle.APIKey)
	out.Oracle.SecondaryAPIKey = maskSecret(c.Oracle.SecondaryAPIKey)
	out.Venues.Binance.APIKey = maskSecret(c.Venues.Binance.APIKey)
	out.Venues.Binance.APISecret = maskSecret(c.Venues.Binance.APISecret)
	out.Venues.Coinbase.APIKey = maskSecret(c.Venues.Coinbase.APIKey)
	out.Venues.Coinbase.APISecret = maskSecret(c.Venues.Coinbase.APISecret)
	out.Venues.Coinbase.Passphrase = maskSecret(c.Venues.Coinbase.Passphrase)
	out.Postgres.DSN = maskDSN(c.Postgres.DSN)

	// Symbols share a backing array with the source; copy before handing out.
	out.Trading.Symbols = append([]string(nil), c.Trading.Symbols...)
	return out
}

// maskSecret keeps a short prefix for operator recognition and hides the
// rest. Short values are hidden entirely.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDSN hides the credential section of a connection string.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if scheme >= 0 && at > scheme {
		return dsn[:scheme+3] + "****" + dsn[at:]
	}
	return "****"
}
