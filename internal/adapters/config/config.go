package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	DeepSeek      DeepSeekConfig
	OKX           OKXConfig
	Agent         AgentConfig
	Trading       TradingConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"aitrader"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type ServerConfig struct {
	Host string `envconfig:"AGENT_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"AGENT_PORT" default:"8001"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DeepSeekConfig struct {
	APIKey  string        `envconfig:"DEEPSEEK_API_KEY" required:"true"`
	BaseURL string        `envconfig:"DEEPSEEK_API_BASE" default:"https://api.deepseek.com"`
	Model   string        `envconfig:"DEEPSEEK_MODEL" default:"deepseek-chat"`
	Timeout time.Duration `envconfig:"DEEPSEEK_TIMEOUT" default:"120s"`
}

type OKXConfig struct {
	APIKey       string        `envconfig:"OKX_API_KEY" required:"true"`
	SecretKey    string        `envconfig:"OKX_SECRET_KEY" required:"true"`
	Passphrase   string        `envconfig:"OKX_PASSPHRASE" required:"true"`
	BaseURL      string        `envconfig:"OKX_BASE_URL" default:"https://www.okx.com"`
	UseSimulated bool          `envconfig:"OKX_USE_SIMULATED" default:"false"`
	Timeout      time.Duration `envconfig:"OKX_HTTP_TIMEOUT" default:"15s"`
	MaxRetries   int           `envconfig:"OKX_HTTP_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"OKX_HTTP_RETRY_BACKOFF" default:"500ms"`
	RateLimitRPM int           `envconfig:"OKX_RATE_LIMIT_RPM" default:"60"`
}

// AgentConfig bounds the orchestration loop and conversation memory.
type AgentConfig struct {
	MaxToolRounds   int     `envconfig:"AGENT_MAX_TOOL_ROUNDS" default:"10"`
	HistoryLimit    int     `envconfig:"AGENT_HISTORY_LIMIT" default:"20"`
	MaxHistory      int     `envconfig:"AGENT_MAX_HISTORY" default:"50"`
	Temperature     float64 `envconfig:"AGENT_TEMPERATURE" default:"0.4"`
	ChatTemperature float64 `envconfig:"AGENT_CHAT_TEMPERATURE" default:"0.7"`
}

// TradingConfig holds order-shaping policy. The trigger bands are business
// policy carried as configuration, expressed in percent.
type TradingConfig struct {
	StopLossPct   float64 `envconfig:"TRADING_STOP_LOSS_PCT" default:"1.5"`
	TakeProfitPct float64 `envconfig:"TRADING_TAKE_PROFIT_PCT" default:"1.5"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// It first tries to load a .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfiguration, err.Error())
	}

	return &cfg, nil
}
