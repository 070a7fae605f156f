package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds the process configuration read from the environment.
type Settings struct {
	DatabaseDSN string `mapstructure:"database_dsn"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	LogLevel    string `mapstructure:"log_level"`
	HTTPAddr    string `mapstructure:"http_addr"`

	CookieDomain string `mapstructure:"cookie_domain"`

	RedisAddress string        `mapstructure:"redis_address"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	LockWait     time.Duration `mapstructure:"lock_wait"`

	PubSubProjectID string `mapstructure:"pubsub_project_id"`
	PubSubTopic     string `mapstructure:"pubsub_topic"`

	MetricProviderURL    string        `mapstructure:"metric_provider_url"`
	MetricRatePerSecond  float64       `mapstructure:"metric_rate_per_second"`
	MetricRetryAttempts  int           `mapstructure:"metric_retry_attempts"`
	MetricRequestTimeout time.Duration `mapstructure:"metric_request_timeout"`

	SchedulerSpec           string `mapstructure:"scheduler_spec"`
	SchedulerConcurrency    int    `mapstructure:"scheduler_concurrency"`
	SchedulerRetryTransient bool   `mapstructure:"scheduler_retry_transient"`

	ForecastTrailingDays int `mapstructure:"forecast_trailing_days"`
}

var settingKeys = []string{
	"database_dsn", "jwt_secret", "log_level", "http_addr", "cookie_domain",
	"redis_address", "lock_ttl", "lock_wait",
	"pubsub_project_id", "pubsub_topic",
	"metric_provider_url", "metric_rate_per_second", "metric_retry_attempts", "metric_request_timeout",
	"scheduler_spec", "scheduler_concurrency", "scheduler_retry_transient",
	"forecast_trailing_days",
}

// Load reads .env (when present) and the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for _, key := range settingKeys {
		// AutomaticEnv only resolves keys viper already knows about.
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetDefault("database_dsn", "file:goals.db?cache=shared")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("lock_ttl", 30*time.Second)
	v.SetDefault("lock_wait", 10*time.Second)
	v.SetDefault("metric_rate_per_second", 10.0)
	v.SetDefault("metric_retry_attempts", 3)
	v.SetDefault("metric_request_timeout", 15*time.Second)
	v.SetDefault("scheduler_spec", "@every 1h")
	v.SetDefault("scheduler_concurrency", 4)
	v.SetDefault("scheduler_retry_transient", true)
	v.SetDefault("forecast_trailing_days", 14)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	if s.SchedulerConcurrency < 1 {
		return nil, errors.New("SCHEDULER_CONCURRENCY must be at least 1")
	}
	if s.ForecastTrailingDays < 1 {
		return nil, errors.New("FORECAST_TRAILING_DAYS must be at least 1")
	}
	return &s, nil
}
