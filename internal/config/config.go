package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cron       CronConfig       `mapstructure:"cron"`
	SPAPI      SPAPIConfig      `mapstructure:"spapi"`
	Storefront StorefrontConfig `mapstructure:"storefront"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	BrandOwner BrandOwnerConfig `mapstructure:"brand_owner"`
	Insight    InsightConfig    `mapstructure:"insight"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// APIToken guards /api/ and /swagger with a bearer token. Empty leaves
	// them open.
	APIToken string `mapstructure:"api_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps everything
	// in process and is meant for local runs without a database.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Regular    string `mapstructure:"regular"`
	Intensive  string `mapstructure:"intensive"`
	Cleanup    string `mapstructure:"cleanup"`
	BrandOwner string `mapstructure:"brand_owner"`
}

type SPAPIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	TokenURL      string        `mapstructure:"token_url"`
	MarketplaceID string        `mapstructure:"marketplace_id"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	RefreshToken  string        `mapstructure:"refresh_token"`
	AccessToken   string        `mapstructure:"access_token"`
	Timeout       time.Duration `mapstructure:"timeout"`

	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type StorefrontConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CollectorConfig struct {
	BatchLimit         int           `mapstructure:"batch_limit"`
	CallDelay          time.Duration `mapstructure:"call_delay"`
	IntensiveDelay     time.Duration `mapstructure:"intensive_delay"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	RateLimitBackoff   time.Duration `mapstructure:"rate_limit_backoff"`
	HotWindow          time.Duration `mapstructure:"hot_window"`
	HotMinObservations int           `mapstructure:"hot_min_observations"`
	HotLimit           int           `mapstructure:"hot_limit"`
	BusinessHourStart  int           `mapstructure:"business_hour_start"`
	BusinessHourEnd    int           `mapstructure:"business_hour_end"`
	BusinessTimezone   string        `mapstructure:"business_timezone"`
	NewCompetitorMin   int           `mapstructure:"new_competitor_min"`
}

type BrandOwnerConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
}

type InsightConfig struct {
	OurSellerIDs          []string `mapstructure:"our_seller_ids"`
	TransitionImpactScale float64  `mapstructure:"transition_impact_scale"`
	GapImpactScale        float64  `mapstructure:"gap_impact_scale"`
	Currency              string   `mapstructure:"currency"`
}

type RetentionConfig struct {
	Offers            time.Duration `mapstructure:"offers"`
	Intervals         time.Duration `mapstructure:"intervals"`
	DismissedInsights time.Duration `mapstructure:"dismissed_insights"`
	SellerCache       time.Duration `mapstructure:"seller_cache"`
	SellerCacheTTL    time.Duration `mapstructure:"seller_cache_ttl"`
}

type NotifyConfig struct {
	Redis           bool          `mapstructure:"redis"`
	TelegramToken   string        `mapstructure:"telegram_token"`
	TelegramChatID  int64         `mapstructure:"telegram_chat_id"`
	TelegramTimeout time.Duration `mapstructure:"telegram_timeout"`
	TelegramQueue   int           `mapstructure:"telegram_queue"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.api_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "buy_box_change")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.regular", "0 */15 * * * *")
	v.SetDefault("cron.intensive", "0 0 * * * *")
	v.SetDefault("cron.cleanup", "0 0 0 * * *")
	v.SetDefault("cron.brand_owner", "0 30 * * * *")
	v.SetDefault("spapi.base_url", "https://sellingpartnerapi-na.amazon.com")
	v.SetDefault("spapi.token_url", "https://api.amazon.com/auth/o2/token")
	v.SetDefault("spapi.marketplace_id", "A2Q3Y263D00KWC")
	v.SetDefault("spapi.timeout", "15s")
	v.SetDefault("spapi.breaker_failures", 5)
	v.SetDefault("spapi.breaker_timeout", "60s")
	v.SetDefault("storefront.enabled", false)
	v.SetDefault("storefront.base_url", "https://www.amazon.com.br")
	v.SetDefault("storefront.timeout", "10s")
	v.SetDefault("storefront.rps", 0.5)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("collector.batch_limit", 50)
	v.SetDefault("collector.call_delay", "120ms")
	v.SetDefault("collector.intensive_delay", "100ms")
	v.SetDefault("collector.call_timeout", "20s")
	v.SetDefault("collector.rate_limit_backoff", "30s")
	v.SetDefault("collector.hot_window", "2h")
	v.SetDefault("collector.hot_min_observations", 3)
	v.SetDefault("collector.hot_limit", 20)
	v.SetDefault("collector.business_hour_start", 9)
	v.SetDefault("collector.business_hour_end", 22)
	v.SetDefault("collector.business_timezone", "America/Sao_Paulo")
	v.SetDefault("collector.new_competitor_min", 3)
	v.SetDefault("brand_owner.batch_size", 5)
	v.SetDefault("brand_owner.batch_pause", "2s")
	v.SetDefault("insight.our_seller_ids", []string{})
	v.SetDefault("insight.transition_impact_scale", 100)
	v.SetDefault("insight.gap_impact_scale", 10)
	v.SetDefault("insight.currency", "R$")
	v.SetDefault("retention.offers", "720h")
	v.SetDefault("retention.intervals", "2160h")
	v.SetDefault("retention.dismissed_insights", "168h")
	v.SetDefault("retention.seller_cache", "720h")
	v.SetDefault("retention.seller_cache_ttl", "168h")
	v.SetDefault("notify.redis", false)
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)
	v.SetDefault("notify.telegram_timeout", "10s")
	v.SetDefault("notify.telegram_queue", 64)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
