package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App         AppConfig
	WooCommerce WooConfig
	Meta        MetaConfig
	TokenCache  TokenCacheConfig
	Costs       CostsConfig
	Sink        SinkConfig
}

type AppConfig struct {
	Port        string        `envconfig:"PORT" default:"8080"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string        `envconfig:"LOG_FORMAT" default:"json"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

type WooConfig struct {
	URL            string `envconfig:"WC_URL" json:"url"`
	ConsumerKey    string `envconfig:"WC_CONSUMER_KEY" json:"consumer_key"`
	ConsumerSecret string `envconfig:"WC_CONSUMER_SECRET" json:"consumer_secret"`
	APIVersion     string `envconfig:"WC_API_VERSION" default:"v3" json:"version,omitempty"`
	PerPage        int    `envconfig:"WC_PER_PAGE" default:"100" json:"-"`
	MaxOrders      int    `envconfig:"WC_MAX_ORDERS" default:"1000" json:"-"`
	Statuses       string `envconfig:"WC_ORDER_STATUSES" default:"completed,processing,on-hold,wmp-in-transit,wmp-shipped,ry-at-cvs" json:"-"`
	// extra days fetched before the window for repeat/new customer rates
	HistoryDays int `envconfig:"WC_HISTORY_DAYS" default:"0" json:"-"`
}

func (w WooConfig) Configured() bool {
	return w.URL != "" && w.ConsumerKey != "" && w.ConsumerSecret != ""
}

// StatusList splits the comma-separated status filter.
func (w WooConfig) StatusList() []string {
	var out []string
	for _, s := range strings.Split(w.Statuses, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type MetaConfig struct {
	AppID            string        `envconfig:"META_APP_ID" json:"app_id"`
	AppSecret        string        `envconfig:"META_APP_SECRET" json:"app_secret"`
	AccountID        string        `envconfig:"META_ACCOUNT_ID" json:"account_id"`
	LongLivedToken   string        `envconfig:"META_LONG_LIVED_TOKEN" json:"long_lived_token,omitempty"`
	OAuthRedirectURI string        `envconfig:"META_OAUTH_REDIRECT_URI" default:"http://localhost:8501" json:"oauth_redirect_uri,omitempty"`
	GraphURL         string        `envconfig:"META_GRAPH_URL" default:"https://graph.facebook.com" json:"-"`
	DialogURL        string        `envconfig:"META_DIALOG_URL" default:"https://www.facebook.com" json:"-"`
	APIVersion       string        `envconfig:"META_API_VERSION" default:"v23.0" json:"-"`
	MaxRetries       int           `envconfig:"META_MAX_RETRIES" default:"3" json:"-"`
	RefreshBuffer    time.Duration `envconfig:"META_TOKEN_REFRESH_BUFFER" default:"168h" json:"-"`
	RequestsPerSec   float64       `envconfig:"META_REQUESTS_PER_SECOND" default:"0" json:"-"`
}

func (m MetaConfig) Configured() bool {
	return m.AppID != "" && m.AppSecret != "" && m.AccountID != ""
}

type TokenCacheConfig struct {
	Backend    string `envconfig:"TOKEN_CACHE_BACKEND" default:"file"` // file | sqlite | redis | none
	Path       string `envconfig:"TOKEN_CACHE_PATH" default:".cache/meta_token.json"`
	SQLitePath string `envconfig:"TOKEN_CACHE_SQLITE_PATH" default:".cache/shopads.db"`
	RedisURL   string `envconfig:"REDIS_URL"`
}

type CostsConfig struct {
	COGSRate float64 `envconfig:"COGS_RATE" default:"50"`
	TaxRate  float64 `envconfig:"TAX_RATE" default:"0.05"`
}

func (c CostsConfig) COGSPercent() decimal.Decimal { return decimal.NewFromFloat(c.COGSRate) }
func (c CostsConfig) Tax() decimal.Decimal         { return decimal.NewFromFloat(c.TaxRate) }

type SinkConfig struct {
	URL    string `envconfig:"SINK_URL"`
	Secret string `envconfig:"SINK_SECRET"`
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	switch cfg.TokenCache.Backend {
	case "file", "sqlite", "redis", "none":
	default:
		return Config{}, fmt.Errorf("unknown TOKEN_CACHE_BACKEND %q", cfg.TokenCache.Backend)
	}
	if cfg.TokenCache.Backend == "redis" && cfg.TokenCache.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required for the redis token cache")
	}
	return cfg, nil
}

// Overrides are operator-entered settings for one session. Non-empty fields
// replace the environment values.
type Overrides struct {
	WooCommerce *WooConfig  `json:"woocommerce,omitempty"`
	Meta        *MetaConfig `json:"meta,omitempty"`
}

func (c Config) WithOverrides(o Overrides) Config {
	if o.WooCommerce != nil {
		c.WooCommerce.URL = coalesce(o.WooCommerce.URL, c.WooCommerce.URL)
		c.WooCommerce.ConsumerKey = coalesce(o.WooCommerce.ConsumerKey, c.WooCommerce.ConsumerKey)
		c.WooCommerce.ConsumerSecret = coalesce(o.WooCommerce.ConsumerSecret, c.WooCommerce.ConsumerSecret)
		c.WooCommerce.APIVersion = coalesce(o.WooCommerce.APIVersion, c.WooCommerce.APIVersion)
	}
	if o.Meta != nil {
		c.Meta.AppID = coalesce(o.Meta.AppID, c.Meta.AppID)
		c.Meta.AppSecret = coalesce(o.Meta.AppSecret, c.Meta.AppSecret)
		c.Meta.AccountID = coalesce(o.Meta.AccountID, c.Meta.AccountID)
		c.Meta.LongLivedToken = coalesce(o.Meta.LongLivedToken, c.Meta.LongLivedToken)
		c.Meta.OAuthRedirectURI = coalesce(o.Meta.OAuthRedirectURI, c.Meta.OAuthRedirectURI)
	}
	return c
}

func coalesce(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
