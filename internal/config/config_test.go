package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("WC_URL", "https://shop.example.com")
	t.Setenv("META_APP_ID", "123")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 30*time.Second, cfg.App.HTTPTimeout)
	assert.Equal(t, "https://shop.example.com", cfg.WooCommerce.URL)
	assert.Equal(t, 100, cfg.WooCommerce.PerPage)
	assert.Equal(t, 1000, cfg.WooCommerce.MaxOrders)
	assert.Equal(t, "v23.0", cfg.Meta.APIVersion)
	assert.Equal(t, 7*24*time.Hour, cfg.Meta.RefreshBuffer)
	assert.Equal(t, "http://localhost:8501", cfg.Meta.OAuthRedirectURI)
	assert.Equal(t, "file", cfg.TokenCache.Backend)
	assert.Equal(t, "50", cfg.Costs.COGSPercent().String())
	assert.Equal(t, "0.05", cfg.Costs.Tax().String())
	assert.Equal(t,
		[]string{"completed", "processing", "on-hold", "wmp-in-transit", "wmp-shipped", "ry-at-cvs"},
		cfg.WooCommerce.StatusList())
}

func TestFromEnvRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TOKEN_CACHE_BACKEND", "s3")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvRedisNeedsURL(t *testing.T) {
	t.Setenv("TOKEN_CACHE_BACKEND", "redis")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestConfigured(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.WooCommerce.Configured())
	assert.False(t, cfg.Meta.Configured())

	cfg.WooCommerce = WooConfig{URL: "u", ConsumerKey: "k", ConsumerSecret: "s"}
	cfg.Meta = MetaConfig{AppID: "a", AppSecret: "s", AccountID: "act_1"}
	assert.True(t, cfg.WooCommerce.Configured())
	assert.True(t, cfg.Meta.Configured())
}

func TestWithOverrides(t *testing.T) {
	base := Config{
		WooCommerce: WooConfig{URL: "https://env.example.com", ConsumerKey: "ck_env", ConsumerSecret: "cs_env"},
		Meta:        MetaConfig{AppID: "env-app", AppSecret: "env-secret", AccountID: "1"},
	}
	got := base.WithOverrides(Overrides{
		WooCommerce: &WooConfig{URL: "https://manual.example.com"},
		Meta:        &MetaConfig{AccountID: "act_99", LongLivedToken: "  "},
	})

	assert.Equal(t, "https://manual.example.com", got.WooCommerce.URL)
	assert.Equal(t, "ck_env", got.WooCommerce.ConsumerKey)
	assert.Equal(t, "act_99", got.Meta.AccountID)
	assert.Equal(t, "env-app", got.Meta.AppID)
	assert.Empty(t, got.Meta.LongLivedToken)
	// base untouched
	assert.Equal(t, "https://env.example.com", base.WooCommerce.URL)
}
