package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/pcbuilder/pkg/types"
)

func TestNew_ReadsPlansAndDurations(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
env: prod
shopify:
  api_secret: shh
  http_timeout: 5s
plans:
  - id: 1
    name: Free
    price: "0"
  - id: 2
    name: Premium
    price: 19.99
    interval: EVERY_30_DAYS
    features: [unlimited widgets, priority support]
`), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvProd, cfg.Env)
	require.Equal(t, 5*time.Second, cfg.Shopify.HTTPTimeout)
	require.Equal(t, "2025-10", cfg.Shopify.APIVersion)
	require.Len(t, cfg.Plans, 2)
	require.True(t, cfg.GetPlanSeedByID(1).IsFree())
	require.Equal(t, "19.99", cfg.GetPlanSeedByID(2).Price.StringFixed(2))
	require.Len(t, cfg.GetPlanSeedByID(2).Features, 2)
	require.Nil(t, cfg.GetPlanSeedByID(3))
}

func TestNew_MissingExplicitFileFails(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := New()
	require.Error(t, err)
}

func TestNew_EnvOnly(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "absent-"+filepath.Base(t.TempDir()))
	t.Setenv("APP_SHOPIFY_API_SECRET", "s3cret")
	t.Setenv("APP_ADMIN_TOKEN", "ops")
	t.Setenv("APP_REDIS_ADDR", "redis:6379")
	t.Setenv("APP_MAIL_PASSWORD", "mailpw")
	t.Setenv("APP_STORAGE_SECRET_KEY", "s3key")
	t.Setenv("APP_UPLOAD_POLL_TIMEOUT", "12s")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "s3cret", cfg.Shopify.APISecret)
	require.Equal(t, "ops", cfg.AdminToken)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "mailpw", cfg.Mail.Password)
	require.Equal(t, "s3key", cfg.Storage.SecretKey)
	require.Equal(t, 12*time.Second, cfg.Upload.PollTimeout)
	require.Equal(t, 8888, cfg.Server.Port)
}

func TestNew_RequiresAPISecret(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "absent-"+filepath.Base(t.TempDir()))
	t.Setenv("APP_SHOPIFY_API_SECRET", "")
	_, err := New()
	require.ErrorContains(t, err, "shopify.api_secret is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8888},
			Database: DBConfig{DSN: "sqlite://:memory:"},
			Shopify:  ShopifyConfig{APISecret: "shh"},
			Plans:    []*types.PlanSeed{{ID: 1}, {ID: 2}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"no secret", func(c *Config) { c.Shopify.APISecret = "" }, "shopify.api_secret"},
		{"no dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"duplicate plan", func(c *Config) { c.Plans = append(c.Plans, &types.PlanSeed{ID: 2}) }, "plan id 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
