package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

var Module = fx.Options(
	fx.Provide(NewClient, NewDeduper),
)

const keyPrefix = "pcbuilder:webhook:"

// NewClient returns nil when no address is configured; the deduper then
// lets every delivery through.
func NewClient(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		l.Warnw("redis address empty; webhook dedupe disabled")
		return nil, nil
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

// Deduper claims webhook ids so a redelivered webhook is processed once.
type Deduper struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDeduper(client *goredis.Client, cfg *config.Config) *Deduper {
	ttl := cfg.Redis.DedupeTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Deduper{client: client, ttl: ttl}
}

// Claim returns true when the id was already claimed. Empty ids and a
// disabled deduper never report duplicates.
func (d *Deduper) Claim(ctx context.Context, webhookID, topic string) (bool, error) {
	webhookID = strings.TrimSpace(webhookID)
	if d == nil || d.client == nil || webhookID == "" {
		return false, nil
	}
	ok, err := d.client.SetNX(ctx, keyPrefix+webhookID, topic, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook %s: %w", webhookID, err)
	}
	return !ok, nil
}

// Release drops a claim so a failed delivery can be retried by Shopify.
func (d *Deduper) Release(ctx context.Context, webhookID string) error {
	webhookID = strings.TrimSpace(webhookID)
	if d == nil || d.client == nil || webhookID == "" {
		return nil
	}
	if err := d.client.Del(ctx, keyPrefix+webhookID).Err(); err != nil {
		return fmt.Errorf("failed to release webhook %s: %w", webhookID, err)
	}
	return nil
}
