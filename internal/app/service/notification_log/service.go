package notification_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
)

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			s.Flush()
			return nil
		}})
	}),
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger

	pending sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a webhook delivery log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.BillingNotificationLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

// Flush waits for logs still being written.
func (s *Service) Flush() {
	s.pending.Wait()
}

// ByWebhookID returns every log row of one delivery in save order; ids are
// UUIDv7 and sort by creation.
func (s *Service) ByWebhookID(ctx context.Context, webhookID string) ([]*models.BillingNotificationLog, error) {
	var out []*models.BillingNotificationLog
	err := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
