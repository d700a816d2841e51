package support

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/mail"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/validate"
)

var Module = fx.Options(
	fx.Provide(
		New,
		func(m *mail.Mailer) Mailer { return m },
	),
)

type Mailer interface {
	ForwardsSupport() bool
	SendSupport(ctx context.Context, req mail.SupportMail) error
}

type Service struct {
	db     *gorm.DB
	mailer Mailer
	log    *zap.SugaredLogger
}

func New(db *gorm.DB, mailer Mailer, log *zap.SugaredLogger) *Service {
	return &Service{db: db, mailer: mailer, log: log}
}

type SubmitRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=feature support bug"`
	Subject  string `json:"subject" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Message  string `json:"message" validate:"required,max=5000"`
	ImageURL string `json:"image_url" validate:"omitempty,url,max=1024"`
}

// Submit stores the request and forwards it to the support inbox. A failed
// forward leaves the request open; it is not an error for the merchant.
func (s *Service) Submit(ctx context.Context, storeID, storeName string, req SubmitRequest) (*models.SupportRequest, error) {
	log := logctx.FromCtx(ctx, s.log)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if req.Kind == "" {
		req.Kind = "feature"
	}
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}

	row := &models.SupportRequest{
		ID:       tool.GenerateUUIDV7(),
		StoreID:  storeID,
		Kind:     req.Kind,
		Subject:  req.Subject,
		Email:    req.Email,
		Message:  req.Message,
		ImageURL: req.ImageURL,
		Status:   models.SupportRequestStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to save support request: %w", err)
	}

	if !s.mailer.ForwardsSupport() {
		return row, nil
	}
	err := s.mailer.SendSupport(ctx, mail.SupportMail{
		Kind:     row.Kind,
		From:     storeName,
		ReplyTo:  row.Email,
		Subject:  row.Subject,
		Message:  row.Message,
		ImageURL: row.ImageURL,
	})
	if err != nil {
		log.Warnw("failed to forward support request", "id", row.ID, "err", err)
		return row, nil
	}
	if err := s.db.WithContext(ctx).Model(row).Update("status", models.SupportRequestStatusMailed).Error; err != nil {
		log.Warnw("failed to mark support request mailed", "id", row.ID, "err", err)
		return row, nil
	}
	row.Status = models.SupportRequestStatusMailed
	log.Infow("support request forwarded", "id", row.ID, "store_id", storeID, "kind", row.Kind)
	return row, nil
}
