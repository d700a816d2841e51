package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
)

var Module = fx.Options(
	fx.Provide(New),
)

// Service reads the plan catalogue seeded from configuration.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Get returns the plan with the given numeric id.
func (s *Service) Get(ctx context.Context, planID string) (*models.Pricing, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(planID), 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.Newf(apperr.CodeNotFound, "pricing plan %q not found", planID)
	}
	var p models.Pricing
	if err := s.db.WithContext(ctx).Take(&p, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "pricing plan %q not found", planID)
		}
		return nil, fmt.Errorf("failed to get pricing plan: %w", err)
	}
	return &p, nil
}

// List returns every plan, cheapest first.
func (s *Service) List(ctx context.Context) ([]*models.Pricing, error) {
	var out []*models.Pricing
	if err := s.db.WithContext(ctx).Order("price ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list pricing plans: %w", err)
	}
	return out, nil
}
