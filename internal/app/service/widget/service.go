package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/types"
	"github.com/fatflowers/pcbuilder/pkg/validate"
)

var Module = fx.Options(
	fx.Provide(New),
)

// Service edits the widgets of a store. Every call is scoped to one store;
// a widget of another store reads as missing.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

type CreateRequest struct {
	Name   string             `json:"name" validate:"required,max=255"`
	Status types.WidgetStatus `json:"status" validate:"omitempty,oneof=ACTIVE DRAFT"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Name   *string             `json:"name" validate:"omitnil,min=1,max=255"`
	Status *types.WidgetStatus `json:"status" validate:"omitnil,oneof=ACTIVE DRAFT"`
}

type StepInput struct {
	Title        string `json:"title" validate:"required,max=255"`
	Description  string `json:"description" validate:"max=4000"`
	CollectionID string `json:"collection_id" validate:"max=128"`
	ImageURL     string `json:"image_url" validate:"omitempty,url,max=1024"`
	Required     bool   `json:"required"`
}

// SaveStepsRequest replaces the ordered step list, optionally together with
// the widget metadata. Steps are stored in slice order.
type SaveStepsRequest struct {
	UpdateRequest
	Steps []StepInput `json:"steps" validate:"max=50,dive"`
}

func (s *Service) List(ctx context.Context, storeID string) ([]*models.Widget, error) {
	var out []*models.Widget
	err := s.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	return out, nil
}

// Get returns the widget with its steps in position order.
func (s *Service) Get(ctx context.Context, storeID, id string) (*models.Widget, error) {
	return s.load(ctx, s.db, storeID, id, false)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, storeID, id string, forUpdate bool) (*models.Widget, error) {
	if !tool.IsUUID(id) {
		return nil, apperr.Newf(apperr.CodeNotFound, "widget %s not found", id)
	}
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	} else {
		q = q.Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
	}
	var w models.Widget
	if err := q.Where("id = ? AND store_id = ?", id, storeID).Take(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "widget %s not found", id)
		}
		return nil, fmt.Errorf("failed to get widget: %w", err)
	}
	return &w, nil
}

func (s *Service) Create(ctx context.Context, storeID string, req CreateRequest) (*models.Widget, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	w := &models.Widget{
		ID:      tool.GenerateUUIDV7(),
		StoreID: storeID,
		Name:    req.Name,
		Status:  lo.CoalesceOrEmpty(req.Status, types.WidgetStatusActive),
		Steps:   []models.WidgetStep{},
	}
	if err := s.db.WithContext(ctx).Omit("Steps").Create(w).Error; err != nil {
		return nil, fmt.Errorf("failed to create widget: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("widget created", "store_id", storeID, "widget_id", w.ID)
	return w, nil
}

func (s *Service) Update(ctx context.Context, storeID, id string, req UpdateRequest) (*models.Widget, error) {
	return s.save(ctx, storeID, id, SaveStepsRequest{UpdateRequest: req}, false)
}

// SaveSteps writes the metadata and the whole step list in one transaction.
// Positions are rewritten as 0..n-1.
func (s *Service) SaveSteps(ctx context.Context, storeID, id string, req SaveStepsRequest) (*models.Widget, error) {
	return s.save(ctx, storeID, id, req, true)
}

func (s *Service) save(ctx context.Context, storeID, id string, req SaveStepsRequest, replaceSteps bool) (*models.Widget, error) {
	if req.Name != nil {
		req.Name = lo.ToPtr(strings.TrimSpace(*req.Name))
	}
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.load(ctx, tx, storeID, id, true)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Status != nil {
			updates["status"] = *req.Status
		}
		// touch updated_at even when only the steps change
		updates["updated_at"] = time.Now()
		if err := tx.Model(w).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update widget: %w", err)
		}

		if !replaceSteps {
			return nil
		}
		if err := tx.Where("widget_id = ?", id).Delete(&models.WidgetStep{}).Error; err != nil {
			return fmt.Errorf("failed to clear widget steps: %w", err)
		}
		if len(req.Steps) == 0 {
			return nil
		}
		steps := make([]*models.WidgetStep, 0, len(req.Steps))
		for i, in := range req.Steps {
			steps = append(steps, &models.WidgetStep{
				ID:           tool.GenerateUUIDV7(),
				WidgetID:     id,
				Position:     i,
				Title:        strings.TrimSpace(in.Title),
				Description:  in.Description,
				CollectionID: in.CollectionID,
				ImageURL:     in.ImageURL,
				Required:     in.Required,
			})
		}
		if err := tx.Create(steps).Error; err != nil {
			return fmt.Errorf("failed to save widget steps: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replaceSteps {
		logctx.FromCtx(ctx, s.log).Infow("widget steps saved", "store_id", storeID, "widget_id", id, "steps", len(req.Steps))
	}
	return s.Get(ctx, storeID, id)
}

// Delete removes the widget and its steps together. Deleting a missing
// widget is not an error.
func (s *Service) Delete(ctx context.Context, storeID, id string) error {
	if !tool.IsUUID(id) {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND store_id = ?", id, storeID).Delete(&models.Widget{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete widget: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where("widget_id = ?", id).Delete(&models.WidgetStep{}).Error; err != nil {
			return fmt.Errorf("failed to delete widget steps: %w", err)
		}
		logctx.FromCtx(ctx, s.log).Infow("widget deleted", "store_id", storeID, "widget_id", id)
		return nil
	})
}
