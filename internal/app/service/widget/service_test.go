package widget

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/db/dbtest"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

const (
	storeA = "gid://shopify/Shop/1"
	storeB = "gid://shopify/Shop/2"
)

func titles(w *models.Widget) []string {
	return lo.Map(w.Steps, func(s models.WidgetStep, _ int) string { return s.Title })
}

func positions(w *models.Widget) []int {
	return lo.Map(w.Steps, func(s models.WidgetStep, _ int) int { return s.Position })
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc := New(dbtest.New(t), zap.NewNop().Sugar())

	w, err := svc.Create(ctx, storeA, CreateRequest{Name: "  Gaming rig "})
	require.NoError(t, err)
	require.Equal(t, "Gaming rig", w.Name)
	require.Equal(t, types.WidgetStatusActive, w.Status)

	_, err = svc.Create(ctx, storeA, CreateRequest{Name: "Draft", Status: types.WidgetStatusDraft})
	require.NoError(t, err)
	_, err = svc.Create(ctx, storeB, CreateRequest{Name: "Other store"})
	require.NoError(t, err)

	list, err := svc.List(ctx, storeA)
	require.NoError(t, err)
	require.Len(t, list, 2)

	w, err = svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{Steps: []StepInput{
		{Title: "CPU", CollectionID: "gid://shopify/Collection/1", Required: true},
		{Title: "GPU"},
		{Title: "Case", ImageURL: "https://cdn.example.com/case.png"},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"CPU", "GPU", "Case"}, titles(w))
	require.Equal(t, []int{0, 1, 2}, positions(w))

	// reorder with a rename in the same save
	w, err = svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{
		UpdateRequest: UpdateRequest{Name: lo.ToPtr("Workstation")},
		Steps:         []StepInput{{Title: "Case"}, {Title: "CPU"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Workstation", w.Name)
	require.Equal(t, []string{"Case", "CPU"}, titles(w))
	require.Equal(t, []int{0, 1}, positions(w))

	w, err = svc.Update(ctx, storeA, w.ID, UpdateRequest{Status: lo.ToPtr(types.WidgetStatusDraft)})
	require.NoError(t, err)
	require.Equal(t, types.WidgetStatusDraft, w.Status)
	require.Equal(t, "Workstation", w.Name)
	require.Len(t, w.Steps, 2)

	// other stores cannot see or touch the widget
	_, err = svc.Get(ctx, storeB, w.ID)
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	_, err = svc.Update(ctx, storeB, w.ID, UpdateRequest{Name: lo.ToPtr("stolen")})
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	require.NoError(t, svc.Delete(ctx, storeB, w.ID))
	_, err = svc.Get(ctx, storeA, w.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, storeA, w.ID))
	_, err = svc.Get(ctx, storeA, w.ID)
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	var steps int64
	require.NoError(t, svc.db.Model(&models.WidgetStep{}).Where("widget_id = ?", w.ID).Count(&steps).Error)
	require.Zero(t, steps)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := New(dbtest.New(t), zap.NewNop().Sugar())
	w, err := svc.Create(ctx, storeA, CreateRequest{Name: "Rig"})
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"empty name", func() error {
			_, err := svc.Create(ctx, storeA, CreateRequest{Name: "   "})
			return err
		}},
		{"bad status", func() error {
			_, err := svc.Create(ctx, storeA, CreateRequest{Name: "x", Status: "LIVE"})
			return err
		}},
		{"blank rename", func() error {
			_, err := svc.Update(ctx, storeA, w.ID, UpdateRequest{Name: lo.ToPtr(" ")})
			return err
		}},
		{"step without title", func() error {
			_, err := svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{Steps: []StepInput{{Title: "CPU"}, {}}})
			return err
		}},
		{"bad image url", func() error {
			_, err := svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{Steps: []StepInput{{Title: "CPU", ImageURL: "not a url"}}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, apperr.HasCode(tt.call(), apperr.CodeInvalidInput))
		})
	}

	_, err = svc.Get(ctx, storeA, "not-a-uuid")
	require.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

func TestService_SaveStepsIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	svc := New(db, zap.NewNop().Sugar())

	w, err := svc.Create(ctx, storeA, CreateRequest{Name: "Rig"})
	require.NoError(t, err)
	_, err = svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{Steps: []StepInput{{Title: "CPU"}, {Title: "GPU"}}})
	require.NoError(t, err)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_steps", func(tx *gorm.DB) {
		if tx.Statement.Table == (models.WidgetStep{}).TableName() {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err = svc.SaveSteps(ctx, storeA, w.ID, SaveStepsRequest{
		UpdateRequest: UpdateRequest{Name: lo.ToPtr("Renamed")},
		Steps:         []StepInput{{Title: "PSU"}},
	})
	require.Error(t, err)

	got, err := svc.Get(ctx, storeA, w.ID)
	require.NoError(t, err)
	require.Equal(t, "Rig", got.Name)
	require.Equal(t, []string{"CPU", "GPU"}, titles(got))
}
