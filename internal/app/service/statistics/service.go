package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

type StatisticType string

const (
	// Per snapshot date: active rows, value2 entitled rows.
	StatisticTypeDailySubscriptionCount StatisticType = "daily_subscription_count"
	// Per started_at date.
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
	// Per renewed_at date, from the renewal audit.
	StatisticTypeDailyRenewalCount StatisticType = "daily_renewal_count"
	// Per cancelled_at date.
	StatisticTypeDailyCancellationCount StatisticType = "daily_cancellation_count"
	// Current entitled rows, value2 active rows.
	StatisticTypeTotalSubscriptionCount StatisticType = "total_subscription_count"
	// Current entitled rows per plan id.
	StatisticTypePlanDistribution StatisticType = "plan_distribution"
)

var statisticTypes = []StatisticType{
	StatisticTypeDailySubscriptionCount,
	StatisticTypeDailyNewSubscriptionCount,
	StatisticTypeDailyRenewalCount,
	StatisticTypeDailyCancellationCount,
	StatisticTypeTotalSubscriptionCount,
	StatisticTypePlanDistribution,
}

// filterFields are the columns shared by every table the statistics read.
var filterFields = []string{"store_id", "plan_id"}

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	Filters   []*types.CommonFilter            `json:"filters"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

func (r *SubscriptionStatisticRequest) Validate() error {
	if len(r.DataItems) == 0 {
		return apperr.New(apperr.CodeInvalidInput, "data_items is required")
	}
	for _, di := range r.DataItems {
		if di == nil || !lo.Contains(statisticTypes, di.ID) {
			return apperr.Newf(apperr.CodeInvalidInput, "invalid data item id: %v", lo.FromPtr(di).ID)
		}
	}
	for _, f := range r.Filters {
		if f == nil {
			return apperr.New(apperr.CodeInvalidInput, "nil filter")
		}
		if err := f.Validate(); err != nil {
			return apperr.Wrap(apperr.CodeInvalidInput, err, "invalid filter")
		}
		if !lo.Contains(filterFields, f.Field) {
			return apperr.Newf(apperr.CodeInvalidInput, "statistics cannot be filtered by %s", f.Field)
		}
	}
	return nil
}

type SubscriptionStatisticResponseDataItem struct {
	Date   string `json:"date,omitempty"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]SubscriptionStatisticResponseDataItem `json:"data_items"`
}

// Service computes admin statistics and keeps the daily snapshots.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// snapshotBatchSize bounds the rows read per batch while snapshotting.
const snapshotBatchSize = 500

// SaveDailySnapshots copies every subscription row under snapshotDate. A
// second run for the same date overwrites that date's rows.
func (s *Service) SaveDailySnapshots(ctx context.Context, snapshotDate time.Time) (int, error) {
	date := snapshotDate.UTC().Format(time.DateOnly)
	now := s.now()
	saved := 0

	var batch []*models.Subscription
	res := s.db.WithContext(ctx).Order("id").FindInBatches(&batch, snapshotBatchSize, func(tx *gorm.DB, _ int) error {
		snaps := make([]*models.SubscriptionDailySnapshot, 0, len(batch))
		for _, sub := range batch {
			snaps = append(snaps, &models.SubscriptionDailySnapshot{
				ID:                tool.GenerateUUIDV7(),
				StoreID:           sub.StoreID,
				PlanID:            sub.PlanID,
				ChargeID:          sub.ChargeID,
				IsActive:          sub.IsActive,
				Entitled:          sub.Entitled(now),
				RenewAt:           sub.RenewAt,
				CancelledAt:       sub.CancelledAt,
				SnapshotDate:      date,
				SnapshotCreatedAt: now,
			})
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"plan_id", "charge_id", "is_active", "entitled", "renew_at", "cancelled_at", "snapshot_created_at", "updated_at"}),
		}).Create(&snaps).Error
		if err != nil {
			return err
		}
		saved += len(snaps)
		return nil
	})
	if res.Error != nil {
		return saved, fmt.Errorf("failed to save daily snapshots for %s: %w", date, res.Error)
	}
	logctx.FromCtx(ctx, s.log).Infow("daily snapshots saved", "date", date, "count", saved)
	return saved, nil
}

// dateOf renders col as YYYY-MM-DD in the current dialect.
func (s *Service) dateOf(col string) string {
	if s.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
}

func where(request *SubscriptionStatisticRequest) clause.Expression {
	return types.FiltersAnd(request.Filters)
}

func (s *Service) dailyCount(ctx context.Context, table, col string, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	day := s.dateOf(col)
	q := s.db.WithContext(ctx).Table(table).
		Select(day+" AS date, count(*) AS value").
		Where(col+" IS NOT NULL").
		Where(clause.Where{Exprs: []clause.Expression{where(request)}}).
		Group(day).
		Order("date DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailySubscriptionCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDailySnapshot{}).TableName()).
		Select("snapshot_date AS date, " +
			"SUM(CASE WHEN is_active THEN 1 ELSE 0 END) AS value, " +
			"SUM(CASE WHEN entitled THEN 1 ELSE 0 END) AS value2").
		Where(clause.Where{Exprs: []clause.Expression{where(request)}}).
		Group("snapshot_date").
		Order("snapshot_date DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) entitledScope(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ? OR (cancelled_at IS NOT NULL AND renew_at > ?)", true, s.now())
}

func (s *Service) getTotalSubscriptionCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where(clause.Where{Exprs: []clause.Expression{where(request)}})
	}
	var entitled, active int64
	if err := base().Scopes(s.entitledScope).Count(&entitled).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_active = ?", true).Count(&active).Error; err != nil {
		return nil, err
	}
	return []SubscriptionStatisticResponseDataItem{{Value: entitled, Value2: active}}, nil
}

func (s *Service) getPlanDistribution(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("plan_id AS label, count(*) AS value").
		Where(clause.Where{Exprs: []clause.Expression{where(request)}}).
		Scopes(s.entitledScope).
		Group("plan_id").
		Order("value DESC").
		Order("label ASC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest, dataItem *SubscriptionStatisticDataItem) ([]SubscriptionStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailySubscriptionCount:
		return s.getDailySubscriptionCount(ctx, request)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.dailyCount(ctx, (models.Subscription{}).TableName(), "started_at", request)
	case StatisticTypeDailyRenewalCount:
		return s.dailyCount(ctx, (models.SubscriptionRenewal{}).TableName(), "renewed_at", request)
	case StatisticTypeDailyCancellationCount:
		return s.dailyCount(ctx, (models.Subscription{}).TableName(), "cancelled_at", request)
	case StatisticTypeTotalSubscriptionCount:
		return s.getTotalSubscriptionCount(ctx, request)
	case StatisticTypePlanDistribution:
		return s.getPlanDistribution(ctx, request)
	default:
		return nil, apperr.Newf(apperr.CodeInvalidInput, "invalid data item id: %s", dataItem.ID)
	}
}

// GetSubscriptionStatistic computes the requested data items concurrently.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstEr error
	)
	results := make(map[StatisticType][]SubscriptionStatisticResponseDataItem, len(request.DataItems))
	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *SubscriptionStatisticDataItem) {
			defer wg.Done()
			res, err := s.getSubscriptionStatistic(ctx, request, di)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstEr == nil {
					firstEr = fmt.Errorf("failed to compute %s: %w", di.ID, err)
				}
				return
			}
			results[di.ID] = lo.Ternary(res == nil, []SubscriptionStatisticResponseDataItem{}, res)
		}(item)
	}
	wg.Wait()
	if firstEr != nil {
		return nil, firstEr
	}
	return &SubscriptionStatisticResponse{DataItems: results}, nil
}
