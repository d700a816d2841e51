package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/tool"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

// maxWriteAttempts bounds the read-modify-write retries after a lost
// version check or a concurrent insert of the same store.
const maxWriteAttempts = 3

// errConflict marks a lost compare-and-swap on Subscription.Version.
var errConflict = errors.New("subscription version conflict")

// Store persists the current subscription row of each merchant and the
// renewal audit trail.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger

	logs sync.WaitGroup
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

// Get reads the row of storeID outside any transaction; nil when absent.
func (s *Store) Get(ctx context.Context, storeID string) (*models.Subscription, error) {
	return s.find(ctx, s.db, storeID, false)
}

func (s *Store) find(ctx context.Context, tx *gorm.DB, storeID string, forUpdate bool) (*models.Subscription, error) {
	q := tx.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.Subscription
	if err := q.Where("store_id = ?", storeID).Take(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// Tx is the view of the store inside one read-modify-write.
type Tx struct {
	s  *Store
	tx *gorm.DB
}

// Lock reads the row of storeID with a row lock; nil when absent.
func (t *Tx) Lock(ctx context.Context, storeID string) (*models.Subscription, error) {
	return t.s.find(ctx, t.tx, storeID, true)
}

// Create inserts a new row at version 1. A concurrent insert for the same
// store surfaces as gorm.ErrDuplicatedKey and triggers a retry.
func (t *Tx) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = tool.GenerateUUIDV7()
	}
	sub.Version = 1
	if err := t.tx.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Update writes every mutable column of sub provided the stored version
// still equals sub.Version, then advances sub.Version.
func (t *Tx) Update(ctx context.Context, sub *models.Subscription) error {
	res := t.tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(map[string]any{
			"charge_id":     sub.ChargeID,
			"plan_id":       sub.PlanID,
			"is_active":     sub.IsActive,
			"renew_at":      sub.RenewAt,
			"cancelled_at":  sub.CancelledAt,
			"last_event_at": sub.LastEventAt,
			"version":       sub.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errConflict
	}
	sub.Version++
	return nil
}

// AppendRenewal inserts one audit row; rows are never updated.
func (t *Tx) AppendRenewal(ctx context.Context, r *models.SubscriptionRenewal) error {
	if r.ID == "" {
		r.ID = tool.GenerateUUIDV7()
	}
	if err := t.tx.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to append renewal: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction and reruns it from scratch when it loses a
// version check or a unique-index race, up to maxWriteAttempts times.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&Tx{s: s, tx: tx})
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		logctx.FromCtx(ctx, s.log).Warnw("subscription write conflict, retrying", "attempt", attempt, "err", err)
	}
	return apperr.Wrap(apperr.CodeInternal, err, "subscription write kept conflicting")
}

// Renewals lists audit rows of a store, newest first. An empty storeID
// lists all stores.
func (s *Store) Renewals(ctx context.Context, storeID string, limit int) ([]*models.SubscriptionRenewal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("renewed_at desc").Limit(limit)
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	}
	var out []*models.SubscriptionRenewal
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list renewals: %w", err)
	}
	return out, nil
}

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResult struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

var sortableColumns = map[string]bool{
	"created_at": true, "updated_at": true, "started_at": true, "renew_at": true, "cancelled_at": true,
}

// Scan is the admin listing over subscription rows.
func (s *Store) Scan(ctx context.Context, req *ScanRequest) (*ScanResult, error) {
	for _, f := range req.Filters {
		if err := f.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidInput, err, err.Error())
		}
	}
	size := req.Size
	if size <= 0 || size > 200 {
		size = 20
	}
	sortBy := req.SortBy
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	desc := req.SortOrder != "asc"

	q := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where(types.FiltersAnd(req.Filters)).
		Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	var items []*models.Subscription
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: sortBy}, Desc: desc}).
		Offset(max(req.From, 0)).Limit(size).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return &ScanResult{Items: items, Total: total}, nil
}

// writeLog records a before/after snapshot asynchronously; failures are
// logged only.
func (s *Store) writeLog(ctx context.Context, storeID string, reason types.SubscriptionChangeReason, before, after *models.Subscription, extra map[string]any) {
	if extra == nil {
		extra = map[string]any{}
	}
	if traceID := logctx.TraceID(ctx); traceID != "" {
		extra["trace_id"] = traceID
	}
	entry := &models.SubscriptionLog{
		ID:      tool.GenerateUUIDV7(),
		StoreID: storeID,
		Reason:  reason,
		Before:  datatypes.NewJSONType(before),
		After:   datatypes.NewJSONType(after),
		Extra:   datatypes.JSONMap(extra),
	}
	ctx = context.WithoutCancel(ctx)
	s.logs.Add(1)
	go func() {
		defer s.logs.Done()
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save subscription log", "store_id", storeID, "err", err)
		}
	}()
}

// Flush waits for pending subscription logs.
func (s *Store) Flush() {
	s.logs.Wait()
}
