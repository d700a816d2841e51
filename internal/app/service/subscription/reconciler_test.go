package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/db/dbtest"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/config"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

const testStore = "gid://shopify/Shop/1"

type fakeGateway struct {
	mu        sync.Mutex
	creates   []shopify.CreateChargeRequest
	cancels   []string
	createErr error
	cancelErr error
	nextID    string
}

func (g *fakeGateway) CreateCharge(_ context.Context, _ shopify.Shop, req shopify.CreateChargeRequest) (*shopify.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates = append(g.creates, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := lo.CoalesceOrEmpty(g.nextID, "123")
	return &shopify.Charge{ID: id, GID: shopify.AppSubscriptionGID(id), Status: types.BillingStatusPending, ConfirmationURL: "https://confirm/" + id}, nil
}

func (g *fakeGateway) CancelCharge(_ context.Context, _ shopify.Shop, chargeID string) (*shopify.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, chargeID)
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &shopify.Charge{ID: chargeID, Status: types.BillingStatusCancelled}, nil
}

type fakeShops map[string]shopify.Shop

func (f fakeShops) Credentials(_ context.Context, storeID string) (shopify.Shop, error) {
	s, ok := f[storeID]
	if !ok {
		return shopify.Shop{}, apperr.New(apperr.CodeNotFound, "merchant not found")
	}
	return s, nil
}

type fakePlans map[string]*models.Pricing

func (f fakePlans) Get(_ context.Context, id string) (*models.Pricing, error) {
	p, ok := f[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "plan not found")
	}
	return p, nil
}

var testPlans = fakePlans{
	"1": {ID: 1, Name: "Free", Price: decimal.Zero},
	"2": {ID: 2, Name: "Premium", Price: decimal.NewFromInt(20), Currency: "USD", Interval: types.PlanIntervalEvery30Days},
	"3": {ID: 3, Name: "Pro", Price: decimal.NewFromInt(50), Interval: types.PlanIntervalAnnual, TrialDays: 7},
}

var fixedNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestReconciler(t *testing.T) (*Reconciler, *fakeGateway, *gorm.DB) {
	t.Helper()
	gdb := dbtest.New(t)
	store := NewStore(gdb, zap.NewNop().Sugar())
	t.Cleanup(store.Flush)
	gw := &fakeGateway{}
	cfg := &config.Config{Shopify: config.ShopifyConfig{AppHandle: "pc-builder", TestCharges: true, Currency: "USD"}}
	shops := fakeShops{testStore: {Domain: "demo.myshopify.com", AccessToken: "shpat"}}
	r := NewReconciler(store, gw, shops, testPlans, cfg, zap.NewNop().Sugar())
	r.now = func() time.Time { return fixedNow }
	return r, gw, gdb
}

func seed(t *testing.T, gdb *gorm.DB, sub *models.Subscription) {
	t.Helper()
	sub.ID = lo.CoalesceOrEmpty(sub.ID, "00000000-0000-7000-8000-000000000001")
	sub.StoreID = lo.CoalesceOrEmpty(sub.StoreID, testStore)
	sub.Version = 1
	require.NoError(t, gdb.Create(sub).Error)
}

func load(t *testing.T, gdb *gorm.DB) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, gdb.Where("store_id = ?", testStore).Take(&sub).Error)
	return &sub
}

func countRows(t *testing.T, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(model).Count(&n).Error)
	return n
}

func TestRequestPlanChange_FreeWithoutRowTouchesNothing(t *testing.T) {
	r, gw, gdb := newTestReconciler(t)

	res, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "1", PlanPrice: decimal.Zero})
	require.NoError(t, err)
	require.Empty(t, res.ConfirmationURL)
	require.Equal(t, OutcomeNoop, res.Outcome)
	require.Empty(t, gw.creates)
	require.Empty(t, gw.cancels)
	require.Zero(t, countRows(t, gdb, &models.Subscription{}))
}

func TestRequestPlanChange_FreeWithInactiveRowTouchesNothing(t *testing.T) {
	r, gw, gdb := newTestReconciler(t)
	seed(t, gdb, &models.Subscription{ChargeID: "9", PlanID: "2", CancelledAt: lo.ToPtr(fixedNow.AddDate(0, -1, 0))})

	res, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "1", PlanPrice: decimal.Zero})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, res.Outcome)
	require.Empty(t, gw.cancels)
	require.Equal(t, "2", load(t, gdb).PlanID)
}

func TestRequestPlanChange_PaidCreatesRow(t *testing.T) {
	r, gw, gdb := newTestReconciler(t)

	res, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "2", PlanName: "Premium", PlanPrice: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.Equal(t, "https://confirm/123", res.ConfirmationURL)
	require.Equal(t, OutcomeCreated, res.Outcome)

	require.Len(t, gw.creates, 1)
	req := gw.creates[0]
	require.Equal(t, "https://admin.shopify.com/store/demo/apps/pc-builder/app/pricing", req.ReturnURL)
	require.True(t, req.Amount.Equal(decimal.NewFromInt(20)))
	require.Equal(t, "USD", req.Currency)
	require.True(t, req.Test)

	sub := load(t, gdb)
	require.Equal(t, "123", sub.ChargeID)
	require.Equal(t, "2", sub.PlanID)
	require.True(t, sub.IsActive)
	require.Nil(t, sub.CancelledAt)
	require.True(t, sub.StartedAt.Equal(fixedNow))
	require.EqualValues(t, 1, sub.Version)
}

func TestRequestPlanChange_PlanDefaultsApplied(t *testing.T) {
	r, gw, _ := newTestReconciler(t)
	_, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "3", PlanPrice: decimal.NewFromInt(50)})
	require.NoError(t, err)
	require.Equal(t, "Pro", gw.creates[0].Name)
	require.Equal(t, "USD", gw.creates[0].Currency)
	require.Equal(t, types.PlanIntervalAnnual, gw.creates[0].Interval)
	require.Equal(t, 7, gw.creates[0].TrialDays)
}

func TestRequestPlanChange_GatewayFailureLeavesStorageUntouched(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode apperr.Code
	}{
		{"user errors", apperr.Rejected("rejected", []apperr.FieldError{{Field: []string{"price"}, Message: "too low"}}), apperr.CodeBillingRejected},
		{"unavailable", apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("dial tcp"), "down"), apperr.CodeGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, gw, gdb := newTestReconciler(t)
			seed(t, gdb, &models.Subscription{ChargeID: "9", PlanID: "3", IsActive: true})
			gw.createErr = tt.err

			_, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "2", PlanPrice: decimal.NewFromInt(20)})
			require.Equal(t, tt.wantCode, apperr.CodeOf(err))

			sub := load(t, gdb)
			require.Equal(t, "9", sub.ChargeID)
			require.Equal(t, "3", sub.PlanID)
			require.EqualValues(t, 1, sub.Version)
		})
	}
}

func TestRequestPlanChange_ReactivationKeepsCancellationMarker(t *testing.T) {
	r, gw, gdb := newTestReconciler(t)
	cancelledAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, gdb, &models.Subscription{ChargeID: "9", PlanID: "3", CancelledAt: &cancelledAt, StartedAt: cancelledAt.AddDate(0, -2, 0)})
	gw.nextID = "456"

	res, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "2", PlanPrice: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, res.Outcome)

	sub := load(t, gdb)
	require.Equal(t, "456", sub.ChargeID)
	require.Equal(t, "2", sub.PlanID)
	require.True(t, sub.IsActive)
	require.NotNil(t, sub.CancelledAt)
	require.True(t, sub.CancelledAt.Equal(cancelledAt))
	require.True(t, sub.StartedAt.Equal(cancelledAt.AddDate(0, -2, 0)))
	require.EqualValues(t, 2, sub.Version)
}

func TestRequestPlanChange_DowngradeCancelsActiveCharge(t *testing.T) {
	for name, cancelErr := range map[string]error{"cancel ok": nil, "cancel fails": errors.New("gateway down")} {
		t.Run(name, func(t *testing.T) {
			r, gw, gdb := newTestReconciler(t)
			seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})
			gw.cancelErr = cancelErr

			res, err := r.RequestPlanChange(context.Background(), PlanChangeRequest{StoreID: testStore, PlanID: "1", PlanPrice: decimal.Zero})
			require.NoError(t, err)
			require.Empty(t, res.ConfirmationURL)
			require.Equal(t, OutcomeDowngraded, res.Outcome)
			require.Equal(t, []string{"123"}, gw.cancels)

			sub := load(t, gdb)
			require.False(t, sub.IsActive)
			require.Equal(t, "1", sub.PlanID)
			require.NotNil(t, sub.CancelledAt)
			require.True(t, sub.CancelledAt.Equal(fixedNow))
			require.Empty(t, gw.creates)
		})
	}
}

func TestRequestPlanChange_InvalidInput(t *testing.T) {
	r, gw, _ := newTestReconciler(t)
	tests := []struct {
		name string
		req  PlanChangeRequest
		code apperr.Code
	}{
		{"missing store", PlanChangeRequest{PlanID: "2", PlanPrice: decimal.NewFromInt(20)}, apperr.CodeInvalidInput},
		{"missing plan", PlanChangeRequest{StoreID: testStore, PlanPrice: decimal.NewFromInt(20)}, apperr.CodeInvalidInput},
		{"negative price", PlanChangeRequest{StoreID: testStore, PlanID: "2", PlanPrice: decimal.NewFromInt(-1)}, apperr.CodeInvalidInput},
		{"price mismatch", PlanChangeRequest{StoreID: testStore, PlanID: "2", PlanPrice: decimal.NewFromInt(1)}, apperr.CodeInvalidInput},
		{"unknown plan", PlanChangeRequest{StoreID: testStore, PlanID: "99", PlanPrice: decimal.NewFromInt(20)}, apperr.CodeNotFound},
		{"unknown merchant", PlanChangeRequest{StoreID: "gid://shopify/Shop/404", PlanID: "2", PlanPrice: decimal.NewFromInt(20)}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.RequestPlanChange(context.Background(), tt.req)
			require.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
	require.Empty(t, gw.creates)
}

func TestReconcileBillingEvent_CreatesRow(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	created := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	outcome, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{
		StoreID: testStore, ChargeID: "123", PlanID: "2", Status: types.BillingStatusActive,
		CreatedAt: &created, UpdatedAt: &created, CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	sub := load(t, gdb)
	require.True(t, sub.IsActive)
	require.True(t, sub.StartedAt.Equal(created))
	require.True(t, sub.RenewAt.Equal(periodEnd))
}

func TestReconcileBillingEvent_DefaultsRenewalWithoutPeriodEnd(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	_, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{StoreID: testStore, ChargeID: "1", Status: types.BillingStatusPending})
	require.NoError(t, err)

	sub := load(t, gdb)
	require.False(t, sub.IsActive)
	require.True(t, sub.RenewAt.Equal(fixedNow.Add(30*24*time.Hour)))
}

func TestReconcileBillingEvent_Idempotent(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	seed(t, gdb, &models.Subscription{ChargeID: "100", PlanID: "3", IsActive: true})
	updated := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	ev := BillingEvent{StoreID: testStore, ChargeID: "123", Status: types.BillingStatusActive, UpdatedAt: &updated, CurrentPeriodEnd: &periodEnd}

	_, err := r.ReconcileBillingEvent(context.Background(), ev)
	require.NoError(t, err)
	first := load(t, gdb)

	outcome, err := r.ReconcileBillingEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	second := load(t, gdb)

	for _, sub := range []*models.Subscription{first, second} {
		require.Equal(t, "123", sub.ChargeID)
		require.Equal(t, "3", sub.PlanID, "empty incoming plan keeps the stored one")
		require.True(t, sub.IsActive)
		require.True(t, sub.RenewAt.Equal(periodEnd))
		require.Nil(t, sub.CancelledAt)
	}
	require.Zero(t, countRows(t, gdb, &models.SubscriptionRenewal{}))
}

func TestReconcileBillingEvent_RenewalAfterCancellation(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	cancelledAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, gdb, &models.Subscription{ChargeID: "100", PlanID: "2", CancelledAt: &cancelledAt})
	periodEnd := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := BillingEvent{StoreID: testStore, ChargeID: "123", Status: types.BillingStatusActive, CurrentPeriodEnd: &periodEnd}

	outcome, err := r.ReconcileBillingEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeRenewed, outcome)

	sub := load(t, gdb)
	require.True(t, sub.RenewAt.Equal(periodEnd))
	require.True(t, sub.CancelledAt.Equal(cancelledAt))
	require.False(t, sub.IsActive)
	require.Equal(t, "100", sub.ChargeID)
	require.True(t, sub.Entitled(fixedNow))

	var renewals []models.SubscriptionRenewal
	require.NoError(t, gdb.Find(&renewals).Error)
	require.Len(t, renewals, 1)
	require.Equal(t, "123", renewals[0].ChargeID)
	require.Equal(t, "2", renewals[0].PlanID)
	require.Equal(t, testStore, renewals[0].StoreID)

	// replays grow only the audit trail
	_, err = r.ReconcileBillingEvent(context.Background(), ev)
	require.NoError(t, err)
	require.EqualValues(t, 2, countRows(t, gdb, &models.SubscriptionRenewal{}))
	again := load(t, gdb)
	require.True(t, again.RenewAt.Equal(periodEnd))
	require.True(t, again.CancelledAt.Equal(cancelledAt))
}

func TestReconcileBillingEvent_CancelledStatusDeactivates(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})

	_, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{StoreID: testStore, ChargeID: "123", Status: types.BillingStatusCancelled})
	require.NoError(t, err)

	sub := load(t, gdb)
	require.False(t, sub.IsActive)
	require.Nil(t, sub.CancelledAt)
}

func TestReconcileBillingEvent_CancelEchoKeepsRowCancelled(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})

	res, err := r.CancelActiveSubscription(context.Background(), testStore, "123")
	require.NoError(t, err)
	require.True(t, res.Cancelled)
	view, err := r.View(context.Background(), testStore)
	require.NoError(t, err)
	require.Equal(t, types.FreePlanID, view.PlanID)

	for _, status := range []types.BillingStatus{types.BillingStatusCancelled, types.BillingStatusExpired, types.BillingStatusFrozen} {
		outcome, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{StoreID: testStore, ChargeID: "123", PlanID: "2", Status: status})
		require.NoError(t, err)
		require.Equal(t, OutcomeNoop, outcome, string(status))
	}

	sub := load(t, gdb)
	require.False(t, sub.IsActive)
	require.False(t, sub.Entitled(fixedNow))
	require.True(t, sub.CancelledAt.Equal(fixedNow))
	require.Zero(t, countRows(t, gdb, &models.SubscriptionRenewal{}))

	view, err = r.View(context.Background(), testStore)
	require.NoError(t, err)
	require.Equal(t, types.FreePlanID, view.PlanID)
}

func TestReconcileBillingEvent_StaleEventIgnored(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	last := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true, LastEventAt: &last})

	older := last.Add(-time.Minute)
	outcome, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{StoreID: testStore, ChargeID: "99", Status: types.BillingStatusCancelled, UpdatedAt: &older})
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, outcome)

	sub := load(t, gdb)
	require.True(t, sub.IsActive)
	require.Equal(t, "123", sub.ChargeID)
}

func TestReconcileBillingEvent_MissingStoreIgnored(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	outcome, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{ChargeID: "1", Status: types.BillingStatusActive})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)
	require.Zero(t, countRows(t, gdb, &models.Subscription{}))
}

func TestReconcileBillingEvent_ConcurrentDeliveriesKeepOneRow(t *testing.T) {
	r, _, gdb := newTestReconciler(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.ReconcileBillingEvent(context.Background(), BillingEvent{StoreID: testStore, ChargeID: "123", Status: types.BillingStatusActive})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, countRows(t, gdb, &models.Subscription{}))
	require.EqualValues(t, 8, load(t, gdb).Version)
}

func TestCancelActiveSubscription(t *testing.T) {
	t.Run("no row", func(t *testing.T) {
		r, gw, _ := newTestReconciler(t)
		res, err := r.CancelActiveSubscription(context.Background(), testStore, "")
		require.NoError(t, err)
		require.False(t, res.Cancelled)
		require.Empty(t, gw.cancels)
	})

	t.Run("active row", func(t *testing.T) {
		r, gw, gdb := newTestReconciler(t)
		seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})

		res, err := r.CancelActiveSubscription(context.Background(), testStore, "123")
		require.NoError(t, err)
		require.True(t, res.Cancelled)
		require.Equal(t, types.BillingStatusCancelled, res.Status)
		require.Equal(t, []string{"123"}, gw.cancels)

		sub := load(t, gdb)
		require.False(t, sub.IsActive)
		require.True(t, sub.CancelledAt.Equal(fixedNow))
		require.Equal(t, "2", sub.PlanID)
	})

	t.Run("gateway failure is best effort", func(t *testing.T) {
		r, gw, gdb := newTestReconciler(t)
		seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})
		gw.cancelErr = errors.New("timeout")

		res, err := r.CancelActiveSubscription(context.Background(), testStore, "gid://shopify/AppSubscription/123")
		require.NoError(t, err)
		require.True(t, res.Cancelled)
		require.Equal(t, types.BillingStatusUnknown, res.Status)
		require.False(t, load(t, gdb).IsActive)
	})

	t.Run("missing credentials report no status", func(t *testing.T) {
		r, gw, gdb := newTestReconciler(t)
		const other = "gid://shopify/Shop/2"
		seed(t, gdb, &models.Subscription{StoreID: other, ChargeID: "55", PlanID: "2", IsActive: true})

		res, err := r.CancelActiveSubscription(context.Background(), other, "")
		require.NoError(t, err)
		require.True(t, res.Cancelled)
		require.Equal(t, types.BillingStatusUnknown, res.Status)
		require.Empty(t, gw.cancels)
	})

	t.Run("charge mismatch", func(t *testing.T) {
		r, gw, gdb := newTestReconciler(t)
		seed(t, gdb, &models.Subscription{ChargeID: "123", PlanID: "2", IsActive: true})

		_, err := r.CancelActiveSubscription(context.Background(), testStore, "999")
		require.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
		require.Empty(t, gw.cancels)
		require.True(t, load(t, gdb).IsActive)
	})

	t.Run("missing store", func(t *testing.T) {
		r, _, _ := newTestReconciler(t)
		_, err := r.CancelActiveSubscription(context.Background(), " ", "")
		require.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
	})
}

func TestToView(t *testing.T) {
	require.Equal(t, types.FreePlanID, ToView(nil, fixedNow).PlanID)

	cancelled := &models.Subscription{PlanID: "2", ChargeID: "9", CancelledAt: lo.ToPtr(fixedNow.AddDate(0, -1, 0))}
	v := ToView(cancelled, fixedNow)
	require.Equal(t, types.FreePlanID, v.PlanID)
	require.False(t, v.IsActive)
	require.NotNil(t, v.CancelledAt)

	active := &models.Subscription{PlanID: "2", ChargeID: "9", IsActive: true, StartedAt: fixedNow}
	v = ToView(active, fixedNow)
	require.Equal(t, "2", v.PlanID)
	require.Equal(t, "9", *v.ChargeID)
	require.True(t, v.IsActive)
}
