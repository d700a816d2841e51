package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/config"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/metrics"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

// defaultRenewalPeriod applies when a billing event has no current period end.
const defaultRenewalPeriod = 30 * 24 * time.Hour

// Gateway issues recurring charges against the billing API.
type Gateway interface {
	CreateCharge(ctx context.Context, shop shopify.Shop, req shopify.CreateChargeRequest) (*shopify.Charge, error)
	CancelCharge(ctx context.Context, shop shopify.Shop, chargeID string) (*shopify.Charge, error)
}

// Shops resolves a merchant's store id to Admin API credentials. It returns
// a NOT_FOUND apperr when the merchant is unknown.
type Shops interface {
	Credentials(ctx context.Context, storeID string) (shopify.Shop, error)
}

// Plans looks up pricing rows. It returns a NOT_FOUND apperr when absent.
type Plans interface {
	Get(ctx context.Context, planID string) (*models.Pricing, error)
}

// Outcome names what a reconcile call did; it labels metrics and replies.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeRenewed    Outcome = "renewed"
	OutcomeDowngraded Outcome = "downgraded"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeNoop       Outcome = "noop"
	OutcomeStale      Outcome = "stale"
	OutcomeIgnored    Outcome = "ignored"
)

// Reconciler keeps the single subscription row of each merchant in line with
// plan-change requests and billing events.
type Reconciler struct {
	store   *Store
	gateway Gateway
	shops   Shops
	plans   Plans
	cfg     *config.Config
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewReconciler(store *Store, gateway Gateway, shops Shops, plans Plans, cfg *config.Config, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:   store,
		gateway: gateway,
		shops:   shops,
		plans:   plans,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type PlanChangeRequest struct {
	StoreID   string
	PlanID    string
	PlanName  string
	PlanPrice decimal.Decimal
}

type PlanChangeResult struct {
	// ConfirmationURL is empty for the free plan.
	ConfirmationURL string
	Outcome         Outcome
	Subscription    *models.Subscription
}

// RequestPlanChange starts a paid charge or downgrades to the free plan.
// For paid plans the gateway is called first and local storage is left
// untouched when it fails.
func (r *Reconciler) RequestPlanChange(ctx context.Context, req PlanChangeRequest) (*PlanChangeResult, error) {
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.PlanID = strings.TrimSpace(req.PlanID)
	if req.StoreID == "" || req.PlanID == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "store id and plan id are required")
	}
	if req.PlanPrice.IsNegative() {
		return nil, apperr.New(apperr.CodeInvalidInput, "plan price must not be negative")
	}

	plan, err := r.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Price.Equal(req.PlanPrice) {
		return nil, apperr.Newf(apperr.CodeInvalidInput, "plan price %s does not match plan %s", req.PlanPrice.String(), req.PlanID)
	}

	if plan.IsFree() {
		return r.downgradeToFree(ctx, req.StoreID, req.PlanID)
	}
	return r.startPaidPlan(ctx, req, plan)
}

func (r *Reconciler) startPaidPlan(ctx context.Context, req PlanChangeRequest, plan *models.Pricing) (*PlanChangeResult, error) {
	log := logctx.FromCtx(ctx, r.log)

	shop, err := r.shops.Credentials(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	name := req.PlanName
	if name == "" {
		name = plan.Name
	}
	charge, err := r.gateway.CreateCharge(ctx, shop, shopify.CreateChargeRequest{
		Name:      name,
		ReturnURL: r.returnURL(shop.Domain),
		Amount:    plan.Price,
		Currency:  lo.CoalesceOrEmpty(plan.Currency, r.cfg.Shopify.Currency),
		Interval:  lo.CoalesceOrEmpty(plan.Interval, types.PlanIntervalEvery30Days),
		TrialDays: plan.TrialDays,
		Test:      r.cfg.Shopify.TestCharges,
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("plan_change", "error").Inc()
		log.Warnw("billing gateway refused plan change", "store_id", req.StoreID, "plan_id", req.PlanID, "err", err)
		return nil, err
	}

	var (
		before, after *models.Subscription
		outcome       Outcome
	)
	err = r.store.WithTx(ctx, func(tx *Tx) error {
		cur, err := tx.Lock(ctx, req.StoreID)
		if err != nil {
			return err
		}
		if cur == nil {
			after = &models.Subscription{
				StoreID:   req.StoreID,
				ChargeID:  charge.ID,
				PlanID:    req.PlanID,
				IsActive:  true,
				StartedAt: r.now(),
			}
			before, outcome = nil, OutcomeCreated
			return tx.Create(ctx, after)
		}

		before = lo.ToPtr(*cur)
		// CancelledAt is a historical marker and stays as it is.
		cur.ChargeID = charge.ID
		cur.PlanID = req.PlanID
		cur.IsActive = true
		after, outcome = cur, OutcomeUpdated
		return tx.Update(ctx, cur)
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("plan_change", "error").Inc()
		return nil, fmt.Errorf("failed to save plan change: %w", err)
	}

	metrics.ReconcileTotal.WithLabelValues("plan_change", string(outcome)).Inc()
	r.store.writeLog(ctx, req.StoreID, types.SubscriptionChangeReasonPlanChange, before, after, map[string]any{"charge_id": charge.ID})
	log.Infow("plan change saved", "store_id", req.StoreID, "plan_id", req.PlanID, "charge_id", charge.ID, "outcome", outcome)
	return &PlanChangeResult{ConfirmationURL: charge.ConfirmationURL, Outcome: outcome, Subscription: after}, nil
}

// downgradeToFree cancels the active paid charge, if any. The free plan is
// represented by having no active row, so nothing is written otherwise.
func (r *Reconciler) downgradeToFree(ctx context.Context, storeID, planID string) (*PlanChangeResult, error) {
	log := logctx.FromCtx(ctx, r.log)

	cur, err := r.store.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if cur == nil || !cur.IsActive {
		metrics.ReconcileTotal.WithLabelValues("plan_change", string(OutcomeNoop)).Inc()
		return &PlanChangeResult{Outcome: OutcomeNoop, Subscription: cur}, nil
	}

	r.cancelCharge(ctx, storeID, cur.ChargeID)

	var before, after *models.Subscription
	err = r.store.WithTx(ctx, func(tx *Tx) error {
		before, after = nil, nil
		row, err := tx.Lock(ctx, storeID)
		if err != nil || row == nil || !row.IsActive {
			return err
		}
		before = lo.ToPtr(*row)
		row.IsActive = false
		row.CancelledAt = lo.ToPtr(r.now())
		row.PlanID = planID
		after = row
		return tx.Update(ctx, row)
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("plan_change", "error").Inc()
		return nil, fmt.Errorf("failed to save downgrade: %w", err)
	}
	if after == nil {
		metrics.ReconcileTotal.WithLabelValues("plan_change", string(OutcomeNoop)).Inc()
		return &PlanChangeResult{Outcome: OutcomeNoop}, nil
	}

	metrics.ReconcileTotal.WithLabelValues("plan_change", string(OutcomeDowngraded)).Inc()
	r.store.writeLog(ctx, storeID, types.SubscriptionChangeReasonDowngrade, before, after, map[string]any{"charge_id": before.ChargeID})
	log.Infow("downgraded to free plan", "store_id", storeID, "charge_id", before.ChargeID)
	return &PlanChangeResult{Outcome: OutcomeDowngraded, Subscription: after}, nil
}

// cancelCharge is best-effort: failures are logged and the caller carries on.
// The status is the one Shopify reported, empty when no cancel went through.
func (r *Reconciler) cancelCharge(ctx context.Context, storeID, chargeID string) types.BillingStatus {
	log := logctx.FromCtx(ctx, r.log)
	if chargeID == "" {
		return types.BillingStatusUnknown
	}
	shop, err := r.shops.Credentials(ctx, storeID)
	if err != nil {
		log.Warnw("no credentials to cancel charge", "store_id", storeID, "charge_id", chargeID, "err", err)
		return types.BillingStatusUnknown
	}
	charge, err := r.gateway.CancelCharge(ctx, shop, chargeID)
	if err != nil {
		log.Warnw("billing gateway cancel failed", "store_id", storeID, "charge_id", chargeID, "err", err)
		return types.BillingStatusUnknown
	}
	return charge.Status
}

type CancelResult struct {
	// Cancelled is false when the merchant had no active subscription.
	Cancelled    bool
	Status       types.BillingStatus
	Subscription *models.Subscription
}

// CancelActiveSubscription cancels the active charge of storeID. A non-empty
// chargeID must name the active charge.
func (r *Reconciler) CancelActiveSubscription(ctx context.Context, storeID, chargeID string) (*CancelResult, error) {
	log := logctx.FromCtx(ctx, r.log)
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "store id is required")
	}
	chargeID = shopify.LegacyID(strings.TrimSpace(chargeID))

	cur, err := r.store.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if cur == nil || !cur.IsActive {
		metrics.ReconcileTotal.WithLabelValues("cancel", string(OutcomeNoop)).Inc()
		log.Infow("no active subscription to cancel", "store_id", storeID)
		return &CancelResult{Cancelled: false, Subscription: cur}, nil
	}
	if chargeID != "" && chargeID != cur.ChargeID {
		return nil, apperr.Newf(apperr.CodeNotFound, "subscription charge %s is not active", chargeID)
	}

	status := r.cancelCharge(ctx, storeID, cur.ChargeID)

	var before, after *models.Subscription
	err = r.store.WithTx(ctx, func(tx *Tx) error {
		before, after = nil, nil
		row, err := tx.Lock(ctx, storeID)
		if err != nil || row == nil || !row.IsActive {
			return err
		}
		before = lo.ToPtr(*row)
		row.IsActive = false
		row.CancelledAt = lo.ToPtr(r.now())
		after = row
		return tx.Update(ctx, row)
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("cancel", "error").Inc()
		return nil, fmt.Errorf("failed to save cancellation: %w", err)
	}
	if after == nil {
		metrics.ReconcileTotal.WithLabelValues("cancel", string(OutcomeNoop)).Inc()
		return &CancelResult{Cancelled: false}, nil
	}

	metrics.ReconcileTotal.WithLabelValues("cancel", string(OutcomeCancelled)).Inc()
	r.store.writeLog(ctx, storeID, types.SubscriptionChangeReasonCancel, before, after, map[string]any{"charge_id": before.ChargeID, "status": status})
	log.Infow("subscription cancelled", "store_id", storeID, "charge_id", before.ChargeID, "status", status)
	return &CancelResult{Cancelled: true, Status: status, Subscription: after}, nil
}

// BillingEvent is the normalized APP_SUBSCRIPTIONS_UPDATE payload.
type BillingEvent struct {
	StoreID string
	// ChargeID and PlanID are numeric GID tails; PlanID may be empty.
	ChargeID         string
	PlanID           string
	Status           types.BillingStatus
	CreatedAt        *time.Time
	UpdatedAt        *time.Time
	CurrentPeriodEnd *time.Time
}

// ReconcileBillingEvent applies one billing event. Replaying an event yields
// the same row; only the renewal audit grows per delivery. Events older
// than the last applied one are acknowledged without effect.
func (r *Reconciler) ReconcileBillingEvent(ctx context.Context, ev BillingEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, r.log)
	if strings.TrimSpace(ev.StoreID) == "" {
		metrics.ReconcileTotal.WithLabelValues("billing_event", string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	now := r.now()
	isActive := ev.Status == types.BillingStatusActive
	renewAt := now.Add(defaultRenewalPeriod)
	if ev.CurrentPeriodEnd != nil {
		renewAt = ev.CurrentPeriodEnd.UTC()
	}

	var (
		before, after *models.Subscription
		renewal       *models.SubscriptionRenewal
		outcome       Outcome
	)
	err := r.store.WithTx(ctx, func(tx *Tx) error {
		before, after, renewal = nil, nil, nil
		cur, err := tx.Lock(ctx, ev.StoreID)
		if err != nil {
			return err
		}

		if cur == nil {
			after = &models.Subscription{
				StoreID:     ev.StoreID,
				ChargeID:    ev.ChargeID,
				PlanID:      ev.PlanID,
				IsActive:    isActive,
				StartedAt:   lo.FromPtrOr(ev.CreatedAt, now).UTC(),
				RenewAt:     lo.ToPtr(renewAt),
				LastEventAt: ev.UpdatedAt,
			}
			outcome = OutcomeCreated
			return tx.Create(ctx, after)
		}

		if cur.LastEventAt != nil && ev.UpdatedAt != nil && ev.UpdatedAt.Before(*cur.LastEventAt) {
			outcome = OutcomeStale
			return nil
		}

		// A cancelled row only reacts to renewals. The CANCELLED echo of the
		// merchant's own cancel must not extend the period.
		if cur.Cancelled() && !isActive {
			outcome = OutcomeNoop
			return nil
		}

		before = lo.ToPtr(*cur)
		if ev.UpdatedAt != nil {
			cur.LastEventAt = ev.UpdatedAt
		}
		cur.RenewAt = lo.ToPtr(renewAt)

		if cur.Cancelled() {
			// Renewal after cancellation: only the period moves; the active
			// flag and the cancellation marker stay as they are.
			renewal = &models.SubscriptionRenewal{
				StoreID:   ev.StoreID,
				ChargeID:  lo.CoalesceOrEmpty(ev.ChargeID, cur.ChargeID),
				PlanID:    lo.CoalesceOrEmpty(ev.PlanID, cur.PlanID),
				RenewedAt: now,
			}
			after, outcome = cur, OutcomeRenewed
			if err := tx.Update(ctx, cur); err != nil {
				return err
			}
			return tx.AppendRenewal(ctx, renewal)
		}

		if ev.ChargeID != "" {
			cur.ChargeID = ev.ChargeID
		}
		cur.PlanID = lo.CoalesceOrEmpty(ev.PlanID, cur.PlanID)
		cur.IsActive = isActive
		after, outcome = cur, OutcomeUpdated
		return tx.Update(ctx, cur)
	})
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("billing_event", "error").Inc()
		log.Errorw("failed to reconcile billing event", "store_id", ev.StoreID, "charge_id", ev.ChargeID, "err", err)
		return "", fmt.Errorf("failed to reconcile billing event: %w", err)
	}

	metrics.ReconcileTotal.WithLabelValues("billing_event", string(outcome)).Inc()
	if after != nil {
		reason := types.SubscriptionChangeReasonWebhook
		if renewal != nil {
			reason = types.SubscriptionChangeReasonRenewal
		}
		r.store.writeLog(ctx, ev.StoreID, reason, before, after, map[string]any{"charge_id": ev.ChargeID, "status": ev.Status})
	}
	log.Infow("billing event reconciled", "store_id", ev.StoreID, "charge_id", ev.ChargeID, "status", ev.Status, "outcome", outcome)
	return outcome, nil
}

// Current returns the row of storeID, nil when the merchant never subscribed.
func (r *Reconciler) Current(ctx context.Context, storeID string) (*models.Subscription, error) {
	return r.store.Get(ctx, storeID)
}

// View renders the row for the admin UI; merchants without an active row
// are reported on the FREE plan.
func (r *Reconciler) View(ctx context.Context, storeID string) (*types.SubscriptionView, error) {
	sub, err := r.store.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return ToView(sub, r.now()), nil
}

func ToView(sub *models.Subscription, now time.Time) *types.SubscriptionView {
	if sub == nil || !sub.Entitled(now) {
		v := &types.SubscriptionView{PlanID: types.FreePlanID}
		if sub != nil {
			v.CancelledAt = sub.CancelledAt
		}
		return v
	}
	return &types.SubscriptionView{
		PlanID:      sub.PlanID,
		ChargeID:    lo.EmptyableToPtr(sub.ChargeID),
		IsActive:    true,
		StartedAt:   lo.ToPtr(sub.StartedAt),
		RenewAt:     sub.RenewAt,
		CancelledAt: sub.CancelledAt,
	}
}

func (r *Reconciler) returnURL(shopDomain string) string {
	return fmt.Sprintf("https://admin.shopify.com/store/%s/apps/%s/app/pricing", shopify.ShopHandle(shopDomain), r.cfg.Shopify.AppHandle)
}
