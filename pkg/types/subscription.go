package types

import "time"

// BillingStatus mirrors Shopify's AppSubscriptionStatus.
type BillingStatus string

const (
	// BillingStatusUnknown means the gateway never confirmed a status.
	BillingStatusUnknown   BillingStatus = ""
	BillingStatusActive    BillingStatus = "ACTIVE"
	BillingStatusPending   BillingStatus = "PENDING"
	BillingStatusCancelled BillingStatus = "CANCELLED"
	BillingStatusDeclined  BillingStatus = "DECLINED"
	BillingStatusExpired   BillingStatus = "EXPIRED"
	BillingStatusFrozen    BillingStatus = "FROZEN"
)

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPlanChange SubscriptionChangeReason = "planChange"
	SubscriptionChangeReasonDowngrade  SubscriptionChangeReason = "downgradeToFree"
	SubscriptionChangeReasonCancel     SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonWebhook    SubscriptionChangeReason = "billingEvent"
	SubscriptionChangeReasonRenewal    SubscriptionChangeReason = "renewalAfterCancel"
)

// FreePlanID is the sentinel plan id reported to the UI when a merchant has
// no active paid subscription.
const FreePlanID = "FREE"

type MerchantStatus string

const (
	MerchantStatusActive      MerchantStatus = "ACTIVE"
	MerchantStatusUninstalled MerchantStatus = "UNINSTALLED"
)

type WidgetStatus string

const (
	WidgetStatusActive WidgetStatus = "ACTIVE"
	WidgetStatusDraft  WidgetStatus = "DRAFT"
)

// SubscriptionView is the subscription shape returned to the admin UI.
type SubscriptionView struct {
	PlanID      string     `json:"subscription_plan_id"`
	ChargeID    *string    `json:"subscription_charge_id"`
	IsActive    bool       `json:"is_active"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	RenewAt     *time.Time `json:"renew_at,omitempty"`
	CancelledAt *time.Time `json:"cancel_at,omitempty"`
}
