package notification_handler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

// appSubscriptionPayload is the body of an app_subscriptions/update webhook.
type appSubscriptionPayload struct {
	AppSubscription *struct {
		AdminGraphqlAPIID     string `json:"admin_graphql_api_id"`
		Name                  string `json:"name"`
		Status                string `json:"status"`
		AdminGraphqlAPIShopID string `json:"admin_graphql_api_shop_id"`
		CreatedAt             string `json:"created_at"`
		UpdatedAt             string `json:"updated_at"`
		CurrentPeriodEnd      string `json:"current_period_end"`
		LineItems             []struct {
			Plan *struct {
				ID string `json:"id"`
			} `json:"plan"`
		} `json:"line_items"`
	} `json:"app_subscription"`
}

// parseAppSubscription normalizes the webhook body. A nil event with a nil
// error means the payload carries nothing to reconcile.
func parseAppSubscription(body []byte) (*subscription.BillingEvent, error) {
	var p appSubscriptionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode app subscription payload: %w", err)
	}
	sub := p.AppSubscription
	if sub == nil {
		return nil, nil
	}

	ev := &subscription.BillingEvent{
		StoreID:  strings.TrimSpace(sub.AdminGraphqlAPIShopID),
		ChargeID: shopify.LegacyID(strings.TrimSpace(sub.AdminGraphqlAPIID)),
		Status:   types.BillingStatus(strings.ToUpper(strings.TrimSpace(sub.Status))),
	}
	if len(sub.LineItems) > 0 && sub.LineItems[0].Plan != nil {
		ev.PlanID = shopify.LegacyID(strings.TrimSpace(sub.LineItems[0].Plan.ID))
	}

	var err error
	if ev.CreatedAt, err = parseTime("created_at", sub.CreatedAt); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = parseTime("updated_at", sub.UpdatedAt); err != nil {
		return nil, err
	}
	if ev.CurrentPeriodEnd, err = parseTime("current_period_end", sub.CurrentPeriodEnd); err != nil {
		return nil, err
	}
	return ev, nil
}

func parseTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	t = t.UTC()
	return &t, nil
}
