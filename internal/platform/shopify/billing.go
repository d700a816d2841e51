package shopify

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

// CreateChargeRequest describes a recurring app charge.
type CreateChargeRequest struct {
	Name      string
	ReturnURL string
	Amount    decimal.Decimal
	Currency  string
	Interval  types.PlanInterval
	TrialDays int
	Test      bool
}

// Charge is the gateway view of an app subscription.
type Charge struct {
	// ID is the numeric tail of GID.
	ID              string
	GID             string
	Status          types.BillingStatus
	ConfirmationURL string
}

const appSubscriptionCreateMutation = `
mutation AppSubscriptionCreate($name: String!, $lineItems: [AppSubscriptionLineItemInput!]!, $returnUrl: URL!, $test: Boolean!, $trialDays: Int) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, lineItems: $lineItems, test: $test, trialDays: $trialDays) {
    userErrors { field message }
    appSubscription { id status }
    confirmationUrl
  }
}`

const appSubscriptionCancelMutation = `
mutation AppSubscriptionCancel($id: ID!, $prorate: Boolean) {
  appSubscriptionCancel(id: $id, prorate: $prorate) {
    userErrors { field message }
    appSubscription { id status }
  }
}`

type appSubscription struct {
	ID     string              `json:"id"`
	Status types.BillingStatus `json:"status"`
}

type createChargeData struct {
	AppSubscriptionCreate *struct {
		UserErrors      []UserError      `json:"userErrors"`
		AppSubscription *appSubscription `json:"appSubscription"`
		ConfirmationURL string           `json:"confirmationUrl"`
	} `json:"appSubscriptionCreate"`
}

type cancelChargeData struct {
	AppSubscriptionCancel *struct {
		UserErrors      []UserError      `json:"userErrors"`
		AppSubscription *appSubscription `json:"appSubscription"`
	} `json:"appSubscriptionCancel"`
}

// CreateCharge issues appSubscriptionCreate. User errors come back as
// BILLING_REJECTED; everything else that goes wrong is GATEWAY_UNAVAILABLE.
func (c *Client) CreateCharge(ctx context.Context, shop Shop, req CreateChargeRequest) (*Charge, error) {
	vars := map[string]any{
		"name":      req.Name,
		"returnUrl": req.ReturnURL,
		"test":      req.Test,
		"lineItems": []map[string]any{{
			"plan": map[string]any{
				"appRecurringPricingDetails": map[string]any{
					"price": map[string]any{
						"amount":       req.Amount.StringFixed(2),
						"currencyCode": req.Currency,
					},
					"interval": string(req.Interval),
				},
			},
		}},
	}
	if req.TrialDays > 0 {
		vars["trialDays"] = req.TrialDays
	}

	data, err := PostGraphQL[createChargeData](ctx, c, shop, "appSubscriptionCreate", appSubscriptionCreateMutation, vars)
	if err != nil {
		return nil, err
	}
	res := data.AppSubscriptionCreate
	if res == nil {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("empty appSubscriptionCreate payload"), "shopify appSubscriptionCreate failed")
	}
	if len(res.UserErrors) > 0 {
		return nil, apperr.Rejected("billing gateway rejected the charge", toFieldErrors(res.UserErrors))
	}
	if res.AppSubscription == nil || res.AppSubscription.ID == "" {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("missing appSubscription id"), "shopify appSubscriptionCreate failed")
	}
	return &Charge{
		ID:              LegacyID(res.AppSubscription.ID),
		GID:             res.AppSubscription.ID,
		Status:          res.AppSubscription.Status,
		ConfirmationURL: res.ConfirmationURL,
	}, nil
}

// CancelCharge issues appSubscriptionCancel with proration.
func (c *Client) CancelCharge(ctx context.Context, shop Shop, chargeID string) (*Charge, error) {
	vars := map[string]any{
		"id":      AppSubscriptionGID(chargeID),
		"prorate": true,
	}
	data, err := PostGraphQL[cancelChargeData](ctx, c, shop, "appSubscriptionCancel", appSubscriptionCancelMutation, vars)
	if err != nil {
		return nil, err
	}
	res := data.AppSubscriptionCancel
	if res == nil {
		return nil, apperr.Wrap(apperr.CodeGatewayUnavailable, errors.New("empty appSubscriptionCancel payload"), "shopify appSubscriptionCancel failed")
	}
	if len(res.UserErrors) > 0 {
		return nil, apperr.Rejected("billing gateway rejected the cancellation", toFieldErrors(res.UserErrors))
	}
	out := &Charge{ID: LegacyID(chargeID), GID: AppSubscriptionGID(chargeID), Status: types.BillingStatusCancelled}
	if res.AppSubscription != nil {
		out.Status = res.AppSubscription.Status
	}
	return out, nil
}
