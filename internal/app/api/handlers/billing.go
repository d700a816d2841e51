package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/response"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

type Billing interface {
	RequestPlanChange(ctx context.Context, req subscription.PlanChangeRequest) (*subscription.PlanChangeResult, error)
	CancelActiveSubscription(ctx context.Context, storeID, chargeID string) (*subscription.CancelResult, error)
	View(ctx context.Context, storeID string) (*types.SubscriptionView, error)
}

type Plans interface {
	List(ctx context.Context) ([]*models.Pricing, error)
}

type SetSubscriptionRequest struct {
	PlanName  string          `json:"planName"`
	PlanPrice decimal.Decimal `json:"planPrice" swaggertype:"number"`
	PricingID string          `json:"pricingId"`
	StoreID   string          `json:"storeId"`
}

type SetSubscriptionResponse struct {
	// ConfirmationURL is empty when the store moved to the free plan.
	ConfirmationURL string `json:"confirmationUrl"`
	Outcome         string `json:"outcome"`
}

type CancelSubscriptionRequest struct {
	StoreID              string `json:"storeId"`
	SubscriptionChargeID string `json:"subscriptionChargeId"`
}

type CancelSubscriptionResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
}

type PricingPageResponse struct {
	Plans        []*models.Pricing       `json:"plans"`
	Merchant     *models.Merchant        `json:"merchant"`
	Subscription *types.SubscriptionView `json:"subscription"`
}

type PlanDetailsResponse struct {
	Success bool `json:"success"`
}

// @Summary      Change plan
// @Description  Starts a Shopify charge for a paid plan and returns the confirmation URL, or downgrades to the free plan.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body SetSubscriptionRequest true "plan change"
// @Success      200  {object}  handlers.RespSetSubscription
// @Failure      400  {object}  handlers.RespError
// @Failure      401  {object}  handlers.RespError
// @Failure      500  {object}  handlers.RespError
// @Router       /api/v1/billing/subscription [post]
func ApiSetSubscription(billing Billing, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetSubscriptionRequest
		if !bindJSON(c, log, &req) {
			return
		}
		m, ok := currentMerchant(c, merchants, log)
		if !ok || !ownStore(c, m, req.StoreID, log) {
			return
		}
		res, err := billing.RequestPlanChange(c.Request.Context(), subscription.PlanChangeRequest{
			StoreID:   m.StoreID,
			PlanID:    req.PricingID,
			PlanName:  req.PlanName,
			PlanPrice: req.PlanPrice,
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(SetSubscriptionResponse{ConfirmationURL: res.ConfirmationURL, Outcome: string(res.Outcome)}))
	}
}

// @Summary      Cancel subscription
// @Description  Cancels the active charge of the store. success is false when nothing was active.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body CancelSubscriptionRequest true "cancel request"
// @Success      200  {object}  handlers.RespCancelSubscription
// @Failure      401  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/billing/subscription/cancel [post]
func ApiCancelSubscription(billing Billing, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelSubscriptionRequest
		if !bindJSON(c, log, &req) {
			return
		}
		m, ok := currentMerchant(c, merchants, log)
		if !ok || !ownStore(c, m, req.StoreID, log) {
			return
		}
		res, err := billing.CancelActiveSubscription(c.Request.Context(), m.StoreID, req.SubscriptionChargeID)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(CancelSubscriptionResponse{Success: res.Cancelled, Status: string(res.Status)}))
	}
}

// @Summary      Pricing page
// @Description  Lists the plans with the merchant and its current subscription. Stores without an entitled subscription report the FREE plan.
// @Tags         Billing
// @Produce      json
// @Security     SessionToken
// @Success      200  {object}  handlers.RespPricingPage
// @Router       /api/v1/billing/pricing [get]
func ApiPricingPage(billing Billing, plans Plans, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := currentMerchant(c, merchants, log)
		if !ok {
			return
		}
		list, err := plans.List(c.Request.Context())
		if err != nil {
			fail(c, log, err)
			return
		}
		view, err := billing.View(c.Request.Context(), m.StoreID)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(PricingPageResponse{Plans: list, Merchant: m, Subscription: view}))
	}
}

// @Summary      Plan details
// @Description  Reports whether the store is on a paid plan.
// @Tags         Billing
// @Produce      json
// @Security     SessionToken
// @Success      200  {object}  handlers.RespPlanDetails
// @Router       /api/v1/billing/plan_details [get]
func ApiPlanDetails(billing Billing, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := currentMerchant(c, merchants, log)
		if !ok {
			return
		}
		view, err := billing.View(c.Request.Context(), m.StoreID)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(PlanDetailsResponse{Success: view.PlanID != types.FreePlanID}))
	}
}

func RegisterBillingRoutes(r gin.IRouter, billing Billing, plans Plans, merchants Merchants, log *zap.SugaredLogger) {
	r.POST("/subscription", ApiSetSubscription(billing, merchants, log))
	r.POST("/subscription/cancel", ApiCancelSubscription(billing, merchants, log))
	r.GET("/pricing", ApiPricingPage(billing, plans, merchants, log))
	r.GET("/plan_details", ApiPlanDetails(billing, merchants, log))
}
