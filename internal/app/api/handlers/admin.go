package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	"github.com/fatflowers/pcbuilder/internal/app/service/statistics"
	"github.com/fatflowers/pcbuilder/internal/app/service/subscription"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/response"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

type SubscriptionScanner interface {
	Scan(ctx context.Context, req *subscription.ScanRequest) (*subscription.ScanResult, error)
	Renewals(ctx context.Context, storeID string, limit int) ([]*models.SubscriptionRenewal, error)
}

type Statistics interface {
	GetSubscriptionStatistic(ctx context.Context, req *statistics.SubscriptionStatisticRequest) (*statistics.SubscriptionStatisticResponse, error)
}

type ListSubscriptionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type SubscriptionItem struct {
	*models.Subscription
	// Entitled is the row's effective state at request time.
	Entitled bool `json:"entitled"`
}

type ListSubscriptionsResponse struct {
	Items []*SubscriptionItem `json:"items"`
	Total int64               `json:"total"`
}

type RegisterMerchantRequest struct {
	Shop        string `json:"shop"`
	AccessToken string `json:"accessToken"`
	Scope       string `json:"scope"`
}

type RegisterMerchantResponse struct {
	Merchant  *models.Merchant `json:"merchant"`
	Installed bool             `json:"installed"`
}

// @Summary      List subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of subscription rows.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body ListSubscriptionsRequest true "filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListSubscriptions
// @Router       /api/v1/admin/list_subscriptions [post]
func ApiListSubscriptions(store SubscriptionScanner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListSubscriptionsRequest
		if !bindJSON(c, log, &req) {
			return
		}
		res, err := store.Scan(c.Request.Context(), &subscription.ScanRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		now := time.Now().UTC()
		items := lo.Map(res.Items, func(s *models.Subscription, _ int) *SubscriptionItem {
			return &SubscriptionItem{Subscription: s, Entitled: s.Entitled(now)}
		})
		c.JSON(http.StatusOK, response.OKT(&ListSubscriptionsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      List renewals (Admin)
// @Description  Lists the renewal audit, newest first.
// @Tags         Admin
// @Produce      json
// @Security     AdminToken
// @Param        store_id  query  string  false  "store gid"
// @Param        limit     query  int     false  "max rows (default 100, max 500)"
// @Success      200  {object}  handlers.RespRenewals
// @Router       /api/v1/admin/renewals [get]
func ApiListRenewals(store SubscriptionScanner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				fail(c, log, apperr.Newf(apperr.CodeInvalidInput, "invalid limit %q", raw))
				return
			}
			limit = n
		}
		out, err := store.Renewals(c.Request.Context(), strings.TrimSpace(c.Query("store_id")), limit)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(lo.Ternary(out == nil, []*models.SubscriptionRenewal{}, out)))
	}
}

// @Summary      Get subscription statistics (Admin)
// @Description  Computes the requested statistic series.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body statistics.SubscriptionStatisticRequest true "statistic request"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc Statistics, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.SubscriptionStatisticRequest
		if !bindJSON(c, log, &req) {
			return
		}
		res, err := svc.GetSubscriptionStatistic(c.Request.Context(), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Register merchant
// @Description  Stores the offline access token of a shop after OAuth and refreshes the merchant profile.
// @Tags         Merchants
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body RegisterMerchantRequest true "shop and offline token"
// @Success      200  {object}  handlers.RespRegisterMerchant
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/merchants/register [post]
func ApiRegisterMerchant(merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterMerchantRequest
		if !bindJSON(c, log, &req) {
			return
		}
		res, err := merchants.Register(c.Request.Context(), merchant.RegisterRequest{
			Shop: req.Shop, AccessToken: req.AccessToken, Scope: req.Scope,
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&RegisterMerchantResponse{Merchant: res.Merchant, Installed: res.Installed}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, store SubscriptionScanner, stats Statistics, log *zap.SugaredLogger) {
	r.POST("/list_subscriptions", ApiListSubscriptions(store, log))
	r.GET("/renewals", ApiListRenewals(store, log))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(stats, log))
}

func RegisterMerchantRoutes(r gin.IRouter, merchants Merchants, log *zap.SugaredLogger) {
	r.POST("/register", ApiRegisterMerchant(merchants, log))
}
