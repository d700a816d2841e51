package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/fatflowers/pcbuilder/internal/app/service/notification_handler"
	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/response"
)

// maxWebhookBody bounds the payload read before the HMAC check.
const maxWebhookBody = 1 << 20

type Notifications interface {
	HandleNotification(ctx context.Context, d nh.Delivery) (nh.Result, error)
}

type webhookResp struct {
	Duplicate bool   `json:"duplicate,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// @Summary      Shopify webhook
// @Description  Receives app_subscriptions/update and app/uninstalled deliveries. The body is verified against X-Shopify-Hmac-Sha256.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        X-Shopify-Hmac-Sha256  header  string  true  "base64 HMAC-SHA256 of the body"
// @Param        X-Shopify-Topic        header  string  true  "webhook topic"
// @Param        X-Shopify-Webhook-Id   header  string  true  "delivery id"
// @Param        payload body object true "webhook payload"
// @Success      200  {object}  handlers.RespOK
// @Failure      401  {object}  handlers.RespError
// @Failure      500  {object}  handlers.RespError
// @Router       /webhooks/shopify [post]
func ApiShopifyWebhook(h Notifications, secret string, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil {
			fail(c, log, apperr.Wrap(apperr.CodeInvalidInput, err, "failed to read webhook body"))
			return
		}
		if len(body) > maxWebhookBody {
			fail(c, log, apperr.New(apperr.CodeInvalidInput, "webhook body too large"))
			return
		}
		if !shopify.VerifyWebhook(body, secret, c.GetHeader(shopify.HeaderHmac)) {
			logctx.FromGin(c, log).Warnw("webhook_hmac_rejected", "topic", c.GetHeader(shopify.HeaderTopic))
			fail(c, log, apperr.New(apperr.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		d := nh.Delivery{
			WebhookID: c.GetHeader(shopify.HeaderWebhookID),
			Topic:     c.GetHeader(shopify.HeaderTopic),
			Shop:      c.GetHeader(shopify.HeaderShopDomain),
			Body:      body,
		}
		ctx := c.Request.Context()
		if d.Shop != "" {
			ctx = logctx.WithShop(ctx, d.Shop)
		}
		res, err := h.HandleNotification(ctx, d)
		if err != nil {
			fail(c, log, err)
			return
		}
		logctx.FromGin(c, log).Infow("webhook_handled", "topic", d.Topic, "duplicate", res.Duplicate, "outcome", res.Outcome)
		c.JSON(http.StatusOK, response.OKT(webhookResp{Duplicate: res.Duplicate, Outcome: string(res.Outcome)}))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, h Notifications, secret string, log *zap.SugaredLogger) {
	r.POST("/shopify", ApiShopifyWebhook(h, secret, log))
}
