package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/merchant"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/apperr"
	"github.com/fatflowers/pcbuilder/pkg/logctx"
	"github.com/fatflowers/pcbuilder/pkg/response"
	"github.com/fatflowers/pcbuilder/pkg/types"
)

// Merchants resolves the store behind an authenticated shop.
type Merchants interface {
	GetByDomain(ctx context.Context, domain string) (*models.Merchant, error)
	Register(ctx context.Context, req merchant.RegisterRequest) (*merchant.RegisterResult, error)
}

// fail writes err in the response envelope. Internal failures are logged
// with their cause since the client only sees a generic message.
func fail(c *gin.Context, log *zap.SugaredLogger, err error) {
	status, body := response.FromError(err)
	if status >= http.StatusInternalServerError {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, log *zap.SugaredLogger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, log, apperr.Wrap(apperr.CodeInvalidInput, err, "malformed request body"))
		return false
	}
	return true
}

// currentMerchant loads the installed merchant of the session shop.
func currentMerchant(c *gin.Context, merchants Merchants, log *zap.SugaredLogger) (*models.Merchant, bool) {
	shop := c.GetString(logctx.GinKeyShop)
	if shop == "" {
		fail(c, log, apperr.New(apperr.CodeUnauthorized, "missing shop session"))
		return nil, false
	}
	m, err := merchants.GetByDomain(c.Request.Context(), shop)
	if err != nil {
		fail(c, log, err)
		return nil, false
	}
	if m.Status != types.MerchantStatusActive {
		fail(c, log, apperr.Newf(apperr.CodeUnauthorized, "shop %s is not installed", shop))
		return nil, false
	}
	return m, true
}

// ownStore rejects a storeId in the body that is not the session's store.
func ownStore(c *gin.Context, m *models.Merchant, storeID string, log *zap.SugaredLogger) bool {
	if storeID != "" && storeID != m.StoreID {
		fail(c, log, apperr.New(apperr.CodeUnauthorized, "store does not belong to this session"))
		return false
	}
	return true
}
