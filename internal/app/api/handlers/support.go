package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/asset"
	"github.com/fatflowers/pcbuilder/internal/app/service/support"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/response"
)

type SupportDesk interface {
	Submit(ctx context.Context, storeID, storeName string, req support.SubmitRequest) (*models.SupportRequest, error)
}

type Uploader interface {
	Upload(ctx context.Context, shopDomain string, req asset.UploadRequest) (*asset.UploadResult, error)
}

// @Summary      Submit support request
// @Description  Stores a feature request, support question or bug report and forwards it to the support inbox.
// @Tags         Support
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body support.SubmitRequest true "support request"
// @Success      200  {object}  handlers.RespSupportRequest
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/support_requests [post]
func ApiSubmitSupportRequest(desk SupportDesk, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req support.SubmitRequest
		if !bindJSON(c, log, &req) {
			return
		}
		m, ok := currentMerchant(c, merchants, log)
		if !ok {
			return
		}
		out, err := desk.Submit(c.Request.Context(), m.StoreID, m.StoreName, req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Upload images
// @Description  Uploads base64 images to the shop's Files and waits for their preview URLs. delete=true clears the staged uploads instead.
// @Tags         Uploads
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body asset.UploadRequest true "files"
// @Success      200  {object}  handlers.RespUpload
// @Failure      400  {object}  handlers.RespError
// @Failure      500  {object}  handlers.RespError
// @Router       /api/v1/uploads [post]
func ApiUpload(uploader Uploader, merchants Merchants, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req asset.UploadRequest
		if !bindJSON(c, log, &req) {
			return
		}
		m, ok := currentMerchant(c, merchants, log)
		if !ok {
			return
		}
		res, err := uploader.Upload(c.Request.Context(), m.Domain, req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterSupportRoutes(r gin.IRouter, desk SupportDesk, uploader Uploader, merchants Merchants, log *zap.SugaredLogger) {
	r.POST("/support_requests", ApiSubmitSupportRequest(desk, merchants, log))
	r.POST("/uploads", ApiUpload(uploader, merchants, log))
}
