package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/internal/app/service/widget"
	"github.com/fatflowers/pcbuilder/internal/models"
	"github.com/fatflowers/pcbuilder/pkg/response"
)

type Widgets interface {
	List(ctx context.Context, storeID string) ([]*models.Widget, error)
	Get(ctx context.Context, storeID, id string) (*models.Widget, error)
	Create(ctx context.Context, storeID string, req widget.CreateRequest) (*models.Widget, error)
	Update(ctx context.Context, storeID, id string, req widget.UpdateRequest) (*models.Widget, error)
	SaveSteps(ctx context.Context, storeID, id string, req widget.SaveStepsRequest) (*models.Widget, error)
	Delete(ctx context.Context, storeID, id string) error
}

type widgetHandlers struct {
	widgets   Widgets
	merchants Merchants
	log       *zap.SugaredLogger
}

// @Summary      List widgets
// @Tags         Widgets
// @Produce      json
// @Security     SessionToken
// @Success      200  {object}  handlers.RespWidgets
// @Router       /api/v1/widgets [get]
func (h *widgetHandlers) list(c *gin.Context) {
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	out, err := h.widgets.List(c.Request.Context(), m.StoreID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if out == nil {
		out = []*models.Widget{}
	}
	c.JSON(http.StatusOK, response.OKT(out))
}

// @Summary      Get widget
// @Description  Returns the widget with its steps in display order.
// @Tags         Widgets
// @Produce      json
// @Security     SessionToken
// @Param        id   path  string  true  "widget id"
// @Success      200  {object}  handlers.RespWidget
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/widgets/{id} [get]
func (h *widgetHandlers) get(c *gin.Context) {
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	w, err := h.widgets.Get(c.Request.Context(), m.StoreID, c.Param("id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(w))
}

// @Summary      Create widget
// @Tags         Widgets
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body widget.CreateRequest true "widget"
// @Success      200  {object}  handlers.RespWidget
// @Failure      400  {object}  handlers.RespError
// @Router       /api/v1/widgets [post]
func (h *widgetHandlers) create(c *gin.Context) {
	var req widget.CreateRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	w, err := h.widgets.Create(c.Request.Context(), m.StoreID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(w))
}

// @Summary      Update widget
// @Description  Changes the name or status; omitted fields are kept.
// @Tags         Widgets
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id   path  string  true  "widget id"
// @Param        request body widget.UpdateRequest true "fields to change"
// @Success      200  {object}  handlers.RespWidget
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/widgets/{id} [patch]
func (h *widgetHandlers) update(c *gin.Context) {
	var req widget.UpdateRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	w, err := h.widgets.Update(c.Request.Context(), m.StoreID, c.Param("id"), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(w))
}

// @Summary      Save widget steps
// @Description  Replaces the ordered step list, optionally with the widget name and status, in one transaction.
// @Tags         Widgets
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id   path  string  true  "widget id"
// @Param        request body widget.SaveStepsRequest true "steps in display order"
// @Success      200  {object}  handlers.RespWidget
// @Failure      400  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/widgets/{id}/steps [put]
func (h *widgetHandlers) saveSteps(c *gin.Context) {
	var req widget.SaveStepsRequest
	if !bindJSON(c, h.log, &req) {
		return
	}
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	w, err := h.widgets.SaveSteps(c.Request.Context(), m.StoreID, c.Param("id"), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT(w))
}

// @Summary      Delete widget
// @Tags         Widgets
// @Produce      json
// @Security     SessionToken
// @Param        id   path  string  true  "widget id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/widgets/{id} [delete]
func (h *widgetHandlers) delete(c *gin.Context) {
	m, ok := currentMerchant(c, h.merchants, h.log)
	if !ok {
		return
	}
	if err := h.widgets.Delete(c.Request.Context(), m.StoreID, c.Param("id")); err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.OKT[any](nil))
}

func RegisterWidgetRoutes(r gin.IRouter, widgets Widgets, merchants Merchants, log *zap.SugaredLogger) {
	h := &widgetHandlers{widgets: widgets, merchants: merchants, log: log}
	r.GET("", h.list)
	r.POST("", h.create)
	r.GET("/:id", h.get)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", h.delete)
	r.PUT("/:id/steps", h.saveSteps)
}
