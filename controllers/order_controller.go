package controllers

import (
	"net/http"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderController struct {
	lifecycle services.OrderLifecycle
	logger    *zap.Logger
}

func NewOrderController(lifecycle services.OrderLifecycle, logger *zap.Logger) *OrderController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderController{lifecycle: lifecycle, logger: logger}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// ListOrders handles GET /admin/orders.
func (oc *OrderController) ListOrders(ctx *gin.Context) {
	orders, err := oc.lifecycle.List(ctx.Request.Context())
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

// ListMyOrders handles GET /orders for the calling customer.
func (oc *OrderController) ListMyOrders(ctx *gin.Context) {
	orders, err := oc.lifecycle.ListByCustomer(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

// GetOrder handles GET /orders/:id. Customers only see their own orders.
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	order, err := oc.lifecycle.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	if !middleware.IsAdmin(ctx) && order.Customer.ID != middleware.GetUserID(ctx) {
		apperrors.Respond(ctx, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", ctx.Param("id")))
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// UpdateStatus handles PATCH /admin/orders/:id/status.
func (oc *OrderController) UpdateStatus(ctx *gin.Context) {
	var req models.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	order, err := oc.lifecycle.UpdateStatus(ctx.Request.Context(), ctx.Param("id"), req.Status, req.Description)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// CancelOrder handles POST /admin/orders/:id/cancel.
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	var req cancelOrderRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}

	order, err := oc.lifecycle.Cancel(ctx.Request.Context(), ctx.Param("id"), req.Reason)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	oc.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("by", middleware.GetUserID(ctx)),
	)
	ctx.JSON(http.StatusOK, order)
}
