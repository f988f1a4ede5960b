package controllers

import (
	"net/http"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/common/logger"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutController struct {
	checkoutService services.CheckoutService
	logger          *zap.Logger
}

func NewCheckoutController(svc services.CheckoutService, logger *zap.Logger) *CheckoutController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutController{checkoutService: svc, logger: logger}
}

// Checkout handles POST /checkout. A placed order answers 201; a risk
// rejection answers 200 with status "rejected" and no order.
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	var req models.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	userID := middleware.GetUserID(ctx)
	result, err := cc.checkoutService.Checkout(ctx.Request.Context(), userID, req)
	if err != nil {
		logger.For(ctx.Request.Context(), cc.logger).Warn("Checkout failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		apperrors.Respond(ctx, err)
		return
	}

	status := http.StatusOK
	if result.Status == services.CheckoutPlaced {
		status = http.StatusCreated
	}
	ctx.JSON(status, result)
}
