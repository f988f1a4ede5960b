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

type CartController struct {
	cartService services.CartService
	logger      *zap.Logger
}

func NewCartController(svc services.CartService, logger *zap.Logger) *CartController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartController{cartService: svc, logger: logger}
}

// GetCart returns the caller's cart, empty if none was stored.
func (cc *CartController) GetCart(ctx *gin.Context) {
	cart, err := cc.cartService.Get(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// AddItem handles POST /cart/items.
func (cc *CartController) AddItem(ctx *gin.Context) {
	var req models.AddItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	cart, err := cc.cartService.AddItem(ctx.Request.Context(), middleware.GetUserID(ctx), req)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// UpdateItem handles PUT /cart/items. A quantity of zero removes the line.
func (cc *CartController) UpdateItem(ctx *gin.Context) {
	var req models.UpdateItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	cart, err := cc.cartService.UpdateItem(ctx.Request.Context(), middleware.GetUserID(ctx), req)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

// RemoveItem handles DELETE /cart/items/:product_id?size=&color=.
func (cc *CartController) RemoveItem(ctx *gin.Context) {
	variant := models.Variant{Size: ctx.Query("size"), Color: ctx.Query("color")}

	cart, err := cc.cartService.RemoveItem(ctx.Request.Context(), middleware.GetUserID(ctx), ctx.Param("product_id"), variant)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

func (cc *CartController) ClearCart(ctx *gin.Context) {
	if err := cc.cartService.Clear(ctx.Request.Context(), middleware.GetUserID(ctx)); err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}

// ApplyCoupon handles POST /cart/coupon.
func (cc *CartController) ApplyCoupon(ctx *gin.Context) {
	var req models.ApplyCouponRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	resp, err := cc.cartService.ApplyCoupon(ctx.Request.Context(), middleware.GetUserID(ctx), req.Code)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (cc *CartController) RemoveCoupon(ctx *gin.Context) {
	cart, err := cc.cartService.RemoveCoupon(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cart)
}

func (cc *CartController) GetTotals(ctx *gin.Context) {
	totals, err := cc.cartService.Totals(ctx.Request.Context(), middleware.GetUserID(ctx))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, totals)
}
