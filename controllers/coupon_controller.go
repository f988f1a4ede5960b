package controllers

import (
	"errors"
	"net/http"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// CouponController exposes the coupon catalog.
type CouponController struct {
	coupons repository.CouponRepository
	logger  *zap.Logger
}

func NewCouponController(coupons repository.CouponRepository, logger *zap.Logger) *CouponController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponController{coupons: coupons, logger: logger}
}

// CreateCoupon handles POST /admin/coupons.
func (cc *CouponController) CreateCoupon(ctx *gin.Context) {
	var req models.CreateCouponRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := validateCouponValue(req); err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	_, err := cc.coupons.FindByCode(ctx.Request.Context(), req.Code)
	switch {
	case err == nil:
		apperrors.Respond(ctx, apperrors.Wrapf(apperrors.ErrCouponExists, "code %s", models.NormalizeCouponCode(req.Code)))
		return
	case !errors.Is(err, repository.ErrCouponNotFound):
		apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrCatalogFailure, err))
		return
	}

	coupon := &models.Coupon{
		Code:       req.Code,
		Type:       req.Type,
		Value:      req.Value,
		ExpiresAt:  req.ExpiresAt,
		UsageLimit: req.UsageLimit,
	}
	if err := cc.coupons.Create(ctx.Request.Context(), coupon); err != nil {
		cc.logger.Error("Failed to create coupon", zap.String("code", req.Code), zap.Error(err))
		apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrCatalogFailure, err))
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

// GetCoupon handles GET /coupons/:code.
func (cc *CouponController) GetCoupon(ctx *gin.Context) {
	coupon, err := cc.coupons.FindByCode(ctx.Request.Context(), ctx.Param("code"))
	if errors.Is(err, repository.ErrCouponNotFound) {
		apperrors.Respond(ctx, apperrors.ErrCouponNotFound)
		return
	}
	if err != nil {
		apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrCatalogFailure, err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

// ListCoupons handles GET /admin/coupons.
func (cc *CouponController) ListCoupons(ctx *gin.Context) {
	coupons, err := cc.coupons.FindAll(ctx.Request.Context())
	if err != nil {
		apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrCatalogFailure, err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"coupons": coupons, "total": len(coupons)})
}

func validateCouponValue(req models.CreateCouponRequest) error {
	switch req.Type {
	case models.CouponTypePercentage:
		if !req.Value.IsPositive() || req.Value.GreaterThan(hundred) {
			return apperrors.Wrapf(apperrors.ErrValidation, "percentage must be within (0, 100]")
		}
	case models.CouponTypeFixed:
		if !req.Value.IsPositive() {
			return apperrors.Wrapf(apperrors.ErrValidation, "fixed amount must be positive")
		}
	}
	return nil
}
