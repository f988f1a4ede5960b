package controllers

import (
	"math"
	"net/http"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/claudioc0/ecommerce0-sub001/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeliveryController serves the email/SMS delivery log.
type DeliveryController struct {
	repo   repository.DeliveryRepository
	logger *zap.Logger
}

func NewDeliveryController(repo repository.DeliveryRepository, logger *zap.Logger) *DeliveryController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryController{repo: repo, logger: logger}
}

// GetDeliveryLogs handles GET /admin/deliveries?order_id=&channel=&status=&page=&page_size=.
func (dc *DeliveryController) GetDeliveryLogs(ctx *gin.Context) {
	page, pageSize := parsePaginationParams(ctx)

	filter := models.DeliveryFilter{
		OrderID:  ctx.Query("order_id"),
		Channel:  ctx.Query("channel"),
		Status:   ctx.Query("status"),
		Page:     page,
		PageSize: pageSize,
	}

	logs, total, err := dc.repo.GetLogs(ctx.Request.Context(), filter)
	if err != nil {
		dc.logger.Error("failed to get delivery logs",
			zap.Error(err),
			zap.String("requested_by", middleware.GetUserID(ctx)),
		)
		apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrStorageFailure, err))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data":        logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": int(math.Ceil(float64(total) / float64(pageSize))),
	})
}
