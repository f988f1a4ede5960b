package controllers

import (
	"strconv"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/gin-gonic/gin"
)

const (
	maxPageSize     = 100
	defaultPage     = 1
	defaultPageSize = 20
)

func parsePaginationParams(ctx *gin.Context) (int, int) {
	page := defaultPage
	pageSize := defaultPageSize

	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("page_size", "20")); err == nil && l > 0 {
		pageSize = l
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize
}

func parseLimit(ctx *gin.Context) int {
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 {
		return l
	}
	return 0
}

func badRequest(ctx *gin.Context, err error) {
	apperrors.Respond(ctx, apperrors.Wrap(apperrors.ErrInvalidInput, err))
}
