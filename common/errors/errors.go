package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same code and message, so wrapped sentinels
// compare equal with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of the sentinel carrying err as its cause.
func Wrap(sentinel *Error, err error) *Error {
	return New(sentinel.Code, sentinel.Message, err)
}

// Wrapf returns a copy of the sentinel carrying a formatted cause.
func Wrapf(sentinel *Error, format string, args ...any) *Error {
	return New(sentinel.Code, sentinel.Message, fmt.Errorf(format, args...))
}

// StatusCode returns the HTTP status for err, 500 for foreign errors.
func StatusCode(err error) int {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
	ErrTooManyRequests    = New(http.StatusTooManyRequests, "Rate limit exceeded", nil)
)

// Validation error types
var (
	ErrValidation    = New(http.StatusBadRequest, "Validation error", nil)
	ErrInvalidInput  = New(http.StatusBadRequest, "Invalid input", nil)
	ErrInvalidCoupon = New(http.StatusUnprocessableEntity, "Invalid coupon", nil)
	ErrInvalidStatus = New(http.StatusBadRequest, "Invalid order status", nil)
)

// Business logic error types
var (
	ErrEmptyCart        = New(http.StatusBadRequest, "Cart is empty", nil)
	ErrOrderNotFound    = New(http.StatusNotFound, "Order not found", nil)
	ErrRiskUnavailable  = New(http.StatusBadGateway, "Risk analysis unavailable", nil)
	ErrStorageFailure   = New(http.StatusInternalServerError, "Storage error", nil)
	ErrCouponNotFound   = New(http.StatusNotFound, "Coupon not found", nil)
	ErrCouponExists     = New(http.StatusConflict, "Coupon already exists", nil)
	ErrCatalogFailure   = New(http.StatusInternalServerError, "Coupon catalog error", nil)
	ErrProductNotInCart = New(http.StatusNotFound, "Product not in cart", nil)
)

// Respond writes err to the gin context as JSON.
func Respond(c *gin.Context, err error) {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		appErr = Wrap(ErrInternalServer, err)
	}

	body := gin.H{"error": appErr.Message}
	if appErr.Err != nil {
		body["details"] = appErr.Err.Error()
	}
	c.JSON(appErr.Code, body)
}

// ErrorMiddleware renders the last error attached to the gin context.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
			c.Abort()
		}
	}
}
