package routes

import (
	"net/http"

	"github.com/claudioc0/ecommerce0-sub001/controllers"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/gin-gonic/gin"
)

// Controllers groups every HTTP handler set the router mounts.
type Controllers struct {
	Cart          *controllers.CartController
	Checkout      *controllers.CheckoutController
	Orders        *controllers.OrderController
	Coupons       *controllers.CouponController
	Notifications *controllers.NotificationController
	Events        *controllers.EventController
	Deliveries    *controllers.DeliveryController
}

// RegisterRoutes mounts the public, customer and admin groups. checkoutLimit
// is applied to POST /checkout only; nil disables it.
func RegisterRoutes(router *gin.Engine, c Controllers, checkoutLimit gin.HandlerFunc) {
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "OK", "service": "checkout-service"})
	})

	router.GET("/coupons/:code", c.Coupons.GetCoupon)

	auth := router.Group("/", middleware.AuthMiddleware())

	cart := auth.Group("/cart")
	{
		cart.GET("", c.Cart.GetCart)
		cart.DELETE("", c.Cart.ClearCart)
		cart.GET("/totals", c.Cart.GetTotals)
		cart.POST("/items", c.Cart.AddItem)
		cart.PUT("/items", c.Cart.UpdateItem)
		cart.DELETE("/items/:product_id", c.Cart.RemoveItem)
		cart.POST("/coupon", c.Cart.ApplyCoupon)
		cart.DELETE("/coupon", c.Cart.RemoveCoupon)
	}

	checkout := []gin.HandlerFunc{c.Checkout.Checkout}
	if checkoutLimit != nil {
		checkout = append([]gin.HandlerFunc{checkoutLimit}, checkout...)
	}
	auth.POST("/checkout", checkout...)

	orders := auth.Group("/orders")
	{
		orders.GET("", c.Orders.ListMyOrders)
		orders.GET("/:id", c.Orders.GetOrder)
	}

	notifications := auth.Group("/notifications")
	{
		notifications.GET("", c.Notifications.ListNotifications)
		notifications.GET("/unread-count", c.Notifications.UnreadCount)
		notifications.PATCH("/read-all", c.Notifications.MarkAllAsRead)
		notifications.GET("/:id", c.Notifications.GetNotification)
		notifications.PATCH("/:id/read", c.Notifications.MarkAsRead)
		notifications.DELETE("/:id", c.Notifications.Dismiss)
	}

	admin := auth.Group("/admin", middleware.AdminOnly())
	{
		admin.GET("/orders", c.Orders.ListOrders)
		admin.PATCH("/orders/:id/status", c.Orders.UpdateStatus)
		admin.POST("/orders/:id/cancel", c.Orders.CancelOrder)

		admin.GET("/coupons", c.Coupons.ListCoupons)
		admin.POST("/coupons", c.Coupons.CreateCoupon)

		admin.GET("/events", c.Events.GetHistory)
		admin.GET("/events/listeners", c.Events.GetListeners)

		admin.GET("/deliveries", c.Deliveries.GetDeliveryLogs)
	}
}
