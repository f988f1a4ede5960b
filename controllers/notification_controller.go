package controllers

import (
	"net/http"

	apperrors "github.com/claudioc0/ecommerce0-sub001/common/errors"
	"github.com/claudioc0/ecommerce0-sub001/middleware"
	"github.com/claudioc0/ecommerce0-sub001/notifications"
	"github.com/gin-gonic/gin"
)

// NotificationFeed is the part of the notification center exposed over HTTP.
type NotificationFeed interface {
	List(f notifications.ListFilter) []notifications.Notification
	Get(id string) (notifications.Notification, bool)
	MarkAsRead(id string) bool
	MarkAllAsReadFor(recipient string)
	Dismiss(id string) bool
	UnreadCountFor(recipient string) int
}

// NotificationController serves the caller's own notifications. Admins see
// the whole feed, operator notifications included.
type NotificationController struct {
	feed NotificationFeed
}

func NewNotificationController(feed NotificationFeed) *NotificationController {
	return &NotificationController{feed: feed}
}

// recipient is the feed scope of the caller; "" for admins.
func recipient(ctx *gin.Context) string {
	if middleware.IsAdmin(ctx) {
		return ""
	}
	return middleware.GetUserID(ctx)
}

// owned loads the notification named by :id when the caller may see it.
// Notifications of other customers answer 404 like unknown ids.
func (nc *NotificationController) owned(ctx *gin.Context) (notifications.Notification, bool) {
	n, ok := nc.feed.Get(ctx.Param("id"))
	if !ok || !n.VisibleTo(recipient(ctx)) {
		apperrors.Respond(ctx, apperrors.ErrNotFound)
		return notifications.Notification{}, false
	}
	return n, true
}

// ListNotifications handles GET /notifications?type=&unread=true&dismissed=true&limit=.
func (nc *NotificationController) ListNotifications(ctx *gin.Context) {
	scope := recipient(ctx)
	filter := notifications.ListFilter{
		Recipient:        scope,
		Type:             ctx.Query("type"),
		UnreadOnly:       ctx.Query("unread") == "true",
		IncludeDismissed: ctx.Query("dismissed") == "true",
		Limit:            parseLimit(ctx),
	}
	list := nc.feed.List(filter)
	ctx.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"total":         len(list),
		"unread":        nc.feed.UnreadCountFor(scope),
	})
}

func (nc *NotificationController) GetNotification(ctx *gin.Context) {
	n, ok := nc.owned(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, n)
}

func (nc *NotificationController) UnreadCount(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"unread": nc.feed.UnreadCountFor(recipient(ctx))})
}

func (nc *NotificationController) MarkAsRead(ctx *gin.Context) {
	n, ok := nc.owned(ctx)
	if !ok {
		return
	}
	if !nc.feed.MarkAsRead(n.ID) {
		apperrors.Respond(ctx, apperrors.ErrNotFound)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

func (nc *NotificationController) MarkAllAsRead(ctx *gin.Context) {
	nc.feed.MarkAllAsReadFor(recipient(ctx))
	ctx.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read"})
}

func (nc *NotificationController) Dismiss(ctx *gin.Context) {
	n, ok := nc.owned(ctx)
	if !ok {
		return
	}
	if !nc.feed.Dismiss(n.ID) {
		apperrors.Respond(ctx, apperrors.ErrNotFound)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "notification dismissed"})
}
