package controllers

import (
	"net/http"

	"github.com/claudioc0/ecommerce0-sub001/eventbus"
	"github.com/gin-gonic/gin"
)

// EventLog is the read side of the event bus.
type EventLog interface {
	History(eventType string, limit int) []eventbus.Event
	EventTypes() []string
	ListenerCount(eventType string) int
}

type EventController struct {
	events EventLog
}

func NewEventController(events EventLog) *EventController {
	return &EventController{events: events}
}

// GetHistory handles GET /admin/events?type=&limit=.
func (ec *EventController) GetHistory(ctx *gin.Context) {
	history := ec.events.History(ctx.Query("type"), parseLimit(ctx))
	ctx.JSON(http.StatusOK, gin.H{"events": history, "total": len(history)})
}

// GetListeners handles GET /admin/events/listeners.
func (ec *EventController) GetListeners(ctx *gin.Context) {
	counts := make(map[string]int)
	for _, t := range ec.events.EventTypes() {
		counts[t] = ec.events.ListenerCount(t)
	}
	ctx.JSON(http.StatusOK, gin.H{"listeners": counts})
}
