package handler

import (
	"fmt"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/routing"
	"github.com/gin-gonic/gin"
)

// SSEHandler streams request updates
type SSEHandler struct {
	hub       *events.Hub
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(hub *events.Hub) *SSEHandler {
	return &SSEHandler{hub: hub, heartbeat: 30 * time.Second}
}

// Stream handles the SSE endpoint
// GET /api/v1/{scope}/requests/events
func (h *SSEHandler) Stream(c *gin.Context) {
	caller, _ := GetIdentity(c)
	clientID := fmt.Sprintf("%s_%d", caller.UserID, time.Now().UnixNano())

	client := &events.Client{
		ID:     clientID,
		UserID: caller.UserID,
		// the admin stream sees every request, the user stream only the caller's
		Elevated: caller.Elevated() && routeScope(c) == routing.ScopeElevated,
		Messages: make(chan events.Message, 64),
	}

	h.hub.Register(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteString("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			h.hub.Unregister(clientID)
			return
		case msg, ok := <-client.Messages:
			if !ok {
				return
			}
			c.Writer.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", msg.EventType, msg.Data))
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
