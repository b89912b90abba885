package handler

import (
	"log/slog"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"autodev.dev/orchestrator/internal/events"
)

// JobEventsHandler relays the job-events Redis channel to WebSocket
// clients, the transport-swapped counterpart of the teacher's SSE-over-XRead
// status stream: same "subscribe, relay frames until the client goes away"
// shape, a Pub/Sub channel and a real WebSocket connection in place of a
// consumer-group stream and Server-Sent Events.
type JobEventsHandler struct {
	bus *events.Bus
}

func NewJobEventsHandler(bus *events.Bus) *JobEventsHandler {
	return &JobEventsHandler{bus: bus}
}

func (h *JobEventsHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "accepting websocket connection", "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	// This connection only ever writes; CloseRead drains and discards
	// whatever the client sends (pings, an eventual close frame) and
	// cancels readCtx when the connection ends.
	readCtx := conn.CloseRead(ctx)

	frames, closeSub := h.bus.Subscribe(readCtx)
	defer closeSub() //nolint:errcheck

	for {
		select {
		case <-readCtx.Done():
			return
		case payload, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.Write(readCtx, websocket.MessageText, []byte(payload)); err != nil {
				slog.WarnContext(ctx, "writing websocket frame", "error", err)
				return
			}
		}
	}
}
