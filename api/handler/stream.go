package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/broadcast"
)

// keepAlive is the interval of SSE comment pings on idle streams.
const keepAlive = 15 * time.Second

// Stream returns a handler for GET /api/v1/stream: a server-sent event
// stream of capture and clear events, one subscription per client.
func Stream(hub *broadcast.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := hub.Subscribe()
		defer sub.Close()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Header("Content-Type", "text/event-stream")
		// Send headers now so clients see the stream open before any event.
		c.Status(http.StatusOK)
		c.Writer.Flush()

		ping := time.NewTicker(keepAlive)
		defer ping.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case ev, ok := <-sub.Events():
				if !ok {
					return false
				}
				c.SSEvent(ev.Type, ev)
				return true
			case <-ping.C:
				_, err := io.WriteString(w, ": ping\n\n")
				return err == nil
			}
		})
	}
}
