package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"buybox/internal/models"
	"buybox/internal/notify"
)

// LiveHandler streams Buy Box changes, insights and pass summaries to
// dashboard clients over a websocket.
type LiveHandler struct {
	Hub            *notify.Hub
	Logger         *zap.Logger
	OriginPatterns []string
}

func (h *LiveHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/live", h.live)
}

// @Summary Live event stream (websocket)
// @Tags live
// @Param min_priority query string false "drop events below this priority"
// @Router /api/v1/live [get]
func (h *LiveHandler) live(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusServiceUnavailable, "live stream disabled", nil)
		return
	}
	minRank := priorityRank(strings.ToLower(strings.TrimSpace(c.Query("min_priority"))))

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logger().Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.Hub.Subscribe(64)
	defer cancel()

	// Clients never send; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(c.Request.Context())
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			pingCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			done()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "hub closed")
				return
			}
			if priorityRank(ev.Priority) < minRank {
				continue
			}
			writeCtx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			done()
			if err != nil {
				h.logger().Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func priorityRank(p string) int {
	switch p {
	case models.PriorityCritical:
		return 4
	case models.PriorityHigh:
		return 3
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 1
	default:
		return 0
	}
}

func (h *LiveHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
