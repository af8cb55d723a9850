package chat

import (
	"net/http"
	"strconv"
	"strings"

	"ChatPipe/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewRouter exposes the websocket delivery endpoint and the metrics page.
// Authentication is handled upstream and is out of scope here.
func NewRouter(mgr *ConnManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", zap.Error(err))
			return
		}

		cl := NewClient(uuid.NewString(), userID, conn)
		mgr.Add(cl)
		for _, s := range strings.Split(c.Query("channels"), ",") {
			if ch, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && ch > 0 {
				mgr.Subscribe(cl.ID, ch)
			}
		}

		go cl.WritePump()
		go cl.ReadPump(func() { mgr.Remove(cl.ID) })
	})

	return r
}
