package apiserver

import (
	"net/http"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The frontend is served from a different origin in development;
	// the API carries no credentials worth CSRF-protecting.
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// websocket upgrades the connection, registers it with the fan-out
// (which pre-loads the initial status snapshot), and pumps frames
// until either side closes. A write failure just ends this client's
// pump; cleanup happens on the way out.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id, ch := s.fanout.Register()
	logger.L().Info("websocket client connected", zap.String("client_id", id))

	// Writer pump: the client's private queue to the socket.
	go func() {
		for msg := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				logger.L().Debug("websocket write failed", zap.String("client_id", id), zap.Error(err))
				return
			}
		}
	}()

	// Reader pump: we ignore inbound frames; a read error is the
	// disconnect signal that triggers cleanup.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.fanout.Unregister(id)
	_ = conn.Close()
	logger.L().Info("websocket client disconnected", zap.String("client_id", id))
}
