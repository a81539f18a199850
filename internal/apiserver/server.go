// Package apiserver is the thin HTTP/WebSocket glue over the task
// runtime: gin routes mapping onto the task manager, TX processor, AI
// registry, and client fan-out.
package apiserver

import (
	"net/http"

	"github.com/VK7KSM/ElfRadio/internal/bus"
	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/VK7KSM/ElfRadio/internal/fanout"
	"github.com/VK7KSM/ElfRadio/internal/store"
	"github.com/VK7KSM/ElfRadio/internal/task"
	"github.com/VK7KSM/ElfRadio/internal/txqueue"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server bundles the runtime components the HTTP surface drives.
type Server struct {
	engine  *gin.Engine
	state   *elfradio.AppState
	store   *store.Store
	bus     *bus.Bus
	fanout  *fanout.Broadcaster
	tasks   *task.Manager
	tx      *txqueue.Processor
	metrics *metrics
}

// New builds the router. st may be nil (degraded mode: export and
// task-row lookups return 404/503 accordingly).
func New(state *elfradio.AppState, st *store.Store, b *bus.Bus, f *fanout.Broadcaster, tm *task.Manager, tx *txqueue.Processor) *Server {
	s := &Server{
		state:   state,
		store:   st,
		bus:     b,
		fanout:  f,
		tasks:   tm,
		tx:      tx,
		metrics: newMetrics(state),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(s.metrics.middleware())

	r.GET("/api/health", s.health)
	r.GET("/ws", s.websocket)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.POST("/start_task", s.startTask)
		api.POST("/stop_task", s.stopTask)
		api.POST("/send_text", s.sendText)
		api.GET("/tasks/:id/export", s.exportTask)
		api.GET("/config", s.getConfig)
		api.POST("/config/update", s.updateConfig)
		api.POST("/test/llm", s.testLLM)
		api.POST("/test/tts", s.testTTS)
		api.POST("/test/stt", s.testSTT)
		api.POST("/test/translate", s.testTranslate)
	}

	s.engine = r
	return s
}

// Handler exposes the router for tests and for custom http.Server
// setups.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails or the process shuts down.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"task_status": s.state.TaskStatusNow(),
	})
}
