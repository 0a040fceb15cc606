// Package httpapi implements the HTTP and WebSocket surface: a gin router
// for the JSON endpoints, and gorilla/websocket streams for the cpu, ram,
// and system live feeds.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nodewatch/telemetryd/internal/broadcast"
	"github.com/nodewatch/telemetryd/internal/config"
	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/probe"
	"github.com/nodewatch/telemetryd/internal/store"
)

// PingInterval is the keep-alive cadence for every stream. Pings go out on
// this fixed cadence whether or not data frames were sent in between.
const PingInterval = 30 * time.Second

// SendTimeout bounds a single WebSocket write; on timeout the connection
// is closed.
const SendTimeout = 10 * time.Second

const serverVersion = "1.0.0"

// Server bundles everything the HTTP handlers and WebSocket streams need.
type Server struct {
	cfg    config.Config
	store  *store.Store
	hub    *broadcast.Hub[model.Snapshot]
	handle *probe.Handle
	info   model.SystemInfo
}

func NewServer(cfg config.Config, s *store.Store, hub *broadcast.Hub[model.Snapshot], handle *probe.Handle, info model.SystemInfo) *Server {
	return &Server{cfg: cfg, store: s, hub: hub, handle: handle, info: info}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter wires every handler onto a gin engine.
func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()

	r.GET("/", s.handleRoot)
	r.GET("/version", s.handleVersion)
	r.GET("/api/info", s.handleInfo)
	r.GET("/api/history", s.handleHistory)

	r.GET("/ws/cpu", s.handleWSCpu)
	r.GET("/ws/ram", s.handleWSRam)
	r.GET("/ws/system", s.handleWSSystem)

	return r
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Ktor: Hello from Rust homeserver!")
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": "telemetryd", "version": serverVersion})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.info)
}
