package httpapi

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// watchForClose drains incoming frames purely to detect disconnects; these
// streams are server-push only.
func watchForClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSONWithDeadline(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(SendTimeout))
	return conn.WriteJSON(v)
}

func writePingWithDeadline(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(SendTimeout))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// handleWSSystem implements /ws/system: a static SystemInfo welcome frame,
// then every broadcast Snapshot. A Lagged marker is logged by the hub and
// never forwarded as an empty frame; the subscriber just resumes at the
// newest snapshot.
func (s *Server) handleWSSystem(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("httpapi: ws/system upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer sub.Close()

	if err := writeJSONWithDeadline(conn, gin.H{"type": "info", "systemInfo": s.info}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go watchForClose(conn, cancel)

	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.C():
			if msg.Lagged > 0 {
				continue
			}
			if err := writeJSONWithDeadline(conn, msg.Value); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := writePingWithDeadline(conn); err != nil {
				return
			}
		}
	}
}

// handleWSCpu implements /ws/cpu: a per-subscriber pull loop polling the
// probe at cpu_stats_frequency_ms.
func (s *Server) handleWSCpu(c *gin.Context) {
	s.pullLoop(c, time.Duration(s.cfg.Publishing.CPUStatsFrequencyMs)*time.Millisecond, func() (any, error) {
		return s.handle.CollectCPU()
	})
}

// handleWSRam implements /ws/ram analogously.
func (s *Server) handleWSRam(c *gin.Context) {
	s.pullLoop(c, time.Duration(s.cfg.Publishing.RAMStatsFrequencyMs)*time.Millisecond, func() (any, error) {
		return s.handle.CollectRAM()
	})
}

// pullLoop is the shared per-subscriber ticker-driven probe pull used by
// /ws/cpu and /ws/ram.
func (s *Server) pullLoop(c *gin.Context, interval time.Duration, collect func() (any, error)) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("httpapi: ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go watchForClose(conn, cancel)

	dataTicker := time.NewTicker(interval)
	defer dataTicker.Stop()
	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dataTicker.C:
			v, err := collect()
			if err != nil {
				log.Printf("httpapi: probe pull failed: %v", err)
				continue
			}
			if err := writeJSONWithDeadline(conn, v); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := writePingWithDeadline(conn); err != nil {
				return
			}
		}
	}
}

