package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/config"
	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/push"
	"github.com/vistaml/vista/internal/state"
)

var (
	stateUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vista_state_updates_total",
		Help: "Number of state snapshots received from sessions.",
	})
	viewerConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vista_viewer_connections",
		Help: "Number of websocket clients currently connected.",
	})
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server only ever binds localhost; viewers may be proxied.
		return true
	},
}

// writeWait bounds each broadcast write so one stalled viewer cannot block
// updates to the rest.
const writeWait = 5 * time.Second

// viewer serializes all writes to one websocket connection. Gorilla conns
// support at most one concurrent writer; broadcasts and pong replies share
// this mutex.
type viewer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (v *viewer) write(msg interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return v.conn.WriteJSON(msg)
}

// hub holds the latest state snapshot and the connected viewers.
type hub struct {
	mu      sync.Mutex
	current state.Description
	viewers map[*websocket.Conn]*viewer
}

func newHub() *hub {
	return &hub{
		current: state.NewDescription(),
		viewers: make(map[*websocket.Conn]*viewer),
	}
}

func (h *hub) snapshot() state.Description {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Clone()
}

func (h *hub) update(msg push.Message) {
	h.mu.Lock()
	h.current = msg.State
	targets := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		targets = append(targets, v)
	}
	h.mu.Unlock()

	stateUpdates.Inc()
	for _, v := range targets {
		// Delivery is best effort; a dead viewer is dropped by its own
		// read loop.
		v.write(msg)
	}
}

func (h *hub) add(conn *websocket.Conn) *viewer {
	v := &viewer{conn: conn}
	h.mu.Lock()
	h.viewers[conn] = v
	h.mu.Unlock()
	viewerConnections.Inc()
	return v
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.viewers, conn)
	h.mu.Unlock()
	viewerConnections.Dec()
}

func main() {
	port := flag.Int("port", config.DefaultPort, "port to listen on")
	flag.Parse()

	logger := logging.NewDefault()
	defer logger.Sync()

	doNotTrack, _ := strconv.ParseBool(os.Getenv("VISTA_DO_NOT_TRACK"))

	h := newHub()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sessions and viewers share the same sync endpoint: websocket clients
	// are upgraded, plain HTTP clients get the latest snapshot.
	syncWS := handleWS(h, logger)
	router.GET("/state", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			syncWS(c)
			return
		}
		c.JSON(http.StatusOK, h.snapshot())
	})

	addr := fmt.Sprintf("localhost:%d", *port)
	srv := &http.Server{Addr: addr, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	logger.Info("App server listening",
		zap.String("addr", addr), zap.Bool("do_not_track", doNotTrack))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutting down")
		srv.Close()
	case err := <-errChan:
		logger.Fatal("Server error", zap.Error(err))
	}
}

func handleWS(h *hub, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		v := h.add(conn)
		defer h.remove(conn)

		for {
			var msg push.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "update":
				if msg.Namespace == state.Namespace && msg.Attribute == state.Attribute {
					h.update(msg)
				}
			case "ping":
				v.write(map[string]string{"type": "pong"})
			}
		}
	}
}
