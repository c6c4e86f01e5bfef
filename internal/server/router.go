package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
)

// Router exposes a small read-only HTTP surface for one supervisor:
//
//	GET {basePath}/status    monitor state + ledger snapshot
//	GET {basePath}/healthz   supervisor self-health (always 200 when serving)
//	GET {basePath}/metrics   Prometheus exposition
//
// It is not a dashboard; it only answers "what does the supervisor think
// right now". basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mon      *monitor.Monitor
	basePath string
}

// NewRouter constructs a Router for the given monitor.
func NewRouter(mon *monitor.Monitor, basePath string) *Router {
	return &Router{mon: mon, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Close or Shutdown. A failure to bind (or
// any serve error other than a clean shutdown) is reported through log so a
// mistyped listen address does not leave the supervisor silently
// endpoint-less.
func NewServer(addr, basePath string, mon *monitor.Monitor, log *slog.Logger) *http.Server {
	r := NewRouter(mon, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status endpoint failed", "addr", addr, "error", err)
		}
	}()
	return server
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mon.Status(c.Request.Context()))
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
