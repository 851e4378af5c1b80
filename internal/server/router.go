// Package server exposes the supervisor's state to an out-of-process host
// (the desktop shell) over a localhost HTTP surface.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxkit/voxd/internal/metrics"
)

// Backend is the read-only view of the supervised process the status surface
// needs. *supervisor.Supervisor satisfies it.
type Backend interface {
	IsRunning() bool
	PID() int
	Port() int
	APIURL() string
}

// Environment reports migration currency. *migrate.Migrator satisfies it.
type Environment interface {
	EnvironmentCurrent() (bool, error)
}

// Router provides embeddable HTTP handlers for the status surface.
// Endpoints:
//
//	GET {basePath}/api/v1/status       supervised backend state
//	GET {basePath}/api/v1/environment  migration currency
//	GET {basePath}/healthz             liveness of voxd itself
//	GET {basePath}/metrics             prometheus exposition
type Router struct {
	backend  Backend
	env      Environment
	basePath string
}

func NewRouter(backend Backend, env Environment, basePath string) *Router {
	return &Router{backend: backend, env: env, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/api/v1/status", r.handleStatus)
	group.GET("/api/v1/environment", r.handleEnvironment)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down via http.Server's Close or Shutdown.
func NewServer(addr string, backend Backend, env Environment) *http.Server {
	r := NewRouter(backend, env, "")
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid"`
	Port    int    `json:"port"`
	URL     string `json:"url"`
}

type environmentResp struct {
	Current bool `json:"current"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResp{
		Running: r.backend.IsRunning(),
		PID:     r.backend.PID(),
		Port:    r.backend.Port(),
		URL:     r.backend.APIURL(),
	})
}

func (r *Router) handleEnvironment(c *gin.Context) {
	current, err := r.env.EnvironmentCurrent()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, environmentResp{Current: current})
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
