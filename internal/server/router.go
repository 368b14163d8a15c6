// Package server is the HTTP control surface of the sproc daemon. Every
// mutating endpoint authenticates with the shared key from the pinned
// configuration and answers with the {ok, data} envelope.
package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/installer"
	"github.com/sprocio/sproc/internal/lifecycle"
	"github.com/sprocio/sproc/internal/metrics"
)

// Router provides the control endpoints over a lifecycle engine.
// Endpoints:
//
//	POST /api/sproc/start      body: {key, service}
//	POST /api/sproc/kill       body: {key, service}
//	POST /api/sproc/info       body: {key, service?}  empty service = all
//	POST /api/sproc/install    body: {key, service, registry}
//	POST /api/sproc/uninstall  body: {key, service}
//	GET  /metrics
type Router struct {
	eng *lifecycle.Engine
	key string
	log *slog.Logger
	// hc performs registry fetches for install; nil uses a default client.
	hc *http.Client
}

func NewRouter(eng *lifecycle.Engine, key string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{eng: eng, key: key, log: log}
}

// apiRequest is the body every control endpoint accepts.
type apiRequest struct {
	Key      string `json:"key"`
	Service  string `json:"service"`
	Registry string `json:"registry,omitempty"`
}

// apiResponse is the envelope every endpoint answers with, including the
// not-found fallback.
type apiResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// Handler returns the gin handler; it can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	api := g.Group("/api/sproc")
	api.POST("/start", r.handleStart)
	api.POST("/kill", r.handleKill)
	api.POST("/info", r.handleInfo)
	api.POST("/install", r.handleInstall)
	api.POST("/uninstall", r.handleUninstall)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiResponse{OK: false, Data: 404})
	})
	return g
}

// NewServer starts a standalone control server on addr. A failure to bind
// or serve is delivered on the returned channel; a daemon that cannot
// listen must not keep running deaf. Callers stop the server through
// http.Server's Shutdown.
func NewServer(addr string, router *Router) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return srv, errCh
}

// bind parses the request body and authenticates it. Authentication fails
// closed before any state is touched.
func (r *Router) bind(c *gin.Context) (apiRequest, bool) {
	var req apiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiResponse{OK: false, Data: "invalid JSON: " + err.Error()})
		return req, false
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(r.key)) != 1 {
		r.log.Warn("rejected control request", "path", c.FullPath(), "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, apiResponse{OK: false, Data: "unauthorized"})
		return req, false
	}
	return req, true
}

func requireService(c *gin.Context, req apiRequest) bool {
	if req.Service == "" {
		c.JSON(http.StatusBadRequest, apiResponse{OK: false, Data: "service required"})
		return false
	}
	return true
}

func (r *Router) handleStart(c *gin.Context) {
	req, ok := r.bind(c)
	if !ok || !requireService(c, req) {
		return
	}
	results := r.eng.Spawn([]string{req.Service})
	if err := results[0].Err; err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: "started " + req.Service})
}

func (r *Router) handleKill(c *gin.Context) {
	req, ok := r.bind(c)
	if !ok || !requireService(c, req) {
		return
	}
	results := r.eng.Kill([]string{req.Service})
	if err := results[0].Err; err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: "killed " + req.Service})
}

func (r *Router) handleInfo(c *gin.Context) {
	req, ok := r.bind(c)
	if !ok {
		return
	}
	if req.Service == "" {
		c.JSON(http.StatusOK, apiResponse{OK: true, Data: r.eng.InfoAll()})
		return
	}
	info, err := r.eng.Info(req.Service)
	if err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: info})
}

func (r *Router) handleInstall(c *gin.Context) {
	req, ok := r.bind(c)
	if !ok || !requireService(c, req) {
		return
	}
	if req.Registry == "" {
		c.JSON(http.StatusBadRequest, apiResponse{OK: false, Data: "registry required"})
		return
	}
	if _, err := installer.Install(c.Request.Context(), r.hc, req.Registry, req.Service); err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	if err := r.reload(); err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	r.log.Info("installed service", "name", req.Service, "registry", req.Registry)
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: "installed " + req.Service})
}

func (r *Router) handleUninstall(c *gin.Context) {
	req, ok := r.bind(c)
	if !ok || !requireService(c, req) {
		return
	}
	// a running instance does not survive removal of its definition
	_ = r.eng.Kill([]string{req.Service})
	if err := config.Uninstall(req.Service); err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	if err := r.reload(); err != nil {
		c.JSON(http.StatusOK, apiResponse{OK: false, Data: err.Error()})
		return
	}
	r.log.Info("uninstalled service", "name", req.Service)
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: "uninstalled " + req.Service})
}

// reload re-reads the pinned configuration into the engine after an
// install or uninstall changed it.
func (r *Router) reload() error {
	cfg, err := config.LoadPinned()
	if err != nil {
		return err
	}
	r.eng.SetConfig(cfg)
	return nil
}
