// Package api exposes an Engine over HTTP with gin: queue inspection and
// production, ad-hoc reservation, the worker registry, failed jobs and a
// storage health check.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gabteles/qu-mongoid/engine"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API over eng. A nil logger uses the engine's.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = eng.Logger()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a gin engine with recovery, request logging and every
// route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(a.logger))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on router.
func (a *API) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", a.health)
	a.registerQueueRoutes(router)
	a.registerWorkerRoutes(router)
	a.registerFailedRoutes(router)
}

func (a *API) registerQueueRoutes(router gin.IRouter) {
	g := router.Group("/queues")
	g.GET("", a.listQueues)
	g.DELETE("", a.clearQueues)
	g.GET("/:name", a.queueLength)
	g.POST("/:name/jobs", a.enqueue)
	g.POST("/:name/reserve", a.reserve)
	g.GET("/:name/limit", a.getLimit)
	g.PUT("/:name/limit", a.setLimit)
}

func (a *API) registerWorkerRoutes(router gin.IRouter) {
	g := router.Group("/workers")
	g.GET("", a.listWorkers)
	g.DELETE("", a.clearWorkers)
}

func (a *API) registerFailedRoutes(router gin.IRouter) {
	g := router.Group("/failed")
	g.GET("", a.listFailed)
	g.GET("/:id", a.getFailed)
	g.POST("/:id/replay", a.replayFailed)
}

func (a *API) health(c *gin.Context) {
	if err := a.eng.Ping(c.Request.Context()); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
