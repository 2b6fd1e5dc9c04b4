package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/api/middleware"
	"github.com/PhillipSMartin/StJames/internal/config"
	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/transition"
)

type Router struct {
	engine      *gin.Engine
	server      *http.Server
	cfg         *config.Config
	repo        event.Repository
	transitions *transition.Service
	logger      *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	repo event.Repository,
	transitions *transition.Service,
	logger *zap.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:      r,
		cfg:         cfg,
		repo:        repo,
		transitions: transitions,
		logger:      logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	events := r.engine.Group("/events")
	{
		events.POST("", r.CreateEvent)
		events.GET("/:access", r.ListEvents)
		events.GET("/:access/:date_id", r.GetEvent)
		events.PUT("/:access/:date_id", r.UpdateEvent)
		events.DELETE("/:access/:date_id", r.DeleteEvent)
	}

	r.engine.POST("/status", r.TransitionStatus)
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:    ":" + r.cfg.Port,
		Handler: r.engine,
	}
	return r.server.ListenAndServe()
}

func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// Engine exposes the gin engine for handler tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
