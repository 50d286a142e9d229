package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sous_vide/internal/logger"
	"sous_vide/internal/service"
)

// Options switches optional parts of the router.
type Options struct {
	// AuthEnabled puts /api/v1 behind bearer tokens.
	AuthEnabled bool
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	return &Handler{services: services, log: logger.OrNop(log), opts: opts}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// status stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	if h.opts.AuthEnabled {
		api.Use(h.userIdMiddleware)
	}
	h.registerDeviceRoutes(api)
	h.registerActionRoutes(api)
	h.registerLogRoutes(api)
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	dev := api.Group("/device")
	{
		dev.GET("/temp", h.readTemperature)
		// Body example: {"temperature":"135.5"}
		dev.POST("/temp", h.setTemperature)
		dev.GET("/status", h.refreshStatus)
		dev.GET("/status/background", h.cachedStatus)
		dev.POST("/start", h.startDevice)
		dev.POST("/stop", h.stopDevice)
		dev.GET("/timer", h.readTimer)
		dev.POST("/timer", h.setTimer)
		dev.POST("/timer/start", h.startTimer)
		dev.POST("/timer/stop", h.stopTimer)
		dev.POST("/led", h.setLED)
		dev.POST("/timeout", h.setIdleTimeout)
		dev.GET("/link", h.linkStats)
	}
}

func (h *Handler) registerActionRoutes(api *gin.RouterGroup) {
	actions := api.Group("/actions")
	{
		// Body example: {"start_time":"2024-06-01T12:00:00.000Z","temperature":"135.5"}
		actions.POST("", h.scheduleAction)
		actions.GET("", h.listActions)
		actions.DELETE("/:id", h.cancelAction)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
	}
}
