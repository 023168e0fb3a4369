package handlers

import (
	"tasmota_mqtt/internal/logger"
	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Broadcaster hands out subscriptions to pushed UI messages.
type Broadcaster interface {
	Subscribe() (<-chan any, func())
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	hub      Broadcaster
	log      *logger.Logger
	origins  []string
}

// NewHandler constructs a new HTTP handler with dependencies. hub may be nil, in which
// case websocket clients only receive status snapshots.
func NewHandler(services *service.Service, hub Broadcaster, log *logger.Logger) *Handler {
	return &Handler{services: services, hub: hub, log: log}
}

// AllowOrigins sets the browser origins allowed to open the websocket.
func (h *Handler) AllowOrigins(origins ...string) *Handler {
	h.origins = append([]string(nil), origins...)
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// push channel for relay state and idle countdown messages
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
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerRelayRoutes(api)
		h.registerHostRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerRelayRoutes(api *gin.RouterGroup) {
	// Body example: {"command":"turnOn","topic":"plug1","relayN":""}
	api.POST("/command", h.command)
	api.PUT("/relays", h.upsertRelay)
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.updateSettings)
	api.GET("/status", h.getStatus)
}

func (h *Handler) registerHostRoutes(api *gin.RouterGroup) {
	api.POST("/events", h.hostEvent)
	api.POST("/gcode", h.gcode)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
