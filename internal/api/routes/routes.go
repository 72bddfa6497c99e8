package routes

import (
	"log/slog"
	"net/http"
	"time"

	"office-realtime/internal/api/handlers"
	"office-realtime/internal/api/middleware"
	"office-realtime/internal/ws"

	_ "office-realtime/docs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the collaborators of the HTTP surface. Cluster and
// RateLimiter are optional.
type Dependencies struct {
	Hub         *ws.Hub
	Upgrader    *websocket.Upgrader
	Client      ws.ClientConfig
	Tokens      middleware.TokenVerifier
	Applier     handlers.CommandApplier
	Cluster     handlers.ClusterPresence
	RateLimiter middleware.RateLimiter
	Checks      map[string]handlers.HealthCheck
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger

	AllowedOrigins  []string
	InternalAPIKey  string
	HandshakeLimit  int
	HandshakeWindow time.Duration
}

type Router struct {
	engine          *gin.Engine
	deps            Dependencies
	wsHandler       *handlers.WSHandler
	eventsHandler   *handlers.EventsHandler
	presenceHandler *handlers.PresenceHandler
	healthHandler   *handlers.HealthHandler
	rateLimitMW     *middleware.RateLimitMiddleware
}

func NewRouter(deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger, "/healthz", "/metrics"))

	var rateLimitMW *middleware.RateLimitMiddleware
	if deps.RateLimiter != nil {
		rateLimitMW = middleware.NewRateLimitMiddleware(deps.RateLimiter, deps.Logger)
	}

	return &Router{
		engine:          engine,
		deps:            deps,
		wsHandler:       handlers.NewWSHandler(deps.Hub, deps.Upgrader, deps.Client),
		eventsHandler:   handlers.NewEventsHandler(deps.Applier, deps.Logger),
		presenceHandler: handlers.NewPresenceHandler(deps.Hub.Presence(), deps.Cluster, deps.Logger),
		healthHandler:   handlers.NewHealthHandler(deps.Hub.Presence(), deps.Checks),
		rateLimitMW:     rateLimitMW,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", r.healthHandler.Health)
	if r.deps.Gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint: rate limit, then authenticate before upgrading
	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(r.deps.HandshakeLimit, r.deps.HandshakeWindow),
		middleware.Authenticate(r.deps.Tokens, r.deps.Hub.Metrics(), r.deps.Logger),
		r.wsHandler.HandleWebSocket,
	)

	// Producer and presence API for the rest of the backend
	internal := r.engine.Group("/internal/v1")
	internal.Use(middleware.RequireInternalKey(r.deps.InternalAPIKey))
	{
		internal.POST("/events", r.eventsHandler.Publish)

		presence := internal.Group("/presence")
		{
			presence.GET("", r.presenceHandler.List)
			presence.GET("/:userId", r.presenceHandler.Get)
			presence.DELETE("/:userId", r.presenceHandler.Disconnect)
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
