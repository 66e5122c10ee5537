package routes

import (
	"net/http"
	"time"

	"room-chat/internal/api/handlers"
	"room-chat/internal/api/middleware"
	"room-chat/internal/websocket"
	"room-chat/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-metrics"
)

// Settings carries the HTTP knobs taken from configuration
type Settings struct {
	Version        string
	AllowedOrigins []string
	WSRateLimit    int
	WSRateWindow   time.Duration
	// Access logs are skipped when false
	AccessLog bool
	// Optional roster copy reported by /health
	Mirror handlers.MirrorReader
}

type Router struct {
	engine         *gin.Engine
	settings       Settings
	wsHandler      *handlers.WSHandler
	healthHandler  *handlers.HealthHandler
	metricsHandler *handlers.MetricsHandler
	rateLimitMW    *middleware.RateLimitMiddleware
}

// NewRouter builds the gin engine. limiter and sink are optional.
func NewRouter(
	hub *websocket.Hub,
	limiter middleware.RateLimiter,
	sink *metrics.InmemSink,
	settings Settings,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(settings.AllowedOrigins))
	if settings.AccessLog {
		engine.Use(middleware.LogApi())
	}

	r := &Router{
		engine:        engine,
		settings:      settings,
		wsHandler:     handlers.NewWSHandler(hub),
		healthHandler: handlers.NewHealthHandler(hub, settings.Mirror, settings.Version),
		rateLimitMW:   middleware.NewRateLimitMiddleware(limiter),
	}
	if sink != nil {
		r.metricsHandler = handlers.NewMetricsHandler(sink)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/", r.healthHandler.Info)
	r.engine.GET("/health", r.healthHandler.Health)

	if r.metricsHandler != nil {
		r.engine.GET("/metrics", r.metricsHandler.Metrics)
	}

	// WebSocket endpoint, rate limited per IP when Redis is configured
	r.engine.GET("/ws",
		r.rateLimitMW.RateLimitIP(r.settings.WSRateLimit, r.settings.WSRateWindow),
		r.wsHandler.HandleWebSocket,
	)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.NewError(response.ErrCodeNotFound, c.Request.URL.Path))
	})
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
