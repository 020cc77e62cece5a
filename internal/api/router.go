package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/gifsearch/internal/api/handler"
	"github.com/timmy/gifsearch/internal/api/middleware"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/service"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Mode      string
	CORS      middleware.CORSConfig
	Sessions  *service.SessionManager
	Favorites handler.FavoriteService
	DB        handler.Pinger
	Gatherer  prometheus.Gatherer
	Logger    *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.DB, cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions)
	favoriteHandler := handler.NewFavoriteHandler(cfg.Favorites)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metricsHandler(cfg.Gatherer)))

	v1 := r.Group("/api/v1")
	{
		// Sessions
		v1.POST("/sessions", sessionHandler.Create)
		v1.GET("/sessions/:id", sessionHandler.Get)
		v1.POST("/sessions/:id/events", sessionHandler.PostEvent)
		v1.GET("/sessions/:id/stream", sessionHandler.Stream)
		v1.DELETE("/sessions/:id", sessionHandler.Delete)

		// Favorites
		v1.GET("/favorites", favoriteHandler.List)
		v1.GET("/favorites/:id/payload", favoriteHandler.Payload)
		v1.DELETE("/favorites/:id", favoriteHandler.Delete)
	}

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
