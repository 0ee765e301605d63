package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"luna-backend/config"
	"luna-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", h.Healthz)

	limit := rate.Limit(cfg.Server.RateLimitPerSec)
	burst := cfg.Server.RateLimitBurst

	api := r.Group("/api")
	api.GET("/vapid_public_key", mw.RateLimiter(limit, burst), h.GetVAPIDPublicKey)

	// Everything else needs a signed-in user; limits apply per user.
	authed := api.Group("", mw.Auth(cfg.Auth.JWTSecret), mw.RateLimiter(limit, burst))
	{
		authed.POST("/navigation-requests", h.CreateNavigationRequest)

		authed.GET("/requests/active", h.ListActiveRequests)
		authed.GET("/requests/history", h.ListRequestHistory)
		authed.GET("/requests/stream", h.StreamRequests)
		authed.GET("/requests/:id", h.GetRequest)
		authed.POST("/requests/:id/collect", h.CollectRequest)

		books := authed.Group("/books")
		if h.catalogCache != nil {
			books.Use(mw.Cache(h.catalogCache, cfg.Server.CacheTTL))
		}
		books.GET("", h.ListBooks)
		books.GET("/:id", h.GetBook)
		books.POST("", h.CreateBook)
		books.PATCH("/:id/availability", h.SetBookAvailability)
		books.DELETE("/:id", h.DeleteBook)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
