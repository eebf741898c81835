package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/identity"
	"github.com/jesadaho/asset-ace-sub000/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires handlers into a gin engine.
type RouterConfig struct {
	Verifier     identity.Verifier
	Limiter      *ratelimit.RateLimiter
	AllowOrigins []string
	AdminToken   string
	LogRequests  bool
	Health       func() error

	Properties  *PropertyHandler
	Engagement  *EngagementHandler
	Marketplace *MarketplaceHandler
	Profiles    *ProfileHandler
	Uploads     *UploadHandler
	Admin       *AdminHandler
}

// NewRouter builds the HTTP surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.LogRequests {
		r.Use(gin.Logger())
	}

	// CORS configuration
	if len(cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", AuthMiddleware(cfg.Verifier))
	limited := RateLimitMiddleware(cfg.Limiter)

	if h := cfg.Properties; h != nil {
		api.POST("/properties", h.Create)
		api.GET("/properties", h.List)
		api.POST("/properties/import", limited, h.Import)
		api.GET("/properties/:id", h.Get)
		api.PUT("/properties/:id", h.Update)
		api.DELETE("/properties/:id", h.Delete)
		api.POST("/properties/:id/publish", h.Publish)
		api.POST("/properties/:id/reserve", h.Reserve)
		api.DELETE("/properties/:id/reservation", h.ClearReservation)
		api.POST("/properties/:id/rent", h.SetRented)
		api.POST("/properties/:id/checkout", h.Checkout)
		api.PUT("/properties/:id/occupancy", h.AgentUpdate)
		api.GET("/properties/:id/rental-history", h.RentalHistory)
		api.POST("/properties/:id/clone", h.Clone)
		api.GET("/agent/properties", h.ListManaged)
	}

	if h := cfg.Engagement; h != nil {
		api.POST("/properties/:id/invite", limited, h.IssueInvite)
		api.POST("/properties/:id/accept-invite", h.AcceptInvite)
		api.POST("/properties/:id/contact-request", limited, h.RequestContact)
		api.GET("/properties/:id/contact-requests", h.ListContactRequests)
		api.POST("/properties/:id/follow", h.ToggleFollow)
		api.GET("/properties/:id/follow", h.FollowStatus)
	}

	if h := cfg.Marketplace; h != nil {
		api.GET("/marketplace", h.Browse)
		api.GET("/marketplace/search", h.Search)
	}

	if h := cfg.Profiles; h != nil {
		api.GET("/me/profile", h.Get)
		api.PUT("/me/profile", h.Update)
	}

	if h := cfg.Uploads; h != nil {
		api.POST("/uploads/presign", h.Presign)
	}

	// Admin API routes
	if h := cfg.Admin; h != nil {
		admin := r.Group("/api/admin", AdminAuth(cfg.AdminToken))
		{
			admin.GET("/stats", h.GetStats)
			admin.POST("/vacancy-scan", h.RunVacancyScan)
			admin.POST("/cleanup/invites", h.RunInviteCleanup)
			admin.POST("/reindex", h.Reindex)
		}
	}

	return r
}
