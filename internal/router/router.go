package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/controller"
	apperrors "github.com/Elogic360/neatify/internal/errors"
	"github.com/Elogic360/neatify/internal/middleware"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Router struct {
	cartController    *controller.CartController
	authMiddleware    *middleware.AuthMiddleware
	sessionMiddleware *middleware.SessionMiddleware
	gatherer          prometheus.Gatherer
	healthChecks      map[string]HealthCheck
	config            *config.Config
}

func NewRouter(
	cartController *controller.CartController,
	authMiddleware *middleware.AuthMiddleware,
	sessionMiddleware *middleware.SessionMiddleware,
	gatherer prometheus.Gatherer,
	healthChecks map[string]HealthCheck,
	cfg *config.Config,
) *Router {
	return &Router{
		cartController:    cartController,
		authMiddleware:    authMiddleware,
		sessionMiddleware: sessionMiddleware,
		gatherer:          gatherer,
		healthChecks:      healthChecks,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.CustomRecovery(recoverPanic))
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", r.health)

	if r.config.Metrics.Enabled && r.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		cart := v1.Group("/cart")
		cart.Use(r.authMiddleware.OptionalAuthenticate(), r.sessionMiddleware.Resolve())
		{
			cart.GET("/smart", r.cartController.GetSmartCart)
			cart.POST("/smart/items", r.cartController.AddItem)
			cart.PUT("/smart/items/:id", r.cartController.UpdateItem)
			cart.DELETE("/smart/items/:id", r.cartController.RemoveItem)
			cart.GET("/smart/status", r.cartController.GetStatus)
			cart.POST("/smart/detect", r.cartController.DetectCart)
			cart.POST("/smart/guest/handle", r.cartController.HandleGuestCart)
			cart.POST("/smart/convert", r.authMiddleware.Authenticate(), r.cartController.ConvertGuestCart)
			cart.POST("/merge", r.authMiddleware.Authenticate(), r.cartController.MergeSessionCart)

			cart.GET("/summary", r.cartController.GetSummary)
			cart.POST("/validate", r.cartController.Validate)
			cart.POST("/checkout", r.cartController.Checkout)
			cart.DELETE("", r.cartController.Clear)
			cart.POST("/promo-code", r.cartController.ApplyPromoCode)
			cart.DELETE("/promo-code", r.cartController.RemovePromoCode)

			cart.GET("/session/new", r.cartController.NewSession)
			cart.GET("/session/:session_id/stats", r.cartController.GetSessionStats)
		}
	}

	return router
}

func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(r.healthChecks))
	for name, check := range r.healthChecks {
		if err := check(ctx); err != nil {
			logger.Warn("Health check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"message": "neatify cart API is running",
		"checks":  checks,
	})
}

// recoverPanic answers a panicking handler with the standard JSON error body.
func recoverPanic(c *gin.Context, recovered interface{}) {
	logger.Error("Recovered from panic", fmt.Errorf("%v", recovered), map[string]interface{}{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	})
	apperrors.InternalError(c, "")
	c.Abort()
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Cart-Session, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
