// Package front registers the user-facing billing API: model catalog,
// recharge packages, balance and history, pre-flight estimates, usage
// charges, and the Lightning recharge flow.
package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/libernet/sofia-billing/internal/btcrate"
	"github.com/libernet/sofia-billing/internal/config"
	handlers "github.com/libernet/sofia-billing/internal/http/api/front/handlers"
	"github.com/libernet/sofia-billing/internal/ledger"
	"github.com/libernet/sofia-billing/internal/lightning"
	"github.com/libernet/sofia-billing/internal/models"
	"github.com/libernet/sofia-billing/internal/ratelimit"
	"github.com/libernet/sofia-billing/internal/security"
	"gorm.io/gorm"
)

// Deps bundles the services the front API depends on.
type Deps struct {
	DB        *gorm.DB
	Ledger    *ledger.Ledger
	Lightning *lightning.Client
	Rates     *btcrate.Cache
	Limiter   *ratelimit.Manager
	JWT       config.JWTConfig
	RateLimit int
}

// RegisterFrontRoutes registers user routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.POST("/login", authHandler.Login)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.JWT))
	if deps.Limiter != nil && deps.RateLimit > 0 {
		authed.Use(rateLimitMiddleware(deps.Limiter, deps.RateLimit))
	}

	modelsHandler := handlers.NewModelsHandler(deps.Ledger)
	authed.GET("/models", modelsHandler.List)

	packagesHandler := handlers.NewPackagesHandler(deps.Rates)
	authed.GET("/packages", packagesHandler.List)

	balanceHandler := handlers.NewBalanceHandler(deps.Ledger)
	authed.GET("/balance", balanceHandler.Balance)
	authed.GET("/transactions", balanceHandler.Transactions)

	estimateHandler := handlers.NewEstimateHandler(deps.Ledger)
	authed.GET("/estimate", estimateHandler.Estimate)

	usageHandler := handlers.NewUsageHandler(deps.Ledger)
	authed.POST("/usage", usageHandler.Record)

	rechargeHandler := handlers.NewRechargeHandler(deps.DB, deps.Ledger, deps.Lightning, deps.Rates)
	authed.POST("/recharge/invoice", rechargeHandler.CreateInvoice)
	authed.POST("/recharge/confirm", rechargeHandler.Confirm)
}

// userAuthMiddleware validates user JWTs and loads user context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active || user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}

// rateLimitMiddleware enforces the per-user request rate.
func rateLimitMiddleware(limiter *ratelimit.Manager, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := c.Get("userID")
		id, _ := userID.(uint64)
		if id == 0 {
			c.Next()
			return
		}

		result, errAllow := limiter.Allow(c.Request.Context(), ratelimit.UserKey(id), limit)
		if errAllow != nil {
			c.Next()
			return
		}
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
