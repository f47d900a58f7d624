package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mtreat/mtreat-backend/internal/container"
	handlers "github.com/mtreat/mtreat-backend/internal/interface/http"
	"github.com/mtreat/mtreat-backend/internal/interface/middleware"
	"github.com/mtreat/mtreat-backend/internal/router/modules"
	"github.com/mtreat/mtreat-backend/pkg/validation"
)

// InitModules registers the application modules with the registry.
func InitModules(r *Registry, c *container.Container) {
	var rdb *redis.Client
	if c.Config.RateLimitEnabled {
		rdb = c.Redis
	}
	h := handlers.NewPatientHandler(c.Service, c.Logger, c.Config.CookieDomain, c.Config.CookieSecure)
	r.Add(modules.NewAccountsModule(h, c.JWT, c.Service, rdb))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(rdb))
	}
}

// New builds the gin engine with global middleware, the API modules, /healthz
// and the front-end fallback.
func New(c *container.Container) *gin.Engine {
	validation.Init()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	origins := c.Config.CORSOrigins()
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if c.Config.HTTPLogEnabled {
		r.Use(middleware.RequestLogger(c.Logger))
	}

	reg := NewRegistry(r)
	InitModules(reg, c)
	reg.RegisterAll()

	health := handlers.NewHealthHandler(healthChecks(c))
	r.GET("/healthz", health.Healthz)

	r.NoRoute(Frontend(c.Config.FrontendDir))
	return r
}

func healthChecks(c *container.Container) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if c.PGPool != nil {
		checks["postgres"] = c.PGPool.Ping
	}
	if c.Redis != nil {
		rdb := c.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
