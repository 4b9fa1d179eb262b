package router

import (
	"time"

	"github.com/oksasatya/usage-aggregate-service/internal/container"
	handlers "github.com/oksasatya/usage-aggregate-service/internal/interface/http"
	"github.com/oksasatya/usage-aggregate-service/internal/interface/middleware"
	"github.com/oksasatya/usage-aggregate-service/internal/router/modules"
)

// InitModules builds the handlers from the container and registers them with
// the router registry. Call once during startup.
func InitModules(r *Registry, c *container.Container) {
	// API routes are limited per IP and route; cluster-internal callers such
	// as the loader are exempt. Ops routes are outside the API group.
	r.Use(middleware.RateLimit(c.Redis, c.Config.RateLimitPerMinute, time.Minute,
		middleware.KeyByIPAndMethod(), middleware.AllowPrivateIP()))

	userHandler := handlers.NewUserHandler(c.Service(), c.Logger)
	r.Add(modules.NewUserModule(userHandler))

	r.AddOps(modules.NewHealthModule(handlers.NewHealthHandler(c.Store)))
	if c.Config.DebugMetricsEnabled {
		r.AddOps(modules.NewDebugModule(c.Redis))
	}
}
