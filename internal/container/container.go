package container

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/repository"
)

// Store is the repository plus a liveness probe. Both backends implement it.
type Store interface {
	repository.AggregateRepository
	Ping(ctx context.Context) error
}

// Container carries the components constructed in main to the router
// modules. It is built once and passed explicitly.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger
	Store  Store
	Redis  *redis.Client // nil disables rate limiting
	Mirror application.Mirror
}

func New(cfg *config.Config, logger *logrus.Logger, store Store, rdb *redis.Client, mirror application.Mirror) *Container {
	return &Container{Config: cfg, Logger: logger, Store: store, Redis: rdb, Mirror: mirror}
}

// Service returns a request service bound to the container's store.
func (c *Container) Service() *application.Service {
	return application.NewService(c.Store, c.Mirror, c.Logger)
}
