package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

// ErrNotFound is returned when no user (or dependent row) exists for an identifier.
var ErrNotFound = errors.New("repository: not found")

// AggregateRepository is the only reader/writer of the users, device_information
// and app_usage_stats tables. Every write is a single transaction.
type AggregateRepository interface {
	Create(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error)
	GetByID(ctx context.Context, id int64) (*entity.Aggregate, error)
	GetLatest(ctx context.Context) (*entity.Aggregate, error)
	List(ctx context.Context, offset, limit int) ([]entity.Aggregate, error)
	Update(ctx context.Context, id int64, in entity.AggregateInput) (*entity.Aggregate, error)
	Delete(ctx context.Context, id int64) error

	Device(ctx context.Context, userID int64) (*entity.DeviceInformation, error)
	Usage(ctx context.Context, userID int64) (*entity.AppUsageStats, error)
}
