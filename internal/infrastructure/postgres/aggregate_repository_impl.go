package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/repository"
	"github.com/oksasatya/usage-aggregate-service/internal/infrastructure/rows"
)

const rollbackTimeout = 5 * time.Second

// AggregateRepository persists user aggregates in PostgreSQL. Identifiers come
// from identity columns, so concurrent creates never race on id assignment.
type AggregateRepository struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

func NewAggregateRepository(pool *pgxpool.Pool, opTimeout time.Duration) *AggregateRepository {
	return &AggregateRepository{pool: pool, opTimeout: opTimeout}
}

func (r *AggregateRepository) Create(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var agg *entity.Aggregate
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var userID, deviceID, usageID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO users (age, gender, user_behavior)
			VALUES ($1, $2, $3)
			RETURNING user_id
		`, in.Age, in.Gender, in.UserBehavior).Scan(&userID); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO device_information (user_id, device_model, operating_system)
			VALUES ($1, $2, $3)
			RETURNING device_id
		`, userID, in.Device.DeviceModel, in.Device.OperatingSystem).Scan(&deviceID); err != nil {
			return fmt.Errorf("insert device information: %w", err)
		}
		u := in.Usage
		if err := tx.QueryRow(ctx, `
			INSERT INTO app_usage_stats (user_id, app_usage_time, screen_on_time, battery_drain, apps_installed, data_usage, behavior_class)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING usage_id
		`, userID, u.AppUsageTime, u.ScreenOnTime, u.BatteryDrain, u.AppsInstalled, u.DataUsage, u.BehaviorClass).Scan(&usageID); err != nil {
			return fmt.Errorf("insert app usage stats: %w", err)
		}
		agg = rows.NewAggregate(userID, deviceID, usageID, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (r *AggregateRepository) GetByID(ctx context.Context, id int64) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanOne(r.pool.QueryRow(ctx, rows.SelectAggregate+` WHERE u.user_id = $1`, id))
}

func (r *AggregateRepository) GetLatest(ctx context.Context) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanOne(r.pool.QueryRow(ctx, rows.SelectAggregate+` ORDER BY u.user_id DESC LIMIT 1`))
}

func (r *AggregateRepository) List(ctx context.Context, offset, limit int) ([]entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.pool.Query(ctx, rows.SelectAggregate+` ORDER BY u.user_id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	out := make([]entity.Aggregate, 0)
	for res.Next() {
		agg, err := rows.ScanAggregate(res)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, res.Err()
}

// Update rewrites the user row and whichever dependents exist. Missing
// dependents are left missing.
func (r *AggregateRepository) Update(ctx context.Context, id int64, in entity.AggregateInput) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var agg *entity.Aggregate
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET age = $1, gender = $2, user_behavior = $3
			WHERE user_id = $4
		`, in.Age, in.Gender, in.UserBehavior, id)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
			UPDATE device_information SET device_model = $1, operating_system = $2
			WHERE user_id = $3
		`, in.Device.DeviceModel, in.Device.OperatingSystem, id); err != nil {
			return fmt.Errorf("update device information: %w", err)
		}
		u := in.Usage
		if _, err := tx.Exec(ctx, `
			UPDATE app_usage_stats
			SET app_usage_time = $1, screen_on_time = $2, battery_drain = $3,
			    apps_installed = $4, data_usage = $5, behavior_class = $6
			WHERE user_id = $7
		`, u.AppUsageTime, u.ScreenOnTime, u.BatteryDrain, u.AppsInstalled, u.DataUsage, u.BehaviorClass, id); err != nil {
			return fmt.Errorf("update app usage stats: %w", err)
		}
		agg, err = scanOne(tx.QueryRow(ctx, rows.SelectAggregate+` WHERE u.user_id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// Delete removes the user; device_information and app_usage_stats rows go
// with it through ON DELETE CASCADE in the same statement.
func (r *AggregateRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AggregateRepository) Device(ctx context.Context, userID int64) (*entity.DeviceInformation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	d := &entity.DeviceInformation{}
	err := r.pool.QueryRow(ctx, `
		SELECT device_id, user_id, device_model, operating_system
		FROM device_information
		WHERE user_id = $1
	`, userID).Scan(&d.ID, &d.UserID, &d.DeviceModel, &d.OperatingSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *AggregateRepository) Usage(ctx context.Context, userID int64) (*entity.AppUsageStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	s := &entity.AppUsageStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT usage_id, user_id, app_usage_time, screen_on_time, battery_drain,
		       apps_installed, data_usage, behavior_class
		FROM app_usage_stats
		WHERE user_id = $1
	`, userID).Scan(&s.ID, &s.UserID, &s.AppUsageTime, &s.ScreenOnTime, &s.BatteryDrain,
		&s.AppsInstalled, &s.DataUsage, &s.BehaviorClass)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Ping reports whether the pool can reach the backend.
func (r *AggregateRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

// inTx runs fn in a transaction that is committed only if fn succeeds. The
// rollback ignores caller cancellation so a dropped request never leaves the
// transaction open.
func (r *AggregateRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		_ = tx.Rollback(rbCtx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *AggregateRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func scanOne(row pgx.Row) (*entity.Aggregate, error) {
	agg, err := rows.ScanAggregate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return agg, nil
}

var _ repository.AggregateRepository = (*AggregateRepository)(nil)
