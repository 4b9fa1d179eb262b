package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/repository"
	"github.com/oksasatya/usage-aggregate-service/internal/infrastructure/rows"
)

// AggregateRepository persists user aggregates in SQLite. AUTOINCREMENT keys
// guarantee identifiers are never reused.
type AggregateRepository struct {
	db        *sql.DB
	opTimeout time.Duration
}

func NewAggregateRepository(db *sql.DB, opTimeout time.Duration) *AggregateRepository {
	return &AggregateRepository{db: db, opTimeout: opTimeout}
}

func (r *AggregateRepository) Create(ctx context.Context, in entity.AggregateInput) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var agg *entity.Aggregate
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var userID, deviceID, usageID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO users (age, gender, user_behavior)
			VALUES (?, ?, ?)
			RETURNING user_id
		`, in.Age, in.Gender, in.UserBehavior).Scan(&userID); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO device_information (user_id, device_model, operating_system)
			VALUES (?, ?, ?)
			RETURNING device_id
		`, userID, in.Device.DeviceModel, in.Device.OperatingSystem).Scan(&deviceID); err != nil {
			return fmt.Errorf("insert device information: %w", err)
		}
		u := in.Usage
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO app_usage_stats (user_id, app_usage_time, screen_on_time, battery_drain, apps_installed, data_usage, behavior_class)
			VALUES (?, ?, ?, ?, ?, ?, ?)
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
	return scanOne(r.db.QueryRowContext(ctx, rows.SelectAggregate+` WHERE u.user_id = ?`, id))
}

func (r *AggregateRepository) GetLatest(ctx context.Context) (*entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanOne(r.db.QueryRowContext(ctx, rows.SelectAggregate+` ORDER BY u.user_id DESC LIMIT 1`))
}

func (r *AggregateRepository) List(ctx context.Context, offset, limit int) ([]entity.Aggregate, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.QueryContext(ctx, rows.SelectAggregate+` ORDER BY u.user_id ASC LIMIT ? OFFSET ?`, limit, offset)
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
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET age = ?, gender = ?, user_behavior = ?
			WHERE user_id = ?
		`, in.Age, in.Gender, in.UserBehavior, id)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return repository.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE device_information SET device_model = ?, operating_system = ?
			WHERE user_id = ?
		`, in.Device.DeviceModel, in.Device.OperatingSystem, id); err != nil {
			return fmt.Errorf("update device information: %w", err)
		}
		u := in.Usage
		if _, err := tx.ExecContext(ctx, `
			UPDATE app_usage_stats
			SET app_usage_time = ?, screen_on_time = ?, battery_drain = ?,
			    apps_installed = ?, data_usage = ?, behavior_class = ?
			WHERE user_id = ?
		`, u.AppUsageTime, u.ScreenOnTime, u.BatteryDrain, u.AppsInstalled, u.DataUsage, u.BehaviorClass, id); err != nil {
			return fmt.Errorf("update app usage stats: %w", err)
		}
		agg, err = scanOne(tx.QueryRowContext(ctx, rows.SelectAggregate+` WHERE u.user_id = ?`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// Delete removes the user; dependents go with it through ON DELETE CASCADE.
func (r *AggregateRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AggregateRepository) Device(ctx context.Context, userID int64) (*entity.DeviceInformation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	d := &entity.DeviceInformation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT device_id, user_id, device_model, operating_system
		FROM device_information
		WHERE user_id = ?
	`, userID).Scan(&d.ID, &d.UserID, &d.DeviceModel, &d.OperatingSystem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	err := r.db.QueryRowContext(ctx, `
		SELECT usage_id, user_id, app_usage_time, screen_on_time, battery_drain,
		       apps_installed, data_usage, behavior_class
		FROM app_usage_stats
		WHERE user_id = ?
	`, userID).Scan(&s.ID, &s.UserID, &s.AppUsageTime, &s.ScreenOnTime, &s.BatteryDrain,
		&s.AppsInstalled, &s.DataUsage, &s.BehaviorClass)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Ping reports whether the database handle is usable.
func (r *AggregateRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *AggregateRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// database/sql rolls back on context cancellation by itself; this covers
	// every other early return.
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
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

func scanOne(row *sql.Row) (*entity.Aggregate, error) {
	agg, err := rows.ScanAggregate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return agg, nil
}

var _ repository.AggregateRepository = (*AggregateRepository)(nil)
