// Package rows holds the joined aggregate projection shared by the SQL
// repository implementations.
package rows

import (
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

// SelectAggregate reads a user with both dependents resolved through outer
// joins. Callers append their own WHERE / ORDER BY clauses.
const SelectAggregate = `
	SELECT u.user_id, u.age, u.gender, u.user_behavior,
	       d.device_id, d.device_model, d.operating_system,
	       s.usage_id, s.app_usage_time, s.screen_on_time, s.battery_drain,
	       s.apps_installed, s.data_usage, s.behavior_class
	FROM users u
	LEFT JOIN device_information d ON d.user_id = u.user_id
	LEFT JOIN app_usage_stats s ON s.user_id = u.user_id`

// Scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanAggregate scans one SelectAggregate row. Dependents whose joined
// columns are NULL come back as nil.
func ScanAggregate(s Scanner) (*entity.Aggregate, error) {
	var (
		agg entity.Aggregate

		deviceID                *int64
		deviceModel, deviceOS   *string
		usageID                 *int64
		appUsage, battery, apps *int64
		data, class             *int64
		screenOn                *float64
	)
	if err := s.Scan(
		&agg.ID, &agg.Age, &agg.Gender, &agg.UserBehavior,
		&deviceID, &deviceModel, &deviceOS,
		&usageID, &appUsage, &screenOn, &battery, &apps, &data, &class,
	); err != nil {
		return nil, err
	}

	if deviceID != nil {
		agg.Device = &entity.DeviceInformation{
			ID:              *deviceID,
			UserID:          agg.ID,
			DeviceModel:     deref(deviceModel),
			OperatingSystem: deref(deviceOS),
		}
	}
	if usageID != nil {
		agg.Usage = &entity.AppUsageStats{
			ID:            *usageID,
			UserID:        agg.ID,
			AppUsageTime:  derefInt(appUsage),
			ScreenOnTime:  derefFloat(screenOn),
			BatteryDrain:  derefInt(battery),
			AppsInstalled: derefInt(apps),
			DataUsage:     derefInt(data),
			BehaviorClass: derefInt(class),
		}
	}
	return &agg, nil
}

// NewAggregate builds the aggregate that a successful create wrote.
func NewAggregate(userID, deviceID, usageID int64, in entity.AggregateInput) *entity.Aggregate {
	return &entity.Aggregate{
		User: entity.User{
			ID:           userID,
			Age:          in.Age,
			Gender:       in.Gender,
			UserBehavior: in.UserBehavior,
		},
		Device: &entity.DeviceInformation{
			ID:              deviceID,
			UserID:          userID,
			DeviceModel:     in.Device.DeviceModel,
			OperatingSystem: in.Device.OperatingSystem,
		},
		Usage: &entity.AppUsageStats{
			ID:            usageID,
			UserID:        userID,
			AppUsageTime:  in.Usage.AppUsageTime,
			ScreenOnTime:  in.Usage.ScreenOnTime,
			BatteryDrain:  in.Usage.BatteryDrain,
			AppsInstalled: in.Usage.AppsInstalled,
			DataUsage:     in.Usage.DataUsage,
			BehaviorClass: in.Usage.BehaviorClass,
		},
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int64) int {
	if p == nil {
		return 0
	}
	return int(*p)
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
