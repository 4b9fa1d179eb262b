package entity

// User is the aggregate root. ID is assigned by the database identity column
// and is never reused.
type User struct {
	ID           int64  `json:"user_id"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	UserBehavior string `json:"user_behavior"`
}

// DeviceInformation is owned 1:1 by a User and removed with it.
type DeviceInformation struct {
	ID              int64  `json:"device_id"`
	UserID          int64  `json:"user_id"`
	DeviceModel     string `json:"device_model"`
	OperatingSystem string `json:"operating_system"`
}

// AppUsageStats is owned 1:1 by a User and removed with it.
type AppUsageStats struct {
	ID            int64   `json:"usage_id"`
	UserID        int64   `json:"user_id"`
	AppUsageTime  int     `json:"app_usage_time"` // minutes/day
	ScreenOnTime  float64 `json:"screen_on_time"` // hours/day
	BatteryDrain  int     `json:"battery_drain"`  // mAh/day
	AppsInstalled int     `json:"apps_installed"`
	DataUsage     int     `json:"data_usage"` // MB/day
	BehaviorClass int     `json:"behavior_class"`
}

// Aggregate is a User with its resolved dependents. A nil dependent means the
// row does not exist.
type Aggregate struct {
	User
	Device *DeviceInformation `json:"device_info"`
	Usage  *AppUsageStats     `json:"app_usage_stats"`
}
