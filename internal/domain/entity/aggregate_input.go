package entity

// DeviceInput carries the mutable device fields of an aggregate.
type DeviceInput struct {
	DeviceModel     string `json:"device_model" validate:"required"`
	OperatingSystem string `json:"operating_system" validate:"required"`
}

// UsageInput carries the mutable usage fields of an aggregate.
type UsageInput struct {
	AppUsageTime  int     `json:"app_usage_time" validate:"gte=0"`
	ScreenOnTime  float64 `json:"screen_on_time" validate:"gte=0"`
	BatteryDrain  int     `json:"battery_drain" validate:"gte=0"`
	AppsInstalled int     `json:"apps_installed" validate:"gte=0"`
	DataUsage     int     `json:"data_usage" validate:"gte=0"`
	BehaviorClass int     `json:"behavior_class" validate:"gte=0"`
}

// AggregateInput is the full set of caller-supplied fields used by both
// create and update. Dependents are always fully populated.
type AggregateInput struct {
	Age          int         `json:"age" validate:"gte=0"`
	Gender       string      `json:"gender" validate:"required"`
	UserBehavior string      `json:"user_behavior" validate:"required"`
	Device       DeviceInput `json:"device_info"`
	Usage        UsageInput  `json:"app_usage_stats"`
}
