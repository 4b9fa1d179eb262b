// Package inference turns a stored aggregate into the model's feature vector
// and classifies it.
package inference

import (
	"strings"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

// Numeric feature names as used by the training dataset.
const (
	FeatAppUsageTime  = "App_Usage_Time_min_day"
	FeatScreenOnTime  = "Screen_On_Time_hours_day"
	FeatBatteryDrain  = "Battery_Drain_mAh_day"
	FeatAppsInstalled = "Number_of_Apps_Installed"
	FeatDataUsage     = "Data_Usage_MB_day"
	FeatAge           = "Age"
	FeatGender        = "Gender"

	DeviceModelPrefix     = "Device_Model_"
	OperatingSystemPrefix = "Operating_System_"
)

// Encode flattens agg into named feature values. Gender is 1 for "male"
// (any case) and 0 otherwise. Device model and operating system become
// one-hot columns. Missing dependents contribute nothing.
func Encode(agg *entity.Aggregate) map[string]float64 {
	out := map[string]float64{
		FeatAge:    float64(agg.Age),
		FeatGender: 0,
	}
	if strings.EqualFold(strings.TrimSpace(agg.Gender), "male") {
		out[FeatGender] = 1
	}
	if u := agg.Usage; u != nil {
		out[FeatAppUsageTime] = float64(u.AppUsageTime)
		out[FeatScreenOnTime] = u.ScreenOnTime
		out[FeatBatteryDrain] = float64(u.BatteryDrain)
		out[FeatAppsInstalled] = float64(u.AppsInstalled)
		out[FeatDataUsage] = float64(u.DataUsage)
	}
	if d := agg.Device; d != nil {
		if d.DeviceModel != "" {
			out[DeviceModelPrefix+d.DeviceModel] = 1
		}
		if d.OperatingSystem != "" {
			out[OperatingSystemPrefix+d.OperatingSystem] = 1
		}
	}
	return out
}

// Features aligns agg with featureNames. Any feature the aggregate does not
// produce is 0; produced features the model does not know are dropped.
func Features(agg *entity.Aggregate, featureNames []string) []float64 {
	enc := Encode(agg)
	x := make([]float64, len(featureNames))
	for i, name := range featureNames {
		x[i] = enc[name]
	}
	return x
}
