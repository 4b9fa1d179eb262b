package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
)

func sampleAggregate() *entity.Aggregate {
	return &entity.Aggregate{
		User:   entity.User{ID: 3, Age: 40, Gender: "MALE", UserBehavior: "heavy"},
		Device: &entity.DeviceInformation{DeviceModel: "iPhone 12", OperatingSystem: "iOS"},
		Usage: &entity.AppUsageStats{
			AppUsageTime: 393, ScreenOnTime: 6.4, BatteryDrain: 1872,
			AppsInstalled: 67, DataUsage: 1122, BehaviorClass: 4,
		},
	}
}

func TestFeatures(t *testing.T) {
	names := []string{
		FeatAppUsageTime, FeatScreenOnTime, FeatBatteryDrain, FeatAppsInstalled,
		FeatDataUsage, FeatAge, FeatGender,
		"Device_Model_iPhone 12", "Device_Model_Xiaomi Mi 11", "Operating_System_iOS", "Unknown",
	}
	got := Features(sampleAggregate(), names)
	want := []float64{393, 6.4, 1872, 67, 1122, 40, 1, 1, 0, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("feature %s: expected %v, got %v", names[i], want[i], got[i])
		}
	}
}

func TestFeatures_MissingDependentsAreZero(t *testing.T) {
	agg := &entity.Aggregate{User: entity.User{ID: 1, Age: 20, Gender: "Female"}}
	got := Features(agg, []string{FeatAge, FeatGender, FeatDataUsage, "Operating_System_Android"})
	want := []float64{20, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

const modelJSON = `{
	"feature_names": ["Age", "Gender"],
	"classes": [1, 5],
	"coefficients": [[-1, 0], [1, 0]],
	"intercepts": [30, -30]
}`

func TestLinearModel_Predict(t *testing.T) {
	m, err := ParseModel([]byte(modelJSON))
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	young, err := m.Predict([]float64{20, 1})
	if err != nil || young != 1 {
		t.Fatalf("Predict(20) = %d, %v", young, err)
	}
	old, err := m.Predict([]float64{50, 0})
	if err != nil || old != 5 {
		t.Fatalf("Predict(50) = %d, %v", old, err)
	}
	if _, err := m.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for wrong feature count")
	}
}

func TestParseModel_Invalid(t *testing.T) {
	bad := []string{
		`{`,
		`{"feature_names": [], "classes": [1], "coefficients": [[1]], "intercepts": [0]}`,
		`{"feature_names": ["a"], "classes": [1, 2], "coefficients": [[1]], "intercepts": [0]}`,
		`{"feature_names": ["a", "b"], "classes": [1], "coefficients": [[1]], "intercepts": [0]}`,
	}
	for _, b := range bad {
		if _, err := ParseModel([]byte(b)); err == nil {
			t.Fatalf("expected error for %s", b)
		}
	}
}

func TestLoadModel_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(modelJSON), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	m, err := LoadModel(context.Background(), path, "")
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if len(m.FeatureNames()) != 2 {
		t.Fatalf("unexpected features: %v", m.FeatureNames())
	}
	if _, err := LoadModel(context.Background(), filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestClient_Latest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/latest" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"success":true,"message":"latest user","data":{
			"user_id": 9, "age": 33, "gender": "Male", "user_behavior": "light",
			"device_info": {"device_id": 9, "user_id": 9, "device_model": "OnePlus 9", "operating_system": "Android"},
			"app_usage_stats": {"usage_id": 9, "user_id": 9, "app_usage_time": 10, "screen_on_time": 1.5,
				"battery_drain": 300, "apps_installed": 12, "data_usage": 90, "behavior_class": 2}
		}}`))
	}))
	defer srv.Close()

	agg, err := NewClient(srv.URL + "/").Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if agg.ID != 9 || agg.Device == nil || agg.Device.DeviceModel != "OnePlus 9" || agg.Usage.ScreenOnTime != 1.5 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestClient_LatestEmptyStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"success":false,"message":"No users found"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Latest(context.Background()); !errors.Is(err, ErrNoUsers) {
		t.Fatalf("expected ErrNoUsers, got %v", err)
	}
}

func TestClient_LatestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":500,"success":false,"message":"error retrieving the latest user"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Latest(context.Background())
	if err == nil || errors.Is(err, ErrNoUsers) {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestClient_LatestWrongBaseURL(t *testing.T) {
	// A server that only knows /api/users/latest, as with a mismatched prefix.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Latest(context.Background())
	if err == nil || errors.Is(err, ErrNoUsers) {
		t.Fatalf("expected a not-found path error, got %v", err)
	}
	if !strings.Contains(err.Error(), "/users/latest") {
		t.Fatalf("expected the requested URL in the error, got %v", err)
	}
}
