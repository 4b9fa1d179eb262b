package handlers_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/usage-aggregate-service/config"
	"github.com/oksasatya/usage-aggregate-service/internal/container"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/internal/interface/middleware"
	"github.com/oksasatya/usage-aggregate-service/internal/router"
	"github.com/oksasatya/usage-aggregate-service/internal/testutil"
	"github.com/oksasatya/usage-aggregate-service/pkg/validation"
)

type envelope struct {
	Status    int             `json:"status"`
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     map[string]any  `json:"error"`
	Meta      map[string]any  `json:"meta"`
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	r, _ := newTestServerWithDB(t)
	return r
}

// newTestServerWithDB also returns the underlying database so tests can
// arrange rows the API cannot produce.
func newTestServerWithDB(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	db := testutil.SQLiteDB(t)
	cfg := &config.Config{RateLimitPerMinute: 300, DebugMetricsEnabled: true}
	c := container.New(cfg, testutil.Logger(), testutil.SQLiteRepo(db), nil, nil)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	reg := router.NewRegistry(r, "")
	router.InitModules(reg, c)
	reg.RegisterAll()
	return r, db
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode envelope: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

const createBody = `{
	"age": 40,
	"gender": "Male",
	"user_behavior": "heavy",
	"device_info": {"device_model": "Google Pixel 5", "operating_system": "Android"},
	"app_usage_stats": {
		"app_usage_time": 393, "screen_on_time": 6.4, "battery_drain": 1872,
		"apps_installed": 67, "data_usage": 1122, "behavior_class": 4
	}
}`

func TestUserRoutes_CreateGetDeleteScenario(t *testing.T) {
	r := newTestServer(t)

	w, env := do(t, r, http.MethodPost, "/users/", createBody)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.RequestID == "" {
		t.Fatal("expected request_id in envelope")
	}
	var created entity.Aggregate
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if created.ID < 1 || created.Device == nil || created.Usage == nil {
		t.Fatalf("unexpected aggregate: %+v", created)
	}
	if created.Usage.ScreenOnTime != 6.4 || created.Device.OperatingSystem != "Android" {
		t.Fatalf("fields not round-tripped: %+v %+v", created.Device, created.Usage)
	}

	path := "/users/" + itoa(created.ID)
	w, env = do(t, r, http.MethodGet, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var got entity.Aggregate
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if got.ID != created.ID || got.Age != 40 || got.UserBehavior != "heavy" {
		t.Fatalf("unexpected aggregate: %+v", got)
	}

	w, env = do(t, r, http.MethodDelete, path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if env.Message != "User and associated records deleted successfully" {
		t.Fatalf("unexpected delete message %q", env.Message)
	}

	w, _ = do(t, r, http.MethodGet, path, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
	w, _ = do(t, r, http.MethodDelete, path, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestUserRoutes_GetUnknownOnEmptyStore(t *testing.T) {
	r := newTestServer(t)

	w, env := do(t, r, http.MethodGet, "/users/999", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if env.Success || env.Message != "User not found" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	w, env = do(t, r, http.MethodGet, "/users/latest", "")
	if w.Code != http.StatusNotFound || env.Message != "No users found" {
		t.Fatalf("latest on empty store: %d %q", w.Code, env.Message)
	}
}

func TestUserRoutes_Latest(t *testing.T) {
	r := newTestServer(t)

	var last entity.Aggregate
	for i := 0; i < 3; i++ {
		w, env := do(t, r, http.MethodPost, "/users/", createBody)
		if w.Code != http.StatusOK {
			t.Fatalf("create: %d", w.Code)
		}
		if err := json.Unmarshal(env.Data, &last); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}

	w, env := do(t, r, http.MethodGet, "/users/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", w.Code)
	}
	var latest entity.Aggregate
	if err := json.Unmarshal(env.Data, &latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.ID != last.ID {
		t.Fatalf("expected latest %d, got %d", last.ID, latest.ID)
	}
}

func TestUserRoutes_List(t *testing.T) {
	r := newTestServer(t)
	for i := 0; i < 4; i++ {
		if w, _ := do(t, r, http.MethodPost, "/users/", createBody); w.Code != http.StatusOK {
			t.Fatalf("create: %d", w.Code)
		}
	}

	w, env := do(t, r, http.MethodGet, "/users/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var all []entity.Aggregate
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4, got %d", len(all))
	}
	if env.Meta["limit"] != float64(100) || env.Meta["skip"] != float64(0) {
		t.Fatalf("expected default paging, got %v", env.Meta)
	}

	_, env = do(t, r, http.MethodGet, "/users/?skip=1&limit=2", "")
	var page []entity.Aggregate
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page) != 2 || page[0].ID != all[1].ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	w, _ = do(t, r, http.MethodGet, "/users/?skip=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative skip: expected 400, got %d", w.Code)
	}
}

func TestUserRoutes_Update(t *testing.T) {
	r := newTestServer(t)

	_, env := do(t, r, http.MethodPost, "/users/", createBody)
	var created entity.Aggregate
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	body := strings.Replace(createBody, `"age": 40`, `"age": 41`, 1)
	body = strings.Replace(body, `"Android"`, `"iOS"`, 1)
	w, env := do(t, r, http.MethodPut, "/users/"+itoa(created.ID), body)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated entity.Aggregate
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.ID != created.ID || updated.Age != 41 || updated.Device.OperatingSystem != "iOS" {
		t.Fatalf("unexpected update result: %+v %+v", updated.User, updated.Device)
	}

	w, _ = do(t, r, http.MethodPut, "/users/12345", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("update missing: expected 404, got %d", w.Code)
	}
}

func TestUserRoutes_UpdateKeepsAbsentDependents(t *testing.T) {
	r, db := newTestServerWithDB(t)
	id := testutil.InsertBareUser(t, db, 30)

	w, env := do(t, r, http.MethodPut, "/users/"+itoa(id), createBody)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(data["age"]) != "40" {
		t.Fatalf("expected age 40, got %s", data["age"])
	}
	if string(data["device_info"]) != "null" || string(data["app_usage_stats"]) != "null" {
		t.Fatalf("expected null dependents, got %s %s", data["device_info"], data["app_usage_stats"])
	}
	if devices, usage := testutil.CountDependents(t, db, id); devices != 0 || usage != 0 {
		t.Fatalf("update created dependents: devices=%d usage=%d", devices, usage)
	}
}

func TestUserRoutes_NonPositiveIDsAreNotFound(t *testing.T) {
	r := newTestServer(t)

	for _, path := range []string{"/users/0", "/users/-5"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			body := ""
			if method == http.MethodPut {
				body = createBody
			}
			w, env := do(t, r, method, path, body)
			if w.Code != http.StatusNotFound || env.Message != "User not found" {
				t.Fatalf("%s %s: expected 404 User not found, got %d %q", method, path, w.Code, env.Message)
			}
		}
	}

	w, env := do(t, r, http.MethodGet, "/users/abc", "")
	if w.Code != http.StatusBadRequest || env.Message != "invalid user id" {
		t.Fatalf("non-integer id: expected 400 invalid user id, got %d %q", w.Code, env.Message)
	}
}

func TestUserRoutes_BadRequests(t *testing.T) {
	r := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"non-integer id", http.MethodGet, "/users/abc", "", "user_id"},
		{"missing age", http.MethodPost, "/users/", strings.Replace(createBody, `"age": 40,`, "", 1), "age"},
		{"negative age", http.MethodPost, "/users/", strings.Replace(createBody, `"age": 40`, `"age": -2`, 1), "age"},
		{"wrong type", http.MethodPost, "/users/", strings.Replace(createBody, `"age": 40`, `"age": "forty"`, 1), "age"},
		{"empty gender", http.MethodPost, "/users/", strings.Replace(createBody, `"Male"`, `""`, 1), "gender"},
		{"missing device", http.MethodPost, "/users/", `{"age": 1, "gender": "Male", "user_behavior": "light", "app_usage_stats": {"app_usage_time": 1, "screen_on_time": 1, "battery_drain": 1, "apps_installed": 1, "data_usage": 1, "behavior_class": 1}}`, "device_info"},
		{"negative usage", http.MethodPost, "/users/", strings.Replace(createBody, `"battery_drain": 1872`, `"battery_drain": -1`, 1), "app_usage_stats.battery_drain"},
		{"malformed json", http.MethodPost, "/users/", `{"age":`, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, tt.method, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if _, ok := env.Error[tt.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tt.field, env.Error)
			}
		})
	}

	// Nothing was written by the rejected requests.
	w, _ := do(t, r, http.MethodGet, "/users/latest", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected empty store, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestServer(t)
	w, env := do(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDebugVarsExposesCounters(t *testing.T) {
	r := newTestServer(t)
	do(t, r, http.MethodGet, "/users/999", "")

	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "aggregate_ops") {
		t.Fatal("expected aggregate_ops in expvar output")
	}
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
