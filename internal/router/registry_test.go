package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type routeModule struct{ path string }

func (m routeModule) Register(rg *gin.RouterGroup) {
	rg.GET(m.path, func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func TestRegistry_MiddlewareScopedToAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	reg := NewRegistry(engine, "/api")
	reg.Use(func(c *gin.Context) {
		c.Header("X-Api-Middleware", "1")
		c.Next()
	})
	reg.Add(routeModule{path: "/users/"})
	reg.AddOps(routeModule{path: "/healthz"})
	reg.RegisterAll()

	tests := []struct {
		path     string
		code     int
		withMark bool
	}{
		{"/api/users/", http.StatusNoContent, true},
		{"/healthz", http.StatusNoContent, false},
		{"/api/healthz", http.StatusNotFound, false},
		{"/users/", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.code {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.code, w.Code)
		}
		if got := w.Header().Get("X-Api-Middleware") == "1"; got != tt.withMark {
			t.Fatalf("%s: api middleware applied = %v, want %v", tt.path, got, tt.withMark)
		}
	}
}
