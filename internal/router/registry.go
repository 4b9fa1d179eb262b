package router

import "github.com/gin-gonic/gin"

// Registry collects modules and mounts them. API modules live under the
// configured prefix; operational modules (health, debug) stay at the root.
type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	middlewares []gin.HandlerFunc
	modules     []Module
	ops         []Module
}

func NewRegistry(engine *gin.Engine, prefix string) *Registry {
	api := engine.Group(prefix)
	return &Registry{Engine: engine, API: api}
}

func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *Registry) Add(mod Module) {
	r.modules = append(r.modules, mod)
}

// AddOps registers a module on the engine root, outside the API prefix and
// its middleware.
func (r *Registry) AddOps(mod Module) {
	r.ops = append(r.ops, mod)
}

func (r *Registry) RegisterAll() {
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.modules {
		m.Register(r.API)
	}
	for _, m := range r.ops {
		m.Register(&r.Engine.RouterGroup)
	}
}
