package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/usage-aggregate-service/internal/interface/http"
)

// UserModule wires the aggregate CRUD handlers:
//
//	POST   /users/         create
//	GET    /users/latest   highest user_id
//	GET    /users/:id      read
//	GET    /users/         list (?skip=&limit=)
//	PUT    /users/:id      update
//	DELETE /users/:id      delete with cascade
type UserModule struct {
	Handler *handlers.UserHandler
}

func NewUserModule(h *handlers.UserHandler) *UserModule {
	return &UserModule{Handler: h}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	{
		users.POST("/", m.Handler.Create)
		users.GET("/latest", m.Handler.Latest)
		users.GET("/:id", m.Handler.Get)
		users.GET("/", m.Handler.List)
		users.PUT("/:id", m.Handler.Update)
		users.DELETE("/:id", m.Handler.Delete)
	}
}
