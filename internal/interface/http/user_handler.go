package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/usage-aggregate-service/internal/application"
	"github.com/oksasatya/usage-aggregate-service/internal/domain/entity"
	"github.com/oksasatya/usage-aggregate-service/pkg/response"
	"github.com/oksasatya/usage-aggregate-service/pkg/validation"
)

const (
	defaultListLimit = 100
	deletedMessage   = "User and associated records deleted successfully"
	invalidIDMessage = "invalid user id"
)

type UserHandler struct {
	Svc    *application.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type deviceInfoRequest struct {
	DeviceModel     string `json:"device_model" binding:"required"`
	OperatingSystem string `json:"operating_system" binding:"required"`
}

type appUsageStatsRequest struct {
	AppUsageTime  *int     `json:"app_usage_time" binding:"required,gte=0"`
	ScreenOnTime  *float64 `json:"screen_on_time" binding:"required,gte=0"`
	BatteryDrain  *int     `json:"battery_drain" binding:"required,gte=0"`
	AppsInstalled *int     `json:"apps_installed" binding:"required,gte=0"`
	DataUsage     *int     `json:"data_usage" binding:"required,gte=0"`
	BehaviorClass *int     `json:"behavior_class" binding:"required,gte=0"`
}

// userRequest is the body of POST /users/ and PUT /users/:id. Numeric fields
// are pointers so that a missing field is distinguishable from zero.
type userRequest struct {
	Age           *int                  `json:"age" binding:"required,gte=0"`
	Gender        string                `json:"gender" binding:"required"`
	UserBehavior  string                `json:"user_behavior" binding:"required"`
	DeviceInfo    *deviceInfoRequest    `json:"device_info" binding:"required"`
	AppUsageStats *appUsageStatsRequest `json:"app_usage_stats" binding:"required"`
}

func (r userRequest) toInput() entity.AggregateInput {
	u := r.AppUsageStats
	return entity.AggregateInput{
		Age:          *r.Age,
		Gender:       r.Gender,
		UserBehavior: r.UserBehavior,
		Device: entity.DeviceInput{
			DeviceModel:     r.DeviceInfo.DeviceModel,
			OperatingSystem: r.DeviceInfo.OperatingSystem,
		},
		Usage: entity.UsageInput{
			AppUsageTime:  *u.AppUsageTime,
			ScreenOnTime:  *u.ScreenOnTime,
			BatteryDrain:  *u.BatteryDrain,
			AppsInstalled: *u.AppsInstalled,
			DataUsage:     *u.DataUsage,
			BehaviorClass: *u.BehaviorClass,
		},
	}
}

type listQuery struct {
	Skip  int `form:"skip,default=0" binding:"gte=0"`
	Limit int `form:"limit,default=100" binding:"gte=0"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	agg, err := h.Svc.CreateAggregate(c.Request.Context(), req.toInput())
	if err != nil {
		h.fail(c, err, "error creating user")
		return
	}
	response.Success(c, http.StatusOK, agg, "user created", nil)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	agg, err := h.Svc.GetAggregate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "error retrieving user")
		return
	}
	response.Success(c, http.StatusOK, agg, "user", nil)
}

func (h *UserHandler) Latest(c *gin.Context) {
	agg, err := h.Svc.GetLatestAggregate(c.Request.Context())
	if err != nil {
		h.fail(c, err, "error retrieving the latest user")
		return
	}
	response.Success(c, http.StatusOK, agg, "latest user", nil)
}

func (h *UserHandler) List(c *gin.Context) {
	q := listQuery{Limit: defaultListLimit}
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	aggs, err := h.Svc.ListAggregates(c.Request.Context(), application.ListInput{Skip: q.Skip, Limit: q.Limit})
	if err != nil {
		h.fail(c, err, "error retrieving users")
		return
	}
	response.Success(c, http.StatusOK, aggs, "users", map[string]any{"skip": q.Skip, "limit": q.Limit, "count": len(aggs)})
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	agg, err := h.Svc.UpdateAggregate(c.Request.Context(), id, req.toInput())
	if err != nil {
		h.fail(c, err, "error updating user")
		return
	}
	response.Success(c, http.StatusOK, agg, "user updated", nil)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Svc.DeleteAggregate(c.Request.Context(), id); err != nil {
		h.fail(c, err, "error deleting user")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user_id": id}, deletedMessage, nil)
}

// fail maps a service Fault onto the response envelope. Internal causes stay
// in the logs; the caller only sees the fault's message.
func (h *UserHandler) fail(c *gin.Context, err error, internalMsg string) {
	f, ok := application.AsFault(err)
	if !ok {
		if h.Logger != nil {
			h.Logger.WithError(err).Error("unclassified service error")
		}
		response.Error[any](c, http.StatusInternalServerError, internalMsg, nil)
		return
	}
	switch f.Kind {
	case application.KindValidation:
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{f.Field: f.Message})
	case application.KindNotFound:
		if f.Op == application.OpLatest {
			response.Error[any](c, http.StatusNotFound, "No users found", nil)
			return
		}
		response.Error[any](c, http.StatusNotFound, "User not found", gin.H{"user_id": f.ID})
	default:
		detail := gin.H{"cause": f.Message}
		if f.ID != 0 {
			detail["user_id"] = f.ID
		}
		response.Error[any](c, http.StatusInternalServerError, internalMsg, detail)
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error[any](c, http.StatusBadRequest, invalidIDMessage, map[string]string{"user_id": "must be an integer"})
		return 0, false
	}
	return id, true
}
