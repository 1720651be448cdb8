package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"agentchat/internal/transport/http/response"
)

// Probes lists the dependencies reported by /healthz. Nil Redis or MQConn
// means the dependency is disabled and it is left out of the report.
type Probes struct {
	AppName   string
	Env       string
	StartedAt time.Time
	DB        *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
}

type HealthHandler struct {
	probes Probes
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(probes Probes) *HealthHandler {
	return &HealthHandler{probes: probes}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.checkDatabase(ctx)
	deps := gin.H{"database": dbStatus}
	allOK := dbStatus.OK
	if h.probes.Redis != nil {
		st := h.checkRedis(ctx)
		deps["redis"] = st
		allOK = allOK && st.OK
	}
	if h.probes.MQConn != nil {
		st := h.checkRabbitMQ()
		deps["rabbitmq"] = st
		allOK = allOK && st.OK
	}

	statusCode, message := http.StatusOK, "healthy"
	if !allOK {
		statusCode, message = http.StatusServiceUnavailable, "unhealthy"
	}
	response.JSON(c, statusCode, message, gin.H{
		"app":          h.probes.AppName,
		"env":          h.probes.Env,
		"uptime_sec":   int(time.Since(h.probes.StartedAt).Seconds()),
		"dependencies": deps,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dependencyStatus {
	if h.probes.DB == nil {
		return dependencyStatus{OK: false, Message: "not configured"}
	}
	sqlDB, err := h.probes.DB.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := h.probes.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.probes.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
