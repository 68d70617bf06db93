package controllers

import (
	"net/http"
	"time"

	"alarmsync/models"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type SystemController struct {
	db      *mongo.Database
	redis   *redis.Client
	started time.Time
	version string
}

func NewSystemController(db *mongo.Database, redisClient *redis.Client, version string) *SystemController {
	return &SystemController{
		db:      db,
		redis:   redisClient,
		started: time.Now(),
		version: version,
	}
}

// HealthCheck reports process liveness plus mongo and redis reachability
func (sc *SystemController) HealthCheck(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	ctx := c.Request.Context()

	if err := sc.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		checks["mongodb"] = "unreachable"
		healthy = false
	} else {
		checks["mongodb"] = "ok"
	}

	if err := sc.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   sc.version,
		Uptime:    time.Since(sc.started).String(),
		Services:  checks,
	})
}

// APIInfo describes the service for anonymous callers
func (sc *SystemController) APIInfo(c *gin.Context) {
	utils.SuccessResponse(c, "alarmsync API", gin.H{
		"version":   sc.version,
		"websocket": "/ws",
		"health":    "/health",
	})
}
