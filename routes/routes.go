package routes

import (
	"time"

	"alarmsync/config"
	"alarmsync/controllers"
	"alarmsync/events"
	"alarmsync/middleware"
	"alarmsync/repositories"
	"alarmsync/services"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

const apiVersion = "1.0.0"

// SetupRoutes initializes all application routes over an already-built service
// graph. The graph is constructed once in main and shared with the workers:
// AlarmService's collection guard is per instance, so every caller touching a
// device's alarms must go through the same instance.
func SetupRoutes(
	cfg *config.Config,
	db *mongo.Database,
	redisClient *redis.Client,
	repos *Repositories,
	svcs *Services,
	hub *events.Hub,
) *gin.Engine {
	router := gin.New()

	// Initialize controllers
	ctrls := initializeControllers(db, redisClient, svcs, hub)

	authMiddleware := middleware.NewAuthMiddleware(svcs.JWT)

	// Global middleware
	setupGlobalMiddleware(router, cfg, redisClient)

	// Setup route groups
	setupPublicRoutes(router, ctrls)
	setupAuthenticatedRoutes(router, ctrls, authMiddleware)
	setupWebSocketRoutes(router, ctrls, authMiddleware)

	return router
}

// Repositories initialization
type Repositories struct {
	Alarm        *repositories.AlarmRepository
	Device       *repositories.DeviceRepository
	Notification *repositories.NotificationRepository
}

func NewRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		Alarm:        repositories.NewAlarmRepository(db),
		Device:       repositories.NewDeviceRepository(db),
		Notification: repositories.NewNotificationRepository(db),
	}
}

// Services initialization
type Services struct {
	JWT        *utils.JWTService
	Validation *utils.ValidationService

	Auth       *services.AuthService
	Capability *services.CapabilityService
	Migration  *services.MigrationService
	Alarm      *services.AlarmService
	Alert      *services.AlertService
}

// NewServices builds the single service graph for the process. Exactly one
// AlarmService exists per process; the reconcile worker borrows it rather than
// constructing its own.
func NewServices(
	cfg *config.Config,
	repos *Repositories,
	redisClient *redis.Client,
	hub *events.Hub,
	push *utils.PushService,
) *Services {
	jwtService := utils.NewJWTService(cfg.JWTSecret)

	capabilityService := services.NewCapabilityService(repos.Device, push, redisClient)
	nativeBackend := services.NewNativeBackend(push, redisClient, capabilityService)
	notificationBackend := services.NewNotificationBackend(repos.Notification)

	migrationService := services.NewMigrationService(nativeBackend, notificationBackend, repos.Alarm, hub)
	alertService := services.NewAlertService(push, cfg.AlertPhoneNumber)

	return &Services{
		JWT:        jwtService,
		Validation: utils.NewValidationService(),
		Auth:       services.NewAuthService(repos.Device, jwtService),
		Capability: capabilityService,
		Migration:  migrationService,
		Alarm: services.NewAlarmService(
			repos.Alarm,
			repos.Device,
			capabilityService,
			nativeBackend,
			notificationBackend,
			migrationService,
			alertService,
			hub,
		),
		Alert: alertService,
	}
}

// Controllers initialization
type Controllers struct {
	Auth      *controllers.AuthController
	Device    *controllers.DeviceController
	Alarm     *controllers.AlarmController
	Migration *controllers.MigrationController
	WS        *controllers.WSController
	System    *controllers.SystemController
}

func initializeControllers(db *mongo.Database, redisClient *redis.Client, svcs *Services, hub *events.Hub) *Controllers {
	return &Controllers{
		Auth:      controllers.NewAuthController(svcs.Auth, svcs.Validation),
		Device:    controllers.NewDeviceController(svcs.Auth, svcs.Capability, svcs.Validation),
		Alarm:     controllers.NewAlarmController(svcs.Alarm, svcs.Validation),
		Migration: controllers.NewMigrationController(svcs.Alarm, svcs.Auth, svcs.Validation),
		WS:        controllers.NewWSController(hub),
		System:    controllers.NewSystemController(db, redisClient, apiVersion),
	}
}

// Global middleware setup
func setupGlobalMiddleware(router *gin.Engine, cfg *config.Config, redisClient *redis.Client) {
	errorHandler := middleware.NewErrorHandler(cfg.Environment, logrus.StandardLogger())

	router.Use(errorHandler.Handle())
	router.Use(middleware.LoggerMiddleware(middleware.LoggerConfig{
		Logger:    logrus.StandardLogger(),
		SkipPaths: []string{"/health"},
	}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Redis:     redisClient,
		Requests:  cfg.RateLimitRequests,
		Window:    time.Duration(cfg.RateLimitWindow) * time.Minute,
		SkipPaths: []string{"/health"},
	})
	router.Use(rateLimiter.Middleware())
}

// Public routes (no authentication required)
func setupPublicRoutes(router *gin.Engine, ctrls *Controllers) {
	router.GET("/", ctrls.System.APIInfo)
	router.GET("/health", ctrls.System.HealthCheck)

	public := router.Group("/api/v1")
	{
		SetupAuthRoutes(public, ctrls.Auth)
	}
}

// Authenticated routes (require a valid device token)
func setupAuthenticatedRoutes(router *gin.Engine, ctrls *Controllers, authMiddleware *middleware.AuthMiddleware) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireAuth())

	SetupDeviceRoutes(api, ctrls.Device)
	SetupAlarmRoutes(api, ctrls.Alarm)
	SetupMigrationRoutes(api, ctrls.Migration)
}

// WebSocket routes
func setupWebSocketRoutes(router *gin.Engine, ctrls *Controllers, authMiddleware *middleware.AuthMiddleware) {
	router.GET("/ws", authMiddleware.RequireAuth(), ctrls.WS.Connect)
}
