package routes

import (
	"alarmsync/controllers"

	"github.com/gin-gonic/gin"
)

// SetupMigrationRoutes configures backend migration and reconciliation endpoints
func SetupMigrationRoutes(router *gin.RouterGroup, migrationController *controllers.MigrationController) {
	alarms := router.Group("/alarms")

	alarms.GET("/eligibility", migrationController.GetEligibility)
	alarms.POST("/migrate", migrationController.Migrate)
	alarms.GET("/health", migrationController.HealthCheck)
	alarms.POST("/emergency-stop", migrationController.EmergencyStop)
}
