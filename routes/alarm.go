package routes

import (
	"alarmsync/controllers"

	"github.com/gin-gonic/gin"
)

// SetupAlarmRoutes configures alarm CRUD endpoints
func SetupAlarmRoutes(router *gin.RouterGroup, alarmController *controllers.AlarmController) {
	alarms := router.Group("/alarms")

	alarms.GET("", alarmController.GetAlarms)
	alarms.POST("", alarmController.CreateAlarm)
	alarms.GET("/:id", alarmController.GetAlarm)
	alarms.PUT("/:id", alarmController.UpdateAlarm)
	alarms.PUT("/:id/toggle", alarmController.ToggleAlarm)
	alarms.DELETE("/:id", alarmController.DeleteAlarm)
}
