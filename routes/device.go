package routes

import (
	"alarmsync/controllers"

	"github.com/gin-gonic/gin"
)

// SetupDeviceRoutes configures device profile and capability endpoints
func SetupDeviceRoutes(router *gin.RouterGroup, deviceController *controllers.DeviceController) {
	devices := router.Group("/devices")

	devices.GET("/me", deviceController.GetDevice)
	devices.PUT("/me/capability", deviceController.ReportCapability)
	devices.POST("/me/authorization/request", deviceController.RequestAuthorization)
}
