package routes

import (
	"alarmsync/controllers"

	"github.com/gin-gonic/gin"
)

// SetupAuthRoutes configures device registration and login
func SetupAuthRoutes(router *gin.RouterGroup, authController *controllers.AuthController) {
	auth := router.Group("/auth")

	auth.POST("/register", authController.RegisterDevice)
	auth.POST("/login", authController.Login)
}
