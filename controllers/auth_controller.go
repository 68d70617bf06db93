package controllers

import (
	"alarmsync/models"
	"alarmsync/services"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	authService *services.AuthService
	validation  *utils.ValidationService
}

func NewAuthController(authService *services.AuthService, validation *utils.ValidationService) *AuthController {
	return &AuthController{
		authService: authService,
		validation:  validation,
	}
}

// RegisterDevice registers a new device installation and returns a bearer token
func (ac *AuthController) RegisterDevice(c *gin.Context) {
	var req models.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := ac.validation.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	resp, err := ac.authService.RegisterDevice(c.Request.Context(), req)
	if err != nil {
		logrus.Errorf("Device registration failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Device registered successfully", resp)
}

// Login authenticates an existing device
func (ac *AuthController) Login(c *gin.Context) {
	var req models.LoginDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	resp, err := ac.authService.Login(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Login successful", resp)
}
