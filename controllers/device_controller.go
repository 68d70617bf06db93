package controllers

import (
	"alarmsync/models"
	"alarmsync/services"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type DeviceController struct {
	authService       *services.AuthService
	capabilityService *services.CapabilityService
	validation        *utils.ValidationService
}

func NewDeviceController(
	authService *services.AuthService,
	capabilityService *services.CapabilityService,
	validation *utils.ValidationService,
) *DeviceController {
	return &DeviceController{
		authService:       authService,
		capabilityService: capabilityService,
		validation:        validation,
	}
}

// GetDevice returns the authenticated device's record
func (dc *DeviceController) GetDevice(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	device, err := dc.authService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Device retrieved", device)
}

// ReportCapability applies the device's self-reported capability state
func (dc *DeviceController) ReportCapability(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	var req models.ReportCapabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := dc.validation.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	device, err := dc.capabilityService.ReportCapability(c.Request.Context(), deviceID, req)
	if err != nil {
		logrus.Errorf("Capability report for device %s failed: %v", deviceID, err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Capability updated", device)
}

// RequestAuthorization asks the device to show the native-alarm permission prompt
func (dc *DeviceController) RequestAuthorization(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	device, err := dc.authService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	prompted := dc.capabilityService.RequestAuthorization(c.Request.Context(), device)

	utils.SuccessResponse(c, "Authorization request processed", gin.H{
		"prompted": prompted,
	})
}
