package controllers

import (
	"alarmsync/models"
	"alarmsync/services"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AlarmController struct {
	alarmService *services.AlarmService
	validation   *utils.ValidationService
}

func NewAlarmController(alarmService *services.AlarmService, validation *utils.ValidationService) *AlarmController {
	return &AlarmController{
		alarmService: alarmService,
		validation:   validation,
	}
}

// GetAlarms returns the device's alarm collection
func (ac *AlarmController) GetAlarms(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	alarms, err := ac.alarmService.GetAlarms(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alarms retrieved", alarms)
}

// GetAlarm returns a single alarm
func (ac *AlarmController) GetAlarm(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	alarm, err := ac.alarmService.GetAlarm(c.Request.Context(), deviceID, c.Param("id"))
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alarm retrieved", alarm)
}

// CreateAlarm creates an alarm and arms it when active
func (ac *AlarmController) CreateAlarm(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	var req models.CreateAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := ac.validation.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	alarm, err := ac.alarmService.CreateAlarm(c.Request.Context(), deviceID, req)
	if err != nil {
		logrus.Errorf("Create alarm failed: %v", err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Alarm created", alarm)
}

// UpdateAlarm edits time/days/payload, re-scheduling under the current mode
func (ac *AlarmController) UpdateAlarm(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	var req models.UpdateAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := ac.validation.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	alarm, err := ac.alarmService.UpdateAlarm(c.Request.Context(), deviceID, c.Param("id"), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alarm updated", alarm)
}

// ToggleAlarm arms or disarms an alarm
func (ac *AlarmController) ToggleAlarm(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	var req models.ToggleAlarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	alarm, err := ac.alarmService.ToggleAlarm(c.Request.Context(), deviceID, c.Param("id"), req.IsActive)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alarm toggled", alarm)
}

// DeleteAlarm cancels live deliveries and removes the alarm
func (ac *AlarmController) DeleteAlarm(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	if err := ac.alarmService.DeleteAlarm(c.Request.Context(), deviceID, c.Param("id")); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Alarm deleted", nil)
}
