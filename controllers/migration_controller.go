package controllers

import (
	"alarmsync/models"
	"alarmsync/services"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type MigrationController struct {
	alarmService *services.AlarmService
	authService  *services.AuthService
	validation   *utils.ValidationService
}

func NewMigrationController(
	alarmService *services.AlarmService,
	authService *services.AuthService,
	validation *utils.ValidationService,
) *MigrationController {
	return &MigrationController{
		alarmService: alarmService,
		authService:  authService,
		validation:   validation,
	}
}

// GetEligibility classifies the device's alarms without mutating anything
func (mc *MigrationController) GetEligibility(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	device, err := mc.authService.GetDevice(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	alarms, err := mc.alarmService.GetAlarms(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	eligibility := mc.alarmService.EvaluateMigrationEligibility(device, alarms)
	utils.SuccessResponse(c, "Eligibility evaluated", eligibility)
}

// Migrate moves all eligible alarms to the requested backend. Reverting to
// notifications is the same endpoint with target=notification.
func (mc *MigrationController) Migrate(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	var req models.MigrateAlarmsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if validationErrors := mc.validation.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := mc.alarmService.MigrateAllEligible(c.Request.Context(), deviceID, req.Target)
	if err != nil {
		logrus.Errorf("Migration for device %s failed: %v", deviceID, err)
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Migration finished", result)
}

// HealthCheck cross-checks record state against the backends
func (mc *MigrationController) HealthCheck(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	report, err := mc.alarmService.HealthCheck(c.Request.Context(), deviceID)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Health check finished", report)
}

// EmergencyStop cancels every delivery and deactivates every alarm.
// Destructive; alarms stay off until the user re-arms them.
func (mc *MigrationController) EmergencyStop(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	if err := mc.alarmService.EmergencyStop(c.Request.Context(), deviceID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency stop executed", nil)
}
