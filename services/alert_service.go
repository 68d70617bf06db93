package services

import (
	"alarmsync/models"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AlertService texts an operator when the scheduler hits a catastrophic path.
// With no alert number configured it degrades to log-only.
type AlertService struct {
	sms        SMSSender
	alertPhone string
}

func NewAlertService(sms SMSSender, alertPhone string) *AlertService {
	return &AlertService{
		sms:        sms,
		alertPhone: alertPhone,
	}
}

func (s *AlertService) EmergencyStopTriggered(ctx context.Context, deviceID string, alarmCount int) {
	s.send(ctx, fmt.Sprintf(
		"alarmsync: emergency stop on device %s, %d alarms deactivated", deviceID, alarmCount))
}

func (s *AlertService) HealthIssuesDetected(ctx context.Context, deviceID string, issues []models.HealthIssue) {
	if len(issues) == 0 {
		return
	}
	s.send(ctx, fmt.Sprintf(
		"alarmsync: health check found %d issue(s) on device %s", len(issues), deviceID))
}

func (s *AlertService) send(ctx context.Context, body string) {
	if s.sms == nil || s.alertPhone == "" {
		logrus.Warnf("Operator alert (SMS disabled): %s", body)
		return
	}

	if _, err := s.sms.SendSMS(ctx, s.alertPhone, body); err != nil {
		logrus.Errorf("Failed to send operator alert SMS: %v", err)
	}
}
