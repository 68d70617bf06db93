package utils

import (
	"testing"

	"alarmsync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreateAlarmRequest(t *testing.T) {
	vs := NewValidationService()

	t.Run("valid", func(t *testing.T) {
		req := models.CreateAlarmRequest{
			FireTime:   "07:30",
			RepeatDays: []int{0, 6},
			Label:      "Wake up",
		}
		assert.Empty(t, vs.ValidateStruct(req))
	})

	t.Run("bad fire time", func(t *testing.T) {
		req := models.CreateAlarmRequest{FireTime: "7:30pm"}
		errs := vs.ValidateStruct(req)
		require.Len(t, errs, 1)
		assert.Equal(t, "fire_time", errs[0].Tag)
		assert.Contains(t, errs[0].Message, "HH:MM")
	})

	t.Run("repeat day out of range", func(t *testing.T) {
		req := models.CreateAlarmRequest{
			FireTime:   "07:30",
			RepeatDays: []int{7},
		}
		errs := vs.ValidateStruct(req)
		require.Len(t, errs, 1)
		assert.Equal(t, "max", errs[0].Tag)
	})
}

func TestValidateMigrateAlarmsRequest(t *testing.T) {
	vs := NewValidationService()

	for _, mode := range []models.DeliveryMode{models.DeliveryModeNative, models.DeliveryModeNotification} {
		assert.Empty(t, vs.ValidateStruct(models.MigrateAlarmsRequest{Target: mode}))
	}

	errs := vs.ValidateStruct(models.MigrateAlarmsRequest{Target: "pager"})
	require.Len(t, errs, 1)
	assert.Equal(t, "delivery_mode", errs[0].Tag)
}

func TestValidateReportCapabilityRequest(t *testing.T) {
	vs := NewValidationService()

	supported := true
	assert.Empty(t, vs.ValidateStruct(models.ReportCapabilityRequest{
		NativeAlarmSupported: &supported,
		AuthorizationStatus:  models.AuthorizationAuthorized,
	}))

	errs := vs.ValidateStruct(models.ReportCapabilityRequest{
		AuthorizationStatus: "maybe",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "oneof", errs[0].Tag)
}
