package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alarmsync/models"
	"alarmsync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeAlarmStore is an in-memory AlarmStore. It also serves as the engine's
// AlarmSaver, the same double duty repositories.AlarmRepository has in
// production.
type fakeAlarmStore struct {
	alarms []*models.Alarm
	saves  int
}

func (s *fakeAlarmStore) Create(ctx context.Context, alarm *models.Alarm) error {
	if alarm.ID.IsZero() {
		alarm.ID = primitive.NewObjectID()
	}
	s.alarms = append(s.alarms, alarm)
	return nil
}

func (s *fakeAlarmStore) GetByID(ctx context.Context, id string) (*models.Alarm, error) {
	for _, alarm := range s.alarms {
		if alarm.ID.Hex() == id {
			return alarm, nil
		}
	}
	return nil, errors.New("alarm not found")
}

func (s *fakeAlarmStore) GetByDevice(ctx context.Context, deviceID string) ([]*models.Alarm, error) {
	var out []*models.Alarm
	for _, alarm := range s.alarms {
		if alarm.DeviceID.Hex() == deviceID {
			out = append(out, alarm)
		}
	}
	return out, nil
}

func (s *fakeAlarmStore) Save(ctx context.Context, alarm *models.Alarm) error {
	s.saves++
	return nil
}

func (s *fakeAlarmStore) Delete(ctx context.Context, id string) error {
	for i, alarm := range s.alarms {
		if alarm.ID.Hex() == id {
			s.alarms = append(s.alarms[:i], s.alarms[i+1:]...)
			return nil
		}
	}
	return errors.New("alarm not found")
}

type fakeDeviceStore struct {
	device *models.Device
}

func (s *fakeDeviceStore) GetByID(ctx context.Context, id string) (*models.Device, error) {
	if s.device != nil && s.device.ID.Hex() == id {
		return s.device, nil
	}
	return nil, errors.New("device not found")
}

// newCollectionService wires an AlarmService over in-memory fakes, the same
// shape the process service graph has in production.
func newCollectionService(device *models.Device, alarms ...*models.Alarm) (*AlarmService, *fakeBackend, *fakeBackend) {
	native := newFakeBackend(models.DeliveryModeNative)
	notification := newFakeBackend(models.DeliveryModeNotification)
	store := &fakeAlarmStore{alarms: alarms}
	engine := NewMigrationService(native, notification, store, nil)
	probe := NewCapabilityService(nil, nil, nil)
	service := NewAlarmService(store, &fakeDeviceStore{device: device}, probe,
		native, notification, engine, nil, nil)
	return service, native, notification
}

func eligibilityService() *AlarmService {
	probe := NewCapabilityService(nil, nil, nil)
	return NewAlarmService(nil, nil, probe, nil, nil, nil, nil, nil)
}

func alarmIn(mode models.DeliveryMode, active bool) *models.Alarm {
	alarm := &models.Alarm{
		ID:           primitive.NewObjectID(),
		FireTime:     "06:45",
		IsActive:     active,
		DeliveryMode: mode,
	}
	if active {
		if mode == models.DeliveryModeNative {
			alarm.SetNativeDelivery("nat_x")
		} else {
			alarm.SetNotificationDelivery([]string{"ntf_x"})
		}
	}
	return alarm
}

func TestEvaluateMigrationEligibility(t *testing.T) {
	service := eligibilityService()

	device := &models.Device{
		NativeAlarmSupported: true,
		AuthorizationStatus:  models.AuthorizationAuthorized,
	}

	alarms := []*models.Alarm{
		alarmIn(models.DeliveryModeNotification, true),  // eligible
		alarmIn(models.DeliveryModeNotification, true),  // eligible
		alarmIn(models.DeliveryModeNotification, false), // inactive, not eligible
		alarmIn(models.DeliveryModeNative, true),        // already native
		alarmIn(models.DeliveryModeNative, false),
	}

	eligibility := service.EvaluateMigrationEligibility(device, alarms)

	assert.Equal(t, 2, eligibility.NativeCount)
	assert.Equal(t, 3, eligibility.NotificationCount)
	assert.Equal(t, 2, eligibility.EligibleCount)
}

func TestEvaluateMigrationEligibilityWithoutCapability(t *testing.T) {
	service := eligibilityService()

	device := &models.Device{
		NativeAlarmSupported: true,
		AuthorizationStatus:  models.AuthorizationDenied,
	}

	alarms := []*models.Alarm{
		alarmIn(models.DeliveryModeNotification, true),
		alarmIn(models.DeliveryModeNotification, true),
	}

	eligibility := service.EvaluateMigrationEligibility(device, alarms)

	// Counts still describe the collection, but nothing is eligible while the
	// probe answers no.
	assert.Equal(t, 2, eligibility.NotificationCount)
	assert.Equal(t, 0, eligibility.EligibleCount)
}

func TestEvaluateMigrationEligibilityEmptyCollection(t *testing.T) {
	service := eligibilityService()

	device := &models.Device{
		NativeAlarmSupported: true,
		AuthorizationStatus:  models.AuthorizationAuthorized,
	}

	eligibility := service.EvaluateMigrationEligibility(device, nil)

	assert.Zero(t, eligibility.NativeCount)
	assert.Zero(t, eligibility.NotificationCount)
	assert.Zero(t, eligibility.EligibleCount)
}

func TestMigrateAllEligibleFiltersCollection(t *testing.T) {
	device := testDevice()
	eligible1 := newRepeatingAlarm(device, 1)
	eligible2 := newRepeatingAlarm(device, 2, 4)
	alreadyNative := newRepeatingAlarm(device, 3)
	inactive := newRepeatingAlarm(device, 5)
	inactive.IsActive = false

	service, native, notification := newCollectionService(device,
		eligible1, eligible2, alreadyNative, inactive)
	armOn(t, notification, device, eligible1)
	armOn(t, notification, device, eligible2)
	armOn(t, native, device, alreadyNative)

	result, err := service.MigrateAllEligible(context.Background(), device.ID.Hex(), models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalAlarms)
	assert.Equal(t, 2, result.MigratedAlarms)
	assert.Equal(t, 0, result.SkippedAlarms)
	assert.Equal(t, 0, result.FailedAlarms)

	// Only the two eligible alarms moved; the rest were never handed to the
	// engine.
	assert.Equal(t, models.DeliveryModeNative, eligible1.DeliveryMode)
	assert.Equal(t, models.DeliveryModeNative, eligible2.DeliveryMode)
	assert.Len(t, native.handles, 3)
	assert.Empty(t, notification.handles)
	assert.False(t, inactive.IsActive)
	assert.Equal(t, models.DeliveryModeNotification, inactive.DeliveryMode)
}

func TestMigrateAllEligibleShortCircuitsAtZeroEligible(t *testing.T) {
	device := testDevice()
	alreadyNative := newRepeatingAlarm(device, 1)
	inactive := newRepeatingAlarm(device, 2)
	inactive.IsActive = false

	service, native, notification := newCollectionService(device, alreadyNative, inactive)
	armOn(t, native, device, alreadyNative)
	callsBefore := native.scheduleCalls

	result, err := service.MigrateAllEligible(context.Background(), device.ID.Hex(), models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Zero(t, result.TotalAlarms)
	assert.Zero(t, result.MigratedAlarms)
	require.NotNil(t, result.Errors)
	assert.Empty(t, result.Errors)

	// No backend was touched.
	assert.Equal(t, callsBefore, native.scheduleCalls)
	assert.Zero(t, native.cancelCalls)
	assert.Zero(t, notification.scheduleCalls)
	assert.Zero(t, notification.cancelCalls)
}

func TestMigrateAllEligibleGatedByCapability(t *testing.T) {
	device := testDevice()
	device.AuthorizationStatus = models.AuthorizationDenied
	alarm := newRepeatingAlarm(device, 1)

	service, native, notification := newCollectionService(device, alarm)
	armOn(t, notification, device, alarm)

	result, err := service.MigrateAllEligible(context.Background(), device.ID.Hex(), models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Zero(t, result.TotalAlarms)
	assert.Zero(t, native.scheduleCalls)
	assert.Equal(t, models.DeliveryModeNotification, alarm.DeliveryMode)
}

// An API migrate request and a capability-triggered migration for the same
// device both go through the shared service and contend on its collection
// guard, so the alarm ends with exactly one live native registration no matter
// how the two callers interleave.
func TestMigrateAllEligibleSerializesConcurrentCallers(t *testing.T) {
	device := testDevice()
	alarm := newRepeatingAlarm(device, 1)

	service, native, notification := newCollectionService(device, alarm)
	armOn(t, notification, device, alarm)

	results := make([]*models.MigrationResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.MigrateAllEligible(
				context.Background(), device.ID.Hex(), models.DeliveryModeNative)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one caller migrated; the other saw an already-native collection
	// and short-circuited.
	assert.Equal(t, 1, results[0].MigratedAlarms+results[1].MigratedAlarms)
	assert.Equal(t, 1, native.scheduleCalls)
	assert.Len(t, native.handles, 1)
	assert.Empty(t, notification.handles)
	assert.NoError(t, alarm.ValidateDelivery())
	assert.Equal(t, models.DeliveryModeNative, alarm.DeliveryMode)
}

// handlelessBackend claims success while returning no handles, a broken
// backend contract.
type handlelessBackend struct{}

func (handlelessBackend) Mode() models.DeliveryMode { return models.DeliveryModeNative }
func (handlelessBackend) Schedule(context.Context, *models.Device, *models.Alarm) ([]string, error) {
	return nil, nil
}
func (handlelessBackend) Cancel(context.Context, *models.Device, string) error   { return nil }
func (handlelessBackend) CancelAll(context.Context, *models.Device)              {}
func (handlelessBackend) List(context.Context, *models.Device) ([]string, error) { return nil, nil }

func TestCreateAlarmRejectsNativeScheduleWithoutHandle(t *testing.T) {
	device := testDevice()
	store := &fakeAlarmStore{}
	service := NewAlarmService(store, &fakeDeviceStore{device: device},
		NewCapabilityService(nil, nil, nil),
		handlelessBackend{}, newFakeBackend(models.DeliveryModeNotification),
		nil, nil, nil)

	alarm, err := service.CreateAlarm(context.Background(), device.ID.Hex(), models.CreateAlarmRequest{
		FireTime: "07:30",
		IsActive: true,
	})

	require.Error(t, err)
	assert.True(t, utils.HasErrorCode(err, utils.ErrCodeInternal))
	require.NotNil(t, alarm)
	assert.Empty(t, alarm.NativeHandle)
	assert.False(t, alarm.HasLiveDelivery())
}

func TestNextWeekdayOccurrence(t *testing.T) {
	// Wednesday 2026-01-07 10:00 local.
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		weekday int
		hour    int
		minute  int
		want    time.Time
	}{
		{
			name:    "later today",
			weekday: 3, // Wednesday
			hour:    18,
			minute:  30,
			want:    time.Date(2026, 1, 7, 18, 30, 0, 0, time.UTC),
		},
		{
			name:    "same weekday, time already passed, next week",
			weekday: 3,
			hour:    7,
			minute:  0,
			want:    time.Date(2026, 1, 14, 7, 0, 0, 0, time.UTC),
		},
		{
			name:    "upcoming weekday",
			weekday: 5, // Friday
			hour:    7,
			minute:  0,
			want:    time.Date(2026, 1, 9, 7, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekday earlier in the week wraps around",
			weekday: 1, // Monday
			hour:    7,
			minute:  0,
			want:    time.Date(2026, 1, 12, 7, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextWeekdayOccurrence(now, tt.weekday, tt.hour, tt.minute)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(now))
			assert.Equal(t, tt.weekday, int(got.Weekday()))
		})
	}
}
