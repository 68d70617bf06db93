package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"alarmsync/models"
	"alarmsync/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeBackend is an in-memory DeliveryBackend with injectable failures.
type fakeBackend struct {
	mode            models.DeliveryMode
	handles         map[string]string // handle -> alarm id
	seq             int
	scheduleCalls   int
	cancelCalls     int
	failScheduleAll bool
	failScheduleFor map[string]bool
	failCancel      bool
}

func newFakeBackend(mode models.DeliveryMode) *fakeBackend {
	return &fakeBackend{
		mode:            mode,
		handles:         make(map[string]string),
		failScheduleFor: make(map[string]bool),
	}
}

func (fb *fakeBackend) Mode() models.DeliveryMode {
	return fb.mode
}

func (fb *fakeBackend) Schedule(ctx context.Context, device *models.Device, alarm *models.Alarm) ([]string, error) {
	fb.scheduleCalls++
	if fb.failScheduleAll || fb.failScheduleFor[alarm.ID.Hex()] {
		return nil, errors.New(string(fb.mode) + " backend unavailable")
	}

	count := 1
	if fb.mode == models.DeliveryModeNotification && len(alarm.RepeatDays) > 0 {
		count = len(alarm.RepeatDays)
	}

	var out []string
	for i := 0; i < count; i++ {
		fb.seq++
		handle := fmt.Sprintf("%s_%d", fb.mode, fb.seq)
		fb.handles[handle] = alarm.ID.Hex()
		out = append(out, handle)
	}
	return out, nil
}

func (fb *fakeBackend) Cancel(ctx context.Context, device *models.Device, handle string) error {
	fb.cancelCalls++
	if fb.failCancel {
		return errors.New("cancel failed")
	}
	delete(fb.handles, handle)
	return nil
}

func (fb *fakeBackend) CancelAll(ctx context.Context, device *models.Device) {
	fb.handles = make(map[string]string)
}

func (fb *fakeBackend) List(ctx context.Context, device *models.Device) ([]string, error) {
	out := make([]string, 0, len(fb.handles))
	for handle := range fb.handles {
		out = append(out, handle)
	}
	return out, nil
}

type memorySaver struct {
	saves int
	fail  bool
}

func (s *memorySaver) Save(ctx context.Context, alarm *models.Alarm) error {
	if s.fail {
		return errors.New("save failed")
	}
	s.saves++
	return nil
}

type recordingEmitter struct {
	events []models.MigrationEvent
}

func (re *recordingEmitter) Emit(event models.MigrationEvent) {
	re.events = append(re.events, event)
}

func (re *recordingEmitter) typesSeen() []string {
	var types []string
	for _, event := range re.events {
		types = append(types, event.Type)
	}
	return types
}

func newTestEngine() (*MigrationService, *fakeBackend, *fakeBackend, *memorySaver, *recordingEmitter) {
	native := newFakeBackend(models.DeliveryModeNative)
	notification := newFakeBackend(models.DeliveryModeNotification)
	saver := &memorySaver{}
	emitter := &recordingEmitter{}
	engine := NewMigrationService(native, notification, saver, emitter)
	return engine, native, notification, saver, emitter
}

func testDevice() *models.Device {
	return &models.Device{
		ID:                   primitive.NewObjectID(),
		FCMToken:             "test-token",
		NativeAlarmSupported: true,
		AuthorizationStatus:  models.AuthorizationAuthorized,
	}
}

func newRepeatingAlarm(device *models.Device, days ...int) *models.Alarm {
	return &models.Alarm{
		ID:           primitive.NewObjectID(),
		DeviceID:     device.ID,
		FireTime:     "07:30",
		RepeatDays:   days,
		IsActive:     true,
		DeliveryMode: models.DeliveryModeNotification,
	}
}

// armOn schedules the alarm on the given backend and commits the handles, the
// same state an armed alarm has in production before a migration starts.
func armOn(t *testing.T, backend *fakeBackend, device *models.Device, alarm *models.Alarm) {
	t.Helper()

	handles, err := backend.Schedule(context.Background(), device, alarm)
	require.NoError(t, err)

	alarm.DeliveryMode = backend.mode
	if backend.mode == models.DeliveryModeNative {
		alarm.SetNativeDelivery(handles[0])
	} else {
		alarm.SetNotificationDelivery(handles)
	}
}

func TestMigrateOneCommitsToNative(t *testing.T) {
	engine, native, notification, saver, emitter := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 1, 3, 5)
	armOn(t, notification, device, alarm)
	require.Len(t, notification.handles, 3)

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, status)

	assert.Equal(t, models.DeliveryModeNative, alarm.DeliveryMode)
	assert.NotEmpty(t, alarm.NativeHandle)
	assert.Empty(t, alarm.NotificationHandles)
	assert.NoError(t, alarm.ValidateDelivery())

	// Old occurrences are gone, exactly one native registration exists.
	assert.Empty(t, notification.handles)
	assert.Len(t, native.handles, 1)

	assert.Equal(t, 1, saver.saves)
	assert.Equal(t, []string{models.EventAlarmMigrated}, emitter.typesSeen())
}

func TestMigrateOneIsIdempotent(t *testing.T) {
	engine, native, _, _, _ := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 2)
	armOn(t, native, device, alarm)
	handleBefore := alarm.NativeHandle
	callsBefore := native.scheduleCalls

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Equal(t, handleBefore, alarm.NativeHandle)
	assert.Equal(t, callsBefore, native.scheduleCalls)
	assert.Len(t, native.handles, 1)
}

func TestMigrateOneSkipsInactiveAlarm(t *testing.T) {
	engine, native, notification, _, emitter := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 0)
	alarm.IsActive = false

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Zero(t, native.scheduleCalls)
	assert.Zero(t, notification.scheduleCalls)
	assert.Equal(t, []string{models.EventAlarmSkipped}, emitter.typesSeen())
}

func TestMigrateOneRollsBackWhenTargetFails(t *testing.T) {
	engine, native, notification, _, emitter := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 1, 4)
	armOn(t, notification, device, alarm)
	native.failScheduleAll = true

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	require.Error(t, err)
	assert.Equal(t, StatusRolledBack, status)

	// The compensating re-schedule restored delivery on the original backend.
	assert.True(t, alarm.IsActive)
	assert.Equal(t, models.DeliveryModeNotification, alarm.DeliveryMode)
	assert.True(t, alarm.HasLiveDelivery())
	assert.Len(t, notification.handles, 2)
	assert.Empty(t, native.handles)

	assert.Equal(t, []string{models.EventAlarmFailed}, emitter.typesSeen())
}

func TestMigrateOneDeactivatesWhenRollbackAlsoFails(t *testing.T) {
	engine, native, notification, saver, _ := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 1)
	armOn(t, notification, device, alarm)

	native.failScheduleAll = true
	notification.failScheduleAll = true

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.Contains(t, err.Error(), "compensating re-schedule")

	// Fail-safe: visibly off rather than silently claiming delivery.
	assert.False(t, alarm.IsActive)
	assert.False(t, alarm.HasLiveDelivery())
	assert.Empty(t, alarm.NativeHandle)
	assert.Empty(t, alarm.NotificationHandles)
	assert.Equal(t, 1, saver.saves)
}

func TestMigrateOneSurvivesCancelFailure(t *testing.T) {
	engine, native, notification, _, _ := newTestEngine()
	device := testDevice()

	alarm := newRepeatingAlarm(device, 2, 5)
	armOn(t, notification, device, alarm)
	notification.failCancel = true

	status, err := engine.MigrateOne(context.Background(), device, alarm, models.DeliveryModeNative)

	// Cancel failures leave stale handles behind but never abort the migration.
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, status)
	assert.Equal(t, models.DeliveryModeNative, alarm.DeliveryMode)
	assert.Len(t, native.handles, 1)
}

func TestMigrateManyOutcomesAreIndependent(t *testing.T) {
	engine, native, notification, _, _ := newTestEngine()
	device := testDevice()

	good1 := newRepeatingAlarm(device, 1)
	bad := newRepeatingAlarm(device, 2)
	good2 := newRepeatingAlarm(device, 3)
	for _, alarm := range []*models.Alarm{good1, bad, good2} {
		armOn(t, notification, device, alarm)
	}

	// Only the middle alarm fails on both the target and the compensating path.
	native.failScheduleFor[bad.ID.Hex()] = true
	notification.failScheduleFor[bad.ID.Hex()] = true

	result, err := engine.MigrateMany(context.Background(), device, []*models.Alarm{good1, bad, good2}, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalAlarms)
	assert.Equal(t, 2, result.MigratedAlarms)
	assert.Equal(t, 1, result.FailedAlarms)
	assert.Equal(t, 0, result.SkippedAlarms)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], bad.ID.Hex())

	// The failure neither blocked nor reverted its neighbors.
	assert.Equal(t, models.DeliveryModeNative, good1.DeliveryMode)
	assert.Equal(t, models.DeliveryModeNative, good2.DeliveryMode)
	assert.False(t, bad.IsActive)
	assert.Len(t, native.handles, 2)
}

func TestMigrateManyCountsSkipped(t *testing.T) {
	engine, native, notification, _, _ := newTestEngine()
	device := testDevice()

	armed := newRepeatingAlarm(device, 1)
	armOn(t, notification, device, armed)

	inactive := newRepeatingAlarm(device, 2)
	inactive.IsActive = false

	alreadyNative := newRepeatingAlarm(device, 3)
	armOn(t, native, device, alreadyNative)

	result, err := engine.MigrateMany(context.Background(), device,
		[]*models.Alarm{armed, inactive, alreadyNative}, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalAlarms)
	assert.Equal(t, 1, result.MigratedAlarms)
	assert.Equal(t, 2, result.SkippedAlarms)
	assert.Equal(t, 0, result.FailedAlarms)
	assert.Empty(t, result.Errors)
}

func TestMigrateManyAbortsOnCorruptRecord(t *testing.T) {
	engine, native, notification, _, _ := newTestEngine()
	device := testDevice()

	healthy := newRepeatingAlarm(device, 1)
	armOn(t, notification, device, healthy)

	// A record claiming handles in both backends cannot have come from this
	// code; treat it as corruption, not input.
	corrupt := newRepeatingAlarm(device, 2)
	corrupt.NativeHandle = "nat_rogue"
	corrupt.NotificationHandles = []string{"ntf_rogue"}

	nativeCalls := native.scheduleCalls
	result, err := engine.MigrateMany(context.Background(), device,
		[]*models.Alarm{healthy, corrupt}, models.DeliveryModeNative)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, utils.HasErrorCode(err, utils.ErrCodeInvalidRecord))

	// The whole batch aborted before any side effect.
	assert.Equal(t, nativeCalls, native.scheduleCalls)
	assert.Equal(t, models.DeliveryModeNotification, healthy.DeliveryMode)
}

func TestMigrateManyAccountsForCancelledContext(t *testing.T) {
	engine, _, notification, _, _ := newTestEngine()
	device := testDevice()

	alarms := []*models.Alarm{
		newRepeatingAlarm(device, 1),
		newRepeatingAlarm(device, 2),
	}
	for _, alarm := range alarms {
		armOn(t, notification, device, alarm)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.MigrateMany(ctx, device, alarms, models.DeliveryModeNative)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalAlarms)
	assert.Equal(t, 2, result.FailedAlarms)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "not attempted")
	assert.Equal(t,
		result.TotalAlarms,
		result.MigratedAlarms+result.FailedAlarms+result.SkippedAlarms)
}

// TestRepeatedMigrationsNeverDoubleDeliver drives a random sequence of
// migrations and checks after every step that no alarm is ever registered in
// both backends, and that an active alarm always has live delivery.
func TestRepeatedMigrationsNeverDoubleDeliver(t *testing.T) {
	engine, native, notification, _, _ := newTestEngine()
	device := testDevice()
	rng := rand.New(rand.NewSource(42))

	alarms := []*models.Alarm{
		newRepeatingAlarm(device, 1, 2, 3),
		newRepeatingAlarm(device, 0),
		newRepeatingAlarm(device, 4, 6),
	}
	for _, alarm := range alarms {
		armOn(t, notification, device, alarm)
	}

	targets := []models.DeliveryMode{models.DeliveryModeNative, models.DeliveryModeNotification}

	for step := 0; step < 40; step++ {
		target := targets[rng.Intn(len(targets))]
		alarm := alarms[rng.Intn(len(alarms))]

		_, err := engine.MigrateOne(context.Background(), device, alarm, target)
		require.NoError(t, err)

		for _, a := range alarms {
			require.NoError(t, a.ValidateDelivery(), "step %d", step)
			require.True(t, a.HasLiveDelivery(), "step %d: active alarm lost delivery", step)

			nativeOwned := 0
			for _, owner := range native.handles {
				if owner == a.ID.Hex() {
					nativeOwned++
				}
			}
			notificationOwned := 0
			for _, owner := range notification.handles {
				if owner == a.ID.Hex() {
					notificationOwned++
				}
			}

			if a.DeliveryMode == models.DeliveryModeNative {
				require.Equal(t, 1, nativeOwned, "step %d", step)
				require.Zero(t, notificationOwned, "step %d: delivery in both backends", step)
			} else {
				require.NotZero(t, notificationOwned, "step %d", step)
				require.Zero(t, nativeOwned, "step %d: delivery in both backends", step)
			}
		}
	}
}
