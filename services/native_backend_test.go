package services

import (
	"context"
	"errors"
	"testing"

	"alarmsync/models"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandleRegistry is an in-memory handleRegistry with injectable failures.
type fakeHandleRegistry struct {
	sets map[string]map[string]struct{}
	fail bool
}

func newFakeHandleRegistry() *fakeHandleRegistry {
	return &fakeHandleRegistry{sets: make(map[string]map[string]struct{})}
}

func (r *fakeHandleRegistry) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if r.fail {
		cmd.SetErr(errors.New("registry unavailable"))
		return cmd
	}
	if r.sets[key] == nil {
		r.sets[key] = make(map[string]struct{})
	}
	var added int64
	for _, member := range members {
		handle := member.(string)
		if _, ok := r.sets[key][handle]; !ok {
			r.sets[key][handle] = struct{}{}
			added++
		}
	}
	cmd.SetVal(added)
	return cmd
}

func (r *fakeHandleRegistry) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if r.fail {
		cmd.SetErr(errors.New("registry unavailable"))
		return cmd
	}
	var removed int64
	for _, member := range members {
		handle := member.(string)
		if _, ok := r.sets[key][handle]; ok {
			delete(r.sets[key], handle)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (r *fakeHandleRegistry) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if r.fail {
		cmd.SetErr(errors.New("registry unavailable"))
		return cmd
	}
	var deleted int64
	for _, key := range keys {
		if _, ok := r.sets[key]; ok {
			delete(r.sets, key)
			deleted++
		}
	}
	cmd.SetVal(deleted)
	return cmd
}

func (r *fakeHandleRegistry) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if r.fail {
		cmd.SetErr(errors.New("registry unavailable"))
		return cmd
	}
	members := make([]string, 0, len(r.sets[key]))
	for handle := range r.sets[key] {
		members = append(members, handle)
	}
	cmd.SetVal(members)
	return cmd
}

func newNativeUnderTest() (*NativeBackend, *fakeHandleRegistry, *fakeCommandSender) {
	registry := newFakeHandleRegistry()
	sender := &fakeCommandSender{}
	backend := NewNativeBackend(sender, registry, NewCapabilityService(nil, nil, nil))
	return backend, registry, sender
}

func commandTypes(sent []map[string]string) []string {
	var types []string
	for _, data := range sent {
		types = append(types, data["type"])
	}
	return types
}

func TestNativeScheduleSendsSetCommand(t *testing.T) {
	backend, _, sender := newNativeUnderTest()
	device := testDevice()
	alarm := newRepeatingAlarm(device, 1, 3)

	handles, err := backend.Schedule(context.Background(), device, alarm)

	require.NoError(t, err)
	require.Len(t, handles, 1)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alarm.set", sender.sent[0]["type"])
	assert.Equal(t, handles[0], sender.sent[0]["handle"])
	assert.Equal(t, "1,3", sender.sent[0]["repeatDays"])

	listed, err := backend.List(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, handles, listed)
}

func TestNativeCancelSendsCommandForUnregisteredHandle(t *testing.T) {
	backend, _, sender := newNativeUnderTest()
	device := testDevice()

	// The registry has never heard of this handle; the device may still have
	// it armed, so the cancel command goes out regardless.
	err := backend.Cancel(context.Background(), device, "nat_ghost")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alarm.cancel", sender.sent[0]["type"])
	assert.Equal(t, "nat_ghost", sender.sent[0]["handle"])
}

func TestNativeCancelSurvivesLostRegistryWrite(t *testing.T) {
	backend, registry, sender := newNativeUnderTest()
	device := testDevice()
	alarm := newRepeatingAlarm(device, 2)

	// Arm while the registry is down: the device is armed, the set is empty.
	registry.fail = true
	handles, err := backend.Schedule(context.Background(), device, alarm)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	registry.fail = false

	err = backend.Cancel(context.Background(), device, handles[0])

	require.NoError(t, err)
	assert.Equal(t, []string{"alarm.set", "alarm.cancel"}, commandTypes(sender.sent))
}

func TestNativeCancelStillSendsWhenRegistryDown(t *testing.T) {
	backend, registry, sender := newNativeUnderTest()
	device := testDevice()
	registry.fail = true

	err := backend.Cancel(context.Background(), device, "nat_1")

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alarm.cancel", sender.sent[0]["type"])
}

func TestNativeCancelWithoutPushRoute(t *testing.T) {
	backend, _, sender := newNativeUnderTest()
	device := testDevice()
	device.FCMToken = ""

	err := backend.Cancel(context.Background(), device, "nat_1")

	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestNativeScheduleRequiresCapability(t *testing.T) {
	backend, _, sender := newNativeUnderTest()
	device := testDevice()
	device.AuthorizationStatus = models.AuthorizationDenied

	_, err := backend.Schedule(context.Background(), device, newRepeatingAlarm(device, 1))

	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestNativeCancelAllClearsRegistryAndDevice(t *testing.T) {
	backend, _, sender := newNativeUnderTest()
	device := testDevice()
	alarm := newRepeatingAlarm(device, 4)

	_, err := backend.Schedule(context.Background(), device, alarm)
	require.NoError(t, err)

	backend.CancelAll(context.Background(), device)

	listed, err := backend.List(context.Background(), device)
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Equal(t, []string{"alarm.set", "alarm.cancel_all"}, commandTypes(sender.sent))
}
