package services

import (
	"alarmsync/models"
	"alarmsync/utils"
	"context"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// handleRegistry is the slice of redis the native backend uses for its
// diagnostics set. Satisfied by *redis.Client.
type handleRegistry interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// NativeBackend drives the device's OS alarm facility over silent FCM data
// commands. A single handle covers the whole recurring rule. The per-device
// redis set backing List is diagnostics only: its content never decides
// whether a command reaches the device.
type NativeBackend struct {
	push     CommandSender
	registry handleRegistry
	probe    *CapabilityService
}

func NewNativeBackend(push CommandSender, registry handleRegistry, probe *CapabilityService) *NativeBackend {
	return &NativeBackend{
		push:     push,
		registry: registry,
		probe:    probe,
	}
}

func (nb *NativeBackend) Mode() models.DeliveryMode {
	return models.DeliveryModeNative
}

func (nb *NativeBackend) Schedule(ctx context.Context, device *models.Device, alarm *models.Alarm) ([]string, error) {
	if !nb.probe.CanUseNative(device) {
		return nil, utils.NewBackendUnavailableError("native", "native alarm facility not available or not authorized")
	}
	if device.FCMToken == "" {
		return nil, utils.NewBackendUnavailableError("native", "device has no FCM token")
	}

	handle := utils.GenerateHandle("nat")

	data := map[string]string{
		"type":     "alarm.set",
		"handle":   handle,
		"alarmId":  alarm.ID.Hex(),
		"fireTime": alarm.FireTime,
		"label":    alarm.Payload.Label,
		"sound":    alarm.Payload.Sound,
		"vibrate":  strconv.FormatBool(alarm.Payload.Vibrate),
	}
	if len(alarm.RepeatDays) > 0 {
		data["repeatDays"] = joinDays(alarm.RepeatDays)
	}

	if _, err := nb.push.SendCommand(ctx, device.FCMToken, data); err != nil {
		return nil, utils.NewSchedulingFailedError("native", err)
	}

	// The alarm is armed on the device at this point. A registry write failure
	// only degrades List, which the health check will surface.
	if err := nb.registry.SAdd(ctx, nb.registryKey(device), handle).Err(); err != nil {
		logrus.Warnf("Failed to register native handle %s for device %s: %v", handle, device.ID.Hex(), err)
	}

	return []string{handle}, nil
}

// Cancel always sends the cancel command when the device has a push route,
// regardless of what the registry claims: a handle the registry lost (failed
// SAdd, flushed set) may still be armed on the device. The device treats an
// unknown handle as already cancelled.
func (nb *NativeBackend) Cancel(ctx context.Context, device *models.Device, handle string) error {
	if err := nb.registry.SRem(ctx, nb.registryKey(device), handle).Err(); err != nil {
		logrus.Warnf("Failed to deregister native handle %s for device %s: %v", handle, device.ID.Hex(), err)
	}

	if device.FCMToken == "" {
		return nil
	}

	_, err := nb.push.SendCommand(ctx, device.FCMToken, map[string]string{
		"type":   "alarm.cancel",
		"handle": handle,
	})
	if err != nil {
		return utils.NewCancelError("native", handle, err)
	}

	return nil
}

func (nb *NativeBackend) CancelAll(ctx context.Context, device *models.Device) {
	if err := nb.registry.Del(ctx, nb.registryKey(device)).Err(); err != nil {
		logrus.Warnf("Failed to clear native handle registry for device %s: %v", device.ID.Hex(), err)
	}

	if device.FCMToken == "" {
		return
	}

	_, err := nb.push.SendCommand(ctx, device.FCMToken, map[string]string{
		"type": "alarm.cancel_all",
	})
	if err != nil {
		logrus.Warnf("Native cancel-all command for device %s failed: %v", device.ID.Hex(), err)
	}
}

func (nb *NativeBackend) List(ctx context.Context, device *models.Device) ([]string, error) {
	handles, err := nb.registry.SMembers(ctx, nb.registryKey(device)).Result()
	if err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "failed to list native handles", err)
	}
	return handles, nil
}

func (nb *NativeBackend) registryKey(device *models.Device) string {
	return "native:handles:" + device.ID.Hex()
}

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
