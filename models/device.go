package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Authorization states for the native alarm facility, as reported by the app.
const (
	AuthorizationNotDetermined = "notdetermined"
	AuthorizationAuthorized    = "authorized"
	AuthorizationDenied        = "denied"
)

// Device is a registered installation of the mobile app. Capability and
// authorization state is reported by the device and read by the capability
// probe; the server never guesses it.
type Device struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name     string             `json:"name" bson:"name"`
	Secret   string             `json:"-" bson:"secret"` // bcrypt hash, never serialized
	FCMToken string             `json:"-" bson:"fcmToken"`

	Platform   string `json:"platform" bson:"platform"` // ios, android
	OSVersion  string `json:"osVersion" bson:"osVersion"`
	AppVersion string `json:"appVersion" bson:"appVersion"`

	// Native alarm facility capability
	NativeAlarmSupported bool   `json:"nativeAlarmSupported" bson:"nativeAlarmSupported"`
	AuthorizationStatus  string `json:"authorizationStatus" bson:"authorizationStatus"`

	LastSeenAt time.Time `json:"lastSeenAt" bson:"lastSeenAt"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

type RegisterDeviceRequest struct {
	Name       string `json:"name" binding:"required" validate:"max=100"`
	Secret     string `json:"secret" binding:"required" validate:"min=8,max=128"`
	FCMToken   string `json:"fcmToken" binding:"required"`
	Platform   string `json:"platform" binding:"required" validate:"oneof=ios android"`
	OSVersion  string `json:"osVersion" validate:"max=32"`
	AppVersion string `json:"appVersion" validate:"max=32"`
}

type LoginDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Device    *Device   `json:"device,omitempty"`
}

// ReportCapabilityRequest updates the device's self-reported capability state.
type ReportCapabilityRequest struct {
	NativeAlarmSupported *bool  `json:"nativeAlarmSupported,omitempty"`
	AuthorizationStatus  string `json:"authorizationStatus,omitempty" validate:"omitempty,oneof=notdetermined authorized denied"`
	FCMToken             string `json:"fcmToken,omitempty"`
	OSVersion            string `json:"osVersion,omitempty" validate:"omitempty,max=32"`
}

// ScheduledNotification is one pending fallback delivery owned by the
// notification backend. A repeating alarm holds one of these per repeat day;
// the delivery worker advances NextFireAt by a week after each send.
type ScheduledNotification struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Handle   string             `json:"handle" bson:"handle"`
	AlarmID  primitive.ObjectID `json:"alarmId" bson:"alarmId"`
	DeviceID primitive.ObjectID `json:"deviceId" bson:"deviceId"`

	Weekday    *int      `json:"weekday,omitempty" bson:"weekday,omitempty"` // nil for one-shot
	NextFireAt time.Time `json:"nextFireAt" bson:"nextFireAt"`

	Payload AlarmPayload `json:"payload" bson:"payload"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
