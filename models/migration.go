package models

import "time"

// MigrationResult aggregates the outcome of a batch migration. Field names are
// part of the API surface consumed by the app and must stay stable.
type MigrationResult struct {
	TotalAlarms    int      `json:"totalAlarms"`
	MigratedAlarms int      `json:"migratedAlarms"`
	FailedAlarms   int      `json:"failedAlarms"`
	SkippedAlarms  int      `json:"skippedAlarms"`
	Errors         []string `json:"errors"`
}

// MigrationEligibility classifies a device's alarm collection without mutating it.
type MigrationEligibility struct {
	NativeCount       int `json:"nativeCount"`
	NotificationCount int `json:"notificationCount"`
	EligibleCount     int `json:"eligibleCount"`
}

// Health-check issue categories. Diagnostic only, never raised during migration.
const (
	IssueOrphanedRecord = "orphaned_record" // record claims a handle the backend no longer lists
	IssueLeakedHandle   = "leaked_handle"   // backend lists a handle no record claims
)

type HealthIssue struct {
	Kind    string       `json:"kind"`
	Backend DeliveryMode `json:"backend"`
	AlarmID string       `json:"alarmId,omitempty"`
	Handle  string       `json:"handle"`
}

type HealthReport struct {
	Healthy   bool          `json:"healthy"`
	Issues    []HealthIssue `json:"issues"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// MigrationEvent is broadcast over the websocket hub, one per processed alarm.
type MigrationEvent struct {
	Type      string       `json:"type"` // alarm.migrated, alarm.skipped, alarm.failed
	AlarmID   string       `json:"alarmId"`
	DeviceID  string       `json:"deviceId,omitempty"`
	Target    DeliveryMode `json:"target"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

const (
	EventAlarmMigrated  = "alarm.migrated"
	EventAlarmSkipped   = "alarm.skipped"
	EventAlarmFailed    = "alarm.failed"
	EventAlarmDelivered = "alarm.delivered"
	EventEmergencyStop  = "alarm.emergency_stop"
)
