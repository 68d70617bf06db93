package workers

import (
	"context"
	"sync"
	"time"

	"alarmsync/config"
	"alarmsync/events"
	"alarmsync/models"
	"alarmsync/repositories"
	"alarmsync/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// DeliveryWorker fires notification-backend alarms. It polls the scheduled
// occurrence collection, pushes a user-visible notification for everything
// due, then advances recurring occurrences by a week and retires one-shots.
type DeliveryWorker struct {
	// Repositories
	notificationRepo *repositories.NotificationRepository
	alarmRepo        *repositories.AlarmRepository
	deviceRepo       *repositories.DeviceRepository

	// External services
	push *utils.PushService
	hub  *events.Hub

	// Worker configuration
	config DeliveryWorkerConfig

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Retry bookkeeping, per handle
	retries map[string]int

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats      DeliveryWorkerStats
	statsMutex sync.RWMutex
}

type DeliveryWorkerConfig struct {
	PollInterval  time.Duration `json:"pollInterval"`
	BatchSize     int           `json:"batchSize"`
	RetryAttempts int           `json:"retryAttempts"`
}

type DeliveryWorkerStats struct {
	OccurrencesSent    int64     `json:"occurrencesSent"`
	SendFailures       int64     `json:"sendFailures"`
	OneShotsRetired    int64     `json:"oneShotsRetired"`
	OccurrencesDropped int64     `json:"occurrencesDropped"`
	LastRunAt          time.Time `json:"lastRunAt"`
	StartTime          time.Time `json:"startTime"`
}

func NewDeliveryWorker(cfg *config.Config, db *mongo.Database, push *utils.PushService, hub *events.Hub) *DeliveryWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &DeliveryWorker{
		notificationRepo: repositories.NewNotificationRepository(db),
		alarmRepo:        repositories.NewAlarmRepository(db),
		deviceRepo:       repositories.NewDeviceRepository(db),
		push:             push,
		hub:              hub,
		config: DeliveryWorkerConfig{
			PollInterval:  time.Duration(cfg.DeliveryPollSeconds) * time.Second,
			BatchSize:     cfg.DeliveryBatchSize,
			RetryAttempts: 3,
		},
		retries: make(map[string]int),
		ctx:     ctx,
		cancel:  cancel,
		stats: DeliveryWorkerStats{
			StartTime: time.Now(),
		},
	}
}

// StartDeliveryWorker builds and starts the worker
func StartDeliveryWorker(cfg *config.Config, db *mongo.Database, push *utils.PushService, hub *events.Hub) *DeliveryWorker {
	worker := NewDeliveryWorker(cfg, db, push, hub)
	worker.Start()
	return worker
}

func (dw *DeliveryWorker) Start() {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if dw.isRunning {
		return
	}
	dw.isRunning = true

	dw.wg.Add(1)
	go dw.run()

	logrus.Infof("🔔 Delivery worker started (poll interval %s)", dw.config.PollInterval)
}

func (dw *DeliveryWorker) Stop() {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()

	if !dw.isRunning {
		return
	}
	dw.isRunning = false

	dw.cancel()
	dw.wg.Wait()

	logrus.Info("🔔 Delivery worker stopped")
}

func (dw *DeliveryWorker) GetStats() DeliveryWorkerStats {
	dw.statsMutex.RLock()
	defer dw.statsMutex.RUnlock()
	return dw.stats
}

func (dw *DeliveryWorker) run() {
	defer dw.wg.Done()

	ticker := time.NewTicker(dw.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-dw.ctx.Done():
			return
		case <-ticker.C:
			dw.processDue()
		}
	}
}

func (dw *DeliveryWorker) processDue() {
	ctx, cancel := context.WithTimeout(dw.ctx, dw.config.PollInterval)
	defer cancel()

	due, err := dw.notificationRepo.GetDue(ctx, time.Now(), dw.config.BatchSize)
	if err != nil {
		logrus.Errorf("Delivery worker failed to load due occurrences: %v", err)
		return
	}

	for _, occurrence := range due {
		if ctx.Err() != nil {
			return
		}
		dw.deliver(ctx, occurrence)
	}

	dw.statsMutex.Lock()
	dw.stats.LastRunAt = time.Now()
	dw.statsMutex.Unlock()
}

func (dw *DeliveryWorker) deliver(ctx context.Context, occurrence *models.ScheduledNotification) {
	device, err := dw.deviceRepo.GetByID(ctx, occurrence.DeviceID.Hex())
	if err != nil || device.FCMToken == "" {
		// No route to the device. Leave the occurrence in place and let the
		// retry cap decide when to give up.
		dw.recordFailure(occurrence, err)
		return
	}

	title := occurrence.Payload.Label
	if title == "" {
		title = "Alarm"
	}

	_, err = dw.push.SendNotification(ctx, device.FCMToken, utils.PushNotification{
		Title: title,
		Body:  "Your alarm is going off",
		Sound: occurrence.Payload.Sound,
		Data: map[string]string{
			"type":    "alarm.fire",
			"alarmId": occurrence.AlarmID.Hex(),
			"handle":  occurrence.Handle,
			"vibrate": boolString(occurrence.Payload.Vibrate),
		},
	})
	if err != nil {
		dw.recordFailure(occurrence, err)
		return
	}

	delete(dw.retries, occurrence.Handle)

	dw.statsMutex.Lock()
	dw.stats.OccurrencesSent++
	dw.statsMutex.Unlock()

	dw.hub.Emit(models.MigrationEvent{
		Type:      models.EventAlarmDelivered,
		AlarmID:   occurrence.AlarmID.Hex(),
		DeviceID:  occurrence.DeviceID.Hex(),
		Target:    models.DeliveryModeNotification,
		Timestamp: time.Now(),
	})

	dw.advance(ctx, occurrence)
}

// advance moves a recurring occurrence to next week's slot; a one-shot has
// fired for good, so its document is removed and the alarm deactivated.
func (dw *DeliveryWorker) advance(ctx context.Context, occurrence *models.ScheduledNotification) {
	if occurrence.Weekday != nil {
		next := occurrence.NextFireAt.AddDate(0, 0, 7)
		if err := dw.notificationRepo.AdvanceFireTime(ctx, occurrence.Handle, next); err != nil {
			logrus.Errorf("Failed to advance occurrence %s: %v", occurrence.Handle, err)
		}
		return
	}

	dw.retireOneShot(ctx, occurrence)
}

func (dw *DeliveryWorker) retireOneShot(ctx context.Context, occurrence *models.ScheduledNotification) {
	if err := dw.notificationRepo.DeleteByHandle(ctx, occurrence.Handle); err != nil {
		logrus.Errorf("Failed to delete fired occurrence %s: %v", occurrence.Handle, err)
		return
	}

	alarm, err := dw.alarmRepo.GetByID(ctx, occurrence.AlarmID.Hex())
	if err != nil {
		// Alarm already deleted; the occurrence was the last trace.
		return
	}

	alarm.IsActive = false
	alarm.ClearDelivery()
	if err := dw.alarmRepo.Save(ctx, alarm); err != nil {
		logrus.Errorf("Failed to deactivate fired one-shot alarm %s: %v", alarm.ID.Hex(), err)
		return
	}

	dw.statsMutex.Lock()
	dw.stats.OneShotsRetired++
	dw.statsMutex.Unlock()
}

// recordFailure counts a failed send. After the retry cap the occurrence is
// advanced anyway so a dead token cannot wedge the queue.
func (dw *DeliveryWorker) recordFailure(occurrence *models.ScheduledNotification, err error) {
	dw.statsMutex.Lock()
	dw.stats.SendFailures++
	dw.statsMutex.Unlock()

	dw.retries[occurrence.Handle]++
	attempts := dw.retries[occurrence.Handle]

	logrus.Warnf("Delivery of occurrence %s failed (attempt %d/%d): %v",
		occurrence.Handle, attempts, dw.config.RetryAttempts, err)

	if attempts >= dw.config.RetryAttempts {
		delete(dw.retries, occurrence.Handle)

		dw.statsMutex.Lock()
		dw.stats.OccurrencesDropped++
		dw.statsMutex.Unlock()

		ctx, cancel := context.WithTimeout(dw.ctx, 10*time.Second)
		defer cancel()
		dw.advance(ctx, occurrence)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
