package workers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"alarmsync/config"
	"alarmsync/models"
	"alarmsync/repositories"
	"alarmsync/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ReconcileWorker keeps alarm delivery in line with device capability. It
// listens for capability.changed messages and migrates the device's alarms to
// the best available backend, and it periodically sweeps recently seen devices
// with a health check, paging the operator on inconsistencies.
//
// The worker runs against the same AlarmService as the API so a
// capability-triggered migration and a concurrent migrate request contend on
// one collection guard instead of two.
type ReconcileWorker struct {
	redis *redis.Client

	// Services
	alarmService *services.AlarmService
	alertService *services.AlertService

	// Repositories
	deviceRepo *repositories.DeviceRepository

	// Worker configuration
	config ReconcileWorkerConfig

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats      ReconcileWorkerStats
	statsMutex sync.RWMutex
}

type ReconcileWorkerConfig struct {
	SweepInterval time.Duration `json:"sweepInterval"`
	SweepWindow   time.Duration `json:"sweepWindow"` // how far back "recently seen" reaches
	MigrateBudget time.Duration `json:"migrateBudget"`
}

type ReconcileWorkerStats struct {
	CapabilityEvents int64     `json:"capabilityEvents"`
	MigrationsRun    int64     `json:"migrationsRun"`
	SweepsRun        int64     `json:"sweepsRun"`
	UnhealthyDevices int64     `json:"unhealthyDevices"`
	LastSweepAt      time.Time `json:"lastSweepAt"`
	StartTime        time.Time `json:"startTime"`
}

func NewReconcileWorker(
	cfg *config.Config,
	alarmService *services.AlarmService,
	alertService *services.AlertService,
	deviceRepo *repositories.DeviceRepository,
	redisClient *redis.Client,
) *ReconcileWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &ReconcileWorker{
		redis:        redisClient,
		alarmService: alarmService,
		alertService: alertService,
		deviceRepo:   deviceRepo,
		config: ReconcileWorkerConfig{
			SweepInterval: time.Duration(cfg.ReconcileSweepMinutes) * time.Minute,
			SweepWindow:   7 * 24 * time.Hour,
			MigrateBudget: 2 * time.Minute,
		},
		ctx:    ctx,
		cancel: cancel,
		stats: ReconcileWorkerStats{
			StartTime: time.Now(),
		},
	}
}

// StartReconcileWorker builds and starts the worker over the shared services.
func StartReconcileWorker(
	cfg *config.Config,
	alarmService *services.AlarmService,
	alertService *services.AlertService,
	deviceRepo *repositories.DeviceRepository,
	redisClient *redis.Client,
) *ReconcileWorker {
	worker := NewReconcileWorker(cfg, alarmService, alertService, deviceRepo, redisClient)
	worker.Start()
	return worker
}

func (rw *ReconcileWorker) Start() {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if rw.isRunning {
		return
	}
	rw.isRunning = true

	rw.wg.Add(2)
	go rw.listenCapabilityChanges()
	go rw.runSweeps()

	logrus.Infof("🔄 Reconcile worker started (sweep interval %s)", rw.config.SweepInterval)
}

func (rw *ReconcileWorker) Stop() {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if !rw.isRunning {
		return
	}
	rw.isRunning = false

	rw.cancel()
	rw.wg.Wait()

	logrus.Info("🔄 Reconcile worker stopped")
}

func (rw *ReconcileWorker) GetStats() ReconcileWorkerStats {
	rw.statsMutex.RLock()
	defer rw.statsMutex.RUnlock()
	return rw.stats
}

func (rw *ReconcileWorker) listenCapabilityChanges() {
	defer rw.wg.Done()

	pubsub := rw.redis.Subscribe(rw.ctx, services.CapabilityChangedChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-rw.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rw.handleCapabilityChange(msg.Payload)
		}
	}
}

func (rw *ReconcileWorker) handleCapabilityChange(payload string) {
	var change services.CapabilityChangedMessage
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		logrus.Warnf("Malformed capability change message: %v", err)
		return
	}

	rw.statsMutex.Lock()
	rw.stats.CapabilityEvents++
	rw.statsMutex.Unlock()

	// Capability gained: move alarms onto the native facility. Capability
	// lost: get them back onto notifications before they go silent.
	target := models.DeliveryModeNotification
	if change.CanUseNative {
		target = models.DeliveryModeNative
	}

	ctx, cancel := context.WithTimeout(rw.ctx, rw.config.MigrateBudget)
	defer cancel()

	result, err := rw.alarmService.MigrateAllEligible(ctx, change.DeviceID, target)
	if err != nil {
		logrus.Errorf("Reconcile migration for device %s failed: %v", change.DeviceID, err)
		return
	}

	rw.statsMutex.Lock()
	rw.stats.MigrationsRun++
	rw.statsMutex.Unlock()

	if result.TotalAlarms > 0 {
		logrus.WithFields(logrus.Fields{
			"deviceId": change.DeviceID,
			"target":   target,
			"migrated": result.MigratedAlarms,
			"failed":   result.FailedAlarms,
			"skipped":  result.SkippedAlarms,
		}).Info("Reconcile migration finished")
	}
}

func (rw *ReconcileWorker) runSweeps() {
	defer rw.wg.Done()

	ticker := time.NewTicker(rw.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rw.ctx.Done():
			return
		case <-ticker.C:
			rw.sweep()
		}
	}
}

func (rw *ReconcileWorker) sweep() {
	ctx, cancel := context.WithTimeout(rw.ctx, rw.config.SweepInterval)
	defer cancel()

	devices, err := rw.deviceRepo.ListSeenSince(ctx, time.Now().Add(-rw.config.SweepWindow))
	if err != nil {
		logrus.Errorf("Reconcile sweep failed to list devices: %v", err)
		return
	}

	unhealthy := 0
	for _, device := range devices {
		if ctx.Err() != nil {
			return
		}

		report, err := rw.alarmService.HealthCheck(ctx, device.ID.Hex())
		if err != nil {
			logrus.Warnf("Health check for device %s failed: %v", device.ID.Hex(), err)
			continue
		}

		if !report.Healthy {
			unhealthy++
			logrus.WithFields(logrus.Fields{
				"deviceId": device.ID.Hex(),
				"issues":   len(report.Issues),
			}).Warn("Health check found inconsistencies")
			rw.alertService.HealthIssuesDetected(ctx, device.ID.Hex(), report.Issues)
		}
	}

	rw.statsMutex.Lock()
	rw.stats.SweepsRun++
	rw.stats.UnhealthyDevices += int64(unhealthy)
	rw.stats.LastSweepAt = time.Now()
	rw.statsMutex.Unlock()

	logrus.Debugf("Reconcile sweep finished: %d devices checked, %d unhealthy", len(devices), unhealthy)
}
