package database

import (
	"context"
	"fmt"
	"time"

	"alarmsync/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// Seeder represents a database seeder
type Seeder struct {
	Name        string
	Description string
	Seed        func(*mongo.Database) error
}

var seeders = []Seeder{
	{
		Name:        "demo_device",
		Description: "Create a demo device for development",
		Seed:        seedDemoDevice,
	},
	{
		Name:        "demo_alarms",
		Description: "Create demo alarms for development",
		Seed:        seedDemoAlarms,
	},
}

var demoDeviceID = mustObjectID("64a0000000000000000000a1")

// RunSeeders executes all database seeders
func RunSeeders(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Check if seeders have already been run
	seedersCol := db.Collection("seeders")
	count, err := seedersCol.CountDocuments(ctx, bson.M{})
	if err == nil && count > 0 {
		logrus.Info("🌱 Seeders already run, skipping...")
		return nil
	}

	logrus.Info("🌱 Running database seeders...")

	for _, seeder := range seeders {
		logrus.Infof("🔄 Running seeder: %s", seeder.Name)

		if err := seeder.Seed(db); err != nil {
			return fmt.Errorf("seeder %s failed: %w", seeder.Name, err)
		}

		_, err := seedersCol.InsertOne(ctx, bson.M{
			"name":   seeder.Name,
			"ranAt":  time.Now(),
			"status": "completed",
		})
		if err != nil {
			return fmt.Errorf("failed to record seeder %s: %w", seeder.Name, err)
		}

		logrus.Infof("✅ Seeder %s completed", seeder.Name)
	}

	return nil
}

func seedDemoDevice(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := bcrypt.GenerateFromPassword([]byte("demo-secret"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	device := models.Device{
		ID:                   demoDeviceID,
		Name:                 "Demo Phone",
		Secret:               string(secret),
		FCMToken:             "demo-fcm-token",
		Platform:             "android",
		OSVersion:            "14",
		AppVersion:           "1.0.0",
		NativeAlarmSupported: true,
		AuthorizationStatus:  models.AuthorizationAuthorized,
		LastSeenAt:           time.Now(),
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}

	_, err = db.Collection("devices").InsertOne(ctx, device)
	return err
}

func seedDemoAlarms(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alarms := []interface{}{
		models.Alarm{
			ID:           primitive.NewObjectID(),
			DeviceID:     demoDeviceID,
			FireTime:     "07:00",
			RepeatDays:   []int{1, 2, 3, 4, 5},
			IsActive:     true,
			DeliveryMode: models.DeliveryModeNotification,
			Payload: models.AlarmPayload{
				Label:   "Weekday wake-up",
				Sound:   "default",
				Vibrate: true,
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		models.Alarm{
			ID:           primitive.NewObjectID(),
			DeviceID:     demoDeviceID,
			FireTime:     "09:30",
			RepeatDays:   []int{0, 6},
			IsActive:     false,
			DeliveryMode: models.DeliveryModeNotification,
			Payload: models.AlarmPayload{
				Label: "Weekend lie-in",
				Sound: "chimes",
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}

	_, err := db.Collection("alarms").InsertMany(ctx, alarms)
	return err
}

func mustObjectID(hex string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}
