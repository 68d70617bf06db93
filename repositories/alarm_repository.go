package repositories

import (
	"alarmsync/models"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AlarmRepository struct {
	collection *mongo.Collection
}

func NewAlarmRepository(db *mongo.Database) *AlarmRepository {
	return &AlarmRepository{
		collection: db.Collection("alarms"),
	}
}

func (ar *AlarmRepository) Create(ctx context.Context, alarm *models.Alarm) error {
	alarm.ID = primitive.NewObjectID()
	alarm.CreatedAt = time.Now()
	alarm.UpdatedAt = time.Now()
	if alarm.DeliveryMode == "" {
		alarm.DeliveryMode = models.DeliveryModeNotification
	}

	_, err := ar.collection.InsertOne(ctx, alarm)
	return err
}

func (ar *AlarmRepository) GetByID(ctx context.Context, id string) (*models.Alarm, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.New("invalid alarm ID")
	}

	var alarm models.Alarm
	err = ar.collection.FindOne(ctx, bson.M{
		"_id":       objectID,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&alarm)

	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("alarm not found")
		}
		return nil, err
	}

	return &alarm, nil
}

// GetByDevice loads the full alarm collection for a device, oldest first.
func (ar *AlarmRepository) GetByDevice(ctx context.Context, deviceID string) ([]*models.Alarm, error) {
	deviceObjectID, err := primitive.ObjectIDFromHex(deviceID)
	if err != nil {
		return nil, errors.New("invalid device ID")
	}

	filter := bson.M{
		"deviceId":  deviceObjectID,
		"isDeleted": bson.M{"$ne": true},
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := ar.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alarms []*models.Alarm
	err = cursor.All(ctx, &alarms)
	return alarms, err
}

// Save persists the whole record in one update so delivery mode and handles
// are never partially visible to concurrent readers.
func (ar *AlarmRepository) Save(ctx context.Context, alarm *models.Alarm) error {
	alarm.UpdatedAt = time.Now()

	result, err := ar.collection.ReplaceOne(
		ctx,
		bson.M{"_id": alarm.ID},
		alarm,
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return errors.New("alarm not found")
	}

	return nil
}

func (ar *AlarmRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.New("invalid alarm ID")
	}

	update := bson.M{
		"isDeleted": true,
		"deletedAt": time.Now(),
		"updatedAt": time.Now(),
	}

	result, err := ar.collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": update},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return errors.New("alarm not found")
	}

	return nil
}

func (ar *AlarmRepository) CountByDevice(ctx context.Context, deviceID string) (int64, error) {
	deviceObjectID, err := primitive.ObjectIDFromHex(deviceID)
	if err != nil {
		return 0, errors.New("invalid device ID")
	}

	filter := bson.M{
		"deviceId":  deviceObjectID,
		"isDeleted": bson.M{"$ne": true},
	}

	return ar.collection.CountDocuments(ctx, filter)
}
