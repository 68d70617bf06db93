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

// NotificationRepository stores the notification backend's scheduled
// occurrences. A handle maps to exactly one document here; a live handle is a
// document that exists.
type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection("scheduled_notifications"),
	}
}

func (nr *NotificationRepository) Create(ctx context.Context, notification *models.ScheduledNotification) error {
	notification.ID = primitive.NewObjectID()
	notification.CreatedAt = time.Now()
	notification.UpdatedAt = time.Now()

	_, err := nr.collection.InsertOne(ctx, notification)
	return err
}

func (nr *NotificationRepository) GetByHandle(ctx context.Context, handle string) (*models.ScheduledNotification, error) {
	var notification models.ScheduledNotification
	err := nr.collection.FindOne(ctx, bson.M{"handle": handle}).Decode(&notification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("scheduled notification not found")
		}
		return nil, err
	}

	return &notification, nil
}

// DeleteByHandle removes a scheduled occurrence. Deleting an unknown handle is
// not an error; the occurrence is simply already gone.
func (nr *NotificationRepository) DeleteByHandle(ctx context.Context, handle string) error {
	_, err := nr.collection.DeleteOne(ctx, bson.M{"handle": handle})
	return err
}

func (nr *NotificationRepository) DeleteByDevice(ctx context.Context, deviceID string) (int64, error) {
	deviceObjectID, err := primitive.ObjectIDFromHex(deviceID)
	if err != nil {
		return 0, errors.New("invalid device ID")
	}

	result, err := nr.collection.DeleteMany(ctx, bson.M{"deviceId": deviceObjectID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// ListHandlesByDevice returns all live handles for a device, oldest first.
func (nr *NotificationRepository) ListHandlesByDevice(ctx context.Context, deviceID string) ([]string, error) {
	deviceObjectID, err := primitive.ObjectIDFromHex(deviceID)
	if err != nil {
		return nil, errors.New("invalid device ID")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetProjection(bson.M{"handle": 1})

	cursor, err := nr.collection.Find(ctx, bson.M{"deviceId": deviceObjectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.ScheduledNotification
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(docs))
	for _, doc := range docs {
		handles = append(handles, doc.Handle)
	}
	return handles, nil
}

// GetDue returns occurrences whose fire time has arrived.
func (nr *NotificationRepository) GetDue(ctx context.Context, beforeTime time.Time, limit int) ([]*models.ScheduledNotification, error) {
	filter := bson.M{
		"nextFireAt": bson.M{"$lte": beforeTime},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "nextFireAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := nr.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifications []*models.ScheduledNotification
	err = cursor.All(ctx, &notifications)
	return notifications, err
}

// AdvanceFireTime moves a recurring occurrence to its next weekly slot.
func (nr *NotificationRepository) AdvanceFireTime(ctx context.Context, handle string, nextFireAt time.Time) error {
	update := bson.M{
		"nextFireAt": nextFireAt,
		"updatedAt":  time.Now(),
	}

	result, err := nr.collection.UpdateOne(
		ctx,
		bson.M{"handle": handle},
		bson.M{"$set": update},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return errors.New("scheduled notification not found")
	}

	return nil
}
