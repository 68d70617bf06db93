package repositories

import (
	"alarmsync/models"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type DeviceRepository struct {
	collection *mongo.Collection
}

func NewDeviceRepository(db *mongo.Database) *DeviceRepository {
	return &DeviceRepository{
		collection: db.Collection("devices"),
	}
}

func (dr *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	device.ID = primitive.NewObjectID()
	device.CreatedAt = time.Now()
	device.UpdatedAt = time.Now()
	device.LastSeenAt = time.Now()
	if device.AuthorizationStatus == "" {
		device.AuthorizationStatus = models.AuthorizationNotDetermined
	}

	_, err := dr.collection.InsertOne(ctx, device)
	return err
}

func (dr *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.New("invalid device ID")
	}

	var device models.Device
	err = dr.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&device)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("device not found")
		}
		return nil, err
	}

	return &device, nil
}

func (dr *DeviceRepository) Update(ctx context.Context, id string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.New("invalid device ID")
	}

	update["updatedAt"] = time.Now()

	result, err := dr.collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": update},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return errors.New("device not found")
	}

	return nil
}

func (dr *DeviceRepository) TouchLastSeen(ctx context.Context, id string) error {
	return dr.Update(ctx, id, bson.M{"lastSeenAt": time.Now()})
}

// ListSeenSince returns devices active since the given time. Used by the
// reconcile sweep so it does not walk devices that have gone quiet.
func (dr *DeviceRepository) ListSeenSince(ctx context.Context, since time.Time) ([]*models.Device, error) {
	cursor, err := dr.collection.Find(ctx, bson.M{
		"lastSeenAt": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*models.Device
	err = cursor.All(ctx, &devices)
	return devices, err
}
