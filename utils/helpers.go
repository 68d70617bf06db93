package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GetDeviceID retrieves the authenticated device ID from the Gin context,
// stored there by the auth middleware.
func GetDeviceID(c *gin.Context) string {
	if deviceID, exists := c.Get("deviceID"); exists {
		if idStr, ok := deviceID.(string); ok {
			return idStr
		}
	}
	return ""
}

// UUID Generation
func GenerateUUID() string {
	return uuid.New().String()
}

func GenerateShortID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// GenerateHandle creates an opaque delivery handle with a backend prefix,
// e.g. "nat_3f2c..." or "ntf_91ab...".
func GenerateHandle(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidObjectID checks whether s is a well-formed Mongo ObjectID hex string.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}
