package middleware

import (
	"alarmsync/utils"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorHandler provides centralized panic recovery and error translation
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle returns the error handling middleware
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			eh.handleGinErrors(c)
		}
	})
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      string(debug.Stack()),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"device_id":  c.GetString("deviceID"),
	}).Error("Panic recovered")

	if c.Writer.Written() {
		c.Abort()
		return
	}

	utils.InternalServerErrorResponse(c, "")
	c.Abort()
}

func (eh *ErrorHandler) handleGinErrors(c *gin.Context) {
	ginErr := c.Errors.Last()

	eh.logger.WithFields(logrus.Fields{
		"error":      ginErr.Error(),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
	}).Error("Request error")

	if c.Writer.Written() {
		return
	}

	utils.ServiceErrorResponse(c, ginErr.Err)
}
