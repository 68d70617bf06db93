package controllers

import (
	"alarmsync/events"
	"alarmsync/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WSController struct {
	hub *events.Hub
}

func NewWSController(hub *events.Hub) *WSController {
	return &WSController{hub: hub}
}

// Connect upgrades the request to a websocket and streams migration and
// delivery events for the authenticated device.
func (wc *WSController) Connect(c *gin.Context) {
	deviceID := utils.GetDeviceID(c)
	if deviceID == "" {
		utils.UnauthorizedResponse(c, "Device not authenticated")
		return
	}

	if err := events.ServeWS(wc.hub, deviceID, c.Writer, c.Request); err != nil {
		logrus.Errorf("Websocket upgrade failed for device %s: %v", deviceID, err)
	}
}
