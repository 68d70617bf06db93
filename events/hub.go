package events

import (
	"alarmsync/models"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub fans migration and delivery events out to connected app clients, one
// websocket per device. It implements services.EventEmitter, keeping the
// engine free of any presentation concern.
type Hub struct {
	// Registered clients, keyed by device ID
	clients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Events to fan out
	events chan models.MigrationEvent

	mutex sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan models.MigrationEvent, 64),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	logrus.Info("Event hub started")

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.events:
			h.dispatch(event)

		case <-h.ctx.Done():
			logrus.Info("Event hub stopping")
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// Emit satisfies services.EventEmitter. The hub never blocks the caller: if
// the event channel is full the event is dropped and logged, since the event
// stream is observability, not state.
func (h *Hub) Emit(event models.MigrationEvent) {
	select {
	case h.events <- event:
	default:
		logrus.Warnf("Event hub backlog full, dropping %s for alarm %s", event.Type, event.AlarmID)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ConnectedDevices returns device IDs with at least one live connection.
func (h *Hub) ConnectedDevices() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	devices := make([]string, 0, len(h.clients))
	for deviceID := range h.clients {
		devices = append(devices, deviceID)
	}
	return devices
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[client.deviceID] == nil {
		h.clients[client.deviceID] = make(map[*Client]bool)
	}
	h.clients[client.deviceID][client] = true

	logrus.Debugf("Device %s connected to event stream", client.deviceID)
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if peers, ok := h.clients[client.deviceID]; ok {
		if peers[client] {
			delete(peers, client)
			close(client.send)
		}
		if len(peers) == 0 {
			delete(h.clients, client.deviceID)
		}
	}
}

// dispatch sends an event to every connection of its device; events without a
// device ID go to everyone.
func (h *Hub) dispatch(event models.MigrationEvent) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	deliver := func(peers map[*Client]bool) {
		for client := range peers {
			select {
			case client.send <- event:
			default:
				// Slow consumer; drop rather than stall the hub.
			}
		}
	}

	if event.DeviceID == "" {
		for _, peers := range h.clients {
			deliver(peers)
		}
		return
	}

	if peers, ok := h.clients[event.DeviceID]; ok {
		deliver(peers)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, peers := range h.clients {
		for client := range peers {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
