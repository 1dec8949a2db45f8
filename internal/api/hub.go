package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/privacylion/relay-operator/internal/infrastructure/config"
	"github.com/privacylion/relay-operator/internal/infrastructure/logging"
	"github.com/privacylion/relay-operator/internal/relay"
)

// WebSocket channels.
const (
	// ChannelRelayStatus carries relay status changes and periodic polls.
	ChannelRelayStatus = "relay.status"

	// ChannelRelayEvents carries every launcher event, probe results included.
	ChannelRelayEvents = "relay.events"
)

// knownChannel reports whether clients may subscribe to channel.
func knownChannel(channel string) bool {
	return channel == ChannelRelayStatus || channel == ChannelRelayEvents
}

// StatusPayload is the payload of relay.status events. Event is empty for
// periodic polls.
type StatusPayload struct {
	Event   string       `json:"event,omitempty"`
	Message string       `json:"message,omitempty"`
	Status  relay.Status `json:"status"`
}

// Hub tracks WebSocket clients and fans relay updates out to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	// last is the most recent relay.status frame, replayed on subscribe.
	lastMu sync.Mutex
	last   []byte
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the caller that actually removed it
// closes the send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload as an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	if data, ok := h.encode(channel, payload); ok {
		h.deliver(channel, data)
	}
}

// RelayEvent implements relay.Observer.
func (h *Hub) RelayEvent(_ context.Context, ev relay.Event) {
	h.publishStatus(StatusPayload{
		Event:   string(ev.Type),
		Message: ev.Message,
		Status:  ev.Status,
	})
	h.Broadcast(ChannelRelayEvents, ev)
}

// publishStatus broadcasts a relay.status frame and remembers it for
// clients that subscribe later.
func (h *Hub) publishStatus(p StatusPayload) {
	data, ok := h.encode(ChannelRelayStatus, p)
	if !ok {
		return
	}
	h.lastMu.Lock()
	h.last = data
	h.lastMu.Unlock()

	h.deliver(ChannelRelayStatus, data)
}

// lastStatus returns the cached relay.status frame, or nil.
func (h *Hub) lastStatus() []byte {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	return h.last
}

func (h *Hub) encode(channel string, payload any) ([]byte, bool) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return nil, false
	}
	return data, true
}

// deliver queues data on subscribed clients. The client set is copied
// first so the hub lock is never held together with a client lock.
func (h *Hub) deliver(channel string, data []byte) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}
