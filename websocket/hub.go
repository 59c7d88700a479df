package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"sosdesk/metrics"
	"sosdesk/models"

	"github.com/apex/log"
)

// Channel is one live viewer connection as seen by the hub.
type Channel interface {
	// Offer hands a message to the channel without blocking. It returns false when the
	// channel is not ready to take it.
	Offer(message []byte) bool
	// Done is closed once the channel disconnects or fails.
	Done() <-chan struct{}
}

// Hub is the registry of live viewer channels. Channels leave it on their own when Done
// is closed; Notify never blocks on any of them.
type Hub struct {
	mutex   sync.RWMutex
	clients map[Channel]struct{}

	// Statistics
	notifications    int64
	lastNotification time.Time
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[Channel]struct{}),
	}
}

// Subscribe registers a channel. It is removed automatically once ch.Done() is closed.
func (h *Hub) Subscribe(ch Channel) {
	h.mutex.Lock()
	h.clients[ch] = struct{}{}
	connected := len(h.clients)
	metrics.ConnectedViewers.Set(float64(connected))
	h.mutex.Unlock()

	log.Debugf("Viewer connected. Total viewers: %d", connected)

	go func() {
		<-ch.Done()
		h.remove(ch)
	}()
}

func (h *Hub) remove(ch Channel) {
	h.mutex.Lock()
	delete(h.clients, ch)
	connected := len(h.clients)
	metrics.ConnectedViewers.Set(float64(connected))
	h.mutex.Unlock()

	log.Debugf("Viewer disconnected. Total viewers: %d", connected)
}

// Notify tells every open channel that the report set changed. Channels that are closed
// or not ready are skipped; nothing is queued or retried.
func (h *Hub) Notify() {
	now := time.Now().UTC()
	data, err := json.Marshal(models.BroadcastMessage{
		Type:      models.MessageReportsChanged,
		Timestamp: now,
	})
	if err != nil {
		log.Errorf("Failed to marshal broadcast message: %v", err)
		return
	}

	delivered, skipped := 0, 0
	h.mutex.RLock()
	for ch := range h.clients {
		select {
		case <-ch.Done():
			skipped++
			continue
		default:
		}
		if ch.Offer(data) {
			delivered++
		} else {
			skipped++
		}
	}
	h.mutex.RUnlock()

	h.mutex.Lock()
	h.notifications++
	h.lastNotification = now
	h.mutex.Unlock()

	metrics.DeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	metrics.DeliveriesTotal.WithLabelValues("skipped").Add(float64(skipped))
	log.Debugf("Broadcasted invalidation to %d viewers (%d skipped)", delivered, skipped)
}

// Stats returns the number of connected channels, notifications sent and the time of the last one.
func (h *Hub) Stats() (int, int64, time.Time) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients), h.notifications, h.lastNotification
}

// Close disconnects every registered channel that can be closed. Used on shutdown.
func (h *Hub) Close() {
	var closers []interface{ Close() }
	h.mutex.RLock()
	for ch := range h.clients {
		if c, ok := ch.(interface{ Close() }); ok {
			closers = append(closers, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range closers {
		c.Close()
	}
}
