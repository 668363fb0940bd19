package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Tables that publish change notifications
const (
	TableOrders        = "lab_orders"
	TableWorkflowSteps = "workflow_steps"
	TablePayments      = "payments"
	TableNotes         = "order_notes"
	TableFiles         = "order_files"
	TableServices      = "lab_services"
)

// Change operations
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Change is a notification that a row changed. Subscribers re-fetch; the
// payload carries no row data.
type Change struct {
	Table        string    `json:"table"`
	Op           string    `json:"op"`
	RecordID     string    `json:"record_id"`
	LaboratoryID string    `json:"laboratory_id"`
	At           time.Time `json:"at"`
}

// Subscription receives the changes of one laboratory for a set of tables
type Subscription struct {
	ID           string
	LaboratoryID string
	Events       chan Change
	tables       map[string]bool
}

func (s *Subscription) wants(c Change) bool {
	if s.LaboratoryID != "" && s.LaboratoryID != c.LaboratoryID {
		return false
	}
	return len(s.tables) == 0 || s.tables[c.Table]
}

// Hub fans change notifications out to subscribers. Delivery is best effort:
// a subscriber with a full buffer misses the change and must rely on its
// periodic refresh.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

var (
	defaultHub = NewHub()
	hubMu      sync.RWMutex
)

// GetHub returns the process-wide hub
func GetHub() *Hub {
	hubMu.RLock()
	defer hubMu.RUnlock()
	return defaultHub
}

// SetHub replaces the process-wide hub (used in tests)
func SetHub(h *Hub) {
	hubMu.Lock()
	defer hubMu.Unlock()
	defaultHub = h
}

// Subscribe registers a subscriber for laboratoryID ("" for every laboratory)
// limited to tables (none for every table).
func (h *Hub) Subscribe(laboratoryID string, buffer int, tables ...string) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &Subscription{
		ID:           uuid.NewString(),
		LaboratoryID: laboratoryID,
		Events:       make(chan Change, buffer),
		tables:       make(map[string]bool, len(tables)),
	}
	for _, t := range tables {
		sub.tables[t] = true
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	log.Debug().Str("subscription", sub.ID).Str("laboratory_id", laboratoryID).Int("total", total).Msg("events: subscribed")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.Events)
		delete(h.subs, id)
		log.Debug().Str("subscription", id).Int("total", len(h.subs)).Msg("events: unsubscribed")
	}
}

// Publish delivers c to every interested subscriber without blocking
func (h *Hub) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(c) {
			continue
		}
		select {
		case sub.Events <- c:
		default:
			log.Warn().Str("subscription", sub.ID).Str("table", c.Table).Msg("events: subscriber buffer full, dropping change")
		}
	}
}

// Len reports the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
