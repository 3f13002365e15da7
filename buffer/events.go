package buffer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what the engine is reporting.
type EventType int

const (
	EventInitialized EventType = iota
	EventConfigurationChanged
	EventHealthUpdate
	EventAutoAdjustment
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventInitialized:
		return "initialized"
	case EventConfigurationChanged:
		return "configuration_changed"
	case EventHealthUpdate:
		return "health_update"
	case EventAutoAdjustment:
		return "auto_adjustment"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one entry on the engine's ordered event stream. Only the
// fields relevant to the Type are populated.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time

	Config   *BufferConfiguration // Initialized, ConfigurationChanged (new value)
	Previous *BufferConfiguration // ConfigurationChanged
	Reason   string               // ConfigurationChanged

	HealthScore float64   // HealthUpdate
	Analysis    *Analysis // HealthUpdate, AutoAdjustment

	Label AdjustmentLabel // AutoAdjustment
	Err   error           // Error
}

// EventHandler receives events synchronously, in publication order.
// Handlers must not block; they run on the monitor goroutine or on the
// caller's goroutine for synchronous entry points.
type EventHandler func(Event)

// dispatcher fans events out to registered handlers. Registration order
// is delivery order.
type dispatcher struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func (d *dispatcher) subscribe(h EventHandler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

func (d *dispatcher) publish(ev Event) {
	ev.ID = uuid.NewString()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
