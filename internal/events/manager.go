package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed event data to the bus and logs it. A nil manager
// drops the event.
func (m *Manager) Emit(eventType EventType, module string, data EventData) *Event {
	if m == nil || m.bus == nil {
		return nil
	}
	event := m.bus.Emit(eventType, module, data)

	payload, _ := json.Marshal(data)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("event_id", event.ID).
		Str("module", module).
		RawJSON("data", payload).
		Msg("Event emitted")
	return event
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(ErrorOccurred, module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
