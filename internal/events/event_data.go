package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// TransactionChangedData contains data for TransactionChanged events.
// Everything on or after FromDate for the portfolio is affected.
type TransactionChangedData struct {
	PortfolioID   string `json:"portfolioId"`
	FromDate      string `json:"fromDate"`
	TransactionID string `json:"transactionId,omitempty"`
}

// EventType returns the event type for TransactionChangedData
func (d *TransactionChangedData) EventType() EventType {
	return TransactionChanged
}

// PriceChangedData contains data for PriceChanged events
type PriceChangedData struct {
	FromDate string `json:"fromDate"`
	AssetID  string `json:"assetId,omitempty"`
}

// EventType returns the event type for PriceChangedData
func (d *PriceChangedData) EventType() EventType {
	return PriceChanged
}

// FxChangedData contains data for FxChanged events
type FxChangedData struct {
	FromDate string `json:"fromDate"`
	Pair     string `json:"pair,omitempty"`
}

// EventType returns the event type for FxChangedData
func (d *FxChangedData) EventType() EventType {
	return FxChanged
}

// SnapshotsInvalidatedData contains data for SnapshotsInvalidated events.
// An empty PortfolioID means every portfolio.
type SnapshotsInvalidatedData struct {
	PortfolioID string `json:"portfolioId,omitempty"`
	FromDate    string `json:"fromDate,omitempty"`
	OnDate      string `json:"onDate,omitempty"`
}

// EventType returns the event type for SnapshotsInvalidatedData
func (d *SnapshotsInvalidatedData) EventType() EventType {
	return SnapshotsInvalidated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	e.Data = nil
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	eventData := newEventData(e.Type)
	if eventData == nil {
		var rawData map[string]interface{}
		if err := json.Unmarshal(aux.Data, &rawData); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: e.Type, Data: rawData}
		return nil
	}
	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// newEventData returns an empty typed payload for t, or nil if t has none
func newEventData(t EventType) EventData {
	switch t {
	case TransactionChanged:
		return &TransactionChangedData{}
	case PriceChanged:
		return &PriceChangedData{}
	case FxChanged:
		return &FxChangedData{}
	case SnapshotsInvalidated:
		return &SnapshotsInvalidatedData{}
	case ErrorOccurred:
		return &ErrorEventData{}
	}
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
