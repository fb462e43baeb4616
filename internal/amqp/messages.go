package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a store change announced to other services.
type EventType string

const (
	EventImportCompleted EventType = "import.completed"
	EventCompanyDeleted  EventType = "company.deleted"
	EventStoreCleared    EventType = "store.cleared"
)

// Event is the message body published after a committed store change.
// Consumers re-read the store; the event carries counters, not records.
type Event struct {
	Type      EventType `json:"type"`
	BatchID   string    `json:"batch_id,omitempty"`
	Company   string    `json:"company,omitempty"`
	Files     int       `json:"files,omitempty"`
	Inserted  int       `json:"inserted,omitempty"`
	Removed   int64     `json:"removed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewImportCompleted(batchID string, files, inserted int) *Event {
	return &Event{Type: EventImportCompleted, BatchID: batchID, Files: files, Inserted: inserted, Timestamp: time.Now()}
}

func NewCompanyDeleted(company string, removed int64) *Event {
	return &Event{Type: EventCompanyDeleted, Company: company, Removed: removed, Timestamp: time.Now()}
}

func NewStoreCleared(removed int64) *Event {
	return &Event{Type: EventStoreCleared, Removed: removed, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects unknown types.
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Type {
	case EventImportCompleted, EventCompanyDeleted, EventStoreCleared:
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}
