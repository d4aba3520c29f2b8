package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType doubles as the routing key on the topic exchange.
type EventType string

const (
	EventReceiptCreated  EventType = "receipt.created"
	EventReceiptDeleted  EventType = "receipt.deleted"
	EventReportPublished EventType = "report.published"
	EventBackupRestored  EventType = "backup.restored"
)

// LedgerEvent is a lightweight notification. It carries ids only; consumers
// read the entity back from storage.
type LedgerEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	EntityID  int64     `json:"entityId"`
	ActorID   int64     `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps a new event with a random id and the current time.
func NewLedgerEvent(t EventType, entityID, actorID int64) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      t,
		EntityID:  entityID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event and rejects ones without a type.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("event without type")
	}
	return &msg, nil
}
