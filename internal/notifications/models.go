package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType names a marketplace occurrence worth telling someone about
type EventType string

const (
	EventProjectSubmitted EventType = "project.submitted"
	EventProjectReviewed  EventType = "project.reviewed"
	EventListingCreated   EventType = "listing.created"
	EventListingSold      EventType = "listing.sold"
	EventListingWithdrawn EventType = "listing.withdrawn"
	EventProceedsClaimed  EventType = "listing.claimed"
)

// Public events are broadcast to every live-feed client; the rest go only to
// the recipient.
func (t EventType) Public() bool {
	switch t {
	case EventListingCreated, EventListingSold, EventListingWithdrawn:
		return true
	}
	return false
}

// Event is published after a transition commits.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        EventType              `json:"type"`
	OccurredAt  time.Time              `json:"occurred_at"`
	ActorID     uuid.UUID              `json:"actor_id"`
	RecipientID *uuid.UUID             `json:"recipient_id,omitempty"`
	ProjectID   *uuid.UUID             `json:"project_id,omitempty"`
	CreditID    *uuid.UUID             `json:"credit_id,omitempty"`
	ListingID   *uuid.UUID             `json:"listing_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// NewEvent fills in the id and timestamp.
func NewEvent(t EventType, actorID uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ActorID:    actorID,
		Data:       map[string]interface{}{},
	}
}

// EventRecord is the persisted copy of an Event, readable by its recipient.
type EventRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type        EventType      `gorm:"type:varchar(32);not null;index" json:"type"`
	ActorID     uuid.UUID      `gorm:"type:uuid;not null" json:"actor_id"`
	RecipientID *uuid.UUID     `gorm:"type:uuid;index" json:"recipient_id"`
	Payload     datatypes.JSON `json:"payload"`
	ReadAt      *time.Time     `json:"read_at"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (EventRecord) TableName() string { return "marketplace_events" }

func recordFromEvent(evt Event) (*EventRecord, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return &EventRecord{
		ID:          evt.ID,
		Type:        evt.Type,
		ActorID:     evt.ActorID,
		RecipientID: evt.RecipientID,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   evt.OccurredAt,
	}, nil
}

// WebSocketMessage represents a message sent over the live feed
type WebSocketMessage struct {
	Type      string         `json:"type"`
	Data      datatypes.JSON `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   string         `json:"channel,omitempty"`
	Target    string         `json:"target,omitempty"`
}

// WebSocket message types
const (
	WSMessageTypeEvent  = "event"
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// MessageFromEvent wraps evt for the live feed.
func MessageFromEvent(evt Event) (WebSocketMessage, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return WebSocketMessage{}, err
	}
	msg := WebSocketMessage{
		Type:      WSMessageTypeEvent,
		Data:      datatypes.JSON(data),
		Timestamp: evt.OccurredAt,
		Channel:   "broadcast",
	}
	if !evt.Type.Public() && evt.RecipientID != nil {
		msg.Channel = "private"
		msg.Target = evt.RecipientID.String()
	}
	return msg, nil
}

// Migrate creates the event log table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
