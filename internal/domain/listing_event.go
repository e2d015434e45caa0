package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing event types. Cancellation keeps the listing row, so the event
// log is the full audit trail for every listing.
const (
	ListingEventCreated   = "CREATED"
	ListingEventUpdated   = "UPDATED"
	ListingEventFilled    = "FILLED"
	ListingEventCancelled = "CANCELLED"
)

// ListingEvent records a lifecycle transition on a listing.
type ListingEvent struct {
	EventID     uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"eventId"`
	ListingRef  uuid.UUID      `gorm:"column:listing_ref;type:uuid;not null;index" json:"listingRef"`
	EventType   string         `gorm:"column:event_type;type:varchar(20);not null" json:"eventType"`
	ActorUserID *uuid.UUID     `gorm:"column:actor_user_id;type:uuid" json:"actorUserId,omitempty"`
	EventData   datatypes.JSON `gorm:"column:event_data;type:json" json:"eventData"`
	CreatedAt   time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (ListingEvent) TableName() string {
	return "ListingEvents"
}

// BeforeCreate sets event_id for DBs without default uuid.
func (e *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
