package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
)

type Request struct {
	ID uint32 `gorm:"primarykey;"`
	// CreatedAt is the time the request was created.
	CreatedAt time.Time
	// UpdatedAt is the time the request was last updated.
	UpdatedAt time.Time
	// Attempts is the number of times the request has been attempted.
	Attempts uint32 `gorm:"not null;default:0"`
	// LastAttempt is the time the request was last attempted.
	LastAttempt time.Time
	// LastResult is the result of the last attempt if it failed.
	LastResult string `gorm:"type:text;"`
}

// DeliveryRequest is a queued activity waiting to be delivered.
type DeliveryRequest struct {
	Request
	LocalActorID snowflake.ID   `gorm:"index;not null"`
	LocalActor   *LocalActor    `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Activity     map[string]any `gorm:"serializer:json;not null"`
}

type DeliveryRequests struct {
	db *gorm.DB
}

func NewDeliveryRequests(db *gorm.DB) *DeliveryRequests {
	return &DeliveryRequests{db: db}
}

// Enqueue queues activity for delivery on behalf of the local actor.
func (d *DeliveryRequests) Enqueue(localActorID snowflake.ID, activity map[string]any) error {
	return d.db.Create(&DeliveryRequest{
		LocalActorID: localActorID,
		Activity:     activity,
	}).Error
}
