package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
)

// An OutboxRecord is an activity emitted by a local actor. Records are
// append only.
type OutboxRecord struct {
	ID           snowflake.ID   `gorm:"primarykey;autoIncrement:false"`
	LocalActorID snowflake.ID   `gorm:"index;not null"`
	LocalActor   *LocalActor    `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	ActivityID   string         `gorm:"size:255;uniqueIndex;not null"`
	Type         string         `gorm:"size:32;not null"`
	Activity     map[string]any `gorm:"serializer:json;not null"`
	PublishedAt  time.Time      `gorm:"not null"`
}

type Outbox struct {
	db *gorm.DB
}

func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Append stores activity as emitted by local at publishedAt.
func (o *Outbox) Append(local *LocalActor, activity map[string]any, publishedAt time.Time) (*OutboxRecord, error) {
	id, _ := activity["id"].(string)
	typ, _ := activity["type"].(string)
	rec := &OutboxRecord{
		ID:           snowflake.TimeToID(publishedAt),
		LocalActorID: local.ID,
		ActivityID:   id,
		Type:         typ,
		Activity:     activity,
		PublishedAt:  publishedAt,
	}
	return rec, o.db.Create(rec).Error
}

// FindByActivityID returns the record for the activity IRI.
func (o *Outbox) FindByActivityID(id string) (*OutboxRecord, error) {
	var recs []OutboxRecord
	if err := o.db.Where("activity_id = ?", id).Limit(1).Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &recs[0], nil
}

// ForLocalActor returns every activity local emitted, newest first.
func (o *Outbox) ForLocalActor(local *LocalActor) ([]OutboxRecord, error) {
	var recs []OutboxRecord
	err := o.db.Where("local_actor_id = ?", local.ID).Order("id DESC").Find(&recs).Error
	return recs, err
}
