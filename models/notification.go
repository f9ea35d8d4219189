package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
)

// A Notification is an event addressed to a local user.
type Notification struct {
	ID        snowflake.ID   `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UserID    snowflake.ID   `gorm:"index;not null"`
	Type      string         `gorm:"size:32;not null"`
	Payload   map[string]any `gorm:"serializer:json"`
	ReadAt    *time.Time
}

type Notifications struct {
	db *gorm.DB
}

func NewNotifications(db *gorm.DB) *Notifications {
	return &Notifications{db: db}
}

// Add stores a notification for userID.
func (n *Notifications) Add(userID snowflake.ID, typ string, payload map[string]any) error {
	return n.db.Create(&Notification{
		ID:      snowflake.Now(),
		UserID:  userID,
		Type:    typ,
		Payload: payload,
	}).Error
}

// ForUser returns the notifications of userID, newest first.
func (n *Notifications) ForUser(userID snowflake.ID) ([]Notification, error) {
	var notes []Notification
	err := n.db.Where("user_id = ?", userID).Order("id DESC").Find(&notes).Error
	return notes, err
}
