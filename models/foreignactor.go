package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
)

// A ForeignActor is the cached view of a remote actor.
type ForeignActor struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	// ActorURI is the IRI the actor was first requested by.
	ActorURI string `gorm:"size:255;uniqueIndex;not null"`
	// CanonicalURI is the id the remote server asserts for the actor.
	CanonicalURI string `gorm:"size:255;index"`
	InboxURL     string `gorm:"size:255"`
	PublicKeyPem string `gorm:"type:text"`
}

// URI returns the canonical IRI if known, otherwise the requested IRI.
func (fa *ForeignActor) URI() string {
	if fa.CanonicalURI != "" {
		return fa.CanonicalURI
	}
	return fa.ActorURI
}

func (fa *ForeignActor) BeforeCreate(tx *gorm.DB) error {
	if fa.ID == 0 {
		fa.ID = snowflake.Now()
	}
	return nil
}

type ForeignActors struct {
	db *gorm.DB
}

func NewForeignActors(db *gorm.DB) *ForeignActors {
	return &ForeignActors{db: db}
}

// FindByURI returns the oldest row whose actor_uri or canonical_uri is uri.
func (fa *ForeignActors) FindByURI(uri string) (*ForeignActor, error) {
	var actors []ForeignActor
	if err := fa.db.Where("actor_uri = ? OR canonical_uri = ?", uri, uri).Order("id").Limit(1).Find(&actors).Error; err != nil {
		return nil, err
	}
	if len(actors) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &actors[0], nil
}

// FindByID returns the row with the given id.
func (fa *ForeignActors) FindByID(id snowflake.ID) (*ForeignActor, error) {
	var actor ForeignActor
	return &actor, fa.db.Take(&actor, id).Error
}

// Save creates or updates actor.
func (fa *ForeignActors) Save(actor *ForeignActor) error {
	if actor.ID == 0 {
		return fa.db.Create(actor).Error
	}
	return fa.db.Save(actor).Error
}
