package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A FollowerEdge records that a remote actor follows a local actor.
type FollowerEdge struct {
	ID             snowflake.ID  `gorm:"primarykey;autoIncrement:false"`
	CreatedAt      time.Time
	LocalActorID   snowflake.ID  `gorm:"uniqueIndex:idx_follower_edge;not null"`
	LocalActor     *LocalActor   `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	ForeignActorID snowflake.ID  `gorm:"uniqueIndex:idx_follower_edge;not null"`
	ForeignActor   *ForeignActor `gorm:"constraint:OnDelete:CASCADE;<-:false"`
}

// Following records that a local actor's Follow of a remote actor was accepted.
type Following struct {
	ID           snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt    time.Time
	LocalActorID snowflake.ID `gorm:"uniqueIndex:idx_following;not null"`
	LocalActor   *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	TargetURI    string       `gorm:"size:255;uniqueIndex:idx_following;not null"`
}

type Followers struct {
	db *gorm.DB
}

func NewFollowers(db *gorm.DB) *Followers {
	return &Followers{db: db}
}

// Exists reports whether foreign follows local.
func (f *Followers) Exists(local *LocalActor, foreign *ForeignActor) (bool, error) {
	var count int64
	err := f.db.Model(&FollowerEdge{}).
		Where("local_actor_id = ? AND foreign_actor_id = ?", local.ID, foreign.ID).
		Count(&count).Error
	return count > 0, err
}

// Add records that foreign follows local. Adding an existing edge is a no-op.
func (f *Followers) Add(local *LocalActor, foreign *ForeignActor) error {
	exists, err := f.Exists(local, foreign)
	if err != nil || exists {
		return err
	}
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&FollowerEdge{
		ID:             snowflake.Now(),
		LocalActorID:   local.ID,
		ForeignActorID: foreign.ID,
	}).Error
}

// Remove deletes the edge between local and foreign, if any.
func (f *Followers) Remove(local *LocalActor, foreign *ForeignActor) error {
	return f.db.Where("local_actor_id = ? AND foreign_actor_id = ?", local.ID, foreign.ID).Delete(&FollowerEdge{}).Error
}

// ForLocalActor returns the remote followers of local, oldest first.
func (f *Followers) ForLocalActor(local *LocalActor) ([]*ForeignActor, error) {
	var edges []FollowerEdge
	if err := f.db.Preload("ForeignActor").Where("local_actor_id = ?", local.ID).Order("id").Find(&edges).Error; err != nil {
		return nil, err
	}
	actors := make([]*ForeignActor, 0, len(edges))
	for _, edge := range edges {
		if edge.ForeignActor != nil {
			actors = append(actors, edge.ForeignActor)
		}
	}
	return actors, nil
}

type Followings struct {
	db *gorm.DB
}

func NewFollowings(db *gorm.DB) *Followings {
	return &Followings{db: db}
}

// Add records that local follows target. Adding twice is a no-op.
func (f *Followings) Add(local *LocalActor, target string) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Following{
		ID:           snowflake.Now(),
		LocalActorID: local.ID,
		TargetURI:    target,
	}).Error
}

// Remove deletes the record that local follows target.
func (f *Followings) Remove(local *LocalActor, target string) error {
	return f.db.Where("local_actor_id = ? AND target_uri = ?", local.ID, target).Delete(&Following{}).Error
}

// ForLocalActor returns the IRIs local follows, oldest first.
func (f *Followings) ForLocalActor(local *LocalActor) ([]string, error) {
	var targets []string
	err := f.db.Model(&Following{}).Where("local_actor_id = ?", local.ID).Order("id").Pluck("target_uri", &targets).Error
	return targets, err
}
