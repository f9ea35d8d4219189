package models

import (
	"context"
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
)

// ForeignActorRepository persists the remote actor cache.
type ForeignActorRepository interface {
	FindByURI(uri string) (*ForeignActor, error)
	FindByID(id snowflake.ID) (*ForeignActor, error)
	Save(actor *ForeignActor) error
}

// FollowerRepository persists FollowerEdges.
type FollowerRepository interface {
	Exists(local *LocalActor, foreign *ForeignActor) (bool, error)
	Add(local *LocalActor, foreign *ForeignActor) error
	Remove(local *LocalActor, foreign *ForeignActor) error
	ForLocalActor(local *LocalActor) ([]*ForeignActor, error)
}

// FollowingRepository persists accepted outbound follows.
type FollowingRepository interface {
	Add(local *LocalActor, target string) error
	Remove(local *LocalActor, target string) error
	ForLocalActor(local *LocalActor) ([]string, error)
}

// OutboxRepository persists OutboxRecords. Records are never updated.
type OutboxRepository interface {
	Append(local *LocalActor, activity map[string]any, publishedAt time.Time) (*OutboxRecord, error)
	FindByActivityID(id string) (*OutboxRecord, error)
	ForLocalActor(local *LocalActor) ([]OutboxRecord, error)
}

// LocalActorRepository persists LocalActors and their local followers.
type LocalActorRepository interface {
	FindByUsername(username string) (*LocalActor, error)
	FindOrCreate(username, domain string) (*LocalActor, error)
	FindByActivityPubID(iri string) (*LocalActor, error)
	FindByID(id snowflake.ID) (*LocalActor, error)
	AddLocalFollower(followee, follower *LocalActor) error
	RemoveLocalFollower(followee, follower *LocalActor) error
	LocalFollowers(followee *LocalActor) ([]*LocalActor, error)
}

// SubmissionRepository reads submissions and stores replies to them.
type SubmissionRepository interface {
	FindByID(id snowflake.ID) (*Submission, error)
	AddReply(reply *SubmissionReply) error
}

// LikeRepository persists QuestLikes.
type LikeRepository interface {
	Exists(actorURI string, questID snowflake.ID) (bool, error)
	Add(actorURI string, questID snowflake.ID) error
	Remove(actorURI string, questID snowflake.ID) error
}

// UnitOfWork exposes the repositories bound to one transaction.
type UnitOfWork interface {
	ForeignActors() ForeignActorRepository
	Followers() FollowerRepository
	Following() FollowingRepository
	Outbox() OutboxRepository
	LocalActors() LocalActorRepository
	Submissions() SubmissionRepository
	Likes() LikeRepository
	Notifications() *Notifications
	DeliveryRequests() *DeliveryRequests
}

// Store opens units of work against a database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Do runs fn inside a transaction. If fn returns an error the
// transaction is rolled back and the error returned.
func (s *Store) Do(ctx context.Context, fn func(uow UnitOfWork) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&unit{tx: tx})
	})
}

type unit struct {
	tx *gorm.DB
}

func (u *unit) ForeignActors() ForeignActorRepository { return NewForeignActors(u.tx) }
func (u *unit) Followers() FollowerRepository         { return NewFollowers(u.tx) }
func (u *unit) Following() FollowingRepository        { return NewFollowings(u.tx) }
func (u *unit) Outbox() OutboxRepository              { return NewOutbox(u.tx) }
func (u *unit) LocalActors() LocalActorRepository     { return NewLocalActors(u.tx) }
func (u *unit) Submissions() SubmissionRepository     { return NewSubmissions(u.tx) }
func (u *unit) Likes() LikeRepository                 { return NewLikes(u.tx) }
func (u *unit) Notifications() *Notifications         { return NewNotifications(u.tx) }
func (u *unit) DeliveryRequests() *DeliveryRequests   { return NewDeliveryRequests(u.tx) }
