package models

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/questline/fedi/internal/crypto"
	"github.com/questline/fedi/internal/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A LocalActor is a federation identity owned by this server.
type LocalActor struct {
	ID            snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt     time.Time
	Username      string `gorm:"size:64;uniqueIndex;not null"`
	ActivityPubID string `gorm:"size:255;uniqueIndex;not null"`
	PublicKey     []byte `gorm:"not null"`
	PrivateKey    []byte `gorm:"not null"`
	// TokenHash is the bcrypt hash of the client to server bearer token.
	TokenHash []byte `gorm:"size:60"`
}

// PublicKeyID returns the keyId used when signing requests as this actor.
func (a *LocalActor) PublicKeyID() string {
	return a.ActivityPubID + "#main-key"
}

// PrivKey returns the parsed private key of the actor.
func (a *LocalActor) PrivKey() (*rsa.PrivateKey, error) {
	_, priv, err := crypto.ParseRSAPrivateKey(a.PrivateKey)
	return priv, err
}

func (a *LocalActor) InboxURI() string     { return a.ActivityPubID + "/inbox" }
func (a *LocalActor) OutboxURI() string    { return a.ActivityPubID + "/outbox" }
func (a *LocalActor) FollowersURI() string { return a.ActivityPubID + "/followers" }
func (a *LocalActor) FollowingURI() string { return a.ActivityPubID + "/following" }

// CheckToken reports whether token is the actor's bearer token.
func (a *LocalActor) CheckToken(token string) bool {
	if len(a.TokenHash) == 0 || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.TokenHash, []byte(token)) == nil
}

// LocalFollow records that one local actor follows another.
type LocalFollow struct {
	FolloweeID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Followee   *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	FollowerID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Follower   *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	CreatedAt  time.Time
}

// ActorURI returns the IRI of the local actor named username.
func ActorURI(domain, username string) string {
	return "https://" + domain + "/users/" + username
}

type LocalActors struct {
	db *gorm.DB
}

func NewLocalActors(db *gorm.DB) *LocalActors {
	return &LocalActors{db: db}
}

// Create creates a new local actor with a fresh keypair and bearer token.
// The token is returned in the clear exactly once.
func (la *LocalActors) Create(username, domain string) (*LocalActor, string, error) {
	kp, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, "", err
	}
	token, err := newToken()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	actor := &LocalActor{
		ID:            snowflake.Now(),
		Username:      username,
		ActivityPubID: ActorURI(domain, username),
		PublicKey:     kp.PublicKey,
		PrivateKey:    kp.PrivateKey,
		TokenHash:     hash,
	}
	if err := la.db.Create(actor).Error; err != nil {
		return nil, "", err
	}
	return actor, token, nil
}

// FindOrCreate returns the local actor named username, creating it with
// a new keypair if it does not exist yet.
func (la *LocalActors) FindOrCreate(username, domain string) (*LocalActor, error) {
	actor, err := la.FindByUsername(username)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	actor, _, err = la.Create(username, domain)
	return actor, err
}

// FindByUsername returns the local actor with the given username.
func (la *LocalActors) FindByUsername(username string) (*LocalActor, error) {
	return la.first("username = ?", username)
}

// FindByActivityPubID returns the local actor with the given IRI.
func (la *LocalActors) FindByActivityPubID(iri string) (*LocalActor, error) {
	return la.first("activity_pub_id = ?", iri)
}

// FindByID returns the local actor with the given id.
func (la *LocalActors) FindByID(id snowflake.ID) (*LocalActor, error) {
	return la.first("id = ?", id)
}

func (la *LocalActors) first(query string, args ...any) (*LocalActor, error) {
	var actors []LocalActor
	if err := la.db.Where(query, args...).Limit(1).Find(&actors).Error; err != nil {
		return nil, err
	}
	if len(actors) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &actors[0], nil
}

// AddLocalFollower records that follower follows followee. It is a no-op
// if the relation already exists.
func (la *LocalActors) AddLocalFollower(followee, follower *LocalActor) error {
	return la.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&LocalFollow{
		FolloweeID: followee.ID,
		FollowerID: follower.ID,
	}).Error
}

// RemoveLocalFollower removes the follow relation, if any.
func (la *LocalActors) RemoveLocalFollower(followee, follower *LocalActor) error {
	return la.db.Where("followee_id = ? AND follower_id = ?", followee.ID, follower.ID).Delete(&LocalFollow{}).Error
}

// LocalFollowers returns the local actors following followee.
func (la *LocalActors) LocalFollowers(followee *LocalActor) ([]*LocalActor, error) {
	var followers []*LocalActor
	err := la.db.Joins("JOIN local_follows ON local_follows.follower_id = local_actors.id").
		Where("local_follows.followee_id = ?", followee.ID).
		Order("local_follows.created_at").
		Find(&followers).Error
	return followers, err
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
