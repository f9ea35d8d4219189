package models

import (
	"time"

	"github.com/questline/fedi/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A Quest is the read model of a quest as far as federation needs it.
type Quest struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Title       string       `gorm:"size:255;not null"`
	Description string       `gorm:"type:text"`
}

// A Submission is a local actor's entry for a quest.
type Submission struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt   time.Time
	QuestID     snowflake.ID `gorm:"index;not null"`
	Quest       *Quest       `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	OwnerID     snowflake.ID `gorm:"index;not null"`
	Owner       *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Description string       `gorm:"type:text"`
	MediaURL    string       `gorm:"size:255"`
	MediaType   string       `gorm:"size:64"`
	VideoURL    string       `gorm:"size:255"`
}

// A SubmissionReply is a remote Note posted in reply to a submission.
type SubmissionReply struct {
	ID           snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt    time.Time
	SubmissionID snowflake.ID `gorm:"index;not null"`
	Submission   *Submission  `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	AuthorURI    string       `gorm:"size:255;not null"`
	ObjectURI    string       `gorm:"size:255;uniqueIndex"`
	Content      string       `gorm:"type:text"`
	// Text is Content with markup removed.
	Text string `gorm:"type:text"`
}

// A QuestLike records that an actor liked a quest.
type QuestLike struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	ActorURI  string       `gorm:"size:255;uniqueIndex:idx_quest_like;not null"`
	QuestID   snowflake.ID `gorm:"uniqueIndex:idx_quest_like;not null"`
}

type Submissions struct {
	db *gorm.DB
}

func NewSubmissions(db *gorm.DB) *Submissions {
	return &Submissions{db: db}
}

// FindByID returns the submission with its owner and quest.
func (s *Submissions) FindByID(id snowflake.ID) (*Submission, error) {
	var sub Submission
	return &sub, s.db.Preload("Owner").Preload("Quest").Take(&sub, id).Error
}

// AddReply stores a reply. Re-delivery of the same object is a no-op.
func (s *Submissions) AddReply(reply *SubmissionReply) error {
	if reply.ID == 0 {
		reply.ID = snowflake.Now()
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(reply).Error
}

type Likes struct {
	db *gorm.DB
}

func NewLikes(db *gorm.DB) *Likes {
	return &Likes{db: db}
}

// Exists reports whether actorURI has liked the quest.
func (l *Likes) Exists(actorURI string, questID snowflake.ID) (bool, error) {
	var count int64
	err := l.db.Model(&QuestLike{}).Where("actor_uri = ? AND quest_id = ?", actorURI, questID).Count(&count).Error
	return count > 0, err
}

// Add records a like unless one already exists.
func (l *Likes) Add(actorURI string, questID snowflake.ID) error {
	exists, err := l.Exists(actorURI, questID)
	if err != nil || exists {
		return err
	}
	return l.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&QuestLike{
		ID:       snowflake.Now(),
		ActorURI: actorURI,
		QuestID:  questID,
	}).Error
}

// Remove deletes the like, if present.
func (l *Likes) Remove(actorURI string, questID snowflake.ID) error {
	return l.db.Where("actor_uri = ? AND quest_id = ?", actorURI, questID).Delete(&QuestLike{}).Error
}
