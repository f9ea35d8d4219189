// Package modelstest provides an in-memory database and fixtures for tests.
package modelstest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Domain is the local domain used by fixtures.
const Domain = "local.example"

// OpenDB returns a migrated in-memory database private to the test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)

	sqlDB, err := db.DB()
	require.NoError(err)
	// one connection keeps the in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(db.AutoMigrate(models.AllTables()...))

	// enable foreign key constraints
	require.NoError(db.Exec("PRAGMA foreign_keys = ON").Error)
	return db
}

// MockLocalActor creates a local actor named name on Domain and returns it
// together with its bearer token.
func MockLocalActor(t *testing.T, db *gorm.DB, name string) (*models.LocalActor, string) {
	t.Helper()
	actor, token, err := models.NewLocalActors(db).Create(name, Domain)
	require.NoError(t, err)
	return actor, token
}

// MockForeignActor creates a cached remote actor.
func MockForeignActor(t *testing.T, db *gorm.DB, uri string, opts ...func(*models.ForeignActor)) *models.ForeignActor {
	t.Helper()
	actor := &models.ForeignActor{
		ActorURI:     uri,
		CanonicalURI: uri,
		InboxURL:     uri + "/inbox",
	}
	for _, opt := range opts {
		opt(actor)
	}
	require.NoError(t, db.Create(actor).Error)
	return actor
}

// MockSubmission creates a quest and a submission owned by owner.
func MockSubmission(t *testing.T, db *gorm.DB, owner *models.LocalActor, opts ...func(*models.Submission)) *models.Submission {
	t.Helper()
	require := require.New(t)
	quest := &models.Quest{
		ID:    snowflake.Now(),
		Title: "Touch grass",
	}
	require.NoError(db.Create(quest).Error)
	sub := &models.Submission{
		ID:          snowflake.Now(),
		QuestID:     quest.ID,
		OwnerID:     owner.ID,
		Description: "Found some **grass**.",
		MediaURL:    "https://" + Domain + "/media/grass.jpg",
		MediaType:   "image/jpeg",
	}
	for _, opt := range opts {
		opt(sub)
	}
	require.NoError(db.Create(sub).Error)
	return sub
}
