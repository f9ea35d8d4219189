package outbox

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/questline/fedi/internal/httpx"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/models/modelstest"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fixedBuilder() *Builder {
	b := New(modelstest.Domain)
	b.now = func() time.Time { return time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuildCreateFromSubmission(t *testing.T) {
	t.Run("image", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		alice, _ := modelstest.MockLocalActor(t, db, "alice")
		sub := modelstest.MockSubmission(t, db, alice)
		quest := &models.Quest{ID: sub.QuestID, Title: "Touch grass"}
		b := fixedBuilder()

		var create map[string]any
		err := models.NewStore(db).Do(context.Background(), func(uow models.UnitOfWork) error {
			var err error
			create, err = b.BuildCreateFromSubmission(uow, sub, alice, quest)
			return err
		})
		require.NoError(err)

		require.Equal("Create", create["type"])
		require.Equal(alice.ActivityPubID, create["actor"])
		require.Equal([]any{Public, "https://local.example/users/alice/followers"}, create["to"])
		require.True(strings.HasPrefix(create["id"].(string), "https://local.example/users/alice/activities/"))

		object := create["object"].(map[string]any)
		require.Equal("Image", object["type"])
		require.Equal("https://local.example/submissions/"+sub.ID.String(), object["id"])
		require.Equal(alice.ActivityPubID, object["attributedTo"])
		require.Equal("<p>Found some <strong>grass</strong>.</p>", object["content"])
		require.Equal("image/jpeg", object["mediaType"])
		require.Equal(sub.MediaURL, object["url"])
		require.Equal("2023-04-01T12:00:00Z", object["published"])
		require.Equal("Touch grass", object["name"])

		rec, err := models.NewOutbox(db).FindByActivityID(create["id"].(string))
		require.NoError(err)
		require.Equal("Create", rec.Type)
		require.Equal(alice.ID, rec.LocalActorID)
	})

	t.Run("video", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		alice, _ := modelstest.MockLocalActor(t, db, "alice")
		sub := modelstest.MockSubmission(t, db, alice, func(s *models.Submission) {
			s.VideoURL = "https://local.example/media/grass.mp4"
		})

		var create map[string]any
		err := models.NewStore(db).Do(context.Background(), func(uow models.UnitOfWork) error {
			var err error
			create, err = fixedBuilder().BuildCreateFromSubmission(uow, sub, alice, nil)
			return err
		})
		require.NoError(err)
		object := create["object"].(map[string]any)
		require.Equal("Video", object["type"])
		require.Equal("https://local.example/media/grass.mp4", object["url"])
		require.Equal("video/mp4", object["mediaType"])
		require.NotContains(object, "name")
	})
}

func TestBuildLikeAndReply(t *testing.T) {
	require := require.New(t)
	db := modelstest.OpenDB(t)
	alice, _ := modelstest.MockLocalActor(t, db, "alice")
	bob, _ := modelstest.MockLocalActor(t, db, "bob")
	sub := modelstest.MockSubmission(t, db, bob)
	b := fixedBuilder()

	like := b.BuildLikeFromSubmission(alice, sub, bob.ActivityPubID)
	require.Equal("Like", like["type"])
	require.Equal(b.SubmissionIRI(sub), like["object"])
	require.Equal([]any{bob.ActivityPubID}, like["to"])

	reply := b.BuildReplyFromSubmission(alice, sub, bob.ActivityPubID, "nice *grass*")
	require.Equal("Create", reply["type"])
	require.Equal([]any{bob.ActivityPubID}, reply["to"])
	note := reply["object"].(map[string]any)
	require.Equal("Note", note["type"])
	require.Equal(b.SubmissionIRI(sub), note["inReplyTo"])
	require.Equal("<p>nice <em>grass</em></p>", note["content"])
	require.True(strings.HasPrefix(note["id"].(string), "https://local.example/users/alice/objects/"))

	recs, err := models.NewOutbox(db).ForLocalActor(alice)
	require.NoError(err)
	require.Empty(recs)
}

func TestBuildFollowUndoAccept(t *testing.T) {
	require := require.New(t)
	db := modelstest.OpenDB(t)
	alice, _ := modelstest.MockLocalActor(t, db, "alice")
	b := New(modelstest.Domain)

	follow := b.BuildFollow(alice, "https://remote.example/users/bob")
	require.Equal("Follow", follow["type"])
	require.Equal("https://remote.example/users/bob", follow["object"])

	undo := b.BuildUndo(alice, follow)
	require.Equal("Undo", undo["type"])
	require.Equal([]any{"https://remote.example/users/bob"}, undo["to"])
	inner := undo["object"].(map[string]any)
	require.Equal(follow["id"], inner["id"])
	require.NotContains(inner, "@context")
	require.NotEqual(follow["id"], undo["id"])

	remoteFollow := map[string]any{
		"@context": Context,
		"id":       "https://remote.example/activities/1",
		"type":     "Follow",
		"actor":    "https://remote.example/users/bob",
		"object":   alice.ActivityPubID,
	}
	accept := b.BuildAccept(alice, remoteFollow)
	require.Equal("Accept", accept["type"])
	require.Equal(alice.ActivityPubID, accept["actor"])
	require.Equal([]any{"https://remote.example/users/bob"}, accept["to"])
	require.Equal("https://remote.example/activities/1", accept["object"].(map[string]any)["id"])
}

func TestHandleOutboxPost(t *testing.T) {
	post := func(t *testing.T, db *gorm.DB, actor *models.LocalActor, token, body string) (map[string]any, error) {
		t.Helper()
		var activity map[string]any
		err := models.NewStore(db).Do(context.Background(), func(uow models.UnitOfWork) error {
			var err error
			activity, err = fixedBuilder().HandleOutboxPost(uow, actor, token, []byte(body))
			return err
		})
		return activity, err
	}
	status := func(err error) int {
		var se *httpx.StatusError
		if errors.As(err, &se) {
			return se.Status()
		}
		return 0
	}

	t.Run("bare note is wrapped in a create", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		alice, token := modelstest.MockLocalActor(t, db, "alice")

		create, err := post(t, db, alice, token, `{"type":"Note","content":"hi","to":["https://remote.example/users/bob"],"bcc":["https://remote.example/users/carol"]}`)
		require.NoError(err)
		require.Equal("Create", create["type"])
		require.Equal(alice.ActivityPubID, create["actor"])
		require.Equal([]any{"https://remote.example/users/bob"}, create["to"])
		require.Equal([]any{"https://remote.example/users/carol"}, create["bcc"])
		object := create["object"].(map[string]any)
		require.Equal("hi", object["content"])
		require.True(strings.HasPrefix(object["id"].(string), "https://local.example/users/alice/objects/"))
		require.Equal(alice.ActivityPubID, object["attributedTo"])

		rec, err := models.NewOutbox(db).FindByActivityID(create["id"].(string))
		require.NoError(err)
		require.Equal("Create", rec.Type)
	})

	t.Run("client ids are replaced", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		alice, token := modelstest.MockLocalActor(t, db, "alice")

		like, err := post(t, db, alice, token, `{"type":"Like","id":"https://evil.example/1","actor":"https://evil.example/users/mallory","object":"https://remote.example/notes/1"}`)
		require.NoError(err)
		require.Equal(alice.ActivityPubID, like["actor"])
		require.True(strings.HasPrefix(like["id"].(string), "https://local.example/users/alice/activities/"))
		require.Equal("2023-04-01T12:00:00Z", like["published"])
		require.Equal(Context, like["@context"])
	})

	t.Run("embedded object gets an id", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		alice, token := modelstest.MockLocalActor(t, db, "alice")

		create, err := post(t, db, alice, token, `{"type":"Create","object":{"type":"Note","content":"hi"}}`)
		require.NoError(err)
		object := create["object"].(map[string]any)
		require.True(strings.HasPrefix(object["id"].(string), "https://local.example/users/alice/objects/"))

		create, err = post(t, db, alice, token, `{"type":"Create","object":{"id":"https://local.example/users/alice/objects/mine","type":"Note"}}`)
		require.NoError(err)
		require.Equal("https://local.example/users/alice/objects/mine", create["object"].(map[string]any)["id"])
	})

	t.Run("validation", func(t *testing.T) {
		db := modelstest.OpenDB(t)
		alice, token := modelstest.MockLocalActor(t, db, "alice")
		for name, body := range map[string]string{
			"not json":       `{`,
			"no type":        `{"content":"hi"}`,
			"like no object": `{"type":"Like"}`,
			"add no target":  `{"type":"Add","object":"https://remote.example/notes/1"}`,
		} {
			t.Run(name, func(t *testing.T) {
				require := require.New(t)
				_, err := post(t, db, alice, token, body)
				require.ErrorIs(err, ErrInvalidActivity)
				require.Equal(http.StatusBadRequest, status(err))
			})
		}
		recs, err := models.NewOutbox(db).ForLocalActor(alice)
		require.NoError(t, err)
		require.Empty(t, recs)
	})

	t.Run("bearer token", func(t *testing.T) {
		db := modelstest.OpenDB(t)
		alice, _ := modelstest.MockLocalActor(t, db, "alice")
		_, bobToken := modelstest.MockLocalActor(t, db, "bob")
		for name, token := range map[string]string{
			"missing":        "",
			"wrong":          "not-the-token",
			"another actors": bobToken,
		} {
			t.Run(name, func(t *testing.T) {
				require := require.New(t)
				_, err := post(t, db, alice, token, `{"type":"Note","content":"hi"}`)
				require.ErrorIs(err, ErrBadToken)
				require.Equal(http.StatusUnauthorized, status(err))
			})
		}
	})
}
