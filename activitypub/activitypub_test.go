package activitypub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/directory"
	"github.com/questline/fedi/inbox"
	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/models/modelstest"
	"github.com/questline/fedi/outbox"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

type queued struct {
	activity     map[string]any
	localActorID snowflake.ID
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queued
}

func (q *recordingQueue) EnqueueDeliverActivity(_ context.Context, activity map[string]any, localActorID snowflake.ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queued{activity, localActorID})
	return nil
}

type fixture struct {
	db    *gorm.DB
	bob   *models.LocalActor
	token string
	queue *recordingQueue
	srv   http.Handler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := modelstest.OpenDB(t)
	bob, token := modelstest.MockLocalActor(t, db, "bob")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := models.NewStore(db)
	queue := new(recordingQueue)
	env := &Env{
		Store:  store,
		Domain: modelstest.Domain,
		Inbox: inbox.New(inbox.Config{
			Domain:    modelstest.Domain,
			Store:     store,
			Directory: directory.New(store, directory.WithLogger(logger)),
			Logger:    logger,
		}),
		Builder: outbox.New(modelstest.Domain),
		Queue:   queue,
		Logger:  logger,
	}
	r := chi.NewRouter()
	Mount(r, env)
	return &fixture{db: db, bob: bob, token: token, queue: queue, srv: r}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "https://local.example"+path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	var doc map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc), rr.Body.String())
	}
	return rr, doc
}

func TestUsersShow(t *testing.T) {
	require := require.New(t)
	f := setup(t)

	rr, doc := f.do(t, "GET", "/users/bob", "")
	require.Equal(http.StatusOK, rr.Code)
	require.Contains(rr.Header().Get("Content-Type"), "application/activity+json")
	require.Equal("https://local.example/users/bob", doc["id"])
	require.Equal("Person", doc["type"])
	require.Equal("bob", doc["preferredUsername"])
	require.Equal("https://local.example/users/bob/inbox", doc["inbox"])
	require.Equal("https://local.example/users/bob/outbox", doc["outbox"])
	require.Equal("https://local.example/users/bob/followers", doc["followers"])
	require.Equal("https://local.example/users/bob/following", doc["following"])
	key := doc["publicKey"].(map[string]any)
	require.Equal("https://local.example/users/bob#main-key", key["id"])
	require.Equal(f.bob.ActivityPubID, key["owner"])
	require.Contains(key["publicKeyPem"], "PUBLIC KEY")

	rr, doc = f.do(t, "GET", "/users/nobody", "")
	require.Equal(http.StatusNotFound, rr.Code)
	require.Contains(doc["error"], "nobody")
}

func TestOutboxCreate(t *testing.T) {
	t.Run("bare note", func(t *testing.T) {
		require := require.New(t)
		f := setup(t)
		note := `{"type":"Note","content":"hello","to":["https://remote.example/users/alice"]}`
		rr, doc := f.do(t, "POST", "/users/bob/outbox", note, "Authorization", "Bearer "+f.token)
		require.Equal(http.StatusCreated, rr.Code, rr.Body.String())
		require.Equal("Create", doc["type"])
		require.Equal(doc["id"], rr.Header().Get("Location"))
		require.True(strings.HasPrefix(rr.Header().Get("Location"), f.bob.ActivityPubID+"/activities/"))
		object := doc["object"].(map[string]any)
		require.True(strings.HasPrefix(object["id"].(string), f.bob.ActivityPubID+"/objects/"))
		require.Equal([]any{"https://remote.example/users/alice"}, doc["to"])

		require.Len(f.queue.jobs, 1)
		require.Equal(f.bob.ID, f.queue.jobs[0].localActorID)
		require.Equal(doc["id"], f.queue.jobs[0].activity["id"])

		rr, coll := f.do(t, "GET", "/users/bob/outbox", "")
		require.Equal(http.StatusOK, rr.Code)
		require.Equal("OrderedCollection", coll["type"])
		require.EqualValues(1, coll["totalItems"])
		items := coll["orderedItems"].([]any)
		require.Equal(doc["id"], items[0].(map[string]any)["id"])

		path := strings.TrimPrefix(doc["id"].(string), "https://local.example")
		rr, activity := f.do(t, "GET", path, "")
		require.Equal(http.StatusOK, rr.Code)
		require.Equal(doc["id"], activity["id"])
	})

	t.Run("blind recipients are not published", func(t *testing.T) {
		require := require.New(t)
		f := setup(t)
		const eve = "https://hidden.example/users/eve"
		note := `{"type":"Note","content":"psst","to":["https://remote.example/users/alice"],"bto":["` + eve + `"],"bcc":["` + eve + `"]}`
		rr, doc := f.do(t, "POST", "/users/bob/outbox", note, "Authorization", "Bearer "+f.token)
		require.Equal(http.StatusCreated, rr.Code, rr.Body.String())

		require.Len(f.queue.jobs, 1)
		require.Equal([]any{eve}, f.queue.jobs[0].activity["bcc"])

		rr, _ = f.do(t, "GET", "/users/bob/outbox", "")
		require.Equal(http.StatusOK, rr.Code)
		require.NotContains(rr.Body.String(), eve)

		path := strings.TrimPrefix(doc["id"].(string), "https://local.example")
		rr, _ = f.do(t, "GET", path, "")
		require.Equal(http.StatusOK, rr.Code)
		require.NotContains(rr.Body.String(), eve)
	})

	t.Run("rejected", func(t *testing.T) {
		f := setup(t)
		tc := []struct {
			name   string
			body   string
			header []string
			status int
		}{
			{"no token", `{"type":"Note"}`, nil, http.StatusUnauthorized},
			{"wrong token", `{"type":"Note"}`, []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
			{"bad json", `{"type":`, []string{"Authorization", "Bearer " + f.token}, http.StatusBadRequest},
			{"like without object", `{"type":"Like"}`, []string{"Authorization", "Bearer " + f.token}, http.StatusBadRequest},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				rr, doc := f.do(t, "POST", "/users/bob/outbox", tt.body, tt.header...)
				require.Equal(t, tt.status, rr.Code)
				require.NotEmpty(t, doc["error"])
			})
		}
		require.Empty(t, f.queue.jobs)
	})

	t.Run("unknown activity", func(t *testing.T) {
		f := setup(t)
		rr, _ := f.do(t, "GET", "/users/bob/activities/does-not-exist", "")
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestInboxCreate(t *testing.T) {
	require := require.New(t)
	f := setup(t)
	carol, _ := modelstest.MockLocalActor(t, f.db, "carol")

	rr, _ := f.do(t, "POST", "/users/bob/inbox", `{"type":`)
	require.Equal(http.StatusBadRequest, rr.Code)

	follow := `{"type":"Follow","actor":"https://remote.example/users/alice","object":"https://local.example/users/bob"}`
	rr, doc := f.do(t, "POST", "/users/bob/inbox", follow)
	require.Equal(http.StatusUnauthorized, rr.Code)
	require.Contains(doc["error"], "unauthorized")

	rr, _ = f.do(t, "POST", "/users/nobody/inbox", follow)
	require.Equal(http.StatusNotFound, rr.Code)

	rr, _ = f.do(t, "POST", "/users/bob/inbox", `{"type":"Follow","actor":"`+carol.ActivityPubID+`","object":"https://local.example/users/bob"}`)
	require.Equal(http.StatusAccepted, rr.Code)

	rr, coll := f.do(t, "GET", "/users/bob/followers", "")
	require.Equal(http.StatusOK, rr.Code)
	require.Equal([]any{carol.ActivityPubID}, coll["orderedItems"])

	rr, coll = f.do(t, "GET", "/users/bob/following", "")
	require.Equal(http.StatusOK, rr.Code)
	require.EqualValues(0, coll["totalItems"])
	require.Equal([]any{}, coll["orderedItems"])
}
