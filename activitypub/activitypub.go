// Package activitypub serves the ActivityPub documents, inboxes and outboxes
// of local actors.
package activitypub

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/questline/fedi/inbox"
	"github.com/questline/fedi/internal/httpx"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/outbox"
	"github.com/questline/fedi/workers"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// maxBodySize bounds inbox and outbox POST bodies.
const maxBodySize = 1 << 20

type Env struct {
	Store   *models.Store
	Domain  string
	Inbox   *inbox.Processor
	Builder *outbox.Builder
	Queue   workers.Queue
	Logger  *slog.Logger
}

func (e *Env) Log() *slog.Logger {
	return e.Logger
}

// Mount registers the actor routes on r.
func Mount(r chi.Router, env *Env) {
	envFn := func(*http.Request) *Env { return env }
	r.Route("/users/{username}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(envFn, UsersShow))
		r.Post("/inbox", httpx.HandlerFunc(envFn, InboxCreate))
		r.Get("/outbox", httpx.HandlerFunc(envFn, OutboxIndex))
		r.Post("/outbox", httpx.HandlerFunc(envFn, OutboxCreate))
		r.Get("/followers", httpx.HandlerFunc(envFn, FollowersIndex))
		r.Get("/following", httpx.HandlerFunc(envFn, FollowingIndex))
		r.Get("/activities/{id}", httpx.HandlerFunc(envFn, ActivitiesShow))
	})
}

// localActor returns the actor named by the username route parameter.
func (e *Env) localActor(r *http.Request) (*models.LocalActor, error) {
	username := chi.URLParam(r, "username")
	var actor *models.LocalActor
	err := e.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		var err error
		actor, err = uow.LocalActors().FindByUsername(username)
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("no such user: %q", username))
	}
	return actor, err
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, httpx.Error(http.StatusRequestEntityTooLarge, err)
		}
		return nil, httpx.Error(http.StatusBadRequest, err)
	}
	return body, nil
}
