package activitypub

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/questline/fedi/delivery"
	"github.com/questline/fedi/internal/algorithms"
	"github.com/questline/fedi/internal/httpx"
	"github.com/questline/fedi/internal/to"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/outbox"
	"gorm.io/gorm"
)

// OutboxIndex lists the actor's activities with blind recipients removed.
func OutboxIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	var recs []models.OutboxRecord
	err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		recs, err = uow.Outbox().ForLocalActor(actor)
		return err
	})
	if err != nil {
		return err
	}
	return to.Activity(w, http.StatusOK, orderedCollection(actor.OutboxURI(), algorithms.Map(recs, func(rec models.OutboxRecord) any {
		return delivery.Redact(rec.Activity)
	})))
}

// OutboxCreate accepts a client to server post. The stored activity is
// queued for delivery and returned with its id in the Location header.
func OutboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	token, ok := httpx.BearerToken(r)
	if !ok {
		return httpx.Error(http.StatusUnauthorized, outbox.ErrBadToken)
	}
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	var activity map[string]any
	err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		activity, err = env.Builder.HandleOutboxPost(uow, actor, token, body)
		return err
	})
	if err != nil {
		return err
	}
	if err := env.Queue.EnqueueDeliverActivity(r.Context(), activity, actor.ID); err != nil {
		env.Log().Error("failed to enqueue delivery", "activity", activity["id"], "err", err)
	}
	id, _ := activity["id"].(string)
	w.Header().Set("Location", id)
	return to.Activity(w, http.StatusCreated, activity)
}

// ActivitiesShow returns an activity from the actor's outbox.
func ActivitiesShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	id := actor.ActivityPubID + "/activities/" + chi.URLParam(r, "id")
	var rec *models.OutboxRecord
	err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		rec, err = uow.Outbox().FindByActivityID(id)
		return err
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such activity: %s", id))
	case err != nil:
		return err
	case rec.LocalActorID != actor.ID:
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such activity: %s", id))
	}
	return to.Activity(w, http.StatusOK, delivery.Redact(rec.Activity))
}

func orderedCollection(id string, items []any) map[string]any {
	return map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
}
