package activitypub

import (
	"net/http"

	"github.com/questline/fedi/internal/algorithms"
	"github.com/questline/fedi/internal/to"
	"github.com/questline/fedi/models"
)

// FollowersIndex lists remote followers followed by local ones.
func FollowersIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	var items []any
	err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		remote, err := uow.Followers().ForLocalActor(actor)
		if err != nil {
			return err
		}
		local, err := uow.LocalActors().LocalFollowers(actor)
		if err != nil {
			return err
		}
		items = append(algorithms.Map(remote, func(fa *models.ForeignActor) any { return fa.URI() }),
			algorithms.Map(local, func(la *models.LocalActor) any { return la.ActivityPubID })...)
		return nil
	})
	if err != nil {
		return err
	}
	return to.Activity(w, http.StatusOK, orderedCollection(actor.FollowersURI(), items))
}

func FollowingIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	var following []string
	err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
		following, err = uow.Following().ForLocalActor(actor)
		return err
	})
	if err != nil {
		return err
	}
	return to.Activity(w, http.StatusOK, orderedCollection(actor.FollowingURI(), algorithms.Map(following, func(s string) any { return s })))
}
