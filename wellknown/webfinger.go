package wellknown

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/activitypub"
	"github.com/questline/fedi/internal/httpx"
	"github.com/questline/fedi/internal/iri"
	"github.com/questline/fedi/internal/webfinger"
	"github.com/questline/fedi/models"
	"gorm.io/gorm"
)

// WebfingerShow answers acct: and actor IRI queries for local actors.
func WebfingerShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	var params struct {
		Resource string `schema:"resource"`
	}
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	if params.Resource == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("resource is required"))
	}

	var actor *models.LocalActor
	var err error
	switch {
	case strings.HasPrefix(params.Resource, "https://"), strings.HasPrefix(params.Resource, "http://"):
		if !iri.IsLocal(params.Resource, env.Domain) {
			return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not on this server", params.Resource))
		}
		err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
			actor, err = uow.LocalActors().FindByActivityPubID(params.Resource)
			return err
		})
	default:
		acct, perr := webfinger.Parse(params.Resource)
		if perr != nil {
			return httpx.Error(http.StatusBadRequest, perr)
		}
		if iri.NormaliseHost(acct.Host) != iri.NormaliseHost(env.Domain) {
			return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not on this server", acct))
		}
		err = env.Store.Do(r.Context(), func(uow models.UnitOfWork) error {
			actor, err = uow.LocalActors().FindByUsername(acct.User)
			return err
		})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such user: %s", params.Resource))
	}
	if err != nil {
		return err
	}

	acct := &webfinger.Acct{User: actor.Username, Host: env.Domain}
	w.Header().Set("Content-Type", "application/jrd+json")
	return json.MarshalFull(w, webfinger.ForActor(acct, actor.ActivityPubID))
}
