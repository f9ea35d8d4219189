package activitypub

import (
	"net/http"

	"github.com/questline/fedi/internal/httpx"
)

func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	status, err := env.Inbox.Receive(r.Context(), actor, r, body)
	if err != nil {
		return httpx.Error(status, err)
	}
	w.WriteHeader(status)
	return nil
}
