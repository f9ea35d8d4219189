package activitypub

import (
	"net/http"

	"github.com/questline/fedi/internal/to"
)

func UsersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := env.localActor(r)
	if err != nil {
		return err
	}
	return to.Activity(w, http.StatusOK, map[string]any{
		"@context": []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                actor.ActivityPubID,
		"type":              "Person",
		"preferredUsername": actor.Username,
		"inbox":             actor.InboxURI(),
		"outbox":            actor.OutboxURI(),
		"followers":         actor.FollowersURI(),
		"following":         actor.FollowingURI(),
		"published":         actor.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.ActivityPubID,
			"publicKeyPem": string(actor.PublicKey),
		},
	})
}
