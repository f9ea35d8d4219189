package outbox

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/internal/httpx"
	"github.com/questline/fedi/models"
)

var (
	// ErrBadToken is returned when the bearer token is missing or wrong.
	ErrBadToken = errors.New("invalid bearer token")

	// ErrInvalidActivity is returned for bodies that are neither an
	// activity nor an object.
	ErrInvalidActivity = errors.New("invalid activity")
)

// activityTypes are the types accepted as activities by HandleOutboxPost.
// Anything else is treated as an object to be wrapped in a Create.
var activityTypes = map[string]bool{
	"Create":   true,
	"Update":   true,
	"Delete":   true,
	"Follow":   true,
	"Accept":   true,
	"Reject":   true,
	"Add":      true,
	"Remove":   true,
	"Like":     true,
	"Announce": true,
	"Undo":     true,
	"Block":    true,
}

// audience are the addressing properties copied from an object to the
// Create that wraps it.
var audience = []string{"to", "bto", "cc", "bcc", "audience"}

// HandleOutboxPost accepts an activity or bare object posted by a client
// on behalf of actor, authenticated by token. The returned activity has
// been appended to actor's outbox and is ready for delivery.
// Errors are *httpx.StatusError with status 400 or 401.
func (b *Builder) HandleOutboxPost(uow models.UnitOfWork, actor *models.LocalActor, token string, body []byte) (map[string]any, error) {
	if !actor.CheckToken(token) {
		return nil, httpx.Error(http.StatusUnauthorized, ErrBadToken)
	}
	var activity map[string]any
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, httpx.Error(http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidActivity, err))
	}
	typ, _ := activity["type"].(string)
	if typ == "" {
		return nil, httpx.Error(http.StatusBadRequest, fmt.Errorf("%w: type is required", ErrInvalidActivity))
	}

	now := b.now()
	published := now.UTC().Format(time.RFC3339)
	if activityTypes[typ] {
		if activity["object"] == nil {
			return nil, httpx.Error(http.StatusBadRequest, fmt.Errorf("%w: %s requires object", ErrInvalidActivity, typ))
		}
		if (typ == "Add" || typ == "Remove") && activity["target"] == nil {
			return nil, httpx.Error(http.StatusBadRequest, fmt.Errorf("%w: %s requires target", ErrInvalidActivity, typ))
		}
		activity["actor"] = actor.ActivityPubID
		activity["id"] = b.activityID(actor)
		activity["published"] = published
		if object, ok := activity["object"].(map[string]any); ok {
			if id, _ := object["id"].(string); id == "" {
				object["id"] = b.objectID(actor)
			}
		}
		if _, ok := activity["@context"]; !ok {
			activity["@context"] = Context
		}
	} else {
		object := withoutContext(activity)
		if id, _ := object["id"].(string); id == "" {
			object["id"] = b.objectID(actor)
		}
		if _, ok := object["attributedTo"]; !ok {
			object["attributedTo"] = actor.ActivityPubID
		}
		if _, ok := object["published"]; !ok {
			object["published"] = published
		}
		create := map[string]any{
			"@context":  Context,
			"id":        b.activityID(actor),
			"type":      CREATE,
			"actor":     actor.ActivityPubID,
			"published": published,
			"object":    object,
		}
		for _, k := range audience {
			if v, ok := object[k]; ok {
				create[k] = v
			}
		}
		activity = create
	}

	if _, err := uow.Outbox().Append(actor, activity, now); err != nil {
		return nil, err
	}
	return activity, nil
}
