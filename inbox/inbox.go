// Package inbox validates inbound activities and applies their side effects.
package inbox

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/internal/activitypub"
	"github.com/questline/fedi/internal/httpsig"
	"github.com/questline/fedi/internal/iri"
	"github.com/questline/fedi/internal/snowflake"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/outbox"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// Notifier records notifications for local users.
type Notifier interface {
	EmitNotification(ctx context.Context, userID snowflake.ID, typ string, payload map[string]any) error
}

// LocalUsers resolves IRIs belonging to this server.
type LocalUsers interface {
	ResolveLocalUserByActivityPubID(ctx context.Context, iri string) (*models.LocalActor, error)
}

// Deliverer posts a single activity to an inbox.
type Deliverer interface {
	DeliverTo(ctx context.Context, inboxURL string, activity map[string]any, sender *models.LocalActor) error
}

// Directory resolves remote actors.
type Directory interface {
	Resolve(ctx context.Context, actorURI string) (*models.ForeignActor, error)
	KeyFunc(ctx context.Context, signAs activitypub.Signer) httpsig.KeyFunc
}

type Config struct {
	// Domain is the authority of this server.
	Domain    string
	Store     *models.Store
	Directory Directory
	Deliverer Deliverer
	// Notifier defaults to storing Notifications through Store.
	Notifier Notifier
	// Users defaults to looking up LocalActors through Store.
	Users  LocalUsers
	Logger *slog.Logger
}

// Processor applies inbound activities addressed to local actors.
type Processor struct {
	domain    string
	store     *models.Store
	directory Directory
	deliverer Deliverer
	notifier  Notifier
	users     LocalUsers
	builder   *outbox.Builder
	logger    *slog.Logger
}

func New(cfg Config) *Processor {
	p := &Processor{
		domain:    cfg.Domain,
		store:     cfg.Store,
		directory: cfg.Directory,
		deliverer: cfg.Deliverer,
		notifier:  cfg.Notifier,
		users:     cfg.Users,
		builder:   outbox.New(cfg.Domain),
		logger:    cfg.Logger,
	}
	if p.notifier == nil {
		p.notifier = NewStoreNotifier(cfg.Store)
	}
	if p.users == nil {
		p.users = NewStoreUsers(cfg.Store)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Receive validates the activity in body, sent to local's inbox, and
// applies it. The returned status is 202 once the activity has been
// validated, whether or not it had any effect. Validation failures
// return a *ValidationError with status 400; signature failures an
// *AuthError with status 401.
func (p *Processor) Receive(ctx context.Context, local *models.LocalActor, req *http.Request, body []byte) (int, error) {
	var activity map[string]any
	if err := json.Unmarshal(body, &activity); err != nil {
		return http.StatusBadRequest, &ValidationError{Err: err}
	}
	typ := stringFromAny(activity["type"])
	actor := stringFromAny(activity["actor"])
	if typ == "" || actor == "" {
		return http.StatusBadRequest, &ValidationError{Err: errMissingField}
	}

	remote := !iri.IsLocal(actor, p.domain)
	if remote {
		if err := p.verify(ctx, local, req, body, actor); err != nil {
			return http.StatusUnauthorized, &AuthError{Err: err}
		}
	}

	log := p.logger.With("type", typ, "actor", actor, "local", local.ActivityPubID)
	var err error
	switch kind := KindOf(typ); kind {
	case KindFollow:
		err = p.follow(ctx, log, local, activity, actor, remote)
	case KindAccept:
		err = p.accept(ctx, local, activity, actor)
	case KindCreate:
		if remote {
			err = p.create(ctx, log, activity, actor)
		}
	case KindLike:
		err = p.like(ctx, log, activity, actor, remote)
	case KindAnnounce:
		err = p.announce(ctx, log, activity, actor, remote)
	case KindUndo:
		err = p.undo(ctx, log, local, activity, actor, remote)
	case KindUnhandled:
		log.Debug("ignoring unhandled activity")
	default:
		panic(fmt.Sprintf("unexpected kind %v", kind))
	}
	if err != nil {
		log.Warn("failed to process activity", "err", err)
	}
	return http.StatusAccepted, nil
}

// verify checks the request signature. The signing key must belong to the
// same authority as the activity's actor. Keys are fetched as local.
func (p *Processor) verify(ctx context.Context, local *models.LocalActor, req *http.Request, body []byte, actor string) error {
	keyFn := p.directory.KeyFunc(ctx, local)
	return httpsig.Verify(req, body, func(owner string) (crypto.PublicKey, error) {
		if iri.Authority(owner) != iri.Authority(actor) {
			return nil, fmt.Errorf("key owner %s does not speak for %s", owner, actor)
		}
		return keyFn(owner)
	})
}

func (p *Processor) follow(ctx context.Context, log *slog.Logger, local *models.LocalActor, activity map[string]any, actor string, remote bool) error {
	if target := idFromAny(activity["object"]); target != local.ActivityPubID {
		return fmt.Errorf("follow of %q delivered to %s", target, local.ActivityPubID)
	}

	if !remote {
		follower, err := p.users.ResolveLocalUserByActivityPubID(ctx, actor)
		if err != nil {
			return fmt.Errorf("resolve local follower: %w", err)
		}
		err = p.store.Do(ctx, func(uow models.UnitOfWork) error {
			return uow.LocalActors().AddLocalFollower(local, follower)
		})
		if err != nil {
			return err
		}
		return p.notifier.EmitNotification(ctx, local.ID, "follow", map[string]any{
			"follower_id":   follower.ID.String(),
			"follower_name": follower.Username,
		})
	}

	follower, err := p.directory.Resolve(ctx, actor)
	if err != nil {
		return err
	}
	if p.deliverer != nil {
		accept := p.builder.BuildAccept(local, activity)
		if err := p.deliverer.DeliverTo(ctx, follower.InboxURL, accept, local); err != nil {
			log.Warn("failed to deliver accept", "inbox", follower.InboxURL, "err", err)
		}
	}
	err = p.store.Do(ctx, func(uow models.UnitOfWork) error {
		return uow.Followers().Add(local, follower)
	})
	if err != nil {
		return err
	}
	return p.notifier.EmitNotification(ctx, local.ID, "follow", map[string]any{
		"actor": actor,
	})
}

// accept records that a remote actor accepted one of local's follows.
func (p *Processor) accept(ctx context.Context, local *models.LocalActor, activity map[string]any, actor string) error {
	return p.store.Do(ctx, func(uow models.UnitOfWork) error {
		follow := mapFromAny(activity["object"])
		if follow == nil {
			// a bare id, look it up among the activities we sent.
			rec, err := uow.Outbox().FindByActivityID(stringFromAny(activity["object"]))
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			follow = rec.Activity
		}
		if stringFromAny(follow["type"]) != "Follow" || idFromAny(follow["actor"]) != local.ActivityPubID {
			return nil
		}
		if target := idFromAny(follow["object"]); target != "" && target != actor {
			return nil
		}
		return uow.Following().Add(local, actor)
	})
}

// create stores remote replies to submissions.
func (p *Processor) create(ctx context.Context, log *slog.Logger, activity map[string]any, actor string) error {
	note := mapFromAny(activity["object"])
	if stringFromAny(note["type"]) != "Note" {
		return nil
	}
	inReplyTo := idFromAny(note["inReplyTo"])
	if inReplyTo == "" {
		return nil
	}
	id, err := SubmissionID(inReplyTo)
	if errors.Is(err, ErrNoSubmission) {
		return nil
	}
	if err != nil {
		return err
	}
	content := stringFromAny(note["content"])
	reply := &models.SubmissionReply{
		SubmissionID: id,
		AuthorURI:    actor,
		ObjectURI:    stringFromAny(note["id"]),
		Content:      content,
		Text:         plainText(content),
	}
	var owner snowflake.ID
	err = p.store.Do(ctx, func(uow models.UnitOfWork) error {
		sub, err := uow.Submissions().FindByID(id)
		if err != nil {
			return fmt.Errorf("submission %v: %w", id, err)
		}
		owner = sub.OwnerID
		return uow.Submissions().AddReply(reply)
	})
	if err != nil {
		return err
	}
	log.Info("reply to submission", "submission", id)
	return p.notifier.EmitNotification(ctx, owner, "submission_reply", map[string]any{
		"actor":         actor,
		"submission_id": id.String(),
		"object":        reply.ObjectURI,
		"text":          reply.Text,
	})
}

func (p *Processor) like(ctx context.Context, log *slog.Logger, activity map[string]any, actor string, remote bool) error {
	if !p.resolveSender(ctx, log, actor, remote) {
		return nil
	}
	questID, err := SubmissionID(idFromAny(activity["object"]))
	if err != nil {
		return err
	}
	return p.store.Do(ctx, func(uow models.UnitOfWork) error {
		return uow.Likes().Add(actor, questID)
	})
}

func (p *Processor) announce(ctx context.Context, log *slog.Logger, activity map[string]any, actor string, remote bool) error {
	id, err := SubmissionID(idFromAny(activity["object"]))
	if err != nil {
		return err
	}
	if !p.resolveSender(ctx, log, actor, remote) {
		return nil
	}
	var owner snowflake.ID
	err = p.store.Do(ctx, func(uow models.UnitOfWork) error {
		sub, err := uow.Submissions().FindByID(id)
		if err != nil {
			return fmt.Errorf("submission %v: %w", id, err)
		}
		owner = sub.OwnerID
		return nil
	})
	if err != nil {
		return err
	}
	return p.notifier.EmitNotification(ctx, owner, "announce", map[string]any{
		"actor":         actor,
		"submission_id": id.String(),
	})
}

func (p *Processor) undo(ctx context.Context, log *slog.Logger, local *models.LocalActor, activity map[string]any, actor string, remote bool) error {
	undone := mapFromAny(activity["object"])
	if undone == nil {
		log.Debug("undo of an unembedded activity")
		return nil
	}
	if inner := idFromAny(undone["actor"]); inner != "" && inner != actor {
		return fmt.Errorf("%s cannot undo an activity of %s", actor, inner)
	}
	switch stringFromAny(undone["type"]) {
	case "Like":
		questID, err := SubmissionID(idFromAny(undone["object"]))
		if err != nil {
			return err
		}
		return p.store.Do(ctx, func(uow models.UnitOfWork) error {
			return uow.Likes().Remove(actor, questID)
		})
	case "Follow":
		if idFromAny(undone["object"]) != local.ActivityPubID {
			return nil
		}
		if !remote {
			follower, err := p.users.ResolveLocalUserByActivityPubID(ctx, actor)
			if err != nil {
				return fmt.Errorf("resolve local follower: %w", err)
			}
			return p.store.Do(ctx, func(uow models.UnitOfWork) error {
				return uow.LocalActors().RemoveLocalFollower(local, follower)
			})
		}
		return p.store.Do(ctx, func(uow models.UnitOfWork) error {
			follower, err := uow.ForeignActors().FindByURI(actor)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return uow.Followers().Remove(local, follower)
		})
	default:
		return nil
	}
}

// resolveSender reports whether actor is a known local user or a remote
// actor that can be discovered.
func (p *Processor) resolveSender(ctx context.Context, log *slog.Logger, actor string, remote bool) bool {
	if !remote {
		_, err := p.users.ResolveLocalUserByActivityPubID(ctx, actor)
		if err != nil {
			log.Debug("unknown local sender", "err", err)
		}
		return err == nil
	}
	if _, err := p.directory.Resolve(ctx, actor); err != nil {
		log.Debug("unresolvable sender", "err", err)
		return false
	}
	return true
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// idFromAny returns v if it is a string, or its id if it is an object.
func idFromAny(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	default:
		return ""
	}
}
