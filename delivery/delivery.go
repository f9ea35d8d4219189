// Package delivery ships activities to the inboxes of their recipients.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/questline/fedi/internal/activitypub"
	"github.com/questline/fedi/internal/iri"
	"github.com/questline/fedi/models"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// DeliveryError records a failed POST to an inbox.
type DeliveryError struct {
	Inbox string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Inbox, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Discoverer finds the inbox of a remote actor.
type Discoverer interface {
	Discover(ctx context.Context, actorURI string) (string, error)
}

type Config struct {
	// Domain is the authority of this server. Recipients on it are
	// never dialed.
	Domain    string
	Store     *models.Store
	Directory Discoverer
	// HTTPClient defaults to activitypub.NewHTTPClient.
	HTTPClient *http.Client
	// Workers bounds the number of concurrent POSTs per Deliver call.
	// Zero or one posts sequentially.
	Workers int
	Logger  *slog.Logger
}

// Engine delivers activities. It never retries.
type Engine struct {
	domain    string
	store     *models.Store
	directory Discoverer
	client    *http.Client
	workers   int
	logger    *slog.Logger
}

func New(cfg Config) *Engine {
	e := &Engine{
		domain:    cfg.Domain,
		store:     cfg.Store,
		directory: cfg.Directory,
		client:    cfg.HTTPClient,
		workers:   cfg.Workers,
		logger:    cfg.Logger,
	}
	if e.client == nil {
		e.client = activitypub.NewHTTPClient()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Deliver posts activity, signed as sender, to every recipient named in
// its to, cc, bto and bcc properties. Failures are logged.
func (e *Engine) Deliver(ctx context.Context, activity map[string]any, sender *models.LocalActor) {
	log := e.logger.With("activity", activity["id"], "sender", sender.ActivityPubID)
	client, err := activitypub.NewClient(e.client, sender)
	if err != nil {
		log.Error("failed to create client", "err", err)
		return
	}

	var inboxes []string
	seen := make(map[string]bool)
	add := func(inbox string) {
		if !seen[inbox] {
			seen[inbox] = true
			inboxes = append(inboxes, inbox)
		}
	}
	for _, recipient := range Recipients(activity, sender.ActivityPubID) {
		u, err := url.Parse(recipient)
		switch {
		case err != nil || u.Scheme == "" || u.Host == "":
			log.Warn("skipping recipient without scheme or host", "recipient", recipient)
		case strings.HasSuffix(recipient, "#Public"):
			// the public collection has no inbox.
		case strings.HasSuffix(recipient, "/followers"):
			for _, inbox := range e.followerInboxes(ctx, log, sender) {
				add(inbox)
			}
		case iri.IsLocal(recipient, e.domain):
			log.Debug("skipping local recipient", "recipient", recipient)
		default:
			add(strings.TrimSuffix(recipient, "/") + "/inbox")
		}
	}

	payload := Redact(activity)
	post := func(inbox string) {
		if err := client.Post(ctx, inbox, payload); err != nil {
			log.Warn("delivery failed", "err", &DeliveryError{Inbox: inbox, Err: err})
			return
		}
		log.Debug("delivered", "inbox", inbox)
	}
	if e.workers <= 1 {
		for _, inbox := range inboxes {
			post(inbox)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, inbox := range inboxes {
		inbox := inbox
		g.Go(func() error {
			post(inbox)
			return nil
		})
	}
	g.Wait()
}

// DeliverTo posts activity, signed as sender, to a single inbox.
func (e *Engine) DeliverTo(ctx context.Context, inboxURL string, activity map[string]any, sender *models.LocalActor) error {
	client, err := activitypub.NewClient(e.client, sender)
	if err != nil {
		return err
	}
	if err := client.Post(ctx, inboxURL, Redact(activity)); err != nil {
		return &DeliveryError{Inbox: inboxURL, Err: err}
	}
	return nil
}

// followerInboxes returns the inboxes of sender's remote followers,
// discovering those that are not yet known.
func (e *Engine) followerInboxes(ctx context.Context, log *slog.Logger, sender *models.LocalActor) []string {
	var followers []*models.ForeignActor
	err := e.store.Do(ctx, func(uow models.UnitOfWork) error {
		var err error
		followers, err = uow.Followers().ForLocalActor(sender)
		return err
	})
	if err != nil {
		log.Error("failed to load followers", "err", err)
		return nil
	}
	var inboxes []string
	for _, follower := range followers {
		inbox := follower.InboxURL
		if inbox == "" {
			inbox, err = e.directory.Discover(ctx, follower.URI())
			if err != nil {
				log.Warn("failed to discover follower", "follower", follower.URI(), "err", err)
				continue
			}
		}
		if iri.IsLocal(inbox, e.domain) {
			continue
		}
		inboxes = append(inboxes, inbox)
	}
	return inboxes
}

// Recipients returns the to, cc, bto and bcc addresses of activity, in
// that order without duplicates, excluding sender.
func Recipients(activity map[string]any, sender string) []string {
	var recipients []string
	seen := map[string]bool{sender: true}
	for _, k := range []string{"to", "cc", "bto", "bcc"} {
		for _, r := range stringsFromAny(activity[k]) {
			if r != "" && !seen[r] {
				seen[r] = true
				recipients = append(recipients, r)
			}
		}
	}
	return recipients
}

// Redact returns a shallow copy of activity without bto and bcc, also
// removing them from an embedded object.
func Redact(activity map[string]any) map[string]any {
	m := without(activity, "bto", "bcc")
	if object, ok := m["object"].(map[string]any); ok {
		m["object"] = without(object, "bto", "bcc")
	}
	return m
}

func without(m map[string]any, keys ...string) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	for _, k := range keys {
		delete(c, k)
	}
	return c
}

func stringsFromAny(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		var s []string
		for _, e := range v {
			if str, ok := e.(string); ok {
				s = append(s, str)
			}
		}
		return s
	default:
		return nil
	}
}
