// Package directory maps remote actor IRIs to their inbox URLs and public
// keys, caching what it learns.
package directory

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/questline/fedi/internal/activitypub"
	ifcrypto "github.com/questline/fedi/internal/crypto"
	"github.com/questline/fedi/internal/httpsig"
	"github.com/questline/fedi/internal/webfinger"
	"github.com/questline/fedi/models"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

// ErrNoInbox is returned when an actor document names no inbox.
var ErrNoInbox = errors.New("actor declares no inbox")

// DiscoveryError is returned when an actor cannot be discovered.
type DiscoveryError struct {
	URI string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.URI, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// KeyError is returned when an actor's public key cannot be resolved.
type KeyError struct {
	URI string
	Msg string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("resolve key %s: %s", e.URI, e.Msg)
}

// Directory resolves remote actors.
type Directory struct {
	store  *models.Store
	client *http.Client
	cache  Cache
	logger *slog.Logger
	signAs activitypub.Signer
}

type Option func(*Directory)

// WithCache replaces the default LRU memo.
func WithCache(c Cache) Option {
	return func(d *Directory) { d.cache = c }
}

// WithHTTPClient replaces the default client, which applies
// activitypub.RequestTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Directory) { d.client = c }
}

// WithSigner signs actor document fetches as signAs.
func WithSigner(signAs activitypub.Signer) Option {
	return func(d *Directory) { d.signAs = signAs }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// New returns a Directory backed by store.
func New(store *models.Store, opts ...Option) *Directory {
	d := &Directory{
		store:  store,
		client: activitypub.NewHTTPClient(),
		cache:  NewLRU(DefaultCacheSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// actorDocument is the subset of an actor object the directory reads.
type actorDocument struct {
	ID        string `json:"id"`
	Inbox     string `json:"inbox"`
	Endpoints struct {
		Inbox       string `json:"inbox"`
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

func (doc *actorDocument) inbox() string {
	if doc.Inbox != "" {
		return doc.Inbox
	}
	return doc.Endpoints.Inbox
}

// Discover returns the inbox URL of the actor named by actorURI.
func (d *Directory) Discover(ctx context.Context, actorURI string) (string, error) {
	if inbox, ok := d.cache.Get(actorURI); ok {
		return inbox, nil
	}
	if err := checkURI(actorURI); err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	if fa, err := d.lookup(ctx, actorURI); err == nil && fa.InboxURL != "" {
		d.cache.Put(actorURI, fa.InboxURL)
		return fa.InboxURL, nil
	}

	wf, err := webfinger.Fetch(ctx, d.client, actorURI)
	if err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	canonical, err := wf.Self()
	if err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	if err := checkURI(canonical); err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	doc, err := d.fetchActor(ctx, canonical)
	if err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	inbox := doc.inbox()
	if inbox == "" {
		return "", &DiscoveryError{URI: actorURI, Err: ErrNoInbox}
	}
	if _, err := d.remember(ctx, actorURI, canonical, inbox, doc.PublicKey.PublicKeyPem); err != nil {
		d.logger.Warn("failed to cache actor", "actor", actorURI, "err", err)
	}
	d.cache.Put(actorURI, inbox)
	return inbox, nil
}

// Resolve returns the cached row for actorURI, discovering the actor
// first if it is not cached or its inbox is unknown.
func (d *Directory) Resolve(ctx context.Context, actorURI string) (*models.ForeignActor, error) {
	if fa, err := d.lookup(ctx, actorURI); err == nil && fa.InboxURL != "" {
		return fa, nil
	}
	inbox, err := d.Discover(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	if fa, err := d.lookup(ctx, actorURI); err == nil {
		return fa, nil
	}
	// memo hit without a durable row, for example a memo shared with
	// another process.
	fa, err := d.remember(ctx, actorURI, actorURI, inbox, "")
	if err != nil {
		return nil, &DiscoveryError{URI: actorURI, Err: err}
	}
	return fa, nil
}

// ResolvePublicKey returns the PEM encoded public key of actorURI.
func (d *Directory) ResolvePublicKey(ctx context.Context, actorURI string) (string, error) {
	if fa, err := d.lookup(ctx, actorURI); err == nil && fa.PublicKeyPem != "" {
		return fa.PublicKeyPem, nil
	}
	if err := checkURI(actorURI); err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	doc, err := d.fetchActor(ctx, actorURI)
	if err != nil {
		return "", &DiscoveryError{URI: actorURI, Err: err}
	}
	pem := doc.PublicKey.PublicKeyPem
	if pem == "" {
		return "", &KeyError{URI: actorURI, Msg: "actor missing publicKeyPem"}
	}
	canonical := doc.ID
	if canonical == "" {
		canonical = actorURI
	}
	if _, err := d.remember(ctx, actorURI, canonical, doc.inbox(), pem); err != nil {
		d.logger.Warn("failed to cache actor key", "actor", actorURI, "err", err)
	}
	return pem, nil
}

// PublicKey returns the parsed public key of actorURI.
func (d *Directory) PublicKey(ctx context.Context, actorURI string) (crypto.PublicKey, error) {
	pem, err := d.ResolvePublicKey(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	key, err := ifcrypto.ParseRSAPublicKey([]byte(pem))
	if err != nil {
		return nil, &KeyError{URI: actorURI, Msg: err.Error()}
	}
	return key, nil
}

// KeyFunc adapts PublicKey to httpsig.Verify. Key fetches are signed as
// signAs when it is not nil, for servers that refuse unsigned fetches.
func (d *Directory) KeyFunc(ctx context.Context, signAs activitypub.Signer) httpsig.KeyFunc {
	dir := d
	if signAs != nil {
		c := *d
		c.signAs = signAs
		dir = &c
	}
	return func(actorURI string) (crypto.PublicKey, error) {
		return dir.PublicKey(ctx, actorURI)
	}
}

func (d *Directory) fetchActor(ctx context.Context, uri string) (*actorDocument, error) {
	client, err := activitypub.NewClient(d.client, d.signAs)
	if err != nil {
		return nil, err
	}
	var doc actorDocument
	if err := client.Fetch(ctx, uri, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// lookup returns the cached row for uri. Database errors other than
// not found are logged and reported as a miss.
func (d *Directory) lookup(ctx context.Context, uri string) (*models.ForeignActor, error) {
	var fa *models.ForeignActor
	err := d.store.Do(ctx, func(uow models.UnitOfWork) error {
		var err error
		fa, err = uow.ForeignActors().FindByURI(uri)
		return err
	})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		d.logger.Warn("failed to read actor cache", "actor", uri, "err", err)
	}
	return fa, err
}

// remember upserts the cache row matching actorURI or canonical, first
// match wins. Empty inbox or pem leave the stored values untouched.
func (d *Directory) remember(ctx context.Context, actorURI, canonical, inbox, pem string) (*models.ForeignActor, error) {
	var fa *models.ForeignActor
	err := d.store.Do(ctx, func(uow models.UnitOfWork) error {
		actors := uow.ForeignActors()
		var err error
		fa, err = actors.FindByURI(actorURI)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fa, err = actors.FindByURI(canonical)
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fa, err = &models.ForeignActor{ActorURI: actorURI}, nil
		}
		if err != nil {
			return err
		}
		fa.CanonicalURI = canonical
		if inbox != "" {
			fa.InboxURL = inbox
		}
		if pem != "" {
			fa.PublicKeyPem = pem
		}
		return actors.Save(fa)
	})
	return fa, err
}

// checkURI rejects IRIs that are not absolute http(s) URLs.
func checkURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing authority")
	}
	return nil
}
