// Package webfinger implements the subset of RFC 7033 used for actor discovery.
package webfinger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/carlmjohnson/requests"
)

const (
	// ActivityJSON is the media type of ActivityPub documents.
	ActivityJSON = "application/activity+json"

	// LDJSON is the JSON-LD ActivityStreams profile.
	LDJSON = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// ErrNoSelfLink is returned when a JRD carries no ActivityPub self link.
var ErrNoSelfLink = errors.New("no ActivityPub self link found")

// Webfinger is a JSON Resource Descriptor.
type Webfinger struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links"`
}

// Self returns the href of the rel=self link of type application/activity+json.
func (wf *Webfinger) Self() (string, error) {
	for _, link := range wf.Links {
		if link.Rel == "self" && link.Type == ActivityJSON && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", ErrNoSelfLink
}

type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// ForActor returns the JRD this server publishes for a local actor.
func ForActor(acct *Acct, actorIRI string) *Webfinger {
	return &Webfinger{
		Subject: acct.String(),
		Aliases: []string{actorIRI},
		Links: []Link{{
			Rel:  "self",
			Type: ActivityJSON,
			Href: actorIRI,
		}, {
			Rel:  "self",
			Type: LDJSON,
			Href: actorIRI,
		}},
	}
}

type Acct struct {
	User string
	Host string
}

func (a *Acct) String() string {
	return "acct:" + a.User + "@" + a.Host
}

// Parse parses an acct: URI or a bare user@host handle.
func Parse(query string) (*Acct, error) {
	query = strings.TrimPrefix(query, "acct:")
	// Remove the leading @, if there's one.
	query = strings.TrimPrefix(query, "@")

	// In case the handle has been URL encoded
	query, err := url.QueryUnescape(query)
	if err != nil {
		return nil, err
	}
	user, host, ok := strings.Cut(query, "@")
	if !ok || user == "" || host == "" {
		return nil, fmt.Errorf("invalid acct: %q", query)
	}
	return &Acct{
		User: user,
		Host: host,
	}, nil
}

// URL returns the WebFinger endpoint on the authority of resource,
// queried for resource itself.
func URL(resource string) (string, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("resource %q has no scheme or authority", resource)
	}
	return u.Scheme + "://" + u.Host + "/.well-known/webfinger?resource=" + url.QueryEscape(resource), nil
}

// Fetch retrieves the JRD for resource from the resource's own authority.
func Fetch(ctx context.Context, client *http.Client, resource string) (*Webfinger, error) {
	uri, err := URL(resource)
	if err != nil {
		return nil, err
	}
	var wf Webfinger
	err = requests.URL(uri).
		Client(client).
		Accept("application/jrd+json, application/json").
		CheckStatus(http.StatusOK).
		ToJSON(&wf).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}
