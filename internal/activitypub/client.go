// Package activitypub contains the outbound HTTP client used to talk to
// remote ActivityPub servers.
package activitypub

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/internal/httpsig"
	"github.com/questline/fedi/internal/webfinger"
)

// RequestTimeout bounds every outbound request.
const RequestTimeout = 10 * time.Second

// NewHTTPClient returns an http.Client with RequestTimeout applied.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: RequestTimeout,
	}
}

// Signer represents an object that can sign HTTP requests.
type Signer interface {
	PublicKeyID() string
	PrivKey() (*rsa.PrivateKey, error)
}

// Client is an ActivityPub client which fetches remote documents and
// posts signed activities.
type Client struct {
	http       *http.Client
	keyID      string
	privateKey crypto.PrivateKey
}

// NewClient returns a Client that signs its requests as signAs.
// If signAs is nil, requests are sent unsigned.
func NewClient(httpClient *http.Client, signAs Signer) (*Client, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	c := &Client{
		http: httpClient,
	}
	if signAs != nil {
		privateKey, err := signAs.PrivKey()
		if err != nil {
			return nil, err
		}
		c.keyID = signAs.PublicKeyID()
		c.privateKey = privateKey
	}
	return c, nil
}

// transport signs each request before handing it to the underlying
// client's transport.
func (c *Client) transport(body []byte) http.RoundTripper {
	next := c.http.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if c.privateKey == nil {
		return next
	}
	return requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
		return next.RoundTrip(req)
	})
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj any) error {
	var buf bytes.Buffer
	err := requests.URL(uri).
		Client(c.http).
		Accept(webfinger.LDJSON).
		Transport(c.transport(nil)).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
		).
		CheckStatus(http.StatusOK).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf.Bytes(), obj)
}

// Post posts the given ActivityPub object to the given inbox URL.
func (c *Client) Post(ctx context.Context, inbox string, obj map[string]any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return requests.URL(inbox).
		Client(c.http).
		Method(http.MethodPost).
		BodyBytes(body).
		ContentType(webfinger.ActivityJSON).
		Transport(c.transport(body)).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent).
		Fetch(ctx)
}
