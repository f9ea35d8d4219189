// Package wellknown serves the /.well-known discovery documents.
package wellknown

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/questline/fedi/activitypub"
	"github.com/questline/fedi/internal/httpx"
)

// Mount registers the discovery routes on r.
func Mount(r chi.Router, env *activitypub.Env) {
	envFn := func(*http.Request) *activitypub.Env { return env }
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", httpx.HandlerFunc(envFn, WebfingerShow))
		r.Get("/host-meta", httpx.HandlerFunc(envFn, HostMetaIndex))
		r.Get("/nodeinfo", httpx.HandlerFunc(envFn, NodeInfoIndex))
	})
	r.Get("/nodeinfo/{version}", httpx.HandlerFunc(envFn, NodeInfoShow))
}

func HostMetaIndex(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/xrd+xml")
	_, err := io.WriteString(w, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
<Link rel="lrdd" template="https://%s/.well-known/webfinger?resource={uri}"/>
</XRD>`, env.Domain))
	return err
}
