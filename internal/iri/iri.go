// Package iri contains helpers for comparing the authorities of ActivityPub IRIs.
package iri

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// NormaliseHost lower cases host and converts internationalised labels to
// their ASCII form. A port, if present, is kept.
func NormaliseHost(host string) string {
	name, port, err := net.SplitHostPort(host)
	if err != nil {
		name, port = host, ""
	}
	if ascii, err := idna.Lookup.ToASCII(name); err == nil {
		name = ascii
	}
	name = strings.ToLower(name)
	if port != "" {
		return net.JoinHostPort(name, port)
	}
	return name
}

// Authority returns the normalised host of iri, or "" if iri is not an
// absolute URL with a scheme and host.
func Authority(iri string) string {
	u, err := url.Parse(iri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return NormaliseHost(u.Host)
}

// IsLocal reports whether iri belongs to domain.
func IsLocal(iri, domain string) bool {
	a := Authority(iri)
	return a != "" && a == NormaliseHost(domain)
}
