// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"

	// DateFormat is RFC1123 with a literal GMT zone.
	DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

// signedHeaders is the fixed set of headers covered by Sign.
var signedHeaders = []string{RequestTarget, "host", "date", "digest"}

// Sign signs the request using the given keyID and privateKey.
// It sets the Date, Host, Digest and Signature headers, and
// Content-Type if the caller has not set one.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("httpsig: expected *rsa.PrivateKey, got %T", privateKey)
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	req.Header.Set("Host", req.Host)
	req.Header.Set("Date", time.Now().UTC().Format(DateFormat)) // Date must be in GMT, not UTC 🤯
	req.Header.Set("Digest", Digest(body))
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/activity+json")
	}

	s, err := signingString(req, signedHeaders)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256([]byte(s))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return err
	}
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s", algorithm="rsa-sha256", headers="%s", signature="%s"`,
		keyID, strings.Join(signedHeaders, " "), base64.StdEncoding.EncodeToString(sig)))
	return nil
}

// Digest returns the value of the Digest header for body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// errMissingHeader is returned by signingString when a named header is absent.
type errMissingHeader string

func (e errMissingHeader) Error() string { return "missing signed header: " + string(e) }

// signingString reconstructs the newline joined signing string for the
// named headers.
func signingString(req *http.Request, headers []string) (string, error) {
	var sb strings.Builder
	for i, header := range headers {
		if i > 0 {
			sb.WriteString("\n")
		}
		name := strings.ToLower(header)
		switch name {
		case RequestTarget:
			sb.WriteString(RequestTarget + ": ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)
			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "host":
			host := req.Host
			if host == "" {
				host = req.Header.Get("Host")
			}
			if host == "" {
				return "", errMissingHeader(name)
			}
			sb.WriteString("host: ")
			sb.WriteString(host)
		default:
			values := req.Header.Values(name)
			if len(values) == 0 {
				return "", errMissingHeader(name)
			}
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(strings.Join(values, ", "))
		}
	}
	return sb.String(), nil
}

// asMissingHeader reports whether err names a missing signed header.
func asMissingHeader(err error) (string, bool) {
	var e errMissingHeader
	if errors.As(err, &e) {
		return string(e), true
	}
	return "", false
}
