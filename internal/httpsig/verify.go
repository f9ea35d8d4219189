package httpsig

import (
	"crypto"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"
)

// ErrUnauthorized matches every error returned by Verify.
var ErrUnauthorized = errors.New("unauthorized")

// Error describes why a request failed verification.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports all verification errors as ErrUnauthorized.
func (e *Error) Is(target error) bool { return target == ErrUnauthorized }

const (
	ReasonMissingSignature = "missing signature"
	ReasonDigestMismatch   = "digest mismatch"
	ReasonInvalidSignature = "invalid signature"
	ReasonUnknownKey       = "unknown key"
)

// KeyFunc returns the public key of the actor that owns a signature.
// actorURI is the keyId with any fragment removed.
type KeyFunc func(actorURI string) (crypto.PublicKey, error)

// Signature holds the parsed parameters of a Signature header.
type Signature struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature string
}

// ParseSignature parses the value of a Signature header.
// headers defaults to "date" when omitted.
func ParseSignature(header string) (*Signature, error) {
	sig := &Signature{
		Headers: []string{"date"},
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.TrimSpace(k) {
		case "keyId":
			sig.KeyID = v
		case "algorithm":
			sig.Algorithm = v
		case "headers":
			if fields := strings.Fields(v); len(fields) > 0 {
				sig.Headers = fields
			}
		case "signature":
			sig.Signature = v
		}
	}
	if sig.Signature == "" {
		return nil, &Error{Reason: ReasonInvalidSignature, Err: errors.New("signature parameter is missing")}
	}
	return sig, nil
}

// String formats sig as a Signature header value.
func (sig *Signature) String() string {
	s := fmt.Sprintf(`keyId="%s",`, sig.KeyID)
	if sig.Algorithm != "" {
		s += fmt.Sprintf(`algorithm="%s",`, sig.Algorithm)
	}
	return s + fmt.Sprintf(`headers="%s",signature="%s"`, strings.Join(sig.Headers, " "), sig.Signature)
}

// KeyOwner strips the fragment from a keyId, leaving the actor IRI.
func KeyOwner(keyID string) string {
	owner, _, _ := strings.Cut(keyID, "#")
	return owner
}

// Verify verifies the signature of the request. body is the request body
// already read by the caller; if it is non nil and a Digest header is
// present the digest is checked as well.
func Verify(req *http.Request, body []byte, keyFn KeyFunc) error {
	header := req.Header.Get("Signature")
	if header == "" {
		return &Error{Reason: ReasonMissingSignature}
	}
	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}
	switch strings.ToLower(sig.Algorithm) {
	case "", "rsa-sha256", "hs2019":
	default:
		return &Error{Reason: ReasonInvalidSignature, Err: errors.New("unsupported algorithm " + sig.Algorithm)}
	}

	if _, err := signingString(req, sig.Headers); err != nil {
		if name, ok := asMissingHeader(err); ok {
			return &Error{Reason: "missing signed header: " + name}
		}
		return &Error{Reason: ReasonInvalidSignature, Err: err}
	}

	if digest := req.Header.Get("Digest"); digest != "" && body != nil {
		if !digestMatches(digest, body) {
			return &Error{Reason: ReasonDigestMismatch}
		}
	}

	key, err := keyFn(KeyOwner(sig.KeyID))
	if err != nil {
		return &Error{Reason: ReasonUnknownKey, Err: err}
	}

	// go-fed splits parameters on a bare comma, so hand it the
	// canonical form of the header we parsed.
	r := req.Clone(req.Context())
	r.Header.Set("Signature", sig.String())
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return &Error{Reason: ReasonInvalidSignature, Err: err}
	}
	if err := verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		return &Error{Reason: ReasonInvalidSignature, Err: err}
	}
	return nil
}

// digestMatches checks the SHA-256 entry of a Digest header against body.
// A header without a SHA-256 entry never matches.
func digestMatches(header string, body []byte) bool {
	want := Digest(body)
	for _, entry := range strings.Split(header, ",") {
		algo, _, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		got := "SHA-256=" + strings.TrimSpace(entry)[len(algo)+1:]
		return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
	}
	return false
}
