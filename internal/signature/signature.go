// Package signature authenticates webhook deliveries signed with a shared
// secret, as sent in the X-Hub-Signature-256 header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	// Header carries the body signature.
	Header = "X-Hub-Signature-256"
	// Prefix precedes the hex digest in the header value.
	Prefix = "sha256="
)

// Digest returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Digest(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign formats the header value a sender attaches to body.
func Sign(body []byte, secret string) string {
	return Prefix + Digest(body, secret)
}

// Verify reports whether header is the signature of body under secret.
//
// The hex digest is compared exactly as transmitted, so an uppercase digest
// does not match. The comparison runs in constant time.
//
// An empty secret verifies nothing, not even a header computed with the
// empty key.
func Verify(header string, body []byte, secret string) bool {
	if secret == "" || !strings.HasPrefix(header, Prefix) {
		return false
	}

	got := strings.TrimPrefix(header, Prefix)
	want := Digest(body, secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
