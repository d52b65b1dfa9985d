// Package tokens mints and digests opaque token values.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// OpaqueTokenLength is the wire length of engine-generated token values.
const OpaqueTokenLength = 40

// GenerateOpaqueToken returns a random base64url token (no padding) built
// from nBytes of entropy.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New returns a fresh 40-character opaque token value. 30 bytes of entropy
// encode to exactly OpaqueTokenLength characters.
func New() (string, error) {
	return GenerateOpaqueToken(30)
}

// SHA256Base64URL returns sha256(s) in unpadded base64url, the form model
// adapters store instead of raw token values.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
