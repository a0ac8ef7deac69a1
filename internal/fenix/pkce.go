package fenix

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const verifierLength = 128 // URL-safe characters, per RFC 7636 upper bound

// PkceChallenge is the per-login-attempt PKCE and anti-CSRF material.
// Generated fresh for every attempt and discarded afterwards, success or not.
type PkceChallenge struct {
	Verifier  string
	Challenge string
	State     string
	Nonce     string
}

// newPkceChallenge returns cryptographically random, single-use challenge data.
func newPkceChallenge() (*PkceChallenge, error) {
	verifier, err := randomURLSafe(verifierLength)
	if err != nil {
		return nil, err
	}
	state, err := randomURLSafe(43)
	if err != nil {
		return nil, err
	}
	nonce, err := randomURLSafe(43)
	if err != nil {
		return nil, err
	}
	return &PkceChallenge{
		Verifier:  verifier,
		Challenge: challengeFor(verifier),
		State:     state,
		Nonce:     nonce,
	}, nil
}

// challengeFor is the S256 transform: base64url(SHA-256(verifier)), no padding.
func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomURLSafe returns n characters from the base64url alphabet.
func randomURLSafe(n int) (string, error) {
	// base64 yields 4 characters per 3 bytes; over-read and trim.
	raw := make([]byte, (n*3+3)/4+3)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:n], nil
}
