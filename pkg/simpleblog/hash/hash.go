// Package hash computes and verifies salted password hashes using PBKDF2
// with a SHA-512 PRF.
package hash

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	keyLength  = 16
	iterations = 10000
)

// Hash derives a key from secret with a fresh random salt and returns it
// encoded as base64(salt) + ":" + base64(key).
func Hash(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(secret), salt, iterations, keyLength, sha512.New)
	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key), nil
}

// Verify reports whether secret matches an encoded hash produced by Hash.
// It is a pure predicate: malformed or corrupt input yields false, never an
// error.
func Verify(encoded, secret string) bool {
	saltPart, keyPart, found := strings.Cut(encoded, ":")
	if !found {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(keyPart)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(secret), salt, iterations, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
