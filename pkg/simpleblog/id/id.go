// Package id generates and decodes document identifiers.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// separator marks the start of a decorative suffix on an externally-facing
// id (typically an SEO slug). Canonical ids never contain it.
const separator = "_"

// New returns a fresh globally unique identifier.
func New() string {
	return uuid.NewString()
}

// Decode strips any suffix starting at the first separator and returns the
// canonical prefix. Decoding is idempotent and never fails; an id without a
// separator is returned unchanged.
func Decode(id string) string {
	if i := strings.Index(id, separator); i >= 0 {
		return id[:i]
	}
	return id
}

// Encode appends a decorative suffix to a canonical id.
func Encode(id, suffix string) string {
	if suffix == "" {
		return id
	}
	return id + separator + suffix
}
