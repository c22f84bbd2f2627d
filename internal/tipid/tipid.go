// Package tipid generates and validates the opaque 32-hex-digit identifiers
// used for jobs and batches.
package tipid

import (
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

// Pattern matches a valid job or batch identifier.
var Pattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// New returns a fresh 32 lowercase hex digit identifier.
func New() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	return Pattern.MatchString(s)
}
