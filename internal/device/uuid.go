package device

import (
	"fmt"

	"github.com/srg/bletx/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to lowercase without dashes, collapsing SIG base UUIDs to 16 bits.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// SameUUID reports whether two UUID strings name the same UUID
func SameUUID(a, b string) bool {
	return bledb.Equal(a, b)
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID checks that uuid is a 16-, 32- or 128-bit hex UUID and returns it normalized
func ValidateUUID(uuid string) (string, error) {
	if uuid == "" {
		return "", fmt.Errorf("UUID cannot be empty")
	}

	n := NormalizeUUID(uuid)
	switch len(n) {
	case 4, 8, 32:
	default:
		return "", fmt.Errorf("invalid UUID format: %s", uuid)
	}
	for _, r := range n {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", fmt.Errorf("invalid UUID format: %s", uuid)
		}
	}
	return n, nil
}
