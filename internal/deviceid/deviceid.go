// Package deviceid derives a stable identifier for the machine the engine
// runs on. The identifier keys per-device blink counts during conflict
// resolution, so it must be stable across restarts and distinct between
// machines sharing one account.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package deviceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// hashLength is the number of hex characters kept from the digest. Sixteen
// characters (64 bits) is plenty to distinguish devices in one account.
const hashLength = 16

// prefix marks the identifier's origin for readability in logs and payloads.
const prefix = "device_"

// ID is a stable device identifier of the form "device_<16 hex chars>".
// The zero value (ID{}) represents an absent or unknown device.
type ID struct {
	value string
}

// New derives the ID for the current machine from hostname, OS, and
// architecture. Devices with identical hostnames on identical platforms
// collide, matching the original tracker's behavior; the session ID keeps
// their records apart.
func New() (ID, error) {
	host, err := os.Hostname()
	if err != nil {
		return ID{}, fmt.Errorf("deviceid: reading hostname: %w", err)
	}

	return FromParts(host, runtime.GOOS, runtime.GOARCH), nil
}

// FromParts derives an ID from explicit components. Exported so tests can
// build deterministic identifiers.
func FromParts(host, goos, goarch string) ID {
	sum := sha256.Sum256([]byte(host + "-" + goos + "-" + goarch))

	return ID{value: prefix + hex.EncodeToString(sum[:])[:hashLength]}
}

// Parse validates a stored device identifier string. Empty input returns
// the zero ID.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return ID{}, nil
	}

	if !strings.HasPrefix(raw, prefix) || len(raw) != len(prefix)+hashLength {
		return ID{}, fmt.Errorf("deviceid: malformed identifier %q", raw)
	}

	return ID{value: raw}, nil
}

// String returns the identifier string.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value ID.
func (id ID) IsZero() bool {
	return id.value == ""
}

// Equal reports whether two IDs are identical.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}
