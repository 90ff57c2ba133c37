package runconfig

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// LaunchID identifies one scheduled launch attempt. The host reuses it for
// every lifecycle callback of that attempt.
type LaunchID string

// NewLaunchID creates a LaunchID with validation
func NewLaunchID(value string) (LaunchID, error) {
	if value == "" {
		return "", fmt.Errorf("launch ID cannot be empty")
	}
	return LaunchID(value), nil
}

// GenerateLaunchID creates a new unique LaunchID
func GenerateLaunchID() LaunchID {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return LaunchID(hex.EncodeToString(bytes))
}

// String implements the Stringer interface
func (id LaunchID) String() string {
	return string(id)
}
