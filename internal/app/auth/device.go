package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// DeviceKey is the static shared secret the sensor presents on ingestion.
type DeviceKey struct {
	digest [sha256.Size]byte
	set    bool
}

func NewDeviceKey(key string) DeviceKey {
	if key == "" {
		return DeviceKey{}
	}
	return DeviceKey{digest: sha256.Sum256([]byte(key)), set: true}
}

// Verify compares digests in constant time so neither content nor length of
// the configured key leaks. An unconfigured key accepts nothing.
func (d DeviceKey) Verify(presented string) bool {
	if !d.set || presented == "" {
		return false
	}
	sum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(d.digest[:], sum[:]) == 1
}
