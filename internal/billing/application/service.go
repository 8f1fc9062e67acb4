package application

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDFactory mints identifiers for saved records.
type IDFactory interface {
	NewID() string
}

// RandomIDFactory generates random UUIDv4-shaped identifiers.
type RandomIDFactory struct{}

// NewID generates a random record identifier.
func (RandomIDFactory) NewID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return hex.EncodeToString(buf[:])
}
