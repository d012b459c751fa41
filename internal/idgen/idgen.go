// Package idgen generates the prefixed record IDs used across the system
// (bkg_, esc_, txn_, dsp_, evd_). IDs are 12 random bytes hex-encoded, which
// keeps them short enough for logs while leaving collisions out of reach.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const randomBytes = 12

// WithPrefix returns prefix followed by 24 hex characters of randomness.
func WithPrefix(prefix string) string {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is broken,
		// at which point generating money-record IDs must not continue.
		panic("idgen: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
