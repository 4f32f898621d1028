// Package hexid generates short random hex identifiers.
package hexid

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns an 8-character lowercase hex string (4 random bytes). Used for
// transcript message ids and per-call trace ids.
func New() string {
	return generate(4)
}

// Session returns a 16-character lowercase hex string (8 random bytes). Used
// when a server's welcome does not name a session and one must be synthesized.
func Session() string {
	return generate(8)
}

func generate(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("hexid: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
