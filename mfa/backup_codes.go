package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Backup codes are single-use fallback credentials: random hex strings
// handed to the user once in plaintext and stored only as SHA-256
// digests. A global spent ledger guarantees a consumed code never
// validates again, even across regeneration.

// hashCode derives the at-rest form of a backup code.
func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateBackupCode returns one random lowercase hex code of the given
// length (in hex characters).
func generateBackupCode(length int) (string, error) {
	raw := make([]byte, (length+1)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generate backup code")
	}
	return hex.EncodeToString(raw)[:length], nil
}
