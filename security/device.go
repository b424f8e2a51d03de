package security

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TrustLevel is the administrative standing of a device.
type TrustLevel string

const (
	TrustTrusted    TrustLevel = "trusted"
	TrustUnknown    TrustLevel = "unknown"
	TrustSuspicious TrustLevel = "suspicious"
)

// Device is one (user, device) pairing. Created on the first validated
// request for the pair and mutated on every subsequent one; it only
// disappears through explicit revocation or the stale-device sweep.
type Device struct {
	DeviceID    string     `json:"deviceId"`
	UserID      string     `json:"userId"`
	IPAddress   string     `json:"ipAddress"`
	UserAgent   string     `json:"userAgent"`
	Fingerprint string     `json:"fingerprint"`
	FirstSeen   time.Time  `json:"firstSeen"`
	LastSeen    time.Time  `json:"lastSeen"`
	TrustLevel  TrustLevel `json:"trustLevel"`
	LoginCount  int        `json:"loginCount"`
}

const fingerprintHexChars = 16

// Fingerprint derives a device identifier from the user agent and IP
// when the client supplies no explicit device id.
func Fingerprint(userAgent, ipAddress string) string {
	sum := sha256.Sum256([]byte(userAgent + ipAddress))
	return hex.EncodeToString(sum[:])[:fingerprintHexChars]
}
