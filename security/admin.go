package security

import (
	"context"
	"sort"
	"time"

	"github.com/jrsteele09/go-identity-core/audit"
	errs "github.com/jrsteele09/go-identity-core/internal/errors"
)

// Administrative operations. These act directly on the stores,
// independent of the scoring algorithm, and each one leaves an audit
// trail entry.

// UpdateDeviceTrust sets a device's trust level.
func (e *Engine) UpdateDeviceTrust(_ context.Context, userID, deviceID string, level TrustLevel, adminID string) error {
	e.mu.Lock()
	device, ok := e.devices[userID][deviceID]
	var previous TrustLevel
	if ok {
		previous = device.TrustLevel
		device.TrustLevel = level
		e.appendEventLocked(Event{
			UserID:    userID,
			Type:      EventTrustChanged,
			Details:   string(previous) + " -> " + string(level),
			Timestamp: e.nowFunc(),
		})
	}
	e.mu.Unlock()

	if !ok {
		return errs.ErrNotFound
	}
	_ = e.recorder.Record(audit.Event{
		UserID:     adminID,
		Category:   audit.CategoryAdmin,
		Action:     "device_trust_updated",
		Resource:   "device",
		ResourceID: deviceID,
		OldValues:  map[string]string{"trustLevel": string(previous)},
		NewValues:  map[string]string{"trustLevel": string(level)},
		Success:    true,
		Severity:   audit.SeverityMedium,
	})
	return nil
}

// RevokeDevice removes a device record entirely; the next request from
// it will be treated as a brand new device.
func (e *Engine) RevokeDevice(_ context.Context, userID, deviceID, adminID string) error {
	e.mu.Lock()
	_, ok := e.devices[userID][deviceID]
	if ok {
		delete(e.devices[userID], deviceID)
		e.appendEventLocked(Event{
			UserID:    userID,
			Type:      EventDeviceRevoked,
			Details:   "device " + deviceID + " revoked",
			Timestamp: e.nowFunc(),
		})
	}
	e.mu.Unlock()

	if !ok {
		return errs.ErrNotFound
	}
	_ = e.recorder.Record(audit.Event{
		UserID:     adminID,
		Category:   audit.CategoryAdmin,
		Action:     "device_revoked",
		Resource:   "device",
		ResourceID: deviceID,
		Success:    true,
		Severity:   audit.SeverityMedium,
	})
	return nil
}

// Devices returns the known devices for a user, most recently seen
// first.
func (e *Engine) Devices(userID string) []Device {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Device, 0, len(e.devices[userID]))
	for _, device := range e.devices[userID] {
		out = append(out, *device)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}

// UnlockAccount clears a user's lockout ahead of the window.
func (e *Engine) UnlockAccount(_ context.Context, userID, adminID string) {
	e.mu.Lock()
	delete(e.lockouts, userID)
	e.appendEventLocked(Event{
		UserID:    userID,
		Type:      EventAccountUnlocked,
		Details:   "unlocked by " + adminID,
		Timestamp: e.nowFunc(),
	})
	e.mu.Unlock()

	_ = e.recorder.Record(audit.Event{
		UserID:     adminID,
		Category:   audit.CategoryAdmin,
		Action:     "account_unlocked",
		Resource:   "user",
		ResourceID: userID,
		Success:    true,
		Severity:   audit.SeverityMedium,
	})
}

// SuspiciousIPs lists the currently blocked source addresses.
func (e *Engine) SuspiciousIPs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.suspiciousIPs))
	for ip := range e.suspiciousIPs {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// RemoveSuspiciousIP unblocks an address and forgets its lockout
// history.
func (e *Engine) RemoveSuspiciousIP(_ context.Context, ip, adminID string) {
	e.mu.Lock()
	delete(e.suspiciousIPs, ip)
	delete(e.lockedUsersIP, ip)
	e.mu.Unlock()

	_ = e.recorder.Record(audit.Event{
		UserID:     adminID,
		Category:   audit.CategoryAdmin,
		Action:     "suspicious_ip_cleared",
		Resource:   "ip",
		ResourceID: ip,
		Success:    true,
		Severity:   audit.SeverityMedium,
	})
}

// CleanupStaleDevices drops devices not seen within maxAge. Run by the
// daily janitor pass.
func (e *Engine) CleanupStaleDevices(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.nowFunc().Add(-maxAge)
	removed := 0
	for userID, userDevices := range e.devices {
		for deviceID, device := range userDevices {
			if device.LastSeen.Before(cutoff) {
				delete(userDevices, deviceID)
				removed++
			}
		}
		if len(userDevices) == 0 {
			delete(e.devices, userID)
		}
	}
	return removed
}

// CleanupExpiredLockouts clears lockout records whose window has
// elapsed and failure counters with no recent activity.
func (e *Engine) CleanupExpiredLockouts() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFunc()
	removed := 0
	for userID, state := range e.lockouts {
		elapsed := state.Locked && now.Sub(state.LockedAt) >= e.lockoutDuration
		idle := !state.Locked && now.Sub(state.LastAttempt) >= e.lockoutDuration
		if elapsed || idle {
			delete(e.lockouts, userID)
			removed++
		}
	}
	return removed
}
