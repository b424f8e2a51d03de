package audit

import (
	"fmt"
	"sort"
	"time"
)

// AnomalyKind names a detection rule.
type AnomalyKind string

const (
	AnomalyExcessiveUserActivity AnomalyKind = "excessive_api_activity"
	AnomalyCredentialStuffing    AnomalyKind = "credential_stuffing_suspect"
	AnomalyExcessiveIPActivity   AnomalyKind = "excessive_ip_activity"
	AnomalyIPFailedLogins        AnomalyKind = "ip_failed_logins"
)

// Anomaly flags a subject (user id or IP) that crossed a threshold
// within the trailing 24 hour window.
type Anomaly struct {
	Kind      AnomalyKind `json:"kind"`
	Subject   string      `json:"subject"`
	Count     int         `json:"count"`
	Threshold int         `json:"threshold"`
	Detail    string      `json:"detail"`
}

const anomalyWindow = 24 * time.Hour

// DetectAnomalies sweeps the trailing 24 hours of retained events and
// returns every rule violation, ordered by kind then subject.
func (l *Log) DetectAnomalies() []Anomaly {
	l.mu.RLock()
	cutoff := l.nowFunc().Add(-anomalyWindow)

	userEvents := make(map[string]int)
	userFailedAuth := make(map[string]int)
	ipEvents := make(map[string]int)
	ipFailedLogins := make(map[string]int)

	for _, e := range l.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if e.UserID != "" {
			userEvents[e.UserID]++
			if e.Category == CategoryAuth && !e.Success {
				userFailedAuth[e.UserID]++
			}
		}
		if e.IPAddress != "" {
			ipEvents[e.IPAddress]++
			if e.Category == CategoryAuth && !e.Success {
				ipFailedLogins[e.IPAddress]++
			}
		}
	}
	t := l.thresholds
	l.mu.RUnlock()

	var anomalies []Anomaly
	anomalies = append(anomalies, flag(userEvents, t.EventsPerUser, AnomalyExcessiveUserActivity, "user %s produced %d events in 24h")...)
	anomalies = append(anomalies, flag(userFailedAuth, t.FailedAuthPerUser, AnomalyCredentialStuffing, "user %s had %d failed authentications in 24h")...)
	anomalies = append(anomalies, flag(ipEvents, t.EventsPerIP, AnomalyExcessiveIPActivity, "ip %s produced %d events in 24h")...)
	anomalies = append(anomalies, flag(ipFailedLogins, t.FailedLoginsPerIP, AnomalyIPFailedLogins, "ip %s had %d failed logins in 24h")...)

	sort.Slice(anomalies, func(i, j int) bool {
		if anomalies[i].Kind != anomalies[j].Kind {
			return anomalies[i].Kind < anomalies[j].Kind
		}
		return anomalies[i].Subject < anomalies[j].Subject
	})
	return anomalies
}

func flag(counts map[string]int, threshold int, kind AnomalyKind, format string) []Anomaly {
	if threshold <= 0 {
		return nil
	}
	var out []Anomaly
	for subject, count := range counts {
		if count > threshold {
			out = append(out, Anomaly{
				Kind:      kind,
				Subject:   subject,
				Count:     count,
				Threshold: threshold,
				Detail:    fmt.Sprintf(format, subject, count),
			})
		}
	}
	return out
}
