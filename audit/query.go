package audit

import (
	"sort"
	"strings"
	"time"
)

// Filter selects events by conjunction of its non-zero fields. Search
// matches as a case-insensitive substring over action, resource, and
// error message.
type Filter struct {
	UserID    string
	CompanyID string
	Category  Category
	Action    string
	Resource  string
	Severity  Severity
	From      time.Time
	To        time.Time
	Search    string
	Offset    int
	Limit     int
}

// Query returns matching events sorted newest-first, paginated by
// Offset/Limit (Limit 0 means no limit).
func (l *Log) Query(f Filter) []Event {
	search := strings.ToLower(f.Search)

	l.mu.RLock()
	matched := make([]Event, 0)
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.matches(l.events[i], f, search) {
			matched = append(matched, l.events[i])
		}
	}
	l.mu.RUnlock()

	// Appends are monotonic per user but not globally; re-sort so the
	// newest-first contract holds across users. Stable keeps insertion
	// order for equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if f.Offset >= len(matched) {
		return []Event{}
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

func (l *Log) matches(e Event, f Filter, search string) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.CompanyID != "" && e.CompanyID != f.CompanyID {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if search != "" {
		haystack := strings.ToLower(e.Action + " " + e.Resource + " " + e.ErrorMessage)
		if !strings.Contains(haystack, search) {
			return false
		}
	}
	return true
}

// ActorCount pairs an id with how many events it accounts for.
type ActorCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Summary aggregates the retained events.
type Summary struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"byCategory"`
	BySeverity map[Severity]int `json:"bySeverity"`
	TopUsers   []ActorCount     `json:"topUsers"`
	TopActions []ActorCount     `json:"topActions"`
	Recent     []Event          `json:"recent"`
}

const (
	topActorLimit   = 10
	recentEventsCap = 20
)

// Summarize counts events by category and severity and ranks the ten
// busiest users and actions. Ranking is count-descending with id as the
// tiebreak so output is deterministic.
func (l *Log) Summarize() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		Total:      len(l.events),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
	}
	userCounts := make(map[string]int)
	actionCounts := make(map[string]int)

	for _, e := range l.events {
		s.ByCategory[e.Category]++
		s.BySeverity[e.Severity]++
		if e.UserID != "" {
			userCounts[e.UserID]++
		}
		actionCounts[e.Action]++
	}

	s.TopUsers = topActors(userCounts, topActorLimit)
	s.TopActions = topActors(actionCounts, topActorLimit)

	recent := recentEventsCap
	if recent > len(l.events) {
		recent = len(l.events)
	}
	s.Recent = make([]Event, recent)
	copy(s.Recent, l.events[len(l.events)-recent:])
	// newest first
	for i, j := 0, len(s.Recent)-1; i < j; i, j = i+1, j-1 {
		s.Recent[i], s.Recent[j] = s.Recent[j], s.Recent[i]
	}
	return s
}

func topActors(counts map[string]int, limit int) []ActorCount {
	ranked := make([]ActorCount, 0, len(counts))
	for id, count := range counts {
		ranked = append(ranked, ActorCount{ID: id, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
