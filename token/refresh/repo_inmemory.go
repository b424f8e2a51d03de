package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-core/internal/errors"
)

// InMemoryRepo is the default, process-local record store.
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record // tokenHash -> record
}

// NewInMemoryRepo creates a new in-memory refresh token repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records: make(map[string]*Record),
	}
}

var _ Repo = (*InMemoryRepo)(nil)

func (r *InMemoryRepo) Upsert(_ context.Context, record *Record) error {
	if record == nil || record.TokenHash == "" {
		return errors.Wrapf(errors.ErrInternal, "refresh record requires a token hash")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to avoid external modifications
	stored := *record
	r.records[record.TokenHash] = &stored
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, tokenHash string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[tokenHash]
	if !ok {
		return nil, errors.ErrRefreshNotFound
	}
	out := *record
	return &out, nil
}

func (r *InMemoryRepo) Touch(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[tokenHash]
	if !ok {
		return errors.ErrRefreshNotFound
	}
	record.LastUsedAt = at
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[tokenHash]; !ok {
		return false, nil
	}
	delete(r.records, tokenHash)
	return true, nil
}

func (r *InMemoryRepo) DeleteByUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for hash, record := range r.records {
		if record.UserID == userID {
			delete(r.records, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemoryRepo) DeleteBySession(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for hash, record := range r.records {
		if record.SessionID == sessionID {
			delete(r.records, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for hash, record := range r.records {
		if record.Expired(now) {
			delete(r.records, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InMemoryRepo) ListByUser(_ context.Context, userID string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0)
	for _, record := range r.records {
		if record.UserID == userID {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}
