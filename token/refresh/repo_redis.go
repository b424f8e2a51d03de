package refresh

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	errs "github.com/jrsteele09/go-identity-core/internal/errors"
)

const (
	recordKeyPrefix  = "idc:rt:"
	userKeyPrefix    = "idc:rtu:"
	sessionKeyPrefix = "idc:rts:"
)

// RedisRepo stores refresh records in Redis with a TTL matching the
// record lifetime. Secondary index sets per user and per session make
// the bulk revocations cheap; the index sets are reconciled by
// DeleteExpired since Redis expires the records on its own.
type RedisRepo struct {
	client *redis.Client
}

// NewRedisRepo creates a Redis-backed refresh token repository
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

var _ Repo = (*RedisRepo)(nil)

func (r *RedisRepo) Upsert(ctx context.Context, record *Record) error {
	if record == nil || record.TokenHash == "" {
		return errs.Wrapf(errs.ErrInternal, "refresh record requires a token hash")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal refresh record")
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errs.ErrRefreshExpired
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+record.TokenHash, payload, ttl)
	pipe.SAdd(ctx, userKeyPrefix+record.UserID, record.TokenHash)
	pipe.Expire(ctx, userKeyPrefix+record.UserID, ttl)
	pipe.SAdd(ctx, sessionKeyPrefix+record.SessionID, record.TokenHash)
	pipe.Expire(ctx, sessionKeyPrefix+record.SessionID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "store refresh record")
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, tokenHash string) (*Record, error) {
	payload, err := r.client.Get(ctx, recordKeyPrefix+tokenHash).Bytes()
	if err == redis.Nil {
		return nil, errs.ErrRefreshNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch refresh record")
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, errors.Wrap(err, "decode refresh record")
	}
	return &record, nil
}

// Touch rewrites the record with an updated last-used time. The write
// uses SET XX with KEEPTTL so it only lands on a still-live key; a
// record deleted by a concurrent rotation stays deleted.
func (r *RedisRepo) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	record, err := r.Get(ctx, tokenHash)
	if err != nil {
		return err
	}
	record.LastUsedAt = at

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal refresh record")
	}
	err = r.client.SetArgs(ctx, recordKeyPrefix+tokenHash, payload, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err == redis.Nil {
		return errs.ErrRefreshNotFound
	}
	if err != nil {
		return errors.Wrap(err, "touch refresh record")
	}
	return nil
}

// Delete consumes the record with GETDEL, so of any number of
// concurrent deletes exactly one gets the payload back and reports
// true; the index sets are trimmed by whoever won.
func (r *RedisRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	payload, err := r.client.GetDel(ctx, recordKeyPrefix+tokenHash).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "delete refresh record")
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return true, errors.Wrap(err, "decode refresh record")
	}
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, userKeyPrefix+record.UserID, tokenHash)
	pipe.SRem(ctx, sessionKeyPrefix+record.SessionID, tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, errors.Wrap(err, "trim refresh indexes")
	}
	return true, nil
}

func (r *RedisRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return r.deleteByIndex(ctx, userKeyPrefix+userID)
}

func (r *RedisRepo) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	return r.deleteByIndex(ctx, sessionKeyPrefix+sessionID)
}

func (r *RedisRepo) deleteByIndex(ctx context.Context, indexKey string) (int, error) {
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "read refresh index")
	}

	deleted := 0
	for _, hash := range hashes {
		removed, err := r.Delete(ctx, hash)
		if err != nil {
			return deleted, err
		}
		if removed {
			deleted++
		}
	}
	if err := r.client.Del(ctx, indexKey).Err(); err != nil {
		return deleted, errors.Wrap(err, "drop refresh index")
	}
	return deleted, nil
}

// DeleteExpired reconciles the index sets: Redis already expired the
// records themselves, so this removes index members whose record key no
// longer exists.
func (r *RedisRepo) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	for _, prefix := range []string{userKeyPrefix, sessionKeyPrefix} {
		iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			indexKey := iter.Val()
			hashes, err := r.client.SMembers(ctx, indexKey).Result()
			if err != nil {
				return removed, errors.Wrap(err, "read refresh index")
			}
			for _, hash := range hashes {
				exists, err := r.client.Exists(ctx, recordKeyPrefix+hash).Result()
				if err != nil {
					return removed, errors.Wrap(err, "check refresh record")
				}
				if exists == 0 {
					if err := r.client.SRem(ctx, indexKey, hash).Err(); err != nil {
						return removed, errors.Wrap(err, "trim refresh index")
					}
					if prefix == userKeyPrefix {
						removed++
					}
				}
			}
		}
		if err := iter.Err(); err != nil {
			return removed, errors.Wrap(err, "scan refresh indexes")
		}
	}
	return removed, nil
}

func (r *RedisRepo) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	hashes, err := r.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read refresh index")
	}

	out := make([]*Record, 0, len(hashes))
	for _, hash := range hashes {
		record, err := r.Get(ctx, hash)
		if errs.Is(err, errs.ErrRefreshNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}
