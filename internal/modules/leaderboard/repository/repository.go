package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/dto"
)

const (
	KeyUsers       = "pharos:users"
	KeyLeaderboard = "pharos:leaderboard"
	KeySnapshot    = "pharos:leaderboard:daily"
	KeyRankIndex   = "pharos:rank_index"
	counterPrefix  = "pharos:"
	lockPrefix     = "pharos:lock:"

	CounterTotalChecks = "total_checks"
)

// ScoreEntry is one member of the score index.
type ScoreEntry struct {
	Address string
	Points  int64
}

// Store is the persistent side of the checker: per-wallet records, the score
// index and the derived blobs (snapshot, rank index) that must survive restarts.
//
// Every method returns an error wrapping apperror.ErrStoreUnavailable when the
// store is not configured or cannot be reached.
type Store interface {
	Enabled() bool
	Ping(ctx context.Context) error

	GetUserRecord(ctx context.Context, address string) (*dto.UserStatRecord, error)
	GetUserRecords(ctx context.Context, addresses []string) (map[string]*dto.UserStatRecord, error)
	UpsertUserRecord(ctx context.Context, record *dto.UserStatRecord) (*dto.UserStatRecord, error)
	SaveCheck(ctx context.Context, record *dto.UserStatRecord) (*dto.UserStatRecord, error)

	IncrementGlobalCounter(ctx context.Context, name string) (int64, error)
	GetGlobalCounter(ctx context.Context, name string) (int64, error)

	SetScore(ctx context.Context, address string, points int64) error
	CountWithScoreAtLeast(ctx context.Context, threshold int64) (int64, error)
	TopNDescending(ctx context.Context, n int) ([]ScoreEntry, error)
	AllDescending(ctx context.Context) ([]ScoreEntry, error)

	LoadSnapshot(ctx context.Context) ([]byte, error)
	SaveSnapshot(ctx context.Context, payload []byte, ttl time.Duration) error
	DeleteSnapshot(ctx context.Context) error

	LoadRankIndex(ctx context.Context) ([]byte, error)
	SaveRankIndex(ctx context.Context, payload []byte, ttl time.Duration) error
	DeleteRankIndex(ctx context.Context) error

	// AcquireLock reports whether the named lock was free and is now held
	// for ttl. ReleaseLock frees it early.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by client. A nil client yields a store
// whose every call reports ErrStoreUnavailable.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Enabled() bool {
	return s.client != nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return apperror.ErrStoreUnavailable
	}
	return wrapErr("ping", s.client.Ping(ctx).Err())
}

func (s *redisStore) GetUserRecord(ctx context.Context, address string) (*dto.UserStatRecord, error) {
	if s.client == nil {
		return nil, apperror.ErrStoreUnavailable
	}

	raw, err := s.client.HGet(ctx, KeyUsers, strings.ToLower(address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get user record", err)
	}

	var record dto.UserStatRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("%w: user record %s: %v", apperror.ErrCacheCorruption, address, err)
	}
	return &record, nil
}

// GetUserRecords fetches many records in one HMGET. Missing or unparsable
// entries are simply absent from the result.
func (s *redisStore) GetUserRecords(ctx context.Context, addresses []string) (map[string]*dto.UserStatRecord, error) {
	if s.client == nil {
		return nil, apperror.ErrStoreUnavailable
	}
	out := make(map[string]*dto.UserStatRecord, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}

	values, err := s.client.HMGet(ctx, KeyUsers, addresses...).Result()
	if err != nil {
		return nil, wrapErr("get user records", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var record dto.UserStatRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		out[addresses[i]] = &record
	}
	return out, nil
}

// UpsertUserRecord merges record into the stored one: first_check and
// member_since survive, total_checks grows by one. Only the hash is written;
// the score index and counters are separate calls.
func (s *redisStore) UpsertUserRecord(ctx context.Context, record *dto.UserStatRecord) (*dto.UserStatRecord, error) {
	merged, payload, err := s.merge(ctx, record)
	if err != nil {
		return nil, err
	}
	if err := s.client.HSet(ctx, KeyUsers, merged.Address, payload).Err(); err != nil {
		return nil, wrapErr("upsert user record", err)
	}

	merged.ExactRank = record.ExactRank
	return merged, nil
}

// SaveCheck records one completed check: the merged user record, its score and
// the global check counter go out in a single pipeline. The three writes are
// not atomic; a failure part way leaves the earlier ones in place.
func (s *redisStore) SaveCheck(ctx context.Context, record *dto.UserStatRecord) (*dto.UserStatRecord, error) {
	merged, payload, err := s.merge(ctx, record)
	if err != nil {
		return nil, err
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, KeyUsers, merged.Address, payload)
		pipe.ZAdd(ctx, KeyLeaderboard, redis.Z{Score: float64(merged.TotalPoints), Member: merged.Address})
		pipe.Incr(ctx, counterPrefix+CounterTotalChecks)
		return nil
	})
	if err != nil {
		return nil, wrapErr("save check", err)
	}

	merged.ExactRank = record.ExactRank
	return merged, nil
}

func (s *redisStore) merge(ctx context.Context, record *dto.UserStatRecord) (*dto.UserStatRecord, []byte, error) {
	if s.client == nil {
		return nil, nil, apperror.ErrStoreUnavailable
	}

	merged := record.Clone()
	merged.Address = strings.ToLower(merged.Address)
	// the rank is a point-in-time answer, not part of the durable record
	merged.ExactRank = nil

	now := time.Now().UTC()
	if merged.LastCheckAt == nil {
		merged.LastCheckAt = &now
	}

	existing, err := s.GetUserRecord(ctx, merged.Address)
	switch {
	case err == nil:
		merged.TotalChecks = existing.TotalChecks + 1
		merged.FirstCheckAt = existing.FirstCheckAt
		if existing.MemberSince != nil {
			merged.MemberSince = existing.MemberSince
		}
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrCacheCorruption):
		merged.TotalChecks = 1
	default:
		return nil, nil, err
	}
	if merged.FirstCheckAt == nil {
		first := *merged.LastCheckAt
		merged.FirstCheckAt = &first
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal user record: %w", err)
	}
	return merged, payload, nil
}

func (s *redisStore) IncrementGlobalCounter(ctx context.Context, name string) (int64, error) {
	if s.client == nil {
		return 0, apperror.ErrStoreUnavailable
	}
	n, err := s.client.Incr(ctx, counterPrefix+name).Result()
	return n, wrapErr("increment counter", err)
}

func (s *redisStore) GetGlobalCounter(ctx context.Context, name string) (int64, error) {
	if s.client == nil {
		return 0, apperror.ErrStoreUnavailable
	}
	n, err := s.client.Get(ctx, counterPrefix+name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, wrapErr("get counter", err)
}

func (s *redisStore) SetScore(ctx context.Context, address string, points int64) error {
	if s.client == nil {
		return apperror.ErrStoreUnavailable
	}
	err := s.client.ZAdd(ctx, KeyLeaderboard, redis.Z{
		Score:  float64(points),
		Member: strings.ToLower(address),
	}).Err()
	return wrapErr("set score", err)
}

func (s *redisStore) CountWithScoreAtLeast(ctx context.Context, threshold int64) (int64, error) {
	if s.client == nil {
		return 0, apperror.ErrStoreUnavailable
	}
	n, err := s.client.ZCount(ctx, KeyLeaderboard, strconv.FormatInt(threshold, 10), "+inf").Result()
	return n, wrapErr("count scores", err)
}

func (s *redisStore) TopNDescending(ctx context.Context, n int) ([]ScoreEntry, error) {
	if n <= 0 {
		return []ScoreEntry{}, nil
	}
	return s.rangeDescending(ctx, int64(n-1))
}

func (s *redisStore) AllDescending(ctx context.Context) ([]ScoreEntry, error) {
	return s.rangeDescending(ctx, -1)
}

func (s *redisStore) rangeDescending(ctx context.Context, stop int64) ([]ScoreEntry, error) {
	if s.client == nil {
		return nil, apperror.ErrStoreUnavailable
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, KeyLeaderboard, 0, stop).Result()
	if err != nil {
		return nil, wrapErr("range scores", err)
	}

	entries := make([]ScoreEntry, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, ScoreEntry{Address: member, Points: int64(z.Score)})
	}
	return entries, nil
}

func (s *redisStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	return s.loadBlob(ctx, KeySnapshot)
}

func (s *redisStore) SaveSnapshot(ctx context.Context, payload []byte, ttl time.Duration) error {
	return s.saveBlob(ctx, KeySnapshot, payload, ttl)
}

func (s *redisStore) DeleteSnapshot(ctx context.Context) error {
	return s.deleteKey(ctx, KeySnapshot)
}

func (s *redisStore) LoadRankIndex(ctx context.Context) ([]byte, error) {
	return s.loadBlob(ctx, KeyRankIndex)
}

func (s *redisStore) SaveRankIndex(ctx context.Context, payload []byte, ttl time.Duration) error {
	return s.saveBlob(ctx, KeyRankIndex, payload, ttl)
}

func (s *redisStore) DeleteRankIndex(ctx context.Context) error {
	return s.deleteKey(ctx, KeyRankIndex)
}

func (s *redisStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if s.client == nil {
		return false, apperror.ErrStoreUnavailable
	}
	wasSet, err := s.client.SetNX(ctx, lockPrefix+name, "locked", ttl).Result()
	if err != nil {
		return false, wrapErr("lock "+name, err)
	}
	return wasSet, nil
}

func (s *redisStore) ReleaseLock(ctx context.Context, name string) error {
	return s.deleteKey(ctx, lockPrefix+name)
}

func (s *redisStore) loadBlob(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, apperror.ErrStoreUnavailable
	}
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("load "+key, err)
	}
	return b, nil
}

func (s *redisStore) saveBlob(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if s.client == nil {
		return apperror.ErrStoreUnavailable
	}
	if ttl <= 0 {
		return fmt.Errorf("save %s: non-positive ttl %s", key, ttl)
	}
	return wrapErr("save "+key, s.client.Set(ctx, key, payload, ttl).Err())
}

func (s *redisStore) deleteKey(ctx context.Context, key string) error {
	if s.client == nil {
		return apperror.ErrStoreUnavailable
	}
	return wrapErr("delete "+key, s.client.Del(ctx, key).Err())
}

// wrapErr tags connection-level failures as ErrStoreUnavailable so callers can
// degrade; anything else is returned as a plain wrapped error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnError(err) {
		return fmt.Errorf("%s: %w: %v", op, apperror.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnError(err error) bool {
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
