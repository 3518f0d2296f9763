package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/middleware"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the durable Score Store backed by Redis: one hash per user
// for scalar fields, one set for one_time_events, six sorted sets (score =
// unix nanoseconds) for the per-category timestamp sequences, and a global
// set tracking known user_ids for ScanAll. Row-level atomicity is provided
// by an in-process KeyedMutex per user_id wrapping a TxPipelined round
// trip — sufficient for a single instance; a multi-instance deployment
// would additionally need a Redis-side lock (e.g. via SET NX), noted as a
// follow-up rather than implemented speculatively.
type RedisStore struct {
	rdb   *redis.Client
	locks *middleware.KeyedMutex
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:   rdb,
		locks: middleware.NewKeyedMutex(),
	}
}

const usersSetKey = "scoring:users"

func userHashKey(userID string) string   { return "scoring:user:" + userID }
func eventsSetKey(userID string) string   { return "scoring:events:" + userID }
func timestampsKey(userID string, cat config.Category) string {
	return fmt.Sprintf("scoring:ts:%s:%s", userID, cat)
}
func awardHashKey(postID string) string { return "scoring:award:" + postID }

func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, bool, error) {
	exists, err := s.rdb.Exists(ctx, userHashKey(userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil
	}
	r, err := s.load(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *RedisStore) UpsertAtomic(ctx context.Context, userID string, now time.Time, mutate Mutator) (*Record, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	r, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = NewRecord(userID, now)
	}

	r.MaybeMonthReset(now)

	if err := mutate(r); err != nil {
		return nil, err
	}

	if err := s.save(ctx, r); err != nil {
		return nil, err
	}

	return r.Clone(), nil
}

func (s *RedisStore) load(ctx context.Context, userID string) (*Record, error) {
	vals, err := s.rdb.HGetAll(ctx, userHashKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	r := NewRecord(userID, time.Now())
	for _, cat := range config.Categories {
		if v, ok := vals["points:"+string(cat)]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.Points[cat] = f
			}
		}
	}
	if v, ok := vals["one_time_points"]; ok {
		r.OneTimePoints, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["last_reset_date"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.LastResetDate = t
		}
	}
	if v, ok := vals["last_active_date"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			r.LastActiveDate = t
		}
	}
	if v, ok := vals["consecutive_activity_days"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			r.ConsecutiveActivityDays = n
		}
	}
	if v, ok := vals["historical_engagement_score"]; ok {
		r.HistoricalEngagementScore, _ = strconv.ParseFloat(v, 64)
	}

	events, err := s.rdb.SMembers(ctx, eventsSetKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		r.OneTimeEvents[e] = struct{}{}
	}

	for _, cat := range config.Categories {
		zs, err := s.rdb.ZRangeWithScores(ctx, timestampsKey(userID, cat), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		seq := make([]time.Time, 0, len(zs))
		for _, z := range zs {
			seq = append(seq, time.Unix(0, int64(z.Score)))
		}
		r.Timestamps[cat] = seq
	}

	return r, nil
}

func (s *RedisStore) save(ctx context.Context, r *Record) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields := map[string]interface{}{
			"one_time_points":             r.OneTimePoints,
			"last_reset_date":             r.LastResetDate.Format(time.RFC3339),
			"last_active_date":            r.LastActiveDate.Format(time.RFC3339),
			"consecutive_activity_days":   r.ConsecutiveActivityDays,
			"historical_engagement_score": r.HistoricalEngagementScore,
		}
		for _, cat := range config.Categories {
			fields["points:"+string(cat)] = r.Points[cat]
		}
		pipe.HSet(ctx, userHashKey(r.UserID), fields)
		pipe.SAdd(ctx, usersSetKey, r.UserID)

		// Rewrite the events set wholesale so a month reset (which empties
		// OneTimeEvents in memory) also drops the stale members in Redis.
		pipe.Del(ctx, eventsSetKey(r.UserID))
		if len(r.OneTimeEvents) > 0 {
			members := make([]interface{}, 0, len(r.OneTimeEvents))
			for e := range r.OneTimeEvents {
				members = append(members, e)
			}
			pipe.SAdd(ctx, eventsSetKey(r.UserID), members...)
		}

		for _, cat := range config.Categories {
			key := timestampsKey(r.UserID, cat)
			pipe.Del(ctx, key)
			seq := r.Timestamps[cat]
			if len(seq) == 0 {
				continue
			}
			zs := make([]redis.Z, 0, len(seq))
			for _, ts := range seq {
				zs = append(zs, redis.Z{Score: float64(ts.UnixNano()), Member: ts.UnixNano()})
			}
			pipe.ZAdd(ctx, key, zs...)
		}
		return nil
	})
	return err
}

func (s *RedisStore) ScanAll(ctx context.Context) ([]*Record, error) {
	userIDs, err := s.rdb.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(userIDs))
	for _, id := range userIDs {
		r, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RedisStore) RecordPostAward(ctx context.Context, postID string, award PostAward) error {
	return s.rdb.HSet(ctx, awardHashKey(postID), map[string]interface{}{
		"user_id":       award.UserID,
		"awarded_delta": award.AwardedDelta,
	}).Err()
}

func (s *RedisStore) GetPostAward(ctx context.Context, postID string) (PostAward, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, awardHashKey(postID)).Result()
	if err != nil {
		return PostAward{}, false, err
	}
	if len(vals) == 0 {
		return PostAward{}, false, nil
	}
	delta, _ := strconv.ParseFloat(vals["awarded_delta"], 64)
	return PostAward{UserID: vals["user_id"], AwardedDelta: delta}, true, nil
}

func (s *RedisStore) DeletePostAward(ctx context.Context, postID string) error {
	return s.rdb.Del(ctx, awardHashKey(postID)).Err()
}

var _ Store = (*RedisStore)(nil)
