package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/clicklink/internal/app/model"
)

const (
	redisLinkPrefix     = "link:"
	redisByCreatedKey   = "links:created"
	redisByVisitsKey    = "links:visits"
	redisVisitsTotalKey = "links:visits_total"
)

// putScript creates the hash only when the key is absent and indexes it for
// reporting in the same atomic step.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'code', ARGV[1], 'url', ARGV[2], 'created_at', ARGV[3], 'visit_count', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 1
`)

// incrementScript refuses to create a hash for an unknown code; a bare
// HINCRBY would.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local value = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], value, ARGV[3])
redis.call('INCRBY', KEYS[3], ARGV[2])
return value
`)

// RedisStore keeps each link in a hash at link:{code}, with sorted sets
// ordering codes by creation time and by visits.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore returns a Store backed by Redis.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func redisLinkKey(code string) string {
	return redisLinkPrefix + code
}

func (s *RedisStore) ConditionalPut(ctx context.Context, link *model.Link) (bool, error) {
	created, err := putScript.Run(ctx, s.rdb,
		[]string{redisLinkKey(link.Code), redisByCreatedKey, redisByVisitsKey},
		link.Code, link.URL, link.CreatedAt, link.VisitCount,
	).Int()
	if err != nil {
		return false, unavailable("redis: conditional put", err)
	}
	return created == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (*model.Link, error) {
	fields, err := s.rdb.HGetAll(ctx, redisLinkKey(code)).Result()
	if err != nil {
		return nil, unavailable("redis: get", err)
	}
	if len(fields) == 0 {
		return nil, ErrLinkNotFound
	}
	return linkFromHash(code, fields)
}

func (s *RedisStore) Increment(ctx context.Context, code string, field model.Field, delta int64) (int64, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}

	value, err := incrementScript.Run(ctx, s.rdb,
		[]string{redisLinkKey(code), redisByVisitsKey, redisVisitsTotalKey},
		string(field), delta, code,
	).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrLinkNotFound
		}
		return 0, unavailable("redis: increment", err)
	}
	return value, nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]model.Link, error) {
	return s.ranked(ctx, redisByCreatedKey, limit)
}

func (s *RedisStore) Top(ctx context.Context, limit int) ([]model.Link, error) {
	return s.ranked(ctx, redisByVisitsKey, limit)
}

func (s *RedisStore) Summary(ctx context.Context) (model.Summary, error) {
	pipe := s.rdb.Pipeline()
	links := pipe.ZCard(ctx, redisByCreatedKey)
	visits := pipe.Get(ctx, redisVisitsTotalKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return model.Summary{}, unavailable("redis: summary", err)
	}

	summary := model.Summary{TotalLinks: links.Val()}
	if total, err := visits.Int64(); err == nil {
		summary.TotalVisits = total
	}
	return summary, nil
}

// HourlyCreated reads the creation index, whose scores are the CreatedAt
// values, so no link hash is loaded.
func (s *RedisStore) HourlyCreated(ctx context.Context) (model.HourlyCounts, error) {
	var counts model.HourlyCounts
	members, err := s.rdb.ZRangeWithScores(ctx, redisByCreatedKey, 0, -1).Result()
	if err != nil {
		return counts, unavailable("redis: hourly created", err)
	}
	for _, member := range members {
		counts[hourOf(int64(member.Score))]++
	}
	return counts, nil
}

func (s *RedisStore) ranked(ctx context.Context, index string, limit int) ([]model.Link, error) {
	codes, err := s.rdb.ZRevRange(ctx, index, 0, int64(clampLimit(limit)-1)).Result()
	if err != nil {
		return nil, unavailable("redis: rank "+index, err)
	}
	if len(codes) == 0 {
		return []model.Link{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(codes))
	for i, code := range codes {
		cmds[i] = pipe.HGetAll(ctx, redisLinkKey(code))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("redis: load ranked links", err)
	}

	result := make([]model.Link, 0, len(codes))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		link, err := linkFromHash(codes[i], fields)
		if err != nil {
			return nil, err
		}
		result = append(result, *link)
	}
	return result, nil
}

func linkFromHash(code string, fields map[string]string) (*model.Link, error) {
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: link %s: created_at: %w", code, err)
	}
	visits, err := strconv.ParseInt(fields["visit_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: link %s: visit_count: %w", code, err)
	}
	return &model.Link{
		Code:       code,
		URL:        fields["url"],
		CreatedAt:  createdAt,
		VisitCount: visits,
	}, nil
}
