package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Each logical key is a Redis hash with two fields: "v" holds the value
// and "ver" the version.  Writes go through Lua so the version check and
// the write happen atomically on the server.

var setScript = redis.NewScript(`
    local ver = redis.call('HINCRBY', KEYS[1], 'ver', 1)
    redis.call('HSET', KEYS[1], 'v', ARGV[1])
    return ver
`)

var casScript = redis.NewScript(`
    local cur = redis.call('HGET', KEYS[1], 'ver')
    local expected = tonumber(ARGV[2])
    if cur == false then
        if expected ~= 0 then return -1 end
    elseif tonumber(cur) ~= expected then
        return -1
    end
    redis.call('HSET', KEYS[1], 'v', ARGV[1], 'ver', expected + 1)
    return expected + 1
`)

// Redis is a Store backed by a Redis server.  All keys live under
// Namespace so one Redis can also serve the rate limiter and cache.
type Redis struct {
	rdb       *redis.Client
	namespace string
}

// NewRedis wraps rdb.  namespace is prepended to every key, e.g. "gt:".
func NewRedis(rdb *redis.Client, namespace string) *Redis {
	return &Redis{rdb: rdb, namespace: namespace}
}

func (r *Redis) k(key string) string { return r.namespace + key }

func (r *Redis) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := r.rdb.HMGet(ctx, r.k(key), "v", "ver").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis hmget %s: %w", key, err)
	}
	return entryFromHash(key, vals)
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := setScript.Run(ctx, r.rdb, []string{r.k(key)}, value).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HMGet(ctx, r.k(key), "v")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 1 {
			if s, ok := vals[0].(string); ok {
				out[i] = []byte(s)
			}
		}
	}
	return out, nil
}

func (r *Redis) MDel(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = r.k(key)
	}
	n, err := r.rdb.Del(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (r *Redis) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, escapeGlob(r.k(prefix))+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.SliceCmd, len(keys))
	_, err := r.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HMGet(ctx, key, "v", "ver")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis scan fetch: %w", err)
	}
	out := make([]Entry, 0, len(keys))
	for i, cmd := range cmds {
		e, err := entryFromHash(strings.TrimPrefix(keys[i], r.namespace), cmd.Val())
		if errors.Is(err, ErrNotFound) {
			continue // deleted between SCAN and HMGET
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	ver, err := casScript.Run(ctx, r.rdb, []string{r.k(key)}, value, expected).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis cas %s: %w", key, err)
	}
	if ver < 0 {
		return 0, ErrVersionConflict
	}
	return ver, nil
}

func entryFromHash(key string, vals []interface{}) (Entry, error) {
	if len(vals) != 2 || vals[0] == nil {
		return Entry{}, ErrNotFound
	}
	s, ok := vals[0].(string)
	if !ok {
		return Entry{}, fmt.Errorf("redis %s: unexpected value type %T", key, vals[0])
	}
	var ver int64
	if vs, ok := vals[1].(string); ok {
		ver, _ = strconv.ParseInt(vs, 10, 64)
	}
	return Entry{Key: key, Value: []byte(s), Version: ver}, nil
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
