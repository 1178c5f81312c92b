package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/nekogravitycat/bookshare-backend/internal/clock"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisStore keeps one string key per reservation, expiring with PX, plus a
// per-resource index set. Keys of one resource share a hash tag so the Lua
// scripts stay on a single cluster slot.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	clock  clock.Clock
}

func NewRedisStore(client redis.Cmdable, prefix string, clk clock.Clock) *RedisStore {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "bookshare"
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &RedisStore{
		client: client,
		prefix: normalized + ":reservation",
		clock:  clk,
	}
}

func (s *RedisStore) Put(ctx context.Context, resourceID, requesterID string, r Reservation, ttl time.Duration) error {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	r.RequesterID = requesterID
	r.ExpiresAt = s.clock.Now().Add(ttl)
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reservation: %w", err)
	}

	keys := []string{s.entryKey(resourceID, requesterID), s.indexKey(resourceID)}
	if err := putScript.Run(ctx, s.client, keys, requesterID, payload, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("reservation put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, resourceID, requesterID string) (Reservation, bool, error) {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return Reservation{}, false, err
	}

	raw, err := s.client.Get(ctx, s.entryKey(resourceID, requesterID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Reservation{}, false, nil
		}
		return Reservation{}, false, fmt.Errorf("reservation get: %w", err)
	}
	r, err := decode(raw)
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (s *RedisStore) List(ctx context.Context, resourceID string) (map[string]Reservation, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, errors.New("resource id is required")
	}

	ids, err := s.client.SMembers(ctx, s.indexKey(resourceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reservation index: %w", err)
	}
	out := make(map[string]Reservation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(resourceID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reservation mget: %w", err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Expired since the index was read.
			continue
		}
		r, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out[ids[i]] = r
	}
	return out, nil
}

func (s *RedisStore) Remove(ctx context.Context, resourceID, requesterID string) (Reservation, bool, error) {
	resourceID, requesterID, err := normalizeKey(resourceID, requesterID)
	if err != nil {
		return Reservation{}, false, err
	}

	keys := []string{s.entryKey(resourceID, requesterID), s.indexKey(resourceID)}
	raw, err := removeScript.Run(ctx, s.client, keys, requesterID).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Reservation{}, false, nil
		}
		return Reservation{}, false, fmt.Errorf("reservation remove: %w", err)
	}
	r, err := decode([]byte(raw))
	if err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (s *RedisStore) RemoveAll(ctx context.Context, resourceID string) (map[string]Reservation, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, errors.New("resource id is required")
	}

	flat, err := removeAllScript.Run(ctx, s.client,
		[]string{s.indexKey(resourceID)}, s.entryKey(resourceID, "")).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reservation remove all: %w", err)
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("reservation remove all: malformed reply of %d items", len(flat))
	}

	out := make(map[string]Reservation, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		r, err := decode([]byte(flat[i+1]))
		if err != nil {
			return nil, err
		}
		out[flat[i]] = r
	}
	return out, nil
}

func (s *RedisStore) entryKey(resourceID, requesterID string) string {
	return s.prefix + ":{" + resourceID + "}:req:" + requesterID
}

func (s *RedisStore) indexKey(resourceID string) string {
	return s.prefix + ":{" + resourceID + "}:index"
}

func decode(raw []byte) (Reservation, error) {
	var r Reservation
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reservation{}, fmt.Errorf("decode reservation: %w", err)
	}
	return r, nil
}

// The index outlives its longest entry.
var putScript = redis.NewScript(`
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SADD", KEYS[2], ARGV[1])
local ttl = tonumber(ARGV[3])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`)

var removeScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if not existing then
  return false
end
return existing
`)

// removeAllScript derives entry keys from the index members, so they cannot
// be declared in KEYS up front. They carry the same {resourceID} hash tag as
// KEYS[1] and land on its slot; a cluster or script-flag mode that rejects
// undeclared keys needs the set read and the purge split into two calls.
var removeAllScript = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
local out = {}
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local existing = redis.call("GET", key)
  if existing then
    table.insert(out, id)
    table.insert(out, existing)
    redis.call("DEL", key)
  end
end
redis.call("DEL", KEYS[1])
return out
`)
