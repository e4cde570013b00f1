// Package redisstore provides a redis record store for tieredsession.
//
// Each collection is a key namespace: the payload of a record lives at
// {<prefix>:<collection>}:<id>, and a sorted set at
// {<prefix>:<collection>}-touched indexes ids by their last-touched time in
// microseconds so expired records can be purged without scanning the
// keyspace. The braces are a cluster hash tag: every key of a collection maps
// to the same slot, so the transactions and the purge script also work on a
// redis.ClusterClient.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/bluescreen10/tieredsession"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "sess"

var validPrefix = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

const deleteOlderThanScript = `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local n = 0
for _, id in ipairs(ids) do
  n = n + redis.call("DEL", ARGV[2] .. id)
  redis.call("ZREM", KEYS[1], id)
end
return n
`

var deleteOlderThanLua = redis.NewScript(deleteOlderThanScript)

// Ensure RedisStore implements tieredsession.RecordStore and Prober.
var (
	_ tieredsession.RecordStore = &RedisStore{}
	_ tieredsession.Prober      = &RedisStore{}
)

// RedisStore is a redis backed storage for session records.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

type option func(*RedisStore)

// WithPrefix sets the key prefix. (default "sess")
func WithPrefix(prefix string) option {
	return option(func(s *RedisStore) {
		s.prefix = prefix
	})
}

// WithClock sets the time source used to stamp records. (default time.Now)
func WithClock(now func() time.Time) option {
	return option(func(s *RedisStore) {
		s.now = now
	})
}

// New creates and returns a new RedisStore instance.
func New(rdb redis.UniversalClient, opts ...option) (*RedisStore, error) {
	s := &RedisStore{rdb: rdb, prefix: DefaultPrefix, now: time.Now}

	for _, opt := range opts {
		opt(s)
	}

	if !validPrefix.MatchString(s.prefix) {
		return nil, fmt.Errorf("redisstore: %w: invalid prefix %q", tieredsession.ErrConfiguration, s.prefix)
	}
	return s, nil
}

func (s *RedisStore) tag(c tieredsession.Collection) string {
	return "{" + s.prefix + ":" + c.String() + "}"
}

func (s *RedisStore) namespace(c tieredsession.Collection) string {
	return s.tag(c) + ":"
}

func (s *RedisStore) key(c tieredsession.Collection, id string) string {
	return s.namespace(c) + id
}

func (s *RedisStore) index(c tieredsession.Collection) string {
	return s.tag(c) + "-touched"
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Exists reports whether id is stored in collection c.
func (s *RedisStore) Exists(ctx context.Context, c tieredsession.Collection, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(c, id)).Result()
	return n > 0, err
}

// Probe checks both collections for id in one round trip.
func (s *RedisStore) Probe(ctx context.Context, id string) (bool, bool, error) {
	var hot, cold *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		hot = p.Exists(ctx, s.key(tieredsession.Hot, id))
		cold = p.Exists(ctx, s.key(tieredsession.Cold, id))
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return hot.Val() > 0, cold.Val() > 0, nil
}

// Get retrieves the record stored under id. Returns the record, a boolean
// indicating whether it was found, and an error.
func (s *RedisStore) Get(ctx context.Context, c tieredsession.Collection, id string) (tieredsession.Record, bool, error) {
	var data *redis.StringCmd
	var touched *redis.FloatCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		data = p.Get(ctx, s.key(c, id))
		touched = p.ZScore(ctx, s.index(c), id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return tieredsession.Record{}, false, err
	}

	payload, err := data.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tieredsession.Record{}, false, nil
		}
		return tieredsession.Record{}, false, err
	}

	rec := tieredsession.Record{Payload: payload}
	if ts, err := touched.Result(); err == nil {
		rec.LastTouched = time.UnixMicro(int64(ts))
	}
	return rec, true, nil
}

// Put stores payload under id. If a record with the same id already exists,
// it is overwritten.
func (s *RedisStore) Put(ctx context.Context, c tieredsession.Collection, id string, payload []byte) error {
	now := s.now()
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(c, id), payload, 0)
		p.ZAdd(ctx, s.index(c), redis.Z{Score: score(now), Member: id})
		return nil
	})
	return err
}

// Delete removes id from collection c. If the id does not exist, this is a
// no-op.
func (s *RedisStore) Delete(ctx context.Context, c tieredsession.Collection, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(c, id))
		p.ZRem(ctx, s.index(c), id)
		return nil
	})
	return err
}

// DeleteOlderThan removes every record in c touched before cutoff.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, c tieredsession.Collection, cutoff time.Time) (int64, error) {
	bound := strconv.FormatInt(cutoff.UnixMicro(), 10)
	return deleteOlderThanLua.Run(ctx, s.rdb, []string{s.index(c)}, bound, s.namespace(c)).Int64()
}

// Touch refreshes the last-touched time of id. Missing ids are left alone.
func (s *RedisStore) Touch(ctx context.Context, c tieredsession.Collection, id string) error {
	return s.rdb.ZAddXX(ctx, s.index(c), redis.Z{Score: score(s.now()), Member: id}).Err()
}
