package redisstore_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bluescreen10/tieredsession"
	"github.com/bluescreen10/tieredsession/redisstore"
	"github.com/redis/go-redis/v9"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	id := "abc123"
	expectedData := []byte("hello world")

	s, _ := newStore(t)
	if err := s.Put(ctx, tieredsession.Hot, id, expectedData); err != nil {
		t.Fatal(err)
	}
	rec, found, err := s.Get(ctx, tieredsession.Hot, id)

	if err != nil {
		t.Fatal(err)
	}

	if string(rec.Payload) != string(expectedData) {
		t.Fatalf("expected '%s' got '%s'", expectedData, rec.Payload)
	}

	if !found {
		t.Fatalf("expected 'true' got '%v'", found)
	}
}

func TestEmptyGet(t *testing.T) {
	s, _ := newStore(t)
	_, found, err := s.Get(context.Background(), tieredsession.Cold, "abc123")

	if err != nil {
		t.Fatal(err)
	}

	if found {
		t.Fatalf("expected 'false' got '%v'", found)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	id := "abc123"

	s, rdb := newStore(t)
	s.Put(ctx, tieredsession.Hot, id, []byte("hello world"))
	if err := s.Delete(ctx, tieredsession.Hot, id); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, tieredsession.Hot, id); err != nil {
		t.Fatal(err)
	}

	_, found, err := s.Get(ctx, tieredsession.Hot, id)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected 'false' got '%v'", found)
	}

	n, err := rdb.ZCard(ctx, "{sess:hot}-touched").Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 index entries but got '%d'", n)
	}
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	s.Put(ctx, tieredsession.Hot, "both", []byte("a"))
	s.Put(ctx, tieredsession.Cold, "both", []byte("b"))
	s.Put(ctx, tieredsession.Cold, "cold", []byte("c"))

	tests := []struct {
		id        string
		hot, cold bool
	}{
		{"both", true, true},
		{"cold", false, true},
		{"none", false, false},
	}

	for _, tt := range tests {
		inHot, inCold, err := s.Probe(ctx, tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if inHot != tt.hot || inCold != tt.cold {
			t.Fatalf("%s: expected '%v, %v' got '%v, %v'", tt.id, tt.hot, tt.cold, inHot, inCold)
		}
	}
}

func TestTouchAndDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-time.Hour)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, err := redisstore.New(rdb, redisstore.WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatal(err)
	}

	s.Put(ctx, tieredsession.Hot, "old", []byte("a"))
	s.Put(ctx, tieredsession.Hot, "touched", []byte("b"))
	clock = now
	s.Put(ctx, tieredsession.Hot, "new", []byte("c"))
	if err := s.Touch(ctx, tieredsession.Hot, "touched"); err != nil {
		t.Fatal(err)
	}
	// touching a missing id must not create it
	if err := s.Touch(ctx, tieredsession.Hot, "ghost"); err != nil {
		t.Fatal(err)
	}

	rec, _, err := s.Get(ctx, tieredsession.Hot, "touched")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.LastTouched.Equal(now) {
		t.Fatalf("expected '%v' got '%v'", now, rec.LastTouched)
	}

	n, err := s.DeleteOlderThan(ctx, tieredsession.Hot, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted but got '%d'", n)
	}

	for id, expected := range map[string]bool{"old": false, "touched": true, "new": true, "ghost": false} {
		ok, err := s.Exists(ctx, tieredsession.Hot, id)
		if err != nil {
			t.Fatal(err)
		}
		if ok != expected {
			t.Fatalf("%s: expected '%v' got '%v'", id, expected, ok)
		}
	}
}

func TestKeysShareCollectionSlot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, err := redisstore.New(rdb, redisstore.WithPrefix("app"))
	if err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, tieredsession.Hot, "abc123", []byte("a"))
	s.Put(ctx, tieredsession.Cold, "abc123", []byte("b"))

	expected := []string{"{app:cold}-touched", "{app:cold}:abc123", "{app:hot}-touched", "{app:hot}:abc123"}
	keys := mr.Keys()
	if strings.Join(keys, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected '%v' got '%v'", expected, keys)
	}

	n, err := s.DeleteOlderThan(ctx, tieredsession.Hot, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted but got '%d'", n)
	}
	if mr.Exists("{app:hot}:abc123") {
		t.Fatal("expected hot record to be purged")
	}
}

func TestInvalidPrefix(t *testing.T) {
	_, err := redisstore.New(nil, redisstore.WithPrefix("bad prefix"))
	if !errors.Is(err, tieredsession.ErrConfiguration) {
		t.Fatalf("expected '%v' got '%v'", tieredsession.ErrConfiguration, err)
	}
}

func TestTieredSweep(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 900 * time.Second

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, err := redisstore.New(rdb, redisstore.WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatal(err)
	}
	store, err := tieredsession.New(s, tieredsession.WithSizeThreshold(100), tieredsession.WithTTL(ttl))
	if err != nil {
		t.Fatal(err)
	}

	now := clock.Add(ttl + time.Second)
	if err := store.Write(ctx, "expired", []byte(strings.Repeat("x", 500))); err != nil {
		t.Fatal(err)
	}
	clock = now.Add(-ttl + time.Second)
	if err := store.Write(ctx, "fresh", []byte("y")); err != nil {
		t.Fatal(err)
	}

	res, err := store.Sweep(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Hot != 0 || res.Cold != 1 {
		t.Fatalf("expected '{0 1}' got '%v'", res)
	}

	if _, err := store.Read(ctx, "expired"); !errors.Is(err, tieredsession.ErrSessionNotFound) {
		t.Fatalf("expected '%v' got '%v'", tieredsession.ErrSessionNotFound, err)
	}
	data, err := store.Read(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "y" {
		t.Fatalf("expected 'y' got '%s'", data)
	}
}

func TestUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	s, err := redisstore.New(rdb)
	if err != nil {
		t.Fatal(err)
	}
	store, err := tieredsession.New(s)
	if err != nil {
		t.Fatal(err)
	}

	mr.Close()
	err = store.Write(context.Background(), "alice", []byte("x"))
	if !errors.Is(err, tieredsession.ErrStorageUnavailable) {
		t.Fatalf("expected '%v' got '%v'", tieredsession.ErrStorageUnavailable, err)
	}
}

func newStore(t *testing.T) (*redisstore.RedisStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, err := redisstore.New(rdb)
	if err != nil {
		t.Fatal(err)
	}
	return s, rdb
}
