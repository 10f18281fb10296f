package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLock(t *testing.T) (*TickLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTickLock(rdb), mr
}

func TestTickLockIsExclusive(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx, "sequences:tick", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	_, ok, err = lock.TryAcquire(ctx, "sequences:tick", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second acquire to fail while held")
	}

	release()
	_, ok, err = lock.TryAcquire(ctx, "sequences:tick", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestTickLockExpires(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	if _, ok, _ := lock.TryAcquire(ctx, "sequences:tick", 30*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}
	mr.FastForward(31 * time.Second)

	if _, ok, _ := lock.TryAcquire(ctx, "sequences:tick", 30*time.Second); !ok {
		t.Fatal("expected acquire to succeed after the lease expired")
	}
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	stale, ok, _ := lock.TryAcquire(ctx, "sequences:tick", 10*time.Second)
	if !ok {
		t.Fatal("expected acquire to succeed")
	}
	mr.FastForward(11 * time.Second)
	if _, ok, _ := lock.TryAcquire(ctx, "sequences:tick", time.Minute); !ok {
		t.Fatal("expected second holder to acquire the expired lock")
	}

	stale()

	if !mr.Exists(lockPrefix + "sequences:tick") {
		t.Fatal("stale release must not drop another holder's lock")
	}
}
