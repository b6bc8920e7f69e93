package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestTryAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx, "jamaica-general", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, err := lock.TryAcquire(ctx, "jamaica-general", time.Minute); err != nil || ok {
		t.Fatalf("second acquire must fail while held: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := lock.TryAcquire(ctx, "other-config", time.Minute); !ok {
		t.Fatalf("different configs must not share a lock")
	}

	release()
	if _, ok, err := lock.TryAcquire(ctx, "jamaica-general", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLockExpiresAndStaleReleaseIsHarmless(t *testing.T) {
	t.Parallel()

	lock, mr := newTestLock(t)
	ctx := context.Background()

	staleRelease, ok, err := lock.TryAcquire(ctx, "cfg", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Second)

	_, ok, err = lock.TryAcquire(ctx, "cfg", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expired lock should be free: ok=%v err=%v", ok, err)
	}

	// The first holder's release must not drop the new holder's lock.
	staleRelease()
	if _, ok, _ := lock.TryAcquire(ctx, "cfg", time.Minute); ok {
		t.Fatalf("stale release removed a lock it no longer owned")
	}
}
