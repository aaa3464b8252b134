package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryDenylist(t *testing.T) {
	d := NewMemoryDenylist()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	ctx := context.Background()

	if err := d.Revoke(ctx, "jti-1", time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, _ := d.IsRevoked(ctx, "jti-1")
	if !revoked {
		t.Error("expected jti-1 revoked")
	}
	revoked, _ = d.IsRevoked(ctx, "jti-2")
	if revoked {
		t.Error("jti-2 should not be revoked")
	}

	d.now = func() time.Time { return base.Add(2 * time.Hour) }
	revoked, _ = d.IsRevoked(ctx, "jti-1")
	if revoked {
		t.Error("revocation should lapse after ttl")
	}
}

func TestRedisDenylist(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	d := NewRedisDenylist(rdb)
	ctx := context.Background()

	if err := d.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := d.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Error("expected jti-1 revoked")
	}

	mr.FastForward(2 * time.Minute)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("is revoked after ttl: %v", err)
	}
	if revoked {
		t.Error("revocation should expire with ttl")
	}

	if err := d.Revoke(ctx, "jti-2", 0); err != nil {
		t.Fatalf("revoke zero ttl: %v", err)
	}
	if revoked, _ := d.IsRevoked(ctx, "jti-2"); revoked {
		t.Error("zero ttl should be a no-op")
	}
}
