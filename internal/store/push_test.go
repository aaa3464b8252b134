package store

import (
	"context"
	"testing"

	"github.com/dukerupert/hearth/internal/model"
)

func TestPushSubscriptionUpsert(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice@example.com")
	bob := createTestUser(t, s, "bob@example.com")

	sub, err := s.Push.CreateSubscription(ctx, model.PushSubscription{
		UserID: alice.ID, Endpoint: "https://push.example/1", P256dhKey: "k1", AuthKey: "a1", DeviceName: "phone",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" || sub.UserID != alice.ID {
		t.Fatalf("sub = %+v", sub)
	}

	moved, err := s.Push.CreateSubscription(ctx, model.PushSubscription{
		UserID: bob.ID, Endpoint: "https://push.example/1", P256dhKey: "k2", AuthKey: "a2",
	})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if moved.ID != sub.ID || moved.UserID != bob.ID || moved.P256dhKey != "k2" {
		t.Errorf("moved = %+v, want same id owned by bob", moved)
	}

	subs, err := s.Push.ListByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list alice: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("alice subs = %d, want 0", len(subs))
	}

	ok, err := s.Push.Delete(ctx, sub.ID, alice.ID)
	if err != nil {
		t.Fatalf("delete as alice: %v", err)
	}
	if ok {
		t.Error("alice should not delete bob's subscription")
	}
	if err := s.Push.DeleteByEndpoint(ctx, "https://push.example/1"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, err = s.Push.ListByUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("bob subs = %d, want 0", len(subs))
	}
}
