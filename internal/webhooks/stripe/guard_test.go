package stripewebhook

import (
	"context"
	"errors"
	"testing"
	"time"
)

type ttlStore struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newTTLStore() *ttlStore {
	return &ttlStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *ttlStore) Get(_ context.Context, key string) (string, error) { return s.data[key], nil }

func (s *ttlStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value.(string)
	s.ttls[key] = ttl
	return true, nil
}

func (s *ttlStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *ttlStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func TestEventGuardClaimRelease(t *testing.T) {
	store := newTTLStore()
	guard, err := NewEventGuard(store, 0, "stripe-webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	if ok, err := guard.Claim(ctx, "evt_1"); err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	if ok, _ := guard.Claim(ctx, "evt_1"); ok {
		t.Fatal("second claim must lose")
	}
	if store.ttls["stripe-webhook:evt_1"] != defaultClaimTTL {
		t.Fatalf("unexpected ttl %v", store.ttls["stripe-webhook:evt_1"])
	}

	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := guard.Claim(ctx, "evt_1"); !ok {
		t.Fatal("claim after release must win")
	}
}

func TestEventGuardErrors(t *testing.T) {
	if _, err := NewEventGuard(nil, time.Minute, "s"); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := NewEventGuard(newTTLStore(), time.Minute, ""); err == nil {
		t.Fatal("expected scope error")
	}

	store := newTTLStore()
	store.err = errors.New("redis down")
	guard, _ := NewEventGuard(store, time.Minute, "s")
	if _, err := guard.Claim(context.Background(), "evt"); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if _, err := guard.Claim(context.Background(), ""); err == nil {
		t.Fatal("expected empty id to fail")
	}
}
