package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client, "test:")
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "k", []byte(`{"rid":"r1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"rid":"r1"}` {
		t.Fatalf("Get = %q", got)
	}

	has, err := s.Has(ctx, "k")
	if err != nil || !has {
		t.Fatalf("Has: %v %v", has, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := s.Has(ctx, "k"); has {
		t.Fatal("key present after delete")
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewFromClient(client, "mirror:")
	if err := s.Set(ctx, "catalog", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !srv.Exists("mirror:catalog") {
		t.Fatal("stored key missing the configured prefix")
	}
}

func TestStore_SurfacesBackendFailure(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewFromClient(client, "")

	srv.Close()
	if err := s.Set(ctx, "k", []byte("v")); err == nil {
		t.Fatal("Set against a dead backend should fail")
	}
	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Fatal("Get against a dead backend should fail")
	}
}
