package storage

import (
	"context"
	"testing"
)

func TestMem_GetMissing(t *testing.T) {
	s := NewMem()
	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("missing key reported present")
	}
}

func TestMem_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get = %q", got)
	}

	has, err := s.Has(ctx, "k")
	if err != nil || !has {
		t.Fatalf("Has: %v %v", has, err)
	}
}

func TestMem_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if has, _ := s.Has(ctx, "k"); has {
		t.Fatal("key still present after delete")
	}
}

func TestMem_ValueIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'z'

	got, _, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
	got[0] = 'z'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored buffer: %q", again)
	}
}
