package kv

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	value := []byte("v1")
	if err := s.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatal(err)
	}
	value[0] = 'x'
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Errorf("Expected stored copy v1, got %q (%v)", got, err)
	}

	if err := s.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "k"); string(got) != "v2" {
		t.Errorf("Expected overwrite to v2, got %q", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected key to expire, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v3"), 0); err != nil {
		t.Fatal(err)
	}

	_ = s.Set(ctx, "short", []byte("x"), time.Second)
	now = now.Add(time.Hour)
	if n := s.Sweep(); n != 1 {
		t.Errorf("Expected 1 swept key, got %d", n)
	}
	if got, _ := s.Get(ctx, "k"); string(got) != "v3" {
		t.Errorf("Expected key without ttl to survive, got %q", got)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type entry struct {
		Key  string `json:"key"`
		Size int    `json:"size"`
	}
	if err := SetJSON(ctx, s, "e", entry{Key: "runs/1/a", Size: 3}, 0); err != nil {
		t.Fatal(err)
	}
	var got entry
	if err := GetJSON(ctx, s, "e", &got); err != nil {
		t.Fatal(err)
	}
	if got.Key != "runs/1/a" || got.Size != 3 {
		t.Errorf("Unexpected entry %+v", got)
	}
	if err := GetJSON(ctx, s, "missing", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
