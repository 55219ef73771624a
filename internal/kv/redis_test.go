package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"lawdesk.org/internal/auth"
)

func setupResetTokens(t *testing.T) (*ResetTokens, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client, err := Open(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		mr.Close()
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewResetTokens(client), mr
}

func TestResetTokenConsumedOnce(t *testing.T) {
	store, mr := setupResetTokens(t)
	ctx := context.Background()
	tok := auth.ResetToken{ID: "01HX", UserID: "u1", TokenHash: "abc", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}

	if err := store.Save(ctx, tok); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(resetPrefix + "01HX"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	got, err := store.Consume(ctx, "01HX")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.UserID != "u1" || got.TokenHash != "abc" || !got.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("unexpected token %+v", got)
	}
	if _, err := store.Consume(ctx, "01HX"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("second consume: got %v, want ErrNotFound", err)
	}
}

func TestResetTokenFindDoesNotConsume(t *testing.T) {
	store, _ := setupResetTokens(t)
	ctx := context.Background()
	if err := store.Save(ctx, auth.ResetToken{ID: "t1", UserID: "u1", TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := store.Find(ctx, "t1")
		if err != nil || got.UserID != "u1" {
			t.Fatalf("Find #%d = %+v, %v", i, got, err)
		}
	}
	if _, err := store.Consume(ctx, "t1"); err != nil {
		t.Fatalf("Consume after Find: %v", err)
	}
	if _, err := store.Find(ctx, "t1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("Find after Consume: got %v, want ErrNotFound", err)
	}
}

func TestResetTokenExpires(t *testing.T) {
	store, mr := setupResetTokens(t)
	ctx := context.Background()
	if err := store.Save(ctx, auth.ResetToken{ID: "t1", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Consume(ctx, "t1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestConsumeReportsServerErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewResetTokens(client)
	mr.Close()

	_, err = store.Consume(context.Background(), "x")
	if err == nil || errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want transport error", err)
	}
}
