// Package kv holds Redis-backed short-lived state: password reset tokens.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"lawdesk.org/internal/auth"
)

const resetPrefix = "lawdesk:reset:"

// Open parses a redis:// URL and verifies the server answers.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kv: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}
	return client, nil
}

// ResetTokens implements auth.ResetTokenStore. Keys expire with the token,
// and Consume uses GETDEL so a token is handed out once.
type ResetTokens struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewResetTokens(client redis.Cmdable) *ResetTokens {
	return &ResetTokens{client: client, now: time.Now}
}

func (s *ResetTokens) Save(ctx context.Context, tok auth.ResetToken) error {
	ttl := tok.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("kv: encode reset token: %w", err)
	}
	if err := s.client.Set(ctx, resetPrefix+tok.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("kv: save reset token: %w", err)
	}
	return nil
}

func (s *ResetTokens) Find(ctx context.Context, id string) (auth.ResetToken, error) {
	raw, err := s.client.Get(ctx, resetPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.ResetToken{}, fmt.Errorf("kv: find reset token: %w", err)
	}
	return decodeResetToken(raw)
}

func (s *ResetTokens) Consume(ctx context.Context, id string) (auth.ResetToken, error) {
	raw, err := s.client.GetDel(ctx, resetPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.ResetToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.ResetToken{}, fmt.Errorf("kv: consume reset token: %w", err)
	}
	return decodeResetToken(raw)
}

func decodeResetToken(raw []byte) (auth.ResetToken, error) {
	var tok auth.ResetToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return auth.ResetToken{}, fmt.Errorf("kv: decode reset token: %w", err)
	}
	return tok, nil
}
