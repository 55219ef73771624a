package auth

import (
	"context"
	"time"
)

// UserStore persists credential records. Lookups return ErrUserNotFound when
// nothing matches; Create and Update return ErrEmailTaken or ErrDNITaken on
// uniqueness violations.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByDNI(ctx context.Context, dni string) (User, error)
	Update(ctx context.Context, u User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q UserQuery) ([]User, int, error)
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}

// ResetTokenStore keeps password reset tokens until they expire or are consumed.
// Consume is atomic: a token can be returned at most once.
type ResetTokenStore interface {
	Save(ctx context.Context, tok ResetToken) error
	// Find reads a token without using it up.
	Find(ctx context.Context, id string) (ResetToken, error)
	Consume(ctx context.Context, id string) (ResetToken, error)
}

// Stores bundles the persistence dependencies of Service.
type Stores struct {
	Users         UserStore
	RefreshTokens RefreshTokenStore
	ResetTokens   ResetTokenStore
}

// ResetNotifier delivers a reset token out of band.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user User, token string, expiresAt time.Time) error
}
