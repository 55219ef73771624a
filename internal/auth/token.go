package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer    = "lawdesk"
	defaultAccessTTL = 24 * time.Hour
	accessTokenType  = "access"
)

// Identity is the set of claims an access token vouches for.
type Identity struct {
	SubjectID string
	Email     string
	Role      Role
}

// Claims is the JWT payload of an access token.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Validate is called by the parser after the registered claims pass.
func (c *Claims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("subject missing")
	}
	if c.TokenType != accessTokenType {
		return fmt.Errorf("unexpected token type %q", c.TokenType)
	}
	if !c.Role.Valid() {
		return errors.New("role missing")
	}
	return nil
}

// TokenService signs and verifies HS256 access tokens. It holds no state
// besides its configuration and is safe for concurrent use.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService)

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenIssuer overrides the iss claim.
func WithTokenIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTokenClock overrides the time source.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService returns a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is not configured")
	}
	s := &TokenService{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultAccessTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the configured access token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs an access token for id. The expiry is returned alongside.
func (s *TokenService) Issue(id Identity) (string, time.Time, error) {
	if strings.TrimSpace(id.SubjectID) == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: invalid role %d", uint8(id.Role))
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := Claims{
		Email:     id.Email,
		Role:      id.Role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry. A token whose expiry equals
// the current instant is expired. It returns ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrTokenInvalid
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrTokenExpired.Wrap(err)
	default:
		return Identity{}, ErrTokenInvalid.Wrap(err)
	}
	return Identity{SubjectID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}
