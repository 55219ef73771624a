package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/obs"
)

const (
	defaultRefreshTTL = 24 * time.Hour * 14
	defaultResetTTL   = time.Hour

	// ResetRequestMessage is returned whether or not the address is registered.
	ResetRequestMessage = "if the email is registered, password reset instructions have been sent"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an e-mail address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Service orchestrates registration, login, profile and credential flows.
type Service struct {
	users    UserStore
	refresh  RefreshTokenStore
	resets   ResetTokenStore
	tokens   *TokenService
	hasher   Hasher
	notifier ResetNotifier
	log      *logrus.Entry
	now      func() time.Time

	refreshTTL time.Duration
	resetTTL   time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures how long a password reset token stays usable.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.resetTTL = ttl
		}
		return nil
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		s.hasher = h
		return nil
	}
}

// WithResetNotifier sets the out-of-band channel for reset tokens.
func WithResetNotifier(n ResetNotifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *logrus.Entry) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service from its stores and token service.
func NewService(stores Stores, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if stores.Users == nil || stores.RefreshTokens == nil || stores.ResetTokens == nil {
		return nil, errors.New("auth: users, refresh token and reset token stores are required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		users:      stores.Users,
		refresh:    stores.RefreshTokens,
		resets:     stores.ResetTokens,
		tokens:     tokens,
		hasher:     NewHasher(0),
		log:        obs.Component("auth"),
		now:        time.Now,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Hasher exposes the configured password hasher.
func (s *Service) Hasher() Hasher { return s.hasher }

// Register creates a lawyer account from the self-registration form and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.DNI = strings.TrimSpace(in.DNI)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = NormalizeEmail(in.Email)
	switch {
	case in.DNI == "":
		return Session{}, missingField("dni")
	case in.Phone == "":
		return Session{}, missingField("phone")
	case in.Email == "":
		return Session{}, missingField("email")
	case in.Password == "":
		return Session{}, missingField("password")
	}
	user, err := s.createUser(ctx, NewUser{
		DNI:       in.DNI,
		Email:     in.Email,
		Password:  in.Password,
		Role:      RoleLawyer,
		Name:      in.Name,
		Surname:   in.Surname,
		Phone:     in.Phone,
		Specialty: in.Specialty,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// CreateUser creates a credential record with an explicit role. It backs the
// lawyer management endpoints and the create-admin command.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (Profile, error) {
	user, err := s.createUser(ctx, in)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) createUser(ctx context.Context, in NewUser) (User, error) {
	in.DNI = strings.TrimSpace(in.DNI)
	in.Email = NormalizeEmail(in.Email)
	if in.DNI == "" {
		return User{}, missingField("dni")
	}
	if !in.Role.Valid() {
		return User{}, apperr.Validation("invalid_role", "role is required")
	}
	if in.Email != "" && !ValidEmail(in.Email) {
		return User{}, ErrInvalidEmail
	}
	if in.Password != "" && len(in.Password) < MinPasswordLength {
		return User{}, ErrPasswordTooShort
	}
	if in.Email != "" {
		if err := s.ensureFree(ctx, s.users.FindByEmail, in.Email, ErrEmailTaken); err != nil {
			return User{}, err
		}
	}
	if err := s.ensureFree(ctx, s.users.FindByDNI, in.DNI, ErrDNITaken); err != nil {
		return User{}, err
	}

	var hash string
	if in.Password != "" {
		h, err := s.hasher.Hash(in.Password)
		if err != nil {
			return User{}, apperr.Internal(fmt.Errorf("hash password: %w", err))
		}
		hash = h
	}
	now := s.now().UTC()
	user := User{
		ID:            ids.NewAt(now),
		DNI:           in.DNI,
		Email:         in.Email,
		PasswordHash:  hash,
		Role:          in.Role,
		Name:          strings.TrimSpace(in.Name),
		Surname:       strings.TrimSpace(in.Surname),
		Phone:         strings.TrimSpace(in.Phone),
		Specialty:     strings.TrimSpace(in.Specialty),
		LicenseNumber: strings.TrimSpace(in.LicenseNumber),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return User{}, passThrough(err, "create user")
	}
	return user, nil
}

func (s *Service) ensureFree(ctx context.Context, find func(context.Context, string) (User, error), key string, taken *apperr.Error) error {
	_, err := find(ctx, key)
	switch {
	case err == nil:
		return taken
	case errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return apperr.Internal(err)
	}
}

// Login checks credentials. Every failure yields the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		obs.LoginAttempts.WithLabelValues("rejected").Inc()
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return Session{}, apperr.Internal(err)
		}
		// Burn the same bcrypt work as a real comparison.
		s.hasher.Verify(s.placeholderHash(), password)
		obs.LoginAttempts.WithLabelValues("rejected").Inc()
		return Session{}, ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		obs.LoginAttempts.WithLabelValues("rejected").Inc()
		return Session{}, ErrInvalidCredentials
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	return sess, nil
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("lawdesk-placeholder-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// Profile returns the caller's own record.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return Profile{}, passThrough(err, "find user")
	}
	return user.Profile(), nil
}

// UpdateProfile applies patch to the whitelisted profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (Profile, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return Profile{}, passThrough(err, "find user")
	}
	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Surname != nil {
		user.Surname = strings.TrimSpace(*patch.Surname)
	}
	if patch.Phone != nil {
		phone := strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return Profile{}, missingField("phone")
		}
		user.Phone = phone
	}
	if patch.Specialty != nil {
		user.Specialty = strings.TrimSpace(*patch.Specialty)
	}
	if patch.Email != nil {
		email := NormalizeEmail(*patch.Email)
		if email == "" {
			return Profile{}, missingField("email")
		}
		if !ValidEmail(email) {
			return Profile{}, ErrInvalidEmail
		}
		if email != user.Email {
			other, err := s.users.FindByEmail(ctx, email)
			switch {
			case err == nil && other.ID != user.ID:
				return Profile{}, ErrEmailTaken
			case err != nil && !errors.Is(err, ErrUserNotFound):
				return Profile{}, apperr.Internal(err)
			}
			user.Email = email
		}
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return Profile{}, passThrough(err, "update user")
	}
	return user.Profile(), nil
}

// ChangePassword replaces the password after checking the current one.
// Access tokens already issued stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return passThrough(err, "find user")
	}
	if !s.hasher.Verify(user.PasswordHash, current) {
		return ErrCurrentPassword
	}
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if s.hasher.Verify(user.PasswordHash, next) {
		return ErrPasswordReused
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return passThrough(err, "update password")
	}
	return nil
}

// RequestPasswordReset issues a reset token when email belongs to an account.
// The returned message is identical either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (ResetRequest, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return ResetRequest{}, missingField("email")
	}
	out := ResetRequest{Message: ResetRequestMessage}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return out, nil
		}
		return ResetRequest{}, apperr.Internal(err)
	}

	now := s.now().UTC()
	raw, secretHash, id, err := newOpaqueToken(now)
	if err != nil {
		return ResetRequest{}, apperr.Internal(err)
	}
	tok := ResetToken{
		ID:        id,
		UserID:    user.ID,
		TokenHash: secretHash,
		ExpiresAt: now.Add(s.resetTTL),
	}
	if err := s.resets.Save(ctx, tok); err != nil {
		return ResetRequest{}, apperr.Internal(fmt.Errorf("save reset token: %w", err))
	}
	if s.notifier != nil {
		if err := s.notifier.SendPasswordReset(ctx, user, raw, tok.ExpiresAt); err != nil {
			s.log.WithError(err).WithField("user_id", user.ID).Warn("password reset notification failed")
		}
	}
	out.Token = raw
	out.ExpiresAt = tok.ExpiresAt
	return out, nil
}

// ResetPassword consumes a reset token and sets a new password. It returns
// the id of the account whose password changed. Refresh tokens of that
// account are revoked.
func (s *Service) ResetPassword(ctx context.Context, rawToken, next string) (string, error) {
	if len(next) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	id, secret, err := splitOpaqueToken(rawToken)
	if err != nil {
		return "", ErrResetTokenInvalid
	}
	// a wrong secret must not burn the owner's token, so verify before consuming
	tok, err := s.resets.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", apperr.Internal(err)
	}
	if !secureCompareHash(tok.TokenHash, secret) || !s.now().Before(tok.ExpiresAt) {
		return "", ErrResetTokenInvalid
	}
	if _, err := s.resets.Consume(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", apperr.Internal(err)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.users.UpdatePassword(ctx, tok.UserID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", apperr.Internal(err)
	}
	if err := s.refresh.MarkRevokedByUser(ctx, tok.UserID); err != nil {
		s.log.WithError(err).WithField("user_id", tok.UserID).Warn("revoke refresh tokens after reset failed")
	}
	return tok.UserID, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. A token whose secret does not match is revoked on sight.
func (s *Service) Refresh(ctx context.Context, rawToken string) (Session, error) {
	tokenID, secret, err := splitOpaqueToken(rawToken)
	if err != nil {
		return Session{}, ErrRefreshInvalid
	}
	record, err := s.refresh.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrRefreshInvalid
		}
		return Session{}, apperr.Internal(err)
	}
	if record.Revoked || !s.now().Before(record.ExpiresAt) {
		return Session{}, ErrRefreshInvalid
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = s.refresh.MarkRevoked(ctx, record.ID)
		return Session{}, ErrRefreshInvalid
	}
	user, err := s.users.Find(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrRefreshInvalid
		}
		return Session{}, apperr.Internal(err)
	}
	if err := s.refresh.MarkRevoked(ctx, record.ID); err != nil {
		return Session{}, apperr.Internal(err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes every refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.refresh.MarkRevokedByUser(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Principal loads the request identity for userID.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return Principal{}, passThrough(err, "find user")
	}
	return Principal{ID: user.ID, Email: user.Email, Role: user.Role, Name: user.DisplayName()}, nil
}

// Authenticate verifies an access token and re-confirms its subject exists.
// Failures are ErrTokenExpired, ErrTokenInvalid or ErrUnknownSubject.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	principal, err := s.Principal(ctx, id.SubjectID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Principal{}, ErrUnknownSubject
		}
		return Principal{}, err
	}
	return principal, nil
}

func (s *Service) issueSession(ctx context.Context, user User) (Session, error) {
	access, accessExp, err := s.tokens.Issue(Identity{SubjectID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	now := s.now().UTC()
	raw, secretHash, id, err := newOpaqueToken(now)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	rec := &RefreshToken{
		ID:        id,
		UserID:    user.ID,
		TokenHash: secretHash,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.refresh.Create(ctx, rec); err != nil {
		return Session{}, apperr.Internal(fmt.Errorf("store refresh token: %w", err))
	}
	return Session{
		User:             user.Profile(),
		AccessToken:      access,
		RefreshToken:     raw,
		ExpiresAt:        accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// newOpaqueToken returns "<id>.<secret>", the hex SHA-256 of secret and id.
func newOpaqueToken(now time.Time) (raw, secretHash, id string, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	id = ids.NewAt(now)
	sum := sha256.Sum256([]byte(secret))
	return id + "." + secret, hex.EncodeToString(sum[:]), id, nil
}

func splitOpaqueToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash string, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	return subtleCompare(expectedHash, actual)
}

func subtleCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// passThrough keeps classified store errors and wraps everything else as internal.
func passThrough(err error, op string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}
