package auth

import "lawdesk.org/internal/apperr"

var (
	ErrInvalidCredentials = apperr.Authentication("invalid_credentials", "invalid credentials")
	ErrTokenExpired       = apperr.Authentication("token_expired", "token has expired")
	ErrTokenInvalid       = apperr.Authentication("token_invalid", "token signature or format is invalid")
	ErrUnknownSubject     = apperr.Authentication("unknown_subject", "token subject no longer exists")
	ErrRefreshInvalid     = apperr.Authentication("refresh_token_invalid", "refresh token is invalid or revoked")
	ErrResetTokenInvalid  = apperr.Authentication("reset_token_invalid", "reset token is invalid, used or expired")
	ErrCurrentPassword    = apperr.Authentication("current_password_mismatch", "current password is incorrect")

	ErrPasswordTooShort = apperr.Validation("password_too_short", "password must be at least %d characters", MinPasswordLength)
	ErrPasswordReused   = apperr.Validation("password_unchanged", "new password must differ from the current password")
	ErrInvalidEmail     = apperr.Validation("invalid_email", "email format is invalid")

	ErrUserNotFound = apperr.NotFound("user_not_found", "user not found")
	ErrNotFound     = apperr.NotFound("not_found", "record not found")
	ErrEmailTaken   = apperr.Conflict("email_taken", "email is already registered")
	ErrDNITaken     = apperr.Conflict("dni_taken", "dni is already registered")
)

func missingField(name string) *apperr.Error {
	return apperr.Validation("missing_field", "%s is required", name)
}
