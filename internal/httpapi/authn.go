package httpapi

import (
	"net/http"
	"strings"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	challenge  = `Bearer realm="lawdesk"`
)

var (
	errMissingCredentials   = apperr.Authentication("missing_credentials", "authorization header is required")
	errMalformedCredentials = apperr.Authentication("malformed_credentials", "authorization header must be a bearer token")
)

// withAuditMeta copies request metadata into the context for audit records.
func withAuditMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithMeta(r.Context(), audit.Meta{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: RequestIDFromContext(r.Context()),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the bearer token to a Principal. It performs no writes.
func (a *API) authenticate(next http.Handler) http.Handler {
	log := obs.Component("authn")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err)
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if apperr.KindOf(err) != apperr.KindAuthentication {
				writeAppError(w, r, err)
				return
			}
			log.WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).Info("token_rejected")
			unauthorized(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", challenge)
	writeAppError(w, r, err)
}

// RequireRole admits principals whose role is in roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", challenge)
				writeError(w, r, http.StatusUnauthorized, "not_authenticated", "authentication required")
				return
			}
			if !principal.Role.In(roles...) {
				w.Header().Set("WWW-Authenticate", challenge+`, error="insufficient_scope"`)
				writeErrorBody(w, r, http.StatusForbidden, map[string]any{
					"success":        false,
					"error":          "insufficient permissions",
					"code":           "forbidden",
					"required_roles": names,
					"actual_role":    principal.Role.String(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// gate wraps a handler func with RequireRole.
func gate(h http.HandlerFunc, roles ...auth.Role) http.Handler {
	return RequireRole(roles...)(h)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingCredentials
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errMalformedCredentials
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", errMalformedCredentials
	}
	return token, nil
}

func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
