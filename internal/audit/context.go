package audit

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Meta is request-scoped information copied into every record.
type Meta struct {
	IP        string
	UserAgent string
	RequestID string
}

type metaKey struct{}

// WithMeta attaches request metadata to the context for audit logging.
func WithMeta(ctx context.Context, m Meta) context.Context {
	m.IP = strings.TrimSpace(m.IP)
	m.UserAgent = truncate(strings.TrimSpace(m.UserAgent), 512)
	m.RequestID = strings.TrimSpace(m.RequestID)
	return context.WithValue(ctx, metaKey{}, m)
}

// MetaFromContext extracts the metadata if present.
func MetaFromContext(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

// truncate caps s at n bytes without splitting a rune. Invalid UTF-8 is
// dropped since the text column rejects it.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
