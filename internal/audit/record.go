package audit

import (
	"context"
	"time"
)

// Action names a state-changing or security-relevant operation.
type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionUpdate         Action = "UPDATE"
	ActionDelete         Action = "DELETE"
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionRegister       Action = "REGISTER"
	ActionChangePassword Action = "CHANGE_PASSWORD"
	ActionResetPassword  Action = "RESET_PASSWORD"
	ActionUpload         Action = "UPLOAD"
	ActionDownload       Action = "DOWNLOAD"
	ActionSummarize      Action = "SUMMARIZE"
	ActionComplete       Action = "COMPLETE"
)

var knownActions = map[Action]struct{}{
	ActionCreate: {}, ActionUpdate: {}, ActionDelete: {}, ActionLogin: {},
	ActionLogout: {}, ActionRegister: {}, ActionChangePassword: {},
	ActionResetPassword: {}, ActionUpload: {}, ActionDownload: {},
	ActionSummarize: {}, ActionComplete: {},
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Entry is what callers hand to Service.Record.
type Entry struct {
	ActorID    string
	Action     Action
	EntityType string
	EntityID   string
	Detail     map[string]any
}

// Record is one immutable audit row.
type Record struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filter selects records. Zero fields do not filter.
type Filter struct {
	ActorID    string
	Action     Action
	EntityType string
	EntityID   string
	From       time.Time
	To         time.Time
}

// Matches reports whether r passes f. Stores without a query language use it.
func (f Filter) Matches(r Record) bool {
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.EntityType != "" && r.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && r.EntityID != f.EntityID {
		return false
	}
	if !f.From.IsZero() && r.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

// Store persists records. There is no update or delete.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Query returns matching records newest first, plus the total match count.
	Query(ctx context.Context, f Filter, offset, limit int) ([]Record, int, error)
}
