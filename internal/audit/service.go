package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/paging"
)

const (
	defaultQueueSize      = 1024
	defaultEnqueueTimeout = 50 * time.Millisecond
	defaultWriteTimeout   = 5 * time.Second

	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
)

// Query is a paginated history request.
type Query struct {
	Filter
	Page  int
	Limit int
}

// HistoryPage is one page of history, newest first.
type HistoryPage struct {
	Records    []Record          `json:"records"`
	Pagination paging.Pagination `json:"pagination"`
}

type queued struct {
	rec  Record
	done chan struct{}
}

// Service appends audit records through a bounded queue drained by a single
// worker, so writes never block or fail the caller. Records from one actor are
// written in the order Record was called.
type Service struct {
	store          Store
	log            *logrus.Entry
	now            func() time.Time
	enqueueTimeout time.Duration
	writeTimeout   time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan queued
	stopped chan struct{}
}

// Option configures Service.
type Option func(*Service)

// WithQueueSize bounds the number of records waiting to be written.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan queued, n)
		}
	}
}

// WithEnqueueTimeout bounds how long Record waits for queue space.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.enqueueTimeout = d
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs the service and starts its writer goroutine.
// Close must be called to drain and stop it.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		log:            obs.Component("audit"),
		now:            time.Now,
		enqueueTimeout: defaultEnqueueTimeout,
		writeTimeout:   defaultWriteTimeout,
		queue:          make(chan queued, defaultQueueSize),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Record enqueues one entry. It never returns an error: entries that cannot
// be queued within the enqueue timeout are logged and dropped.
func (s *Service) Record(ctx context.Context, e Entry) {
	if !e.Action.Valid() || e.EntityType == "" {
		s.log.WithFields(logrus.Fields{"action": e.Action, "entity_type": e.EntityType}).
			Warn("audit entry rejected: unknown action or missing entity type")
		obs.AuditDropped.Inc()
		return
	}
	now := s.now().UTC()
	meta := MetaFromContext(ctx)
	rec := Record{
		ID:         ids.NewAt(now),
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Detail:     copyDetail(e.Detail),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		RequestID:  meta.RequestID,
		OccurredAt: now,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(rec, "audit service closed")
		return
	}
	item := queued{rec: rec}
	select {
	case s.queue <- item:
		obs.AuditQueueDepth.Inc()
		return
	default:
	}
	if s.enqueueTimeout <= 0 {
		s.drop(rec, "audit queue full")
		return
	}
	timer := time.NewTimer(s.enqueueTimeout)
	defer timer.Stop()
	select {
	case s.queue <- item:
		obs.AuditQueueDepth.Inc()
	case <-timer.C:
		s.drop(rec, "audit queue full")
	}
}

func (s *Service) drop(rec Record, reason string) {
	obs.AuditDropped.Inc()
	s.recordLog(rec).Warn(reason)
}

// Flush blocks until every record enqueued before the call has been written
// (or has failed to write), or ctx is done.
func (s *Service) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		select {
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case s.queue <- queued{done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the queue to drain.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run() {
	defer close(s.stopped)
	for item := range s.queue {
		if item.done != nil {
			close(item.done)
			continue
		}
		obs.AuditQueueDepth.Dec()
		s.write(item.rec)
	}
}

func (s *Service) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.store.Append(ctx, rec); err != nil {
		obs.AuditWriteFailures.Inc()
		s.recordLog(rec).WithError(err).Error("audit write failed")
	}
}

// recordLog returns an entry carrying the whole record, so a lost row can be
// recovered from logs.
func (s *Service) recordLog(rec Record) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{
		"type":        "audit",
		"audit_id":    rec.ID,
		"actor_id":    rec.ActorID,
		"action":      rec.Action,
		"entity_type": rec.EntityType,
		"entity_id":   rec.EntityID,
		"detail":      rec.Detail,
		"request_id":  rec.RequestID,
		"occurred_at": rec.OccurredAt.Format(time.RFC3339Nano),
	})
}

// QueryHistory returns filtered records newest first. Page defaults to 1 and
// limit to 20 (max 100).
func (s *Service) QueryHistory(ctx context.Context, q Query) (HistoryPage, error) {
	if q.Action != "" && !q.Action.Valid() {
		return HistoryPage{}, apperr.Validation("invalid_action", "unknown action %q", q.Action)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return HistoryPage{}, apperr.Validation("invalid_range", "to must not be before from")
	}
	req := paging.Normalize(q.Page, q.Limit, paging.DefaultLimit, paging.MaxLimit)
	records, total, err := s.store.Query(ctx, q.Filter, req.Offset(), req.Limit)
	if err != nil {
		return HistoryPage{}, apperr.Internal(err)
	}
	if records == nil {
		records = []Record{}
	}
	return HistoryPage{Records: records, Pagination: req.Of(total)}, nil
}

// RecentActivity returns the newest records of one actor.
func (s *Service) RecentActivity(ctx context.Context, actorID string, limit int) ([]Record, error) {
	if actorID == "" {
		return nil, apperr.Validation("missing_field", "actor is required")
	}
	req := paging.Normalize(1, limit, DefaultRecentLimit, MaxRecentLimit)
	records, _, err := s.store.Query(ctx, Filter{ActorID: actorID}, 0, req.Limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func copyDetail(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
