package memory

import (
	"context"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/paging"
)

type auditStore struct{ s *Store }

func (st auditStore) Append(_ context.Context, rec audit.Record) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.records = append(st.s.records, rec)
	return nil
}

// Query walks records from the newest append backwards.
func (st auditStore) Query(_ context.Context, f audit.Filter, offset, limit int) ([]audit.Record, int, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var hits []audit.Record
	for i := len(st.s.records) - 1; i >= 0; i-- {
		if f.Matches(st.s.records[i]) {
			hits = append(hits, st.s.records[i])
		}
	}
	page := paging.Window(hits, offset, limit)
	out := make([]audit.Record, len(page))
	copy(out, page)
	return out, len(hits), nil
}
