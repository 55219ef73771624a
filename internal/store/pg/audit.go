package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"lawdesk.org/internal/audit"
)

type auditStore struct{ s *Store }

func (st auditStore) Append(ctx context.Context, r audit.Record) error {
	var detail any
	if len(r.Detail) > 0 {
		raw, err := json.Marshal(r.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		detail = raw
	}
	_, err := st.s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, entity_type, entity_id, detail, ip, user_agent, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.ActorID, string(r.Action), r.EntityType, r.EntityID, detail, r.IP, r.UserAgent, r.RequestID, r.OccurredAt)
	return err
}

func (st auditStore) Query(ctx context.Context, f audit.Filter, offset, limit int) ([]audit.Record, int, error) {
	var w where
	w.eq("actor_id", f.ActorID)
	w.eq("action", string(f.Action))
	w.eq("entity_type", f.EntityType)
	w.eq("entity_id", f.EntityID)
	w.cmp("occurred_at", ">=", f.From)
	w.cmp("occurred_at", "<", f.To)

	var total int
	if err := st.s.db.QueryRowContext(ctx, `select count(*) from audit_log`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	tail, args := w.window(offset, limit)
	rows, err := st.s.db.QueryContext(ctx, `
		select id, actor_id, action, entity_type, entity_id, detail, ip, user_agent, request_id, occurred_at
		from audit_log`+w.String()+`
		order by occurred_at desc, id desc`+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []audit.Record{}
	for rows.Next() {
		var (
			r      audit.Record
			action string
			detail []byte
		)
		if err := rows.Scan(&r.ID, &r.ActorID, &action, &r.EntityType, &r.EntityID, &detail,
			&r.IP, &r.UserAgent, &r.RequestID, &r.OccurredAt); err != nil {
			return nil, 0, err
		}
		r.Action = audit.Action(action)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &r.Detail); err != nil {
				return nil, 0, fmt.Errorf("decode detail: %w", err)
			}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
