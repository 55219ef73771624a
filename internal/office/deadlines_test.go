package office_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/office"
)

func TestDeadlineCreateValidates(t *testing.T) {
	f := newFixture(t)
	kase := f.openCase(t, "EXP-1", f.client(t, "1").ID)

	_, err := f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: "Appeal"})
	requireCode(t, err, apperr.KindValidation, "missing_field")

	_, err = f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: "Appeal", DueAt: fixedNow, Priority: "urgent"})
	requireCode(t, err, apperr.KindValidation, "invalid_priority")

	_, err = f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: "missing", Title: "Appeal", DueAt: fixedNow})
	requireCode(t, err, apperr.KindNotFound, "case_not_found")

	d, err := f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: "Appeal", DueAt: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, office.PriorityMedium, d.Priority)
	assert.False(t, d.Completed)
}

func TestDeadlinesUpcomingWindow(t *testing.T) {
	f := newFixture(t)
	kase := f.openCase(t, "EXP-1", f.client(t, "1").ID)

	mk := func(title string, in time.Duration) office.Deadline {
		d, err := f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: title, DueAt: fixedNow.Add(in)})
		require.NoError(t, err)
		return d
	}
	overdue := mk("overdue", -24*time.Hour)
	soon := mk("soon", 24*time.Hour)
	later := mk("later", 3*24*time.Hour)
	mk("far", 10*24*time.Hour)
	done := mk("done", 2*24*time.Hour)
	_, err := f.svc.Deadlines.Complete(f.ctx, done.ID)
	require.NoError(t, err)

	got, err := f.svc.Deadlines.Upcoming(f.ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, soon.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)

	got, err = f.svc.Deadlines.Upcoming(f.ctx, 2*24*time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, soon.ID, got[0].ID)

	open := false
	page, err := f.svc.Deadlines.List(f.ctx, office.DeadlineListQuery{CaseID: kase.ID, Completed: &open})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Pagination.Total)
	assert.Equal(t, overdue.ID, page.Items[0].ID)
}

func TestDeadlineCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	kase := f.openCase(t, "EXP-1", f.client(t, "1").ID)
	d, err := f.svc.Deadlines.Create(f.ctx, office.DeadlineInput{CaseID: kase.ID, Title: "Appeal", DueAt: fixedNow.Add(time.Hour)})
	require.NoError(t, err)

	first, err := f.svc.Deadlines.Complete(f.ctx, d.ID)
	require.NoError(t, err)
	require.True(t, first.Completed)
	require.NotNil(t, first.CompletedAt)

	second, err := f.svc.Deadlines.Complete(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.CompletedAt, *second.CompletedAt)
	assert.Equal(t, 1, f.audit.count(audit.ActionComplete))

	_, err = f.svc.Deadlines.Complete(f.ctx, "missing")
	requireCode(t, err, apperr.KindNotFound, "deadline_not_found")
}
