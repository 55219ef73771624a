// Package reminders e-mails the assigned lawyer about open deadlines that fall
// due soon. A cron schedule drives RunOnce.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/mail"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/office"
)

const (
	DefaultSchedule = "0 8 * * *"
	DefaultWindow   = 72 * time.Hour

	batchLimit = 500
)

// Result counts the outcome of one run.
type Result struct {
	Sent    int
	Skipped int
	Failed  int
}

// Runner finds due deadlines and sends one mail per deadline.
type Runner struct {
	deadlines office.DeadlineStore
	cases     office.CaseStore
	users     auth.UserStore
	sender    mail.Sender
	window    time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

type Option func(*Runner)

func WithWindow(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.window = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRunner(deadlines office.DeadlineStore, cases office.CaseStore, users auth.UserStore, sender mail.Sender, opts ...Option) *Runner {
	r := &Runner{
		deadlines: deadlines,
		cases:     cases,
		users:     users,
		sender:    sender,
		window:    DefaultWindow,
		now:       time.Now,
		log:       obs.Component("reminders"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce sends reminders for open deadlines due in [now, now+window).
// A failing deadline is logged and counted; the rest of the batch continues.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := r.now()
	open := false
	due, _, err := r.deadlines.List(ctx, office.DeadlineFilter{
		Completed: &open,
		DueAfter:  now,
		DueBefore: now.Add(r.window),
		Limit:     batchLimit,
	})
	if err != nil {
		return res, fmt.Errorf("reminders: list deadlines: %w", err)
	}

	cases := map[string]office.Case{}
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry := r.log.WithFields(logrus.Fields{"deadline_id": d.ID, "case_id": d.CaseID})

		c, ok := cases[d.CaseID]
		if !ok {
			c, err = r.cases.Get(ctx, d.CaseID)
			if err != nil {
				entry.WithError(err).Warn("reminder_case_lookup_failed")
				r.count(&res, "error")
				continue
			}
			cases[d.CaseID] = c
		}
		if c.LawyerID == "" {
			r.count(&res, "skipped")
			continue
		}
		lawyer, err := r.users.Find(ctx, c.LawyerID)
		if err != nil || lawyer.Email == "" {
			if err != nil {
				entry.WithError(err).Warn("reminder_lawyer_lookup_failed")
				r.count(&res, "error")
			} else {
				r.count(&res, "skipped")
			}
			continue
		}

		err = mail.SendDeadlineReminder(ctx, r.sender, lawyer.Email, mail.DeadlineNotice{
			Name:        lawyer.DisplayName(),
			CaseNumber:  c.Number,
			CaseTitle:   c.Title,
			Title:       d.Title,
			Description: d.Description,
			Priority:    string(d.Priority),
			DueAt:       d.DueAt,
		})
		if err != nil {
			entry.WithError(err).Warn("reminder_send_failed")
			r.count(&res, "error")
			continue
		}
		r.count(&res, "sent")
	}
	r.log.WithFields(logrus.Fields{"sent": res.Sent, "skipped": res.Skipped, "failed": res.Failed}).Info("reminders_run_complete")
	return res, nil
}

func (r *Runner) count(res *Result, result string) {
	switch result {
	case "sent":
		res.Sent++
	case "skipped":
		res.Skipped++
	default:
		res.Failed++
	}
	obs.RemindersSent.WithLabelValues(result).Inc()
}

// Scheduler runs a Runner on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	log    *logrus.Entry
	mu     sync.Mutex
	ctx    context.Context
}

func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner: runner,
		log:    obs.Component("reminders"),
		ctx:    context.Background(),
	}
}

// Start registers the job and starts the cron loop. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("reminders: invalid schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("reminders_scheduler_started")
	return nil
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if _, err := s.runner.RunOnce(ctx); err != nil {
		s.log.WithError(err).Warn("reminders_run_failed")
	}
}

// Stop stops scheduling and waits for a running job up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info("reminders_scheduler_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
