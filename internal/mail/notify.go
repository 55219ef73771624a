package mail

import (
	"context"
	"net/url"
	"time"

	"lawdesk.org/internal/auth"
)

// ResetNotifier emails password reset links. It implements auth.ResetNotifier.
type ResetNotifier struct {
	sender   Sender
	resetURL string
}

func NewResetNotifier(sender Sender, resetURL string) *ResetNotifier {
	return &ResetNotifier{sender: sender, resetURL: resetURL}
}

func (n *ResetNotifier) SendPasswordReset(ctx context.Context, user auth.User, token string, expiresAt time.Time) error {
	if user.Email == "" {
		return ErrNoRecipient
	}
	return n.sender.Send(ctx, Message{
		To:       []string{user.Email},
		Subject:  "Password reset",
		Template: TemplatePasswordReset,
		Data: struct {
			Name      string
			Link      string
			ExpiresAt time.Time
		}{user.DisplayName(), resetLink(n.resetURL, token), expiresAt},
	})
}

func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// DeadlineNotice is the data of a deadline reminder.
type DeadlineNotice struct {
	Name        string
	CaseNumber  string
	CaseTitle   string
	Title       string
	Description string
	Priority    string
	DueAt       time.Time
}

// SendDeadlineReminder mails one reminder to a single recipient.
func SendDeadlineReminder(ctx context.Context, sender Sender, to string, n DeadlineNotice) error {
	return sender.Send(ctx, Message{
		To:       []string{to},
		Subject:  "Deadline due: " + n.Title,
		Template: TemplateDeadlineReminder,
		Data:     n,
	})
}
